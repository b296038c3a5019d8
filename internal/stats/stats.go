// Package stats holds the per-request outcome records produced during a run
// and the collector that aggregates them across workers.
package stats

import (
	"fmt"
	"sync"
	"time"
)

// StatusFailed is the status recorded for a request that produced no response.
const StatusFailed = 0

// Stat is the outcome of a single executed request.
//
// A Stat is created once per request and passed by value; nothing mutates it
// after construction.
type Stat struct {
	// Name of the request template that was executed
	Name string `json:"name"`

	// Status is the HTTP status code, or StatusFailed
	Status int `json:"status"`

	// Latency is the elapsed time of the request call
	Latency time.Duration `json:"latency"`

	// Start is when the request was sent
	Start time.Time `json:"start"`

	// Worker is the index of the worker that executed the request
	Worker int `json:"worker"`

	// Iteration is the worker-local pass number (1-based)
	Iteration int `json:"iteration"`

	// Error describes the failure when Status is StatusFailed
	Error string `json:"error,omitempty"`
}

// Failed reports whether the request produced no response.
func (s Stat) Failed() bool {
	return s.Status == StatusFailed
}

func (s Stat) String() string {
	if s.Failed() {
		return fmt.Sprintf("%s,failed,%d,%s", s.Name, s.Latency.Milliseconds(), s.Error)
	}
	return fmt.Sprintf("%s,%d,%d", s.Name, s.Status, s.Latency.Milliseconds())
}

// Collector is an append-only, goroutine-safe sequence of Stat records.
//
// Records keep completion order. The collector never removes or reorders
// entries; Drain hands the whole sequence to the caller once the run is over.
type Collector struct {
	mu    sync.Mutex
	stats []Stat
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{stats: make([]Stat, 0, 1024)}
}

// Append adds a record.
func (c *Collector) Append(s Stat) {
	c.mu.Lock()
	c.stats = append(c.stats, s)
	c.mu.Unlock()
}

// Drain returns every collected record and leaves the collector empty.
func (c *Collector) Drain() []Stat {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.stats
	c.stats = nil
	return out
}
