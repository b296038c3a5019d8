package stats

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStat_Failed(t *testing.T) {
	ok := Stat{Name: "get", Status: 200, Latency: 10 * time.Millisecond}
	assert.False(t, ok.Failed())
	assert.Equal(t, "get,200,10", ok.String())

	failed := Stat{Name: "get", Status: StatusFailed, Latency: 3 * time.Millisecond, Error: "refused"}
	assert.True(t, failed.Failed())
	assert.Equal(t, "get,failed,3,refused", failed.String())
}

func TestCollector_AppendKeepsOrder(t *testing.T) {
	c := NewCollector()
	for _, name := range []string{"A", "B", "A", "B"} {
		c.Append(Stat{Name: name, Status: 200, Latency: time.Millisecond})
	}

	got := c.Drain()
	require.Len(t, got, 4)
	names := make([]string, 0, len(got))
	for _, s := range got {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"A", "B", "A", "B"}, names)
}

func TestCollector_DrainEmpties(t *testing.T) {
	c := NewCollector()
	c.Append(Stat{Name: "x", Status: 204})

	assert.Len(t, c.Drain(), 1)
	assert.Empty(t, c.Drain())
}

func TestCollector_ConcurrentAppend(t *testing.T) {
	c := NewCollector()

	const workers, perWorker = 16, 250
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				c.Append(Stat{Name: "req", Status: 200, Worker: id, Iteration: i + 1})
			}
		}(w)
	}
	wg.Wait()

	got := c.Drain()
	require.Len(t, got, workers*perWorker)

	// Per-worker order must survive interleaving.
	last := make(map[int]int)
	for _, s := range got {
		assert.Greater(t, s.Iteration, last[s.Worker])
		last[s.Worker] = s.Iteration
	}
}
