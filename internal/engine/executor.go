package engine

import (
	"context"
	"time"

	"github.com/wesleyorama2/bombard/internal/http"
	"github.com/wesleyorama2/bombard/internal/stats"
)

// Result is the outcome of one request call.
type Result struct {
	Start    time.Time
	Latency  time.Duration
	Response *http.Response
	Err      error
}

// Failed reports whether the call produced no response.
func (r Result) Failed() bool {
	return r.Err != nil || r.Response == nil
}

// Stat turns the result into a record for the named request.
func (r Result) Stat(name string, worker, iteration int) stats.Stat {
	s := stats.Stat{
		Name:      name,
		Status:    stats.StatusFailed,
		Latency:   r.Latency,
		Start:     r.Start,
		Worker:    worker,
		Iteration: iteration,
	}
	switch {
	case r.Err != nil:
		s.Error = r.Err.Error()
	case r.Response == nil:
		s.Error = "no response"
	default:
		s.Status = r.Response.StatusCode
	}
	return s
}

// Execute sends a rendered request and times the call.
//
// The request runs under a context detached from ctx's cancellation, so a
// shutdown lets the in-flight request finish. The client's own timeout
// still bounds it.
func Execute(ctx context.Context, client http.Doer, req *http.Request) Result {
	start := time.Now()
	resp, err := client.Do(context.WithoutCancel(ctx), req)
	return Result{
		Start:    start,
		Latency:  time.Since(start),
		Response: resp,
		Err:      err,
	}
}
