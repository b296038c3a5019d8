package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/bombard/internal/config"
	"github.com/wesleyorama2/bombard/internal/http"
	"github.com/wesleyorama2/bombard/internal/report"
	"github.com/wesleyorama2/bombard/internal/stats"
	"github.com/wesleyorama2/bombard/internal/template"
)

// WorkerState represents the lifecycle state of a worker.
type WorkerState int32

const (
	// WorkerIdle indicates the worker has been created but not started.
	WorkerIdle WorkerState = iota
	// WorkerRunning indicates the worker is executing iterations.
	WorkerRunning
	// WorkerStopped indicates the worker has returned.
	WorkerStopped
)

func (s WorkerState) String() string {
	switch s {
	case WorkerIdle:
		return "idle"
	case WorkerRunning:
		return "running"
	case WorkerStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// WorkerConfig carries everything a worker needs. All fields except
// Variables are shared with the other workers of the run.
type WorkerConfig struct {
	ID        int
	Execution config.ExecutionConfig
	Requests  []*http.Request
	Variables template.Variables
	Client    http.Doer
	Collector *stats.Collector
	Sink      report.Sink
	RunStart  time.Time
	Logger    *zap.Logger
}

// Worker runs the request sequence repeatedly until its termination
// condition holds.
//
// Each worker has its own:
//   - Variable scope, seeded from the run's variables and updated by extraction
//   - Iteration counter
//   - Lifecycle state
type Worker struct {
	ID int

	cfg       config.ExecutionConfig
	requests  []*http.Request
	vars      template.Variables
	client    http.Doer
	collector *stats.Collector
	sink      report.Sink
	runStart  time.Time
	logger    *zap.Logger

	// Lifecycle state (atomic for lock-free reads)
	state atomic.Int32

	iteration atomic.Int64
}

// NewWorker creates a worker. The Variables map is copied.
func NewWorker(c WorkerConfig) *Worker {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sink := c.Sink
	if sink == nil {
		sink = report.Discard
	}
	collector := c.Collector
	if collector == nil {
		collector = stats.NewCollector()
	}
	runStart := c.RunStart
	if runStart.IsZero() {
		runStart = time.Now()
	}

	return &Worker{
		ID:        c.ID,
		cfg:       c.Execution,
		requests:  c.Requests,
		vars:      c.Variables.Clone(),
		client:    c.Client,
		collector: collector,
		sink:      sink,
		runStart:  runStart,
		logger:    logger.With(zap.Int("worker", c.ID)),
	}
}

// State returns the current worker state.
func (w *Worker) State() WorkerState {
	return WorkerState(w.state.Load())
}

// Iteration returns the number of iterations started so far.
func (w *Worker) Iteration() int {
	return int(w.iteration.Load())
}

// Variables returns a copy of the worker's current variables.
// It is only meaningful once the worker has stopped.
func (w *Worker) Variables() template.Variables {
	return w.vars.Clone()
}

// Run executes iterations until the termination condition holds or ctx is
// cancelled. Cancellation is not an error: the worker finishes the request
// in flight and returns nil. A non-nil error is fatal to the run.
func (w *Worker) Run(ctx context.Context) error {
	w.state.Store(int32(WorkerRunning))
	defer w.state.Store(int32(WorkerStopped))

	for !w.done() {
		if ctx.Err() != nil {
			break
		}
		iteration := int(w.iteration.Add(1))

		for _, tmpl := range w.requests {
			if ctx.Err() != nil {
				break
			}
			if err := w.execute(ctx, tmpl, iteration); err != nil {
				return err
			}
		}
	}

	w.logger.Info("worker stopped", zap.Int("iterations", w.Iteration()))
	return nil
}

// done reports whether the worker should stop before the next iteration.
func (w *Worker) done() bool {
	if w.cfg.IterationBound() {
		return w.Iteration() >= w.cfg.Iterations
	}
	return time.Since(w.runStart) > w.cfg.ExecutionTime
}

func (w *Worker) execute(ctx context.Context, tmpl *http.Request, iteration int) error {
	req := template.RenderRequest(tmpl, w.vars)

	w.logger.Debug("executing request",
		zap.Int("iteration", iteration),
		zap.String("request", tmpl.Name),
		zap.String("method", req.Method),
		zap.String("url", req.URL))

	result := Execute(ctx, w.client, req)

	if result.Failed() && !w.cfg.ContinueOnError {
		err := result.Err
		if err == nil {
			err = fmt.Errorf("no response")
		}
		return &RequestError{Worker: w.ID, Iteration: iteration, Request: tmpl.Name, Err: err}
	}

	stat := result.Stat(tmpl.Name, w.ID, iteration)
	w.collector.Append(stat)
	if err := w.sink.Append(stat); err != nil {
		return fmt.Errorf("worker %d: failed to write report: %w", w.ID, err)
	}

	if result.Failed() {
		w.logger.Warn("request failed, continuing",
			zap.Int("iteration", iteration),
			zap.String("request", tmpl.Name),
			zap.String("error", stat.Error))
	} else if len(tmpl.Extract) > 0 {
		if err := template.Extract(result.Response, tmpl.Extract, w.vars); err != nil {
			w.logger.Warn("required extraction failed",
				zap.Int("iteration", iteration),
				zap.String("request", tmpl.Name),
				zap.Error(err))
		}
	}

	sleep(ctx, w.cfg.ThreadDelay)
	return nil
}

// sleep pauses for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
