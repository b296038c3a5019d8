// Package engine drives a load test: it spawns the workers, staggers their
// start over the ramp-up window and joins them into one result set.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wesleyorama2/bombard/internal/config"
	"github.com/wesleyorama2/bombard/internal/http"
	"github.com/wesleyorama2/bombard/internal/report"
	"github.com/wesleyorama2/bombard/internal/stats"
	"github.com/wesleyorama2/bombard/internal/template"
)

// Scheduler runs one load test.
type Scheduler struct {
	cfg       config.ExecutionConfig
	requests  []*http.Request
	variables template.Variables
	client    http.Doer
	sink      report.Sink
	logger    *zap.Logger
	collector *stats.Collector

	workers []*Worker
}

// Option is a function that configures a Scheduler
type Option func(*Scheduler)

// WithLogger sets the logger used by the scheduler and its workers
func WithLogger(logger *zap.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewScheduler creates a scheduler.
//
// Parameters:
//   - cfg: Execution parameters, validated when Run is called
//   - requests: Request templates, executed in order on every iteration
//   - variables: Seed variables; every worker gets its own copy
//   - client: Sends the rendered requests
//   - sink: Receives every Stat as it is recorded (nil discards)
func NewScheduler(cfg config.ExecutionConfig, requests []*http.Request, variables map[string]string,
	client http.Doer, sink report.Sink, opts ...Option) *Scheduler {
	if sink == nil {
		sink = report.Discard
	}

	s := &Scheduler{
		cfg:       cfg,
		requests:  requests,
		variables: template.Variables(variables).Clone(),
		client:    client,
		sink:      sink,
		logger:    zap.NewNop(),
		collector: stats.NewCollector(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Run is the one-shot form of NewScheduler(...).Run(ctx).
func Run(ctx context.Context, cfg config.ExecutionConfig, requests []*http.Request, variables map[string]string,
	client http.Doer, sink report.Sink, opts ...Option) ([]stats.Stat, error) {
	return NewScheduler(cfg, requests, variables, client, sink, opts...).Run(ctx)
}

// Workers returns the workers spawned by the last Run.
func (s *Scheduler) Workers() []*Worker {
	return s.workers
}

// Run spawns the workers, waits for all of them and returns every recorded
// Stat in completion order.
//
// Configuration problems are returned before any worker starts. When a
// worker fails fatally the remaining workers stop at their next request
// boundary and the stats collected so far are returned with the error.
// Cancelling ctx stops the run gracefully and returns a nil error.
func (s *Scheduler) Run(ctx context.Context) ([]stats.Stat, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}

	for _, warning := range s.cfg.Warnings() {
		s.logger.Warn(warning)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	threads := s.cfg.ThreadCount
	stagger := s.cfg.Stagger()
	reported := make([]atomic.Bool, threads)
	s.workers = make([]*Worker, 0, threads)

	s.logger.Info("starting run",
		zap.Int("threads", threads),
		zap.Int("iterations", s.cfg.Iterations),
		zap.Duration("execution_time", s.cfg.ExecutionTime),
		zap.Duration("stagger", stagger),
		zap.Int("requests", len(s.requests)))

	var spawnErr error
	runStart := time.Now()

	for i := 0; i < threads; i++ {
		if gctx.Err() != nil {
			break
		}

		client, err := s.clientFor(i)
		if err != nil {
			spawnErr = err
			cancel()
			break
		}

		w := NewWorker(WorkerConfig{
			ID:        i,
			Execution: s.cfg,
			Requests:  s.requests,
			Variables: s.variables,
			Client:    client,
			Collector: s.collector,
			Sink:      s.sink,
			RunStart:  runStart,
			Logger:    s.logger,
		})
		s.workers = append(s.workers, w)

		id := i
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = &InternalError{Worker: id, Panic: r}
				}
			}()
			err = w.Run(gctx)
			reported[id].Store(true)
			return err
		})
		s.logger.Info("worker spawned", zap.Int("worker", i))

		if i < threads-1 && !sleep(gctx, stagger) {
			break
		}
	}

	err := g.Wait()
	if err == nil {
		err = spawnErr
	}
	if err == nil {
		for i := range s.workers {
			if !reported[i].Load() {
				err = &InternalError{Worker: i}
				break
			}
		}
	}

	collected := s.collector.Drain()
	if err != nil {
		s.logger.Error("run failed", zap.Int("stats", len(collected)), zap.Error(err))
		return collected, err
	}

	s.logger.Info("run finished",
		zap.Int("stats", len(collected)),
		zap.Duration("elapsed", time.Since(runStart)),
		zap.Bool("interrupted", ctx.Err() != nil))
	return collected, nil
}

func (s *Scheduler) validate() error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}

	errs := &config.ValidationErrors{}
	if len(s.requests) == 0 {
		errs.Add("requests", "at least one request is required")
	}
	for i, req := range s.requests {
		if req == nil {
			errs.Add(fmt.Sprintf("requests[%d]", i), "request is nil")
		}
	}
	if s.client == nil {
		errs.Add("client", "client is required")
	}
	if errs.HasErrors() {
		return errs
	}
	return nil
}

// clientFor returns the client worker id sends through. With cookie
// handling on, a client that can open sessions gives each worker its own.
func (s *Scheduler) clientFor(id int) (http.Doer, error) {
	if !s.cfg.HandleCookies {
		return s.client, nil
	}

	factory, ok := s.client.(http.SessionFactory)
	if !ok {
		return s.client, nil
	}

	session, err := factory.NewSession()
	if err != nil {
		return nil, fmt.Errorf("worker %d: failed to create session: %w", id, err)
	}
	if session == nil {
		return nil, errors.New("session factory returned a nil client")
	}
	return session, nil
}
