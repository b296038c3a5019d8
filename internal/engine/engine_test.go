package engine

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/bombard/internal/config"
	"github.com/wesleyorama2/bombard/internal/http"
	"github.com/wesleyorama2/bombard/internal/stats"
)

// fakeDoer records every rendered request and answers through respond.
type fakeDoer struct {
	mu      sync.Mutex
	sent    []*http.Request
	calls   atomic.Int64
	respond func(n int64, req *http.Request) (*http.Response, error)
}

func (f *fakeDoer) Do(_ context.Context, req *http.Request) (*http.Response, error) {
	n := f.calls.Add(1)
	f.mu.Lock()
	f.sent = append(f.sent, req)
	f.mu.Unlock()

	if f.respond != nil {
		return f.respond(n, req)
	}
	return &http.Response{StatusCode: 200, Status: "200 OK"}, nil
}

func (f *fakeDoer) requests() []*http.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*http.Request(nil), f.sent...)
}

type recordingSink struct {
	mu    sync.Mutex
	stats []stats.Stat
	err   error
}

func (r *recordingSink) Append(s stats.Stat) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.stats = append(r.stats, s)
	return nil
}

func execConfig(threads, iterations int) config.ExecutionConfig {
	return config.ExecutionConfig{
		ThreadCount: threads,
		Iterations:  iterations,
		RampUpTime:  time.Millisecond,
	}
}

func twoRequests() []*http.Request {
	return []*http.Request{
		http.NewRequest("A", "GET", "http://example.test/a"),
		http.NewRequest("B", "POST", "http://example.test/b"),
	}
}

func names(all []stats.Stat) []string {
	out := make([]string, 0, len(all))
	for _, s := range all {
		out = append(out, s.Name)
	}
	return out
}

func TestRun_SingleWorkerOrder(t *testing.T) {
	doer := &fakeDoer{}

	got, err := Run(context.Background(), execConfig(1, 2), twoRequests(), nil, doer, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B", "A", "B"}, names(got))
	for i, s := range got {
		assert.Equal(t, 200, s.Status)
		assert.Equal(t, 0, s.Worker)
		assert.Equal(t, i/2+1, s.Iteration)
		assert.False(t, s.Start.IsZero())
	}
}

func TestRun_CollectorSize(t *testing.T) {
	doer := &fakeDoer{}
	sink := &recordingSink{}

	const threads, iterations = 3, 4
	s := NewScheduler(execConfig(threads, iterations), twoRequests(), nil, doer, sink)
	got, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, got, threads*iterations*2)
	assert.Len(t, sink.stats, len(got))

	perWorker := make(map[int]int)
	for _, st := range got {
		perWorker[st.Worker]++
	}
	for id := 0; id < threads; id++ {
		assert.Equal(t, iterations*2, perWorker[id], "worker %d", id)
	}

	require.Len(t, s.Workers(), threads)
	for _, w := range s.Workers() {
		assert.Equal(t, WorkerStopped, w.State())
		assert.Equal(t, iterations, w.Iteration())
	}
}

func TestRun_IterationsWinOverExecutionTime(t *testing.T) {
	cfg := execConfig(1, 1)
	cfg.ExecutionTime = time.Hour

	start := time.Now()
	got, err := Run(context.Background(), cfg, twoRequests(), nil, &fakeDoer{}, nil)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRun_TimeBoundCompletesPasses(t *testing.T) {
	cfg := config.ExecutionConfig{
		ThreadCount:   2,
		ExecutionTime: 60 * time.Millisecond,
		RampUpTime:    time.Millisecond,
		ThreadDelay:   5 * time.Millisecond,
	}

	got, err := Run(context.Background(), cfg, twoRequests(), nil, &fakeDoer{}, nil)
	require.NoError(t, err)

	perWorker := make(map[int][]stats.Stat)
	for _, s := range got {
		perWorker[s.Worker] = append(perWorker[s.Worker], s)
	}
	require.Len(t, perWorker, 2)

	for id, list := range perWorker {
		// Termination is only checked between passes, so every pass is whole.
		assert.Zero(t, len(list)%2, "worker %d stopped mid-pass", id)
		assert.GreaterOrEqual(t, len(list), 2)
		assert.Equal(t, []string{"A", "B"}, names(list[len(list)-2:]))
	}
}

func TestRun_RampUpStaggersWorkers(t *testing.T) {
	cfg := config.ExecutionConfig{
		ThreadCount: 3,
		Iterations:  1,
		RampUpTime:  150 * time.Millisecond,
	}

	requests := []*http.Request{http.NewRequest("only", "GET", "http://example.test")}
	got, err := Run(context.Background(), cfg, requests, nil, &fakeDoer{}, nil)
	require.NoError(t, err)
	require.Len(t, got, 3)

	first := make(map[int]time.Time)
	for _, s := range got {
		first[s.Worker] = s.Start
	}
	for id := 1; id < 3; id++ {
		gap := first[id].Sub(first[id-1])
		assert.GreaterOrEqual(t, gap, 40*time.Millisecond, "gap before worker %d", id)
	}
}

func TestRun_NoPauseAfterLastSpawn(t *testing.T) {
	cfg := config.ExecutionConfig{
		ThreadCount: 1,
		Iterations:  1,
		RampUpTime:  10 * time.Second,
	}

	start := time.Now()
	_, err := Run(context.Background(), cfg, twoRequests(), nil, &fakeDoer{}, nil)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRun_RequestFailureIsFatal(t *testing.T) {
	errRefused := errors.New("connection refused")
	doer := &fakeDoer{respond: func(n int64, req *http.Request) (*http.Response, error) {
		if n == 4 {
			return nil, errRefused
		}
		return &http.Response{StatusCode: 200}, nil
	}}

	got, err := Run(context.Background(), execConfig(1, 3), twoRequests(), nil, doer, nil)
	require.Error(t, err)

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, 0, reqErr.Worker)
	assert.Equal(t, 2, reqErr.Iteration)
	assert.Equal(t, "B", reqErr.Request)
	assert.ErrorIs(t, err, errRefused)

	// Partial stats come back with the error.
	assert.Equal(t, []string{"A", "B", "A"}, names(got))
	assert.EqualValues(t, 4, doer.calls.Load())
}

func TestRun_ContinueOnError(t *testing.T) {
	doer := &fakeDoer{respond: func(n int64, req *http.Request) (*http.Response, error) {
		if req.Name == "B" {
			return nil, errors.New("timeout")
		}
		return &http.Response{StatusCode: 201}, nil
	}}

	cfg := execConfig(1, 2)
	cfg.ContinueOnError = true

	got, err := Run(context.Background(), cfg, twoRequests(), nil, doer, nil)
	require.NoError(t, err)
	require.Len(t, got, 4)

	for _, s := range got {
		if s.Name == "B" {
			assert.True(t, s.Failed())
			assert.Equal(t, stats.StatusFailed, s.Status)
			assert.Equal(t, "timeout", s.Error)
		} else {
			assert.Equal(t, 201, s.Status)
		}
	}
}

func TestRun_FatalErrorStopsOtherWorkers(t *testing.T) {
	doer := &fakeDoer{respond: func(n int64, req *http.Request) (*http.Response, error) {
		if n == 20 {
			return nil, errors.New("boom")
		}
		return &http.Response{StatusCode: 200}, nil
	}}

	cfg := config.ExecutionConfig{
		ThreadCount:   4,
		ExecutionTime: time.Hour,
		RampUpTime:    time.Millisecond,
		ThreadDelay:   time.Millisecond,
	}

	done := make(chan struct{})
	var err error
	go func() {
		defer close(done)
		_, err = Run(context.Background(), cfg, twoRequests(), nil, doer, nil)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after a fatal error")
	}

	var reqErr *RequestError
	assert.ErrorAs(t, err, &reqErr)
}

func TestRun_ExtractionFeedsNextRequest(t *testing.T) {
	doer := &fakeDoer{respond: func(n int64, req *http.Request) (*http.Response, error) {
		if req.Name == "login" {
			return &http.Response{StatusCode: 200, Body: []byte(`{"data":{"token":"tok-1"}}`)}, nil
		}
		return &http.Response{StatusCode: 200}, nil
	}}

	requests := []*http.Request{
		http.NewRequest("login", "POST", "{{base}}/login").
			WithExtract(http.ExtractRule{Name: "token", Source: http.SourceBody, Path: "$.data.token"}),
		http.NewRequest("me", "GET", "{{base}}/me").
			WithHeader("Authorization", "Bearer {{token}}"),
	}

	s := NewScheduler(execConfig(1, 1), requests, map[string]string{"base": "http://api.test"}, doer, nil)
	_, err := s.Run(context.Background())
	require.NoError(t, err)

	sent := doer.requests()
	require.Len(t, sent, 2)
	assert.Equal(t, "http://api.test/login", sent[0].URL)
	assert.Equal(t, "http://api.test/me", sent[1].URL)
	assert.Equal(t, "Bearer tok-1", sent[1].Headers["Authorization"])

	assert.Equal(t, "tok-1", s.Workers()[0].Variables()["token"])

	// The templates themselves are untouched.
	assert.Equal(t, "Bearer {{token}}", requests[1].Headers["Authorization"])
}

func TestRun_WorkersHaveIndependentVariables(t *testing.T) {
	doer := &fakeDoer{respond: func(n int64, req *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: 200, Body: []byte(fmt.Sprintf(`{"n":"%d"}`, n))}, nil
	}}

	requests := []*http.Request{
		http.NewRequest("count", "GET", "http://example.test").
			WithExtract(http.ExtractRule{Name: "n", Path: "n"}),
	}
	seed := map[string]string{"n": "seed"}

	s := NewScheduler(execConfig(3, 1), requests, seed, doer, nil)
	_, err := s.Run(context.Background())
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, w := range s.Workers() {
		v := w.Variables()["n"]
		assert.NotEqual(t, "seed", v)
		assert.False(t, seen[v], "variables shared between workers")
		seen[v] = true
	}
	assert.Equal(t, "seed", seed["n"])
}

func TestRun_UnknownPlaceholderSentVerbatim(t *testing.T) {
	doer := &fakeDoer{}
	requests := []*http.Request{http.NewRequest("x", "GET", "http://example.test/{{missing}}")}

	_, err := Run(context.Background(), execConfig(1, 1), requests, nil, doer, nil)
	require.NoError(t, err)

	sent := doer.requests()
	require.Len(t, sent, 1)
	assert.Equal(t, "http://example.test/{{missing}}", sent[0].URL)
}

func TestRun_PanicBecomesInternalError(t *testing.T) {
	doer := &fakeDoer{respond: func(n int64, req *http.Request) (*http.Response, error) {
		panic("client exploded")
	}}

	_, err := Run(context.Background(), execConfig(1, 1), twoRequests(), nil, doer, nil)

	var internal *InternalError
	require.ErrorAs(t, err, &internal)
	assert.Equal(t, 0, internal.Worker)
	assert.Equal(t, "client exploded", internal.Panic)
	assert.Contains(t, err.Error(), "panicked")
}

func TestRun_InvalidConfigSpawnsNothing(t *testing.T) {
	tests := []struct {
		name  string
		cfg   config.ExecutionConfig
		field string
	}{
		{"no threads", config.ExecutionConfig{Iterations: 1, RampUpTime: time.Second}, "thread_count"},
		{"no termination", config.ExecutionConfig{ThreadCount: 1, RampUpTime: time.Second}, "iterations"},
		{"no rampup", config.ExecutionConfig{ThreadCount: 1, Iterations: 1}, "rampup_time"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doer := &fakeDoer{}
			got, err := Run(context.Background(), tt.cfg, twoRequests(), nil, doer, nil)

			var verrs *config.ValidationErrors
			require.ErrorAs(t, err, &verrs)
			fields := make([]string, 0, len(verrs.Errors))
			for _, e := range verrs.Errors {
				fields = append(fields, e.Field)
			}
			assert.Contains(t, fields, tt.field)
			assert.Nil(t, got)
			assert.Zero(t, doer.calls.Load())
		})
	}
}

func TestRun_NoRequests(t *testing.T) {
	_, err := Run(context.Background(), execConfig(1, 1), nil, nil, &fakeDoer{}, nil)

	var verrs *config.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "requests", verrs.Errors[0].Field)
}

func TestRun_SinkErrorIsFatal(t *testing.T) {
	sink := &recordingSink{err: errors.New("disk full")}

	got, err := Run(context.Background(), execConfig(1, 1), twoRequests(), nil, &fakeDoer{}, sink)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Len(t, got, 1)
}

func TestRun_CancellationIsGraceful(t *testing.T) {
	cfg := config.ExecutionConfig{
		ThreadCount:   2,
		ExecutionTime: time.Hour,
		RampUpTime:    time.Millisecond,
		ThreadDelay:   time.Millisecond,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	got, err := Run(ctx, cfg, twoRequests(), nil, &fakeDoer{}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, got)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRun_CancellationDuringRampUp(t *testing.T) {
	cfg := config.ExecutionConfig{
		ThreadCount: 5,
		Iterations:  1,
		RampUpTime:  50 * time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	s := NewScheduler(cfg, twoRequests(), nil, &fakeDoer{}, nil)
	got, err := s.Run(ctx)
	require.NoError(t, err)

	assert.Len(t, s.Workers(), 1)
	assert.Len(t, got, 2)
}

func TestRun_CookieSessionsPerWorker(t *testing.T) {
	var counter atomic.Int64
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/login":
			sid := fmt.Sprintf("s%d", counter.Add(1))
			nethttp.SetCookie(w, &nethttp.Cookie{Name: "sid", Value: sid, Path: "/"})
			fmt.Fprintf(w, `{"sid":%q}`, sid)
		case "/whoami":
			c, err := r.Cookie("sid")
			if err != nil {
				w.WriteHeader(nethttp.StatusUnauthorized)
				return
			}
			fmt.Fprintf(w, `{"sid":%q}`, c.Value)
		}
	}))
	defer server.Close()

	requests := []*http.Request{
		http.NewRequest("login", "POST", server.URL+"/login").
			WithExtract(http.ExtractRule{Name: "issued", Path: "sid"}),
		http.NewRequest("whoami", "GET", server.URL+"/whoami").
			WithExtract(http.ExtractRule{Name: "seen", Path: "sid"}),
	}

	cfg := execConfig(3, 1)
	cfg.HandleCookies = true

	client := http.NewClient(http.WithTimeout(5 * time.Second))
	defer client.CloseIdleConnections()

	s := NewScheduler(cfg, requests, nil, client, nil)
	got, err := s.Run(context.Background())
	require.NoError(t, err)

	for _, st := range got {
		assert.Equal(t, 200, st.Status, "%s from worker %d", st.Name, st.Worker)
	}
	for _, w := range s.Workers() {
		vars := w.Variables()
		assert.NotEmpty(t, vars["issued"])
		assert.Equal(t, vars["issued"], vars["seen"], "worker %d", w.ID)
	}
}

func TestRun_AgainstServer(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		hits.Add(1)
		if strings.HasSuffix(r.URL.Path, "/missing") {
			w.WriteHeader(nethttp.StatusNotFound)
			return
		}
		w.WriteHeader(nethttp.StatusOK)
	}))
	defer server.Close()

	requests := []*http.Request{
		http.NewRequest("ok", "GET", "{{base}}/ok"),
		http.NewRequest("missing", "GET", "{{base}}/missing"),
	}

	got, err := Run(context.Background(), execConfig(2, 3), requests,
		map[string]string{"base": server.URL}, http.NewClient(), nil)
	require.NoError(t, err)
	require.Len(t, got, 12)
	assert.EqualValues(t, 12, hits.Load())

	for _, s := range got {
		switch s.Name {
		case "ok":
			assert.Equal(t, 200, s.Status)
		case "missing":
			assert.Equal(t, 404, s.Status)
		}
		assert.Positive(t, s.Latency)
	}
}
