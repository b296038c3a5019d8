// Package metrics aggregates Stat records into latency summaries and
// publishes them to Prometheus.
package metrics

import (
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/wesleyorama2/bombard/internal/stats"
)

// Histogram bounds in microseconds: 1µs to 1 hour, 3 significant figures.
const (
	histogramMin     = 1
	histogramMax     = 3600000000
	histogramSigFigs = 3
)

// LatencyStats contains latency statistics.
type LatencyStats struct {
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Mean   time.Duration `json:"mean"`
	StdDev time.Duration `json:"stdDev"`
	P50    time.Duration `json:"p50"`
	P90    time.Duration `json:"p90"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`
	Count  int64         `json:"count"`
}

// RequestSummary is the breakdown for one request name.
type RequestSummary struct {
	Name        string        `json:"name"`
	Total       int64         `json:"total"`
	Failed      int64         `json:"failed"`
	HTTPErrors  int64         `json:"httpErrors"`
	StatusCodes map[int]int64 `json:"statusCodes"`
	Latency     LatencyStats  `json:"latency"`
}

// Summary is the aggregate view of a finished run.
type Summary struct {
	Total       int64         `json:"total"`
	Succeeded   int64         `json:"succeeded"`
	Failed      int64         `json:"failed"`
	HTTPErrors  int64         `json:"httpErrors"`
	StatusCodes map[int]int64 `json:"statusCodes"`
	Latency     LatencyStats  `json:"latency"`

	// Requests is ordered by first appearance in the input.
	Requests []RequestSummary `json:"requests"`

	// Start and End span the recorded requests; zero when the input
	// carries no timestamps.
	Start    time.Time     `json:"start"`
	End      time.Time     `json:"end"`
	Duration time.Duration `json:"duration"`
	RPS      float64       `json:"rps"`
}

// ErrorRate returns the share of requests that failed or returned 4xx/5xx.
func (s *Summary) ErrorRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Failed+s.HTTPErrors) / float64(s.Total)
}

type bucket struct {
	summary RequestSummary
	hist    *hdrhistogram.Histogram
}

func newBucket(name string) *bucket {
	return &bucket{
		summary: RequestSummary{Name: name, StatusCodes: make(map[int]int64)},
		hist:    hdrhistogram.New(histogramMin, histogramMax, histogramSigFigs),
	}
}

func (b *bucket) record(s stats.Stat) {
	b.summary.Total++
	if s.Failed() {
		b.summary.Failed++
	} else {
		b.summary.StatusCodes[s.Status]++
		if s.Status >= 400 {
			b.summary.HTTPErrors++
		}
	}
	b.hist.RecordValue(clampMicros(s.Latency))
}

// Summarize builds a Summary over all records, overall and per request name.
func Summarize(records []stats.Stat) *Summary {
	overall := newBucket("")
	byName := make(map[string]*bucket)
	var order []string

	var start, end time.Time
	for _, s := range records {
		overall.record(s)

		b, ok := byName[s.Name]
		if !ok {
			b = newBucket(s.Name)
			byName[s.Name] = b
			order = append(order, s.Name)
		}
		b.record(s)

		if s.Start.IsZero() {
			continue
		}
		if start.IsZero() || s.Start.Before(start) {
			start = s.Start
		}
		if done := s.Start.Add(s.Latency); done.After(end) {
			end = done
		}
	}

	summary := &Summary{
		Total:       overall.summary.Total,
		Succeeded:   overall.summary.Total - overall.summary.Failed,
		Failed:      overall.summary.Failed,
		HTTPErrors:  overall.summary.HTTPErrors,
		StatusCodes: overall.summary.StatusCodes,
		Latency:     latencyStats(overall.hist),
		Requests:    make([]RequestSummary, 0, len(order)),
		Start:       start,
		End:         end,
	}

	for _, name := range order {
		b := byName[name]
		b.summary.Latency = latencyStats(b.hist)
		summary.Requests = append(summary.Requests, b.summary)
	}

	if !start.IsZero() {
		summary.Duration = end.Sub(start)
		if summary.Duration > 0 {
			summary.RPS = float64(summary.Total) / summary.Duration.Seconds()
		}
	}

	return summary
}

func clampMicros(d time.Duration) int64 {
	us := d.Microseconds()
	if us < histogramMin {
		return histogramMin
	}
	if us > histogramMax {
		return histogramMax
	}
	return us
}

func latencyStats(h *hdrhistogram.Histogram) LatencyStats {
	if h.TotalCount() == 0 {
		return LatencyStats{}
	}
	return LatencyStats{
		Min:    time.Duration(h.Min()) * time.Microsecond,
		Max:    time.Duration(h.Max()) * time.Microsecond,
		Mean:   time.Duration(h.Mean()) * time.Microsecond,
		StdDev: time.Duration(h.StdDev()) * time.Microsecond,
		P50:    time.Duration(h.ValueAtQuantile(50)) * time.Microsecond,
		P90:    time.Duration(h.ValueAtQuantile(90)) * time.Microsecond,
		P95:    time.Duration(h.ValueAtQuantile(95)) * time.Microsecond,
		P99:    time.Duration(h.ValueAtQuantile(99)) * time.Microsecond,
		Count:  h.TotalCount(),
	}
}
