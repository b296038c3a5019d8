package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wesleyorama2/bombard/internal/stats"
)

const namespace = "bombard"

// PrometheusSink publishes every Stat it receives as Prometheus metrics.
// It satisfies report.Sink.
type PrometheusSink struct {
	duration *prometheus.HistogramVec
	requests *prometheus.CounterVec
	failed   *prometheus.CounterVec
}

// NewPrometheusSink creates the collectors and registers them with r.
func NewPrometheusSink(r prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_milliseconds",
			Help:      "Request latency in milliseconds",
			Buckets:   timeBuckets(),
		}, []string{"name"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Number of executed requests by name and status",
		}, []string{"name", "status"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_failed_total",
			Help:      "Number of requests that got no response",
		}, []string{"name"}),
	}
	r.MustRegister(s.duration, s.requests, s.failed)
	return s
}

// Append records s. It never fails.
func (p *PrometheusSink) Append(s stats.Stat) error {
	p.duration.WithLabelValues(s.Name).Observe(float64(s.Latency.Microseconds()) / 1000)

	status := strconv.Itoa(s.Status)
	if s.Failed() {
		status = "failed"
		p.failed.WithLabelValues(s.Name).Inc()
	}
	p.requests.WithLabelValues(s.Name, status).Inc()
	return nil
}

// timeBuckets spans 1ms to 60s, finer at the low end.
func timeBuckets() []float64 {
	bucket := float64(1)
	buckets := make([]float64, 0, 128)
	for bucket <= 60000 {
		buckets = append(buckets, bucket)
		switch {
		case bucket < 10:
			bucket++
		case bucket < 100:
			bucket += 5
		case bucket < 1000:
			bucket += 50
		case bucket < 10000:
			bucket += 500
		default:
			bucket += 5000
		}
	}
	return buckets
}
