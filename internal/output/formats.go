package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/bombard/internal/metrics"
)

// OutputFormat represents the available summary formats
type OutputFormat string

const (
	// FormatText is the default human-readable console summary
	FormatText OutputFormat = "text"
	// FormatJSON outputs the summary as JSON
	FormatJSON OutputFormat = "json"
	// FormatYAML outputs the summary as YAML
	FormatYAML OutputFormat = "yaml"
)

// ParseFormat validates a format name. Empty means text.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON, FormatYAML:
		return OutputFormat(s), nil
	}
	return "", fmt.Errorf("unknown output format %q (want text, json or yaml)", s)
}

// LatencyData is a latency distribution in milliseconds.
type LatencyData struct {
	Min    float64 `json:"minMs" yaml:"minMs"`
	Mean   float64 `json:"meanMs" yaml:"meanMs"`
	StdDev float64 `json:"stdDevMs" yaml:"stdDevMs"`
	P50    float64 `json:"p50Ms" yaml:"p50Ms"`
	P90    float64 `json:"p90Ms" yaml:"p90Ms"`
	P95    float64 `json:"p95Ms" yaml:"p95Ms"`
	P99    float64 `json:"p99Ms" yaml:"p99Ms"`
	Max    float64 `json:"maxMs" yaml:"maxMs"`
}

// RequestData is the per-request section of SummaryData.
type RequestData struct {
	Name        string           `json:"name" yaml:"name"`
	Total       int64            `json:"total" yaml:"total"`
	Failed      int64            `json:"failed" yaml:"failed"`
	HTTPErrors  int64            `json:"httpErrors" yaml:"httpErrors"`
	StatusCodes map[string]int64 `json:"statusCodes,omitempty" yaml:"statusCodes,omitempty"`
	Latency     LatencyData      `json:"latency" yaml:"latency"`
}

// SummaryData is the structured form of a run summary.
type SummaryData struct {
	RunID       string           `json:"runId,omitempty" yaml:"runId,omitempty"`
	Passed      bool             `json:"passed" yaml:"passed"`
	Error       string           `json:"error,omitempty" yaml:"error,omitempty"`
	Start       string           `json:"start,omitempty" yaml:"start,omitempty"`
	DurationMs  int64            `json:"durationMs" yaml:"durationMs"`
	Total       int64            `json:"total" yaml:"total"`
	Succeeded   int64            `json:"succeeded" yaml:"succeeded"`
	Failed      int64            `json:"failed" yaml:"failed"`
	HTTPErrors  int64            `json:"httpErrors" yaml:"httpErrors"`
	ErrorRate   float64          `json:"errorRate" yaml:"errorRate"`
	RPS         float64          `json:"rps" yaml:"rps"`
	StatusCodes map[string]int64 `json:"statusCodes,omitempty" yaml:"statusCodes,omitempty"`
	Latency     LatencyData      `json:"latency" yaml:"latency"`
	Requests    []RequestData    `json:"requests" yaml:"requests"`
}

// NewSummaryData converts a metrics summary for serialization.
func NewSummaryData(runID string, s *metrics.Summary, runErr error) SummaryData {
	data := SummaryData{
		RunID:       runID,
		Passed:      runErr == nil,
		DurationMs:  s.Duration.Milliseconds(),
		Total:       s.Total,
		Succeeded:   s.Succeeded,
		Failed:      s.Failed,
		HTTPErrors:  s.HTTPErrors,
		ErrorRate:   s.ErrorRate(),
		RPS:         s.RPS,
		StatusCodes: statusKeys(s.StatusCodes),
		Latency:     latencyData(s.Latency),
		Requests:    make([]RequestData, 0, len(s.Requests)),
	}
	if runErr != nil {
		data.Error = runErr.Error()
	}
	if !s.Start.IsZero() {
		data.Start = s.Start.UTC().Format(time.RFC3339Nano)
	}

	for _, r := range s.Requests {
		data.Requests = append(data.Requests, RequestData{
			Name:        r.Name,
			Total:       r.Total,
			Failed:      r.Failed,
			HTTPErrors:  r.HTTPErrors,
			StatusCodes: statusKeys(r.StatusCodes),
			Latency:     latencyData(r.Latency),
		})
	}
	return data
}

// WriteSummary encodes data to w in the given structured format.
func WriteSummary(w io.Writer, format OutputFormat, data SummaryData) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("format %q is not a structured format", format)
}

func latencyData(l metrics.LatencyStats) LatencyData {
	return LatencyData{
		Min:    millis(l.Min),
		Mean:   millis(l.Mean),
		StdDev: millis(l.StdDev),
		P50:    millis(l.P50),
		P90:    millis(l.P90),
		P95:    millis(l.P95),
		P99:    millis(l.P99),
		Max:    millis(l.Max),
	}
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

func statusKeys(m map[int]int64) map[string]int64 {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]int64, len(m))
	for code, n := range m {
		out[strconv.Itoa(code)] = n
	}
	return out
}
