// Package report persists Stat records as they are produced.
package report

import (
	"errors"

	"github.com/wesleyorama2/bombard/internal/stats"
)

// Sink receives every Stat a worker records. Append is called from many
// goroutines and must not return until the record is durable for that sink.
type Sink interface {
	Append(s stats.Stat) error
}

// Discard is a Sink that drops every record.
var Discard Sink = discard{}

type discard struct{}

func (discard) Append(stats.Stat) error { return nil }

type tee []Sink

// Tee returns a Sink that appends each record to every given sink in order.
// All sinks are tried; their errors are joined.
func Tee(sinks ...Sink) Sink {
	flat := make(tee, 0, len(sinks))
	for _, s := range sinks {
		if s == nil {
			continue
		}
		if t, ok := s.(tee); ok {
			flat = append(flat, t...)
			continue
		}
		flat = append(flat, s)
	}
	if len(flat) == 1 {
		return flat[0]
	}
	return flat
}

func (t tee) Append(s stats.Stat) error {
	var errs []error
	for _, sink := range t {
		if err := sink.Append(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
