package report

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/wesleyorama2/bombard/internal/stats"
)

// Header is the first row of every CSV report.
var Header = []string{"timestamp", "worker", "iteration", "name", "status", "latency_ms", "error"}

// CSVSink writes one CSV line per Stat.
//
// Each line is flushed to the file before Append returns, so an interrupted
// run leaves every completed request in the report.
type CSVSink struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
	w    *csv.Writer
	sync bool
}

// CreateCSV creates (or truncates) the report file at path and writes the
// header row. When fsync is true every line is also synced to disk.
func CreateCSV(path string, fsync bool) (*CSVSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create report file: %w", err)
	}

	buf := bufio.NewWriter(f)
	sink := &CSVSink{
		file: f,
		buf:  buf,
		w:    csv.NewWriter(buf),
		sync: fsync,
	}

	if err := sink.writeRow(Header); err != nil {
		f.Close()
		return nil, err
	}

	return sink, nil
}

// Path returns the name of the report file.
func (s *CSVSink) Path() string {
	return s.file.Name()
}

// Append writes and flushes one record.
func (s *CSVSink) Append(st stats.Stat) error {
	return s.writeRow(encodeRow(st))
}

func (s *CSVSink) writeRow(row []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.w == nil {
		return errors.New("report is closed")
	}

	if err := s.w.Write(row); err != nil {
		return fmt.Errorf("failed to write report line: %w", err)
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("failed to flush report line: %w", err)
	}
	if s.sync {
		if err := s.file.Sync(); err != nil {
			return fmt.Errorf("failed to sync report: %w", err)
		}
	}
	return nil
}

// Close flushes and closes the report file. It is safe to call twice.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.w == nil {
		return nil
	}
	s.w.Flush()
	s.w = nil

	if err := s.buf.Flush(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}

func encodeRow(st stats.Stat) []string {
	status := strconv.Itoa(st.Status)
	if st.Failed() {
		status = "failed"
	}
	ts := ""
	if !st.Start.IsZero() {
		ts = st.Start.UTC().Format(time.RFC3339Nano)
	}
	return []string{
		ts,
		strconv.Itoa(st.Worker),
		strconv.Itoa(st.Iteration),
		st.Name,
		status,
		strconv.FormatFloat(float64(st.Latency)/float64(time.Millisecond), 'f', 3, 64),
		st.Error,
	}
}

// ReadCSV loads a report written by CSVSink.
func ReadCSV(path string) ([]stats.Stat, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open report: %w", err)
	}
	defer f.Close()

	return DecodeCSV(f)
}

// DecodeCSV parses report rows from r. The header row is optional.
func DecodeCSV(r io.Reader) ([]stats.Stat, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)

	var out []stats.Stat
	for line := 1; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read report: %w", err)
		}
		if line == 1 && row[0] == Header[0] {
			continue
		}

		st, err := decodeRow(row)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, st)
	}
	return out, nil
}

func decodeRow(row []string) (stats.Stat, error) {
	var st stats.Stat
	var err error

	if row[0] != "" {
		if st.Start, err = time.Parse(time.RFC3339Nano, row[0]); err != nil {
			return st, fmt.Errorf("invalid timestamp %q: %w", row[0], err)
		}
	}
	if st.Worker, err = strconv.Atoi(row[1]); err != nil {
		return st, fmt.Errorf("invalid worker %q: %w", row[1], err)
	}
	if st.Iteration, err = strconv.Atoi(row[2]); err != nil {
		return st, fmt.Errorf("invalid iteration %q: %w", row[2], err)
	}
	st.Name = row[3]
	if row[4] == "failed" {
		st.Status = stats.StatusFailed
	} else if st.Status, err = strconv.Atoi(row[4]); err != nil {
		return st, fmt.Errorf("invalid status %q: %w", row[4], err)
	}
	ms, err := strconv.ParseFloat(row[5], 64)
	if err != nil {
		return st, fmt.Errorf("invalid latency %q: %w", row[5], err)
	}
	st.Latency = time.Duration(ms * float64(time.Millisecond))
	st.Error = row[6]
	return st, nil
}
