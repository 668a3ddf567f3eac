package telemetry

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// timeColumn and elapsedColumn lead every CSV row.
const (
	timeColumn    = "time"
	elapsedColumn = "elapsed_s"
)

// A CSVSink appends rows to a writer under a fixed, pre-declared column
// order established at open. Row keys outside the declared columns are
// silently dropped; declared columns missing from a row serialize as NaN.
// Every row is flushed as written so a crash loses at most the in-flight
// cycle.
type CSVSink struct {
	mu      sync.Mutex
	w       *csv.Writer
	columns []string
	closer  io.Closer // may be nil
	closed  bool
}

// NewCSVSink writes the header for the given value columns and returns the
// sink. If w also implements io.Closer, Close will close it.
func NewCSVSink(w io.Writer, columns []string) (*CSVSink, error) {
	sink := &CSVSink{
		w:       csv.NewWriter(w),
		columns: append([]string{}, columns...),
	}
	if closer, ok := w.(io.Closer); ok {
		sink.closer = closer
	}

	header := append([]string{timeColumn, elapsedColumn}, sink.columns...)
	if err := sink.w.Write(header); err != nil {
		return nil, errors.Wrap(err, "writing CSV header")
	}
	sink.w.Flush()
	if err := sink.w.Error(); err != nil {
		return nil, errors.Wrap(err, "flushing CSV header")
	}
	return sink, nil
}

// WriteRow implements RowSink.
func (s *CSVSink) WriteRow(row Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("CSV sink is closed")
	}

	record := make([]string, 0, len(s.columns)+2)
	record = append(record,
		row.Time.Format(time.RFC3339),
		strconv.FormatFloat(row.Elapsed.Seconds(), 'f', 3, 64),
	)
	for _, column := range s.columns {
		value, ok := row.Values[column]
		if !ok {
			value = math.NaN()
		}
		record = append(record, formatValue(value))
	}

	if err := s.w.Write(record); err != nil {
		return errors.Wrap(err, "writing CSV row")
	}
	s.w.Flush()
	return errors.Wrap(s.w.Error(), "flushing CSV row")
}

// Close flushes and closes the underlying writer if it is closable. Safe to
// call more than once.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.w.Flush()
	err := s.w.Error()
	if s.closer != nil {
		if closeErr := s.closer.Close(); err == nil {
			err = closeErr
		}
	}
	return err
}

func formatValue(value float64) string {
	if math.IsNaN(value) {
		return "NaN"
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
