package telemetry

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"

	"github.com/lumenbio/bioreactor/components/sensor"
)

// A Row is one completed measurement cycle. Values holds only the labels of
// presently enabled sensors; disabled sensors are omitted rather than
// NaN-filled so the persisted schema stays meaningful.
type Row struct {
	Time    time.Time
	Elapsed time.Duration
	Values  map[string]float64
}

// A RowSink consumes completed rows.
type RowSink interface {
	// WriteRow appends one row.
	WriteRow(row Row) error
}

// ODConfig enables optical-density measurement within a recording cycle.
type ODConfig struct {
	Meter             *ODMeter
	LEDPower          float64
	AveragingDuration time.Duration
}

// A Recorder polls a set of labeled scalar sensors, optionally runs an
// optical-density measurement, and hands the assembled row to a sink. Every
// read is independently fault-isolated: a malfunctioning sensor records NaN
// without affecting the rest of the cycle.
type Recorder struct {
	sensors map[string]sensor.Reader
	od      *ODConfig // may be nil
	sink    RowSink   // may be nil
	clock   clock.Clock
	logger  golog.Logger
}

// NewRecorder returns a recorder over the given labeled sensors. od and sink
// may be nil.
func NewRecorder(
	sensors map[string]sensor.Reader,
	od *ODConfig,
	sink RowSink,
	logger golog.Logger,
) *Recorder {
	return newRecorderWithClock(sensors, od, sink, logger, clock.New())
}

func newRecorderWithClock(
	sensors map[string]sensor.Reader,
	od *ODConfig,
	sink RowSink,
	logger golog.Logger,
	clk clock.Clock,
) *Recorder {
	return &Recorder{
		sensors: sensors,
		od:      od,
		sink:    sink,
		clock:   clk,
		logger:  logger,
	}
}

// Labels returns the sorted set of value labels a cycle can produce.
func (r *Recorder) Labels() []string {
	labels := make([]string, 0, len(r.sensors))
	for label := range r.sensors {
		labels = append(labels, label)
	}
	if r.od != nil {
		for label := range r.od.Meter.channels {
			labels = append(labels, label)
		}
	}
	sort.Strings(labels)
	return labels
}

// MeasureAndRecord runs one cycle: poll every sensor, run the optional OD
// measurement, assemble the row, and write it to the sink. The returned row
// is also handed back for callers that want the live values.
func (r *Recorder) MeasureAndRecord(ctx context.Context, elapsed time.Duration) (Row, error) {
	row := Row{
		Time:    r.clock.Now(),
		Elapsed: elapsed,
		Values:  make(map[string]float64, len(r.sensors)),
	}

	for label, reader := range r.sensors {
		row.Values[label] = sensor.ReadOrNaN(ctx, reader, label, r.logger)
	}

	if r.od != nil {
		means, err := r.od.Meter.Measure(ctx, r.od.LEDPower, r.od.AveragingDuration)
		if err != nil {
			r.logger.Errorw("optical density measurement failed", "error", err)
			for label := range r.od.Meter.channels {
				row.Values[label] = math.NaN()
			}
		} else {
			for label, mean := range means {
				row.Values[label] = mean
			}
		}
	}

	if r.sink != nil {
		if err := r.sink.WriteRow(row); err != nil {
			return row, err
		}
	}
	return row, nil
}

// Job wraps the recorder as a scheduler action.
func (r *Recorder) Job(ctx context.Context, elapsed time.Duration) error {
	_, err := r.MeasureAndRecord(ctx, elapsed)
	return err
}
