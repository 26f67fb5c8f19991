package pipeline

import (
	"context"
	"fmt"
	"time"

	"codeberg.org/mutker/datafilter/internal/codec"
	"codeberg.org/mutker/datafilter/internal/errors"
	"codeberg.org/mutker/datafilter/internal/filter"
	"codeberg.org/mutker/datafilter/internal/logger"
	"codeberg.org/mutker/datafilter/internal/metrics"
	"codeberg.org/mutker/datafilter/internal/quarantine"
	"codeberg.org/mutker/datafilter/internal/transport"
)

// Summary is the final account of a run.
type Summary struct {
	Total          uint64
	Accepted       uint64
	Rejected       uint64
	OutOfRange     uint64
	Spikes         uint64
	DecodeFailures uint64
	Sensors        int
}

func (s Summary) String() string {
	return fmt.Sprintf("total=%d accepted=%d rejected=%d", s.Total, s.Accepted, s.Rejected)
}

type RunnerOption func(*Runner)

// WithRejectSink forwards rejected readings, annotated with their reason.
func WithRejectSink(s transport.Sink) RunnerOption {
	return func(r *Runner) {
		r.rejects = s
	}
}

// WithQuarantine stores rejected readings.
func WithQuarantine(store quarantine.Store) RunnerOption {
	return func(r *Runner) {
		r.store = store
	}
}

// WithMetrics records a snapshot every interval and once more when the run
// ends.
func WithMetrics(c metrics.Collector, interval time.Duration) RunnerOption {
	return func(r *Runner) {
		r.collector = c
		r.interval = interval
	}
}

func WithLogger(log logger.Logger) RunnerOption {
	return func(r *Runner) {
		r.log = log
	}
}

// Runner drives a Pipeline from a Source. Everything happens on the
// goroutine that calls Run, so the pipeline needs no locking.
type Runner struct {
	pipeline  *Pipeline
	source    transport.Source
	sink      transport.Sink
	rejects   transport.Sink
	store     quarantine.Store
	collector metrics.Collector
	interval  time.Duration
	log       logger.Logger
	now       func() time.Time

	outOfRange     uint64
	spikes         uint64
	decodeFailures uint64
}

// NewRunner sends accepted records to sink.
func NewRunner(p *Pipeline, source transport.Source, sink transport.Sink, opts ...RunnerOption) *Runner {
	r := &Runner{
		pipeline: p,
		source:   source,
		sink:     sink,
		log:      logger.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run processes records until the source is exhausted or ctx is cancelled.
// Both are a normal end. A source or sink failure ends the run with an
// error. The summary is valid either way.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	errFactory := errors.New()

	var tick <-chan time.Time
	if r.collector != nil && r.interval > 0 {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		tick = ticker.C
	}
	defer r.recordSnapshot(context.WithoutCancel(ctx))

	messages := r.source.Messages()
	for {
		select {
		case <-ctx.Done():
			return r.Summary(), nil

		case raw, ok := <-messages:
			if !ok {
				if err := r.source.Err(); err != nil {
					return r.Summary(), errFactory.Wrap(errors.ErrMainLoop, err)
				}
				r.log.Debug().Msg("Input exhausted")
				return r.Summary(), nil
			}

			if err := r.handle(ctx, raw); err != nil {
				if ctx.Err() != nil {
					return r.Summary(), nil
				}
				return r.Summary(), errFactory.Wrap(errors.ErrMainLoop, err)
			}

		case <-tick:
			r.recordSnapshot(ctx)
		}
	}
}

func (r *Runner) handle(ctx context.Context, raw []byte) error {
	res, err := r.pipeline.Process(raw)
	if err != nil {
		r.decodeFailures++

		event := r.log.Warn().Err(err)
		var fieldErr *codec.FieldError
		if errors.As(err, &fieldErr) {
			event = event.Str("field", fieldErr.Field)
		}
		event.Msg("Dropping undecodable record")

		return nil
	}

	if res.Verdict.Accepted {
		return r.sink.Send(ctx, res.Output)
	}

	switch res.Verdict.Reason {
	case filter.ReasonOutOfRange:
		r.outOfRange++
	case filter.ReasonSpikeDetected:
		r.spikes++
	}

	r.log.Info().
		Str("sensor_id", res.Reading.SensorID).
		Uint64("seq", res.Reading.SequenceNumber).
		Float64("temperature", res.Reading.Temperature).
		Str("reason", string(res.Verdict.Reason)).
		Msg("Reading rejected")

	if r.store != nil {
		entry := &quarantine.Entry{
			ReceivedAt:     r.now(),
			SensorID:       res.Reading.SensorID,
			SequenceNumber: res.Reading.SequenceNumber,
			Temperature:    res.Reading.Temperature,
			Humidity:       res.Reading.Humidity,
			Timestamp:      res.Reading.Timestamp,
			Reason:         string(res.Verdict.Reason),
			Raw:            raw,
		}
		if err := r.store.Put(ctx, entry); err != nil {
			r.log.Warn().Err(err).Msg("Failed to quarantine rejected reading")
		}
	}

	if r.rejects != nil {
		return r.rejects.Send(ctx, res.Output)
	}

	return nil
}

// Snapshot returns the current counters and window state.
func (r *Runner) Snapshot() metrics.FilterSnapshot {
	stats := r.pipeline.Stats()

	return metrics.FilterSnapshot{
		Timestamp:      r.now(),
		Total:          stats.Total,
		Accepted:       stats.Accepted,
		Rejected:       stats.Rejected,
		OutOfRange:     r.outOfRange,
		Spikes:         r.spikes,
		DecodeFailures: r.decodeFailures,
		WindowLen:      stats.WindowLen,
		WindowMean:     stats.WindowMean,
		WindowStdDev:   stats.WindowStdDev,
	}
}

func (r *Runner) recordSnapshot(ctx context.Context) {
	if r.collector == nil {
		return
	}

	snap := r.Snapshot()
	if err := r.collector.Record(ctx, &snap); err != nil {
		r.log.Warn().Err(err).Msg("Failed to record metrics snapshot")
	}
}

func (r *Runner) Summary() Summary {
	stats := r.pipeline.Stats()

	return Summary{
		Total:          stats.Total,
		Accepted:       stats.Accepted,
		Rejected:       stats.Rejected,
		OutOfRange:     r.outOfRange,
		Spikes:         r.spikes,
		DecodeFailures: r.decodeFailures,
		Sensors:        r.pipeline.Sensors(),
	}
}
