// Package pipeline connects the codec and the spike filter: raw record in,
// annotated record out.
package pipeline

import (
	"errors"
	"fmt"

	"codeberg.org/mutker/datafilter/internal/codec"
	"codeberg.org/mutker/datafilter/internal/filter"
)

// ErrDecode marks records that could not be decoded. The filter never sees
// them.
var ErrDecode = errors.New("record not decodable")

// Result is the outcome of processing one record.
type Result struct {
	Reading codec.SensorReading
	Verdict filter.Verdict
	// Output is the encoded reading with its verdict.
	Output []byte
}

type Option func(*Pipeline)

// WithPerSensorFilters evaluates each sensorId against its own filter
// instead of a single filter shared by the whole stream.
func WithPerSensorFilters() Option {
	return func(p *Pipeline) {
		p.perSensor = true
	}
}

// Pipeline is not safe for concurrent use; it belongs to the goroutine that
// feeds it.
type Pipeline struct {
	cfg       filter.Config
	perSensor bool
	shared    *filter.SpikeFilter
	filters   map[string]*filter.SpikeFilter
	last      *filter.SpikeFilter
}

func New(cfg filter.Config, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{cfg: cfg}
	for _, opt := range opts {
		opt(p)
	}

	if p.perSensor {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		p.filters = make(map[string]*filter.SpikeFilter)
		return p, nil
	}

	f, err := filter.New(cfg)
	if err != nil {
		return nil, err
	}
	p.shared = f

	return p, nil
}

// Process decodes raw, evaluates the temperature and encodes the result.
// A decode failure leaves every filter untouched.
func (p *Pipeline) Process(raw []byte) (Result, error) {
	reading, err := codec.Decode(raw)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	f := p.filterFor(reading.SensorID)
	verdict := f.Evaluate(reading.Temperature)
	p.last = f

	return Result{
		Reading: reading,
		Verdict: verdict,
		Output:  codec.Encode(reading, verdict.Accepted, string(verdict.Reason)),
	}, nil
}

func (p *Pipeline) filterFor(sensorID string) *filter.SpikeFilter {
	if !p.perSensor {
		return p.shared
	}

	f, ok := p.filters[sensorID]
	if !ok {
		// cfg was validated in New.
		f, _ = filter.New(p.cfg)
		p.filters[sensorID] = f
	}

	return f
}

func (p *Pipeline) Config() filter.Config {
	return p.cfg
}

// Sensors returns the number of filters in use.
func (p *Pipeline) Sensors() int {
	if !p.perSensor {
		return 1
	}
	return len(p.filters)
}

// Stats sums the counters of every filter. The window fields describe the
// filter that evaluated the most recent reading.
func (p *Pipeline) Stats() filter.Stats {
	if !p.perSensor {
		return p.shared.Stats()
	}

	var s filter.Stats
	if p.last != nil {
		s = p.last.Stats()
	}
	s.Total, s.Accepted, s.Rejected = 0, 0, 0
	for _, f := range p.filters {
		s.Total += f.Total()
		s.Accepted += f.AcceptedCount()
		s.Rejected += f.RejectedCount()
	}

	return s
}
