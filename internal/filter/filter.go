// Package filter decides whether a temperature reading is trustworthy.
//
// A SpikeFilter rejects values outside the physical sensor range and values
// that jump too far from the recent rolling mean. A SpikeFilter is owned by
// a single goroutine; run one instance per independent sensor stream.
package filter

import (
	"math"
)

// Reason explains why a reading was rejected.
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonOutOfRange    Reason = "out_of_range"
	ReasonSpikeDetected Reason = "spike_detected"
)

// Verdict is the outcome of evaluating one reading.
type Verdict struct {
	Accepted bool
	Reason   Reason
}

// Stats is a read-only view of a filter's counters and window.
type Stats struct {
	Total        uint64
	Accepted     uint64
	Rejected     uint64
	WindowLen    int
	WindowMean   float64
	WindowStdDev float64
}

type SpikeFilter struct {
	cfg      Config
	window   *Window
	scratch  []float64
	total    uint64
	accepted uint64
	rejected uint64
}

// New returns a filter for cfg. The configuration is validated first.
func New(cfg Config) (*SpikeFilter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &SpikeFilter{
		cfg:     cfg,
		window:  NewWindow(cfg.SpikeWindow),
		scratch: make([]float64, 0, cfg.SpikeWindow),
	}, nil
}

func (f *SpikeFilter) Config() Config {
	return f.cfg
}

// Evaluate judges one temperature value and updates the filter state.
//
// Out-of-range values never enter the window. Spikes are rejected but still
// enter the window, so a sustained move to a new level is absorbed instead
// of being flagged forever.
func (f *SpikeFilter) Evaluate(temperature float64) Verdict {
	f.total++

	if !f.inRange(temperature) {
		f.rejected++
		return Verdict{Reason: ReasonOutOfRange}
	}

	if f.window.Len() >= MinSpikeHistory && f.isSpike(temperature) {
		f.rejected++
		f.window.Push(temperature)
		return Verdict{Reason: ReasonSpikeDetected}
	}

	f.window.Push(temperature)
	f.accepted++

	return Verdict{Accepted: true}
}

func (f *SpikeFilter) inRange(temperature float64) bool {
	return temperature >= f.cfg.TempMinValid && temperature <= f.cfg.TempMaxValid
}

// isSpike compares the candidate against the window as it stands before the
// candidate is inserted.
func (f *SpikeFilter) isSpike(temperature float64) bool {
	mean, stddev := f.window.MeanStdDev(f.scratch)
	effective := math.Max(stddev, minEffectiveStdDev)

	return math.Abs(temperature-mean) > f.cfg.NoiseThreshold*effective*spikeSigmaFactor
}

func (f *SpikeFilter) Total() uint64 {
	return f.total
}

func (f *SpikeFilter) AcceptedCount() uint64 {
	return f.accepted
}

func (f *SpikeFilter) RejectedCount() uint64 {
	return f.rejected
}

// Window returns a copy of the current window contents, oldest first.
func (f *SpikeFilter) Window() []float64 {
	return f.window.Values(nil)
}

func (f *SpikeFilter) Stats() Stats {
	s := Stats{
		Total:     f.total,
		Accepted:  f.accepted,
		Rejected:  f.rejected,
		WindowLen: f.window.Len(),
	}
	if s.WindowLen > 0 {
		s.WindowMean, s.WindowStdDev = f.window.MeanStdDev(f.scratch)
	}

	return s
}
