// Package simulator produces plausible temperature readings for exercising
// the filter without hardware.
package simulator

import (
	"math"
	"math/rand"
	"time"

	"codeberg.org/mutker/datafilter/internal/codec"
)

const (
	DefaultSensorID = "temp-sensor-001"
	DefaultBaseTemp = 22.0
	DefaultNoise    = 2.0
	DefaultInterval = 3 * time.Second

	// TimestampLayout is ISO 8601 in UTC with milliseconds.
	TimestampLayout = "2006-01-02T15:04:05.000Z"
)

const (
	humidityMin      = 30.0
	humidityMax      = 70.0
	driftNoiseSigma  = 0.1
	driftReversion   = 0.05
	driftStep        = 0.1
	maxDriftVelocity = 1.0
	maxDrift         = 10.0
)

// TemperatureSensor is a simulated sensor whose reading wanders around a
// base temperature. It is not safe for concurrent use.
type TemperatureSensor struct {
	id       string
	base     float64
	noise    float64
	rng      *rand.Rand
	sequence uint64
	drift    float64
	velocity float64
}

// NewTemperatureSensor returns a sensor around base with gaussian noise of
// standard deviation noise. rng may be nil for a time-seeded source.
func NewTemperatureSensor(id string, base, noise float64, rng *rand.Rand) *TemperatureSensor {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	return &TemperatureSensor{
		id:    id,
		base:  base,
		noise: math.Abs(noise),
		rng:   rng,
	}
}

// Read advances the simulation and returns the next reading stamped with
// now.
func (s *TemperatureSensor) Read(now time.Time) codec.SensorReading {
	s.updateDrift()

	temp := s.base + s.drift + s.rng.NormFloat64()*s.noise
	humidity := humidityMin + s.rng.Float64()*(humidityMax-humidityMin)
	humidity = clamp(humidity, 0, 100)

	r := codec.SensorReading{
		SensorID:       s.id,
		Temperature:    math.Round(temp*100) / 100,
		Humidity:       math.Round(humidity*10) / 10,
		Timestamp:      now.UTC().Format(TimestampLayout),
		SequenceNumber: s.sequence,
	}
	s.sequence++

	return r
}

// Reset restarts the sequence and clears the accumulated drift.
func (s *TemperatureSensor) Reset() {
	s.sequence = 0
	s.drift = 0
	s.velocity = 0
}

// updateDrift is a mean-reverting random walk: velocity is pulled back
// toward zero drift and both are bounded.
func (s *TemperatureSensor) updateDrift() {
	s.velocity += s.rng.NormFloat64()*driftNoiseSigma - driftReversion*s.drift
	s.velocity = clamp(s.velocity, -maxDriftVelocity, maxDriftVelocity)
	s.drift += s.velocity * driftStep
	s.drift = clamp(s.drift, -maxDrift, maxDrift)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
