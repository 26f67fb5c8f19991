package filter

import (
	"errors"
	"fmt"
	"math"
)

const (
	DefaultTempMinValid   = -40.0
	DefaultTempMaxValid   = 85.0
	DefaultNoiseThreshold = 0.5
	DefaultSpikeWindow    = 5

	// MinSpikeHistory is the number of prior readings needed before spike
	// detection runs.
	MinSpikeHistory = 2

	minEffectiveStdDev = 1.0
	spikeSigmaFactor   = 5.0
)

var ErrInvalidConfig = errors.New("invalid filter configuration")

// Config holds the filter parameters. It is fixed for the lifetime of a
// SpikeFilter.
type Config struct {
	TempMinValid   float64 `mapstructure:"temp_min_valid"`
	TempMaxValid   float64 `mapstructure:"temp_max_valid"`
	NoiseThreshold float64 `mapstructure:"noise_threshold"`
	SpikeWindow    int     `mapstructure:"spike_window"`
}

func DefaultConfig() Config {
	return Config{
		TempMinValid:   DefaultTempMinValid,
		TempMaxValid:   DefaultTempMaxValid,
		NoiseThreshold: DefaultNoiseThreshold,
		SpikeWindow:    DefaultSpikeWindow,
	}
}

func (c Config) Validate() error {
	if math.IsNaN(c.TempMinValid) || math.IsNaN(c.TempMaxValid) {
		return fmt.Errorf("%w: temperature bounds must be numbers", ErrInvalidConfig)
	}
	if c.TempMinValid > c.TempMaxValid {
		return fmt.Errorf("%w: temp_min_valid %.2f exceeds temp_max_valid %.2f",
			ErrInvalidConfig, c.TempMinValid, c.TempMaxValid)
	}
	if math.IsNaN(c.NoiseThreshold) || c.NoiseThreshold < 0 {
		return fmt.Errorf("%w: noise_threshold must be non-negative", ErrInvalidConfig)
	}
	if c.SpikeWindow < 1 {
		return fmt.Errorf("%w: spike_window must be at least 1, got %d", ErrInvalidConfig, c.SpikeWindow)
	}

	return nil
}

// SpikeDetectionEnabled reports whether the window can ever hold enough
// history for spike detection to run.
func (c Config) SpikeDetectionEnabled() bool {
	return c.SpikeWindow >= MinSpikeHistory
}
