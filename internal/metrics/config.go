package metrics

import (
	"time"

	"codeberg.org/mutker/datafilter/internal/errors"
)

const (
	defaultDirPerm  = 0o755
	defaultFilePerm = 0o644
	defaultDBPath   = "/var/lib/datafilter/metrics.db"

	defaultBatchSize    = 10
	defaultBatchTimeout = 30
	defaultInterval     = 10 * time.Second
)

type Config struct {
	Enabled bool   `mapstructure:"enabled"`
	DBPath  string `mapstructure:"db_path"`
	// BatchSize snapshots are buffered before a write; BatchTimeout (seconds)
	// bounds how long a partial batch may wait.
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout int           `mapstructure:"batch_timeout"`
	Interval     time.Duration `mapstructure:"interval"`
	// TextfilePath, when set, receives a Prometheus text exposition of every
	// snapshot.
	TextfilePath string `mapstructure:"textfile_path"`
}

func DefaultConfig() Config {
	return Config{
		Enabled:      false, // Disabled by default
		DBPath:       defaultDBPath,
		BatchSize:    defaultBatchSize,
		BatchTimeout: defaultBatchTimeout,
		Interval:     defaultInterval,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.Interval <= 0 {
		return errFactory.WithMessage(ErrInvalidConfig, "metrics interval must be positive")
	}

	// Only validate storage settings if metrics is enabled
	if !c.Enabled {
		return nil
	}
	if c.DBPath == "" {
		return errFactory.New(ErrInvalidDBPath)
	}
	if c.BatchSize < 0 || c.BatchTimeout < 0 {
		return errFactory.WithMessage(ErrInvalidConfig, "metrics batch settings must not be negative")
	}

	return nil
}

// Active reports whether snapshots have anywhere to go.
func (c Config) Active() bool {
	return c.Enabled || c.TextfilePath != ""
}
