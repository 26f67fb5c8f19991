package quarantine

import "codeberg.org/mutker/datafilter/internal/errors"

const (
	defaultDirPerm = 0o755
	defaultDBPath  = "/var/lib/datafilter/quarantine.db"
)

type Config struct {
	Enabled bool   `mapstructure:"enabled"`
	DBPath  string `mapstructure:"db_path"`
}

func DefaultConfig() Config {
	return Config{
		DBPath: defaultDBPath,
	}
}

func (c Config) Validate() error {
	if c.Enabled && c.DBPath == "" {
		return errors.New().New(ErrInvalidDBPath)
	}
	return nil
}
