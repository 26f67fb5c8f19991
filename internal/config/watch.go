package config

import (
	"context"
	"path/filepath"

	"codeberg.org/mutker/datafilter/internal/errors"
	"codeberg.org/mutker/datafilter/internal/logger"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Watch follows the configuration file and calls onChange whenever its
// log level changes to a different valid value. Files without a log level
// are ignored. Nothing else is reloaded; the filter keeps the parameters it
// started with. Watch blocks until ctx is cancelled and returns immediately
// when the log level was pinned by a flag or environment variable.
func Watch(ctx context.Context, cfg *Config, onChange func(LogLevel)) error {
	errFactory := errors.New()

	if !cfg.LogLevelFromFile() {
		return nil
	}

	path := filepath.Clean(cfg.ConfigFile)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errFactory.Wrap(errors.ErrInitFailed, err)
	}
	defer watcher.Close()

	// Watch the directory; editors often replace the file on save.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return errFactory.Wrap(errors.ErrInitFailed, err)
	}

	logger.Debug().Str("path", path).Msg("Watching configuration file")

	current := cfg.LogLevel
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			level, err := readLogLevel(path)
			if err != nil {
				logger.Warn().Err(err).Str("path", path).Msg("Ignoring configuration change")
				continue
			}
			if level == current {
				continue
			}

			logger.Info().
				Str("from", current.String()).
				Str("to", level.String()).
				Msg("Log level changed")
			current = level
			onChange(level)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("Configuration watcher error")
		}
	}
}

func readLogLevel(path string) (LogLevel, error) {
	errFactory := errors.New()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return "", errFactory.Wrap(errors.ErrReadConfig, err)
	}

	// A file caught mid-write may be empty.
	if !v.IsSet("log_level") {
		return "", errFactory.WithMessage(errors.ErrReadConfig, "no log_level in configuration file")
	}

	level := LogLevel(v.GetString("log_level"))
	if !level.IsValid() {
		return "", errFactory.WithData(errors.ErrInvalidLogLevel, level)
	}

	return level, nil
}
