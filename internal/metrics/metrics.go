package metrics

import (
	"context"

	"codeberg.org/mutker/datafilter/internal/errors"
	"codeberg.org/mutker/datafilter/internal/logger"
)

type service struct {
	repo Repository
	cfg  Config
	log  logger.Logger
}

// No-op implementation
type noopCollector struct{}

// NewService returns a Collector for cfg. Storage is only opened when
// metrics are enabled; the textfile, when configured, is written either way.
func NewService(cfg Config, log logger.Logger) (Collector, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if !cfg.Active() {
		log.Debug().Msg("Metrics collection disabled, using no-op collector")
		return &noopCollector{}, nil
	}

	s := &service{cfg: cfg, log: log}

	if cfg.Enabled {
		repo, err := NewRepository(cfg, log)
		if err != nil {
			log.Debug().Err(err).Msg("Failed to create metrics repository")
			return nil, err
		}
		s.repo = repo
	}

	log.Debug().
		Str("db_path", cfg.DBPath).
		Bool("enabled", cfg.Enabled).
		Str("textfile", cfg.TextfilePath).
		Dur("interval", cfg.Interval).
		Msg("Metrics service initialized successfully")

	return s, nil
}

func (s *service) Record(ctx context.Context, snapshot *FilterSnapshot) error {
	errFactory := errors.New()

	if snapshot == nil {
		return errFactory.New(ErrInvalidMetrics)
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
	}

	if s.cfg.TextfilePath != "" {
		if err := WriteTextfile(s.cfg.TextfilePath, snapshot); err != nil {
			return err
		}
	}

	if s.repo != nil {
		if err := s.repo.Record(snapshot); err != nil {
			return errFactory.Wrap(ErrMetricsCollection, err)
		}
	}

	return nil
}

func (s *service) Close() error {
	if s.repo == nil {
		return nil
	}

	if err := s.repo.Close(); err != nil {
		return errors.New().Wrap(ErrServiceShutdown, err)
	}
	return nil
}

func (*noopCollector) Record(_ context.Context, _ *FilterSnapshot) error {
	return nil
}

func (*noopCollector) Close() error {
	return nil
}
