package quarantine

import (
	"context"
	"database/sql"
	"math"
	"os"
	"path/filepath"
	"sync"

	"codeberg.org/mutker/datafilter/internal/errors"
	"codeberg.org/mutker/datafilter/internal/logger"
	_ "github.com/mattn/go-sqlite3"
)

type sqliteStore struct {
	db  *sql.DB
	log logger.Logger
	mu  sync.Mutex
}

// NewStore opens the quarantine database at cfg.DBPath, creating it when
// missing.
func NewStore(cfg Config, log logger.Logger) (Store, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	log.Debug().Str("path", cfg.DBPath).Msg("Initializing quarantine store")

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal=WAL")
	if err != nil {
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, errFactory.Wrap(ErrStorageInit, err)
	}

	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Put(ctx context.Context, entry *Entry) error {
	errFactory := errors.New()

	if entry == nil || entry.Reason == "" {
		return errFactory.New(ErrInvalidEntry)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, insertEntrySQL,
		entry.ReceivedAt.UnixMilli(),
		entry.SensorID,
		// sqlite integers are signed; the full uint64 range survives as
		// its int64 bit pattern.
		int64(entry.SequenceNumber),
		nullable(entry.Temperature),
		nullable(entry.Humidity),
		entry.Timestamp,
		entry.Reason,
		entry.Raw,
	)
	if err != nil {
		return errFactory.Wrap(ErrStorageAccess, err)
	}

	return nil
}

func (s *sqliteStore) Count(ctx context.Context, reason string) (int, error) {
	query := `SELECT COUNT(*) FROM rejected_readings`
	args := []any{}
	if reason != "" {
		query += ` WHERE reason = ?`
		args = append(args, reason)
	}

	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, errors.New().Wrap(ErrStorageAccess, err)
	}

	return n, nil
}

func (s *sqliteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Close(); err != nil {
		return errors.New().Wrap(ErrStorageClose, err)
	}

	s.log.Debug().Msg("Quarantine store closed")
	return nil
}

// nullable stores non-finite values as NULL; sqlite has no representation
// for them.
func nullable(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}
