package metrics

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/datafilter/internal/logger"
	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSnapshot(total uint64) *FilterSnapshot {
	return &FilterSnapshot{
		Timestamp:      time.UnixMilli(1700000000123),
		Total:          total,
		Accepted:       total - 3,
		Rejected:       3,
		OutOfRange:     1,
		Spikes:         2,
		DecodeFailures: 4,
		WindowLen:      5,
		WindowMean:     21.5,
		WindowStdDev:   0.25,
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.False(t, cfg.Active())

	cfg.Enabled = true
	cfg.DBPath = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Interval = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.TextfilePath = "/tmp/datafilter.prom"
	assert.True(t, cfg.Active())
}

func TestNewServiceDisabledIsNoop(t *testing.T) {
	c, err := NewService(DefaultConfig(), logger.Nop())
	require.NoError(t, err)

	assert.IsType(t, &noopCollector{}, c)
	assert.NoError(t, c.Record(context.Background(), testSnapshot(10)))
	assert.NoError(t, c.Close())
}

func TestRepositoryPersistsSnapshots(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "metrics.db")
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.DBPath = dbPath
	cfg.BatchSize = 2
	cfg.BatchTimeout = 0

	c, err := NewService(cfg, logger.Nop())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, c.Record(ctx, testSnapshot(10)))
	require.NoError(t, c.Record(ctx, testSnapshot(20)))
	require.NoError(t, c.Record(ctx, testSnapshot(30)))
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	defer db.Close()

	var rows, maxTotal int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*), MAX(total) FROM filter_metrics`).Scan(&rows, &maxTotal))
	assert.Equal(t, 3, rows)
	assert.Equal(t, 30, maxTotal)

	var mean float64
	var ts int64
	require.NoError(t, db.QueryRow(`SELECT window_mean, timestamp_ms FROM filter_metrics LIMIT 1`).Scan(&mean, &ts))
	assert.InDelta(t, 21.5, mean, 1e-9)
	assert.Equal(t, int64(1700000000123), ts)
}

func TestRepositoryBacksUpOnVersionMismatch(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "metrics.db")

	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	_, err = db.Exec(`
		CREATE TABLE schema_versions (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL);
		INSERT INTO schema_versions (version, applied_at) VALUES (99, datetime('now'));`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.DBPath = dbPath

	repo, err := NewRepository(cfg, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	backups, err := filepath.Glob(filepath.Join(dir, backupDirName, "metrics_v99_*.db"))
	require.NoError(t, err)
	assert.Len(t, backups, 1)

	db, err = sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	defer db.Close()

	version, err := GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, version)
}

func TestRecordRejectsNilAndCancelled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TextfilePath = filepath.Join(t.TempDir(), "datafilter.prom")

	c, err := NewService(cfg, logger.Nop())
	require.NoError(t, err)
	defer c.Close()

	assert.Error(t, c.Record(context.Background(), nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, c.Record(ctx, testSnapshot(10)))

	_, err = os.Stat(cfg.TextfilePath)
	assert.True(t, os.IsNotExist(err))
}

func TestWriteTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collector", "datafilter.prom")

	require.NoError(t, WriteTextfile(path, testSnapshot(10)))
	require.NoError(t, WriteTextfile(path, testSnapshot(42)))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(f)
	require.NoError(t, err)

	assert.Equal(t, 42.0, families["datafilter_readings_total"].GetMetric()[0].GetCounter().GetValue())
	assert.Equal(t, 39.0, families["datafilter_readings_accepted_total"].GetMetric()[0].GetCounter().GetValue())
	assert.Equal(t, 4.0, families["datafilter_decode_failures_total"].GetMetric()[0].GetCounter().GetValue())
	assert.Equal(t, 0.25, families["datafilter_window_stddev_celsius"].GetMetric()[0].GetGauge().GetValue())

	rejected := map[string]float64{}
	for _, m := range families["datafilter_readings_rejected_total"].GetMetric() {
		rejected[m.GetLabel()[0].GetValue()] = m.GetCounter().GetValue()
	}
	assert.Equal(t, map[string]float64{"out_of_range": 1, "spike_detected": 2}, rejected)

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(path), ".datafilter.prom.*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}
