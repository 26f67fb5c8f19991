package quarantine_test

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/datafilter/internal/logger"
	"codeberg.org/mutker/datafilter/internal/quarantine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) quarantine.Store {
	t.Helper()

	cfg := quarantine.DefaultConfig()
	cfg.Enabled = true
	cfg.DBPath = filepath.Join(t.TempDir(), "q", "quarantine.db")

	store, err := quarantine.NewStore(cfg, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func entry(seq uint64, temp float64, reason string) *quarantine.Entry {
	return &quarantine.Entry{
		ReceivedAt:     time.Now(),
		SensorID:       "temp-sensor-001",
		SequenceNumber: seq,
		Temperature:    temp,
		Humidity:       45.2,
		Timestamp:      "2024-01-15T10:30:00.000Z",
		Reason:         reason,
		Raw:            []byte(`{"sensorId":"temp-sensor-001"}`),
	}
}

func TestPutAndCount(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, entry(1, 120, "out_of_range")))
	require.NoError(t, store.Put(ctx, entry(2, 35, "spike_detected")))
	require.NoError(t, store.Put(ctx, entry(3, -60, "out_of_range")))
	require.NoError(t, store.Put(ctx, entry(math.MaxUint64, math.Inf(1), "out_of_range")))

	total, err := store.Count(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 4, total)

	oor, err := store.Count(ctx, "out_of_range")
	require.NoError(t, err)
	assert.Equal(t, 3, oor)

	spikes, err := store.Count(ctx, "spike_detected")
	require.NoError(t, err)
	assert.Equal(t, 1, spikes)
}

func TestPutRequiresReason(t *testing.T) {
	store := openStore(t)

	assert.Error(t, store.Put(context.Background(), entry(1, 20, "")))
	assert.Error(t, store.Put(context.Background(), nil))
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, quarantine.DefaultConfig().Validate())

	cfg := quarantine.Config{Enabled: true}
	assert.Error(t, cfg.Validate())

	_, err := quarantine.NewStore(cfg, logger.Nop())
	assert.Error(t, err)
}
