package pipeline_test

import (
	"fmt"
	"testing"

	"codeberg.org/mutker/datafilter/internal/codec"
	"codeberg.org/mutker/datafilter/internal/filter"
	"codeberg.org/mutker/datafilter/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(sensor string, seq int, temp float64) []byte {
	return []byte(fmt.Sprintf(
		`{"sensorId":"%s","temperature":%.2f,"humidity":45.0,"timestamp":"2024-01-15T10:30:%02d.000Z","sequenceNumber":%d}`,
		sensor, temp, seq%60, seq))
}

func newPipeline(t *testing.T, opts ...pipeline.Option) *pipeline.Pipeline {
	t.Helper()
	p, err := pipeline.New(filter.DefaultConfig(), opts...)
	require.NoError(t, err)
	return p
}

func TestProcessAccepted(t *testing.T) {
	p := newPipeline(t)

	res, err := p.Process(record("temp-sensor-001", 1, 22.5))
	require.NoError(t, err)

	assert.Equal(t, filter.Verdict{Accepted: true}, res.Verdict)
	assert.Equal(t, "temp-sensor-001", res.Reading.SensorID)
	assert.Equal(t,
		`{"sensorId":"temp-sensor-001","temperature":22.50,"humidity":45.0,"timestamp":"2024-01-15T10:30:01.000Z","sequenceNumber":1,"filterPassed":true}`,
		string(res.Output))
}

func TestProcessRejectedCarriesReason(t *testing.T) {
	p := newPipeline(t)

	res, err := p.Process(record("temp-sensor-001", 1, 120))
	require.NoError(t, err)

	assert.False(t, res.Verdict.Accepted)
	assert.Equal(t, filter.ReasonOutOfRange, res.Verdict.Reason)
	assert.Contains(t, string(res.Output), `"filterPassed":false,"filterReason":"out_of_range"}`)
}

func TestDecodeFailureDoesNotTouchFilter(t *testing.T) {
	p := newPipeline(t)

	_, err := p.Process(record("temp-sensor-001", 1, 20))
	require.NoError(t, err)
	before := p.Stats()

	for _, raw := range []string{
		``,
		`not a record`,
		`{"sensorId":"s","humidity":45.0,"timestamp":"t","sequenceNumber":1}`,
		`{"sensorId":"s","temperature":abc,"humidity":45.0,"timestamp":"t","sequenceNumber":1}`,
	} {
		_, err := p.Process([]byte(raw))
		require.Error(t, err, raw)
		assert.ErrorIs(t, err, pipeline.ErrDecode)
	}

	assert.Equal(t, before, p.Stats())
}

func TestDecodeFailureKeepsFieldError(t *testing.T) {
	p := newPipeline(t)

	_, err := p.Process([]byte(`{"sensorId":"s","temperature":1,"humidity":1,"timestamp":"t"}`))

	var fieldErr *codec.FieldError
	require.ErrorAs(t, err, &fieldErr)
	assert.Equal(t, codec.KeySequenceNumber, fieldErr.Field)
	assert.ErrorIs(t, err, codec.ErrMissingField)
}

func TestSharedFilterMixesSensors(t *testing.T) {
	p := newPipeline(t)

	for i := 0; i < 5; i++ {
		_, err := p.Process(record("a", i, 20))
		require.NoError(t, err)
	}

	res, err := p.Process(record("b", 5, 60))
	require.NoError(t, err)
	assert.Equal(t, filter.ReasonSpikeDetected, res.Verdict.Reason)
	assert.Equal(t, 1, p.Sensors())
}

func TestPerSensorFilters(t *testing.T) {
	p := newPipeline(t, pipeline.WithPerSensorFilters())

	for i := 0; i < 10; i++ {
		a, err := p.Process(record("a", i, 20+float64(i%2)*0.2))
		require.NoError(t, err)
		b, err := p.Process(record("b", i, 60-float64(i%2)*0.2))
		require.NoError(t, err)

		assert.True(t, a.Verdict.Accepted, "a #%d", i)
		assert.True(t, b.Verdict.Accepted, "b #%d", i)
	}

	res, err := p.Process(record("a", 10, 30))
	require.NoError(t, err)
	assert.Equal(t, filter.ReasonSpikeDetected, res.Verdict.Reason)

	stats := p.Stats()
	assert.Equal(t, 2, p.Sensors())
	assert.Equal(t, uint64(21), stats.Total)
	assert.Equal(t, uint64(20), stats.Accepted)
	assert.Equal(t, uint64(1), stats.Rejected)
	assert.Equal(t, filter.DefaultSpikeWindow, stats.WindowLen)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := filter.DefaultConfig()
	cfg.TempMinValid = 100

	_, err := pipeline.New(cfg)
	assert.ErrorIs(t, err, filter.ErrInvalidConfig)

	_, err = pipeline.New(cfg, pipeline.WithPerSensorFilters())
	assert.ErrorIs(t, err, filter.ErrInvalidConfig)
}
