package transport

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"codeberg.org/mutker/datafilter/internal/logger"
	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freeAddress(t *testing.T) string {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	return addr
}

// startBroker runs an in-process MQTT broker for the test. The returned
// stop func may be called early; the server only tolerates one Close.
func startBroker(t *testing.T) (func(), string) {
	t.Helper()

	addr := freeAddress(t)
	server := mochi.New(nil)
	require.NoError(t, server.AddHook(new(auth.AllowHook), nil))
	require.NoError(t, server.AddListener(listeners.NewTCP(listeners.Config{
		ID:      "t1",
		Type:    "tcp",
		Address: addr,
	})))
	require.NoError(t, server.Serve())

	var once sync.Once
	stop := func() { once.Do(func() { _ = server.Close() }) }
	t.Cleanup(stop)

	return stop, addr
}

func dial(t *testing.T, addr string) *MQTT {
	t.Helper()

	cfg := DefaultMQTTConfig()
	cfg.Broker = addr
	cfg.ConnectTimeout = 5 * time.Second

	m, err := DialMQTT(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	return m
}

func receive(t *testing.T, src Source) []byte {
	t.Helper()

	select {
	case msg, ok := <-src.Messages():
		require.True(t, ok, "source closed: %v", src.Err())
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestMQTTSourceAndSink(t *testing.T) {
	_, addr := startBroker(t)
	sub := dial(t, addr)
	pub := dial(t, addr)
	ctx := context.Background()

	src, err := sub.Source(ctx, "sensors/+/raw")
	require.NoError(t, err)
	defer src.Close()

	other, err := sub.Source(ctx, "sensors/other")
	require.NoError(t, err)
	defer other.Close()

	sink := pub.Sink("sensors/temp-sensor-001/raw", map[string]string{"source": "dataFilter", "filterPassed": "true"})
	require.NoError(t, sink.Send(ctx, []byte(`{"sensorId":"temp-sensor-001"}`)))
	require.NoError(t, sink.Send(ctx, []byte(`{"sensorId":"temp-sensor-002"}`)))

	assert.Equal(t, `{"sensorId":"temp-sensor-001"}`, string(receive(t, src)))
	assert.Equal(t, `{"sensorId":"temp-sensor-002"}`, string(receive(t, src)))
	assert.Empty(t, other.Messages())
	require.NoError(t, sink.Close())
}

func TestMQTTSourceClosesWhenBrokerGoesAway(t *testing.T) {
	stop, addr := startBroker(t)
	m := dial(t, addr)

	src, err := m.Source(context.Background(), "sensors/#")
	require.NoError(t, err)

	stop()

	select {
	case _, ok := <-src.Messages():
		assert.False(t, ok)
	case <-time.After(10 * time.Second):
		t.Fatal("source stayed open after broker shutdown")
	}
	assert.Error(t, src.Err())
	assert.Error(t, m.Err())

	_, err = m.Source(context.Background(), "sensors/#")
	assert.Error(t, err)
}

func TestDialMQTTFailures(t *testing.T) {
	cfg := DefaultMQTTConfig()
	cfg.Broker = freeAddress(t)
	cfg.ConnectTimeout = time.Second

	_, err := DialMQTT(context.Background(), cfg, logger.Nop())
	assert.Error(t, err)

	cfg.Broker = "no-port"
	_, err = DialMQTT(context.Background(), cfg, logger.Nop())
	assert.Error(t, err)
}

func TestMQTTConfigValidate(t *testing.T) {
	require.NoError(t, DefaultMQTTConfig().Validate())

	cfg := DefaultMQTTConfig()
	cfg.OutputTopic = "sensors/+/filtered"
	assert.Error(t, cfg.Validate())

	cfg = DefaultMQTTConfig()
	cfg.InputTopic = ""
	assert.Error(t, cfg.Validate())
}

func TestTopicMatches(t *testing.T) {
	tests := []struct {
		filter, topic string
		want          bool
	}{
		{"sensors/temperature/raw", "sensors/temperature/raw", true},
		{"sensors/+/raw", "sensors/a/raw", true},
		{"sensors/+/raw", "sensors/a/b/raw", false},
		{"sensors/#", "sensors/a/b/raw", true},
		{"sensors/#", "sensors", true},
		{"sensors/a", "sensors/a/b", false},
		{"sensors/a/b", "sensors/a", false},
		{"#", "anything/at/all", true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, topicMatches(tt.filter, tt.topic), "%s vs %s", tt.filter, tt.topic)
	}
}
