package transport_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"codeberg.org/mutker/datafilter/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, src transport.Source) []string {
	t.Helper()

	var got []string
	timeout := time.After(5 * time.Second)
	for {
		select {
		case msg, ok := <-src.Messages():
			if !ok {
				return got
			}
			got = append(got, string(msg))
		case <-timeout:
			t.Fatal("source did not close")
		}
	}
}

func TestStdioSourceSplitsLines(t *testing.T) {
	input := "{\"a\":1}\r\n\n   \n{\"b\":2}\n{\"c\":3}"
	src := transport.NewStdioSource(strings.NewReader(input))
	defer src.Close()

	assert.Equal(t, []string{`{"a":1}`, `{"b":2}`, `{"c":3}`}, drain(t, src))
	assert.NoError(t, src.Err())
}

type failingReader struct{ sent bool }

func (r *failingReader) Read(p []byte) (int, error) {
	if !r.sent {
		r.sent = true
		return copy(p, "{\"a\":1}\n"), nil
	}
	return 0, errors.New("device unplugged")
}

func TestStdioSourceReportsReadError(t *testing.T) {
	src := transport.NewStdioSource(&failingReader{})

	assert.Equal(t, []string{`{"a":1}`}, drain(t, src))
	require.Error(t, src.Err())
	assert.Contains(t, src.Err().Error(), "device unplugged")
}

func TestStdioSink(t *testing.T) {
	var buf bytes.Buffer
	sink := transport.NewStdioSink(&buf)

	require.NoError(t, sink.Send(context.Background(), []byte(`{"a":1}`)))
	require.NoError(t, sink.Send(context.Background(), []byte(`{"b":2}`)))
	require.NoError(t, sink.Close())

	assert.Equal(t, "{\"a\":1}\n{\"b\":2}\n", buf.String())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, sink.Send(ctx, []byte("x")))
}

func TestDiscard(t *testing.T) {
	assert.NoError(t, transport.Discard.Send(context.Background(), []byte("x")))
	assert.NoError(t, transport.Discard.Close())
}

func TestValidMode(t *testing.T) {
	assert.True(t, transport.ValidMode("stdio"))
	assert.True(t, transport.ValidMode("mqtt"))
	assert.False(t, transport.ValidMode("kafka"))
}
