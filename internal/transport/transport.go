// Package transport moves raw records in and out of the filter: newline
// delimited streams for standalone use and MQTT topics for edge
// deployments.
package transport

import (
	"context"

	"codeberg.org/mutker/datafilter/internal/errors"
)

const (
	ModeStdio = "stdio"
	ModeMQTT  = "mqtt"
)

// Source delivers raw records. Messages is closed when the source is
// exhausted, closed, or fails; Err then reports the failure, if any.
type Source interface {
	Messages() <-chan []byte
	Err() error
	Close() error
}

// Sink accepts encoded records.
type Sink interface {
	Send(ctx context.Context, payload []byte) error
	Close() error
}

// ValidMode reports whether mode names a known transport.
func ValidMode(mode string) bool {
	return mode == ModeStdio || mode == ModeMQTT
}

// Discard is a Sink that drops everything.
var Discard Sink = discard{}

type discard struct{}

func (discard) Send(context.Context, []byte) error { return nil }
func (discard) Close() error                       { return nil }

var errFactory = errors.New()
