// Package quarantine keeps rejected readings for later inspection.
package quarantine

import (
	"context"
	"time"
)

// Store persists rejected readings.
type Store interface {
	Put(ctx context.Context, entry *Entry) error
	// Count returns the number of stored entries with the given reason, or
	// of all entries when reason is empty.
	Count(ctx context.Context, reason string) (int, error)
	Close() error
}

// Entry is one rejected reading. Raw holds the record as it was received.
type Entry struct {
	ReceivedAt     time.Time
	SensorID       string
	SequenceNumber uint64
	Temperature    float64
	Humidity       float64
	Timestamp      string
	Reason         string
	Raw            []byte
}
