package metrics

import (
	"context"
	"time"
)

// Collector records filter snapshots.
type Collector interface {
	Record(ctx context.Context, snapshot *FilterSnapshot) error
	Close() error
}

// Repository defines the interface for snapshot storage
type Repository interface {
	Record(snapshot *FilterSnapshot) error
	Close() error
}

// FilterSnapshot is the state of a running filter at one point in time.
// Counters are cumulative since start.
type FilterSnapshot struct {
	Timestamp      time.Time
	Total          uint64
	Accepted       uint64
	Rejected       uint64
	OutOfRange     uint64
	Spikes         uint64
	DecodeFailures uint64
	WindowLen      int
	WindowMean     float64
	WindowStdDev   float64
}
