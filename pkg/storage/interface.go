package storage

import (
	"context"
	"time"

	"github.com/nicktill/munin2tinyobs/pkg/sdk/metrics"
)

// Writer is the store client the batch writer submits to.
// Implementations: influx, timescale, parquet, transport (HTTP), plus every Storage.
type Writer interface {
	// Write commits one batch. Store-side failures must be returned, never dropped.
	Write(ctx context.Context, requests []metrics.WriteRequest) error

	// Close flushes and releases the client
	Close() error
}

// Storage is a Writer that can also be read back.
// Implementations: memory (testing), badger (server)
type Storage interface {
	Writer

	// Query retrieves points within a time range
	Query(ctx context.Context, req QueryRequest) ([]metrics.WriteRequest, error)

	// Delete removes points older than the given time
	Delete(ctx context.Context, before time.Time) error

	// Stats returns storage statistics
	Stats(ctx context.Context) (*Stats, error)
}

// QueryRequest specifies what points to retrieve
type QueryRequest struct {
	// Time range (inclusive)
	Start time.Time
	End   time.Time

	// Filter by measurement (optional)
	Measurements []string

	// Filter by tags (optional)
	Tags map[string]string

	// Limit number of results (0 = no limit)
	Limit int
}

// Stats provides storage health and usage info
type Stats struct {
	// Total points stored
	TotalPoints uint64 `json:"total_points"`

	// Unique series (measurement + tag combinations)
	TotalSeries uint64 `json:"total_series"`

	// Storage size in bytes
	SizeBytes uint64 `json:"size_bytes"`

	// Oldest point timestamp
	OldestPoint time.Time `json:"oldest_point"`

	// Newest point timestamp
	NewestPoint time.Time `json:"newest_point"`
}

// Matches reports whether a point satisfies the request filters
func (req QueryRequest) Matches(w metrics.WriteRequest) bool {
	if w.Time.Before(req.Start) || w.Time.After(req.End) {
		return false
	}

	if len(req.Measurements) > 0 {
		found := false
		for _, name := range req.Measurements {
			if w.Measurement == name {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	for k, v := range req.Tags {
		if w.Tags == nil || w.Tags[k] != v {
			return false
		}
	}

	return true
}
