package memory

import (
	"context"
	"sync"
	"time"

	"github.com/nicktill/munin2tinyobs/pkg/sdk/metrics"
	"github.com/nicktill/munin2tinyobs/pkg/storage"
)

// Storage stores points in memory. Data is lost on restart.
// Useful for testing and dry runs.
type Storage struct {
	points []metrics.WriteRequest
	writes int
	mu     sync.RWMutex
}

// New creates an in-memory storage backend
func New() *Storage {
	return &Storage{
		points: make([]metrics.WriteRequest, 0, 1024),
	}
}

// Write stores points in memory
func (s *Storage) Write(ctx context.Context, requests []metrics.WriteRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.points = append(s.points, requests...)
	s.writes++
	return nil
}

// Writes returns how many Write calls succeeded, i.e. batches received
func (s *Storage) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// All returns a copy of every stored point in write order
func (s *Storage) All() []metrics.WriteRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]metrics.WriteRequest, len(s.points))
	copy(out, s.points)
	return out
}

// Query retrieves points matching the request
func (s *Storage) Query(ctx context.Context, req storage.QueryRequest) ([]metrics.WriteRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []metrics.WriteRequest
	for _, p := range s.points {
		if !req.Matches(p) {
			continue
		}

		results = append(results, p)

		// Limit check
		if req.Limit > 0 && len(results) >= req.Limit {
			break
		}
	}

	return results, nil
}

// Delete removes points older than the given time
func (s *Storage) Delete(ctx context.Context, before time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	filtered := make([]metrics.WriteRequest, 0, len(s.points))
	for _, p := range s.points {
		if !p.Time.Before(before) {
			filtered = append(filtered, p)
		}
	}

	s.points = filtered
	return nil
}

// Close is a no-op for memory storage
func (s *Storage) Close() error {
	return nil
}

// Stats returns storage statistics
func (s *Storage) Stats(ctx context.Context) (*storage.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &storage.Stats{
		TotalPoints: uint64(len(s.points)),
	}

	if len(s.points) == 0 {
		return stats, nil
	}

	// Count unique series and find min/max timestamps in single pass
	seriesMap := make(map[string]bool)
	oldest := s.points[0].Time
	newest := s.points[0].Time

	for _, p := range s.points {
		seriesMap[p.SeriesKey()] = true

		if p.Time.Before(oldest) {
			oldest = p.Time
		}
		if p.Time.After(newest) {
			newest = p.Time
		}
	}

	stats.TotalSeries = uint64(len(seriesMap))
	stats.OldestPoint = oldest
	stats.NewestPoint = newest

	// Rough size estimate (each point ~100 bytes)
	stats.SizeBytes = uint64(len(s.points)) * 100

	return stats, nil
}

var _ storage.Storage = (*Storage)(nil)
