package ingest

import (
	"sync"
	"time"

	"github.com/nicktill/munin2tinyobs/pkg/sdk/metrics"
)

const (
	// Forget series not written in the last 24 hours
	seriesRetentionPeriod = 24 * time.Hour

	cleanupInterval = 1 * time.Hour
)

// CardinalityTracker counts the series accepted over /v1/write so a runaway
// client cannot grow the store without bound. Series are grouped per
// measurement; Munin gives each measurement one series per consolidation
// function, so a measurement past MaxSeriesPerMeasurement is almost always a
// client inventing tags.
type CardinalityTracker struct {
	mu sync.RWMutex

	// measurement -> series key -> last write
	series map[string]map[string]time.Time
	total  int

	lastCleanup time.Time
	now         func() time.Time
}

// NewCardinalityTracker creates a new cardinality tracker
func NewCardinalityTracker() *CardinalityTracker {
	return &CardinalityTracker{
		series:      make(map[string]map[string]time.Time),
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

// CheckBatch reports whether accepting every request would exceed a limit.
// Series new to the tracker count against the limits together, so one batch
// cannot slip past them one point at a time.
func (c *CardinalityTracker) CheckBatch(requests []metrics.WriteRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pruneLocked()

	fresh := make(map[string]map[string]struct{})
	freshTotal := 0
	for _, w := range requests {
		key := w.SeriesKey()
		if _, ok := c.series[w.Measurement][key]; ok {
			continue
		}
		pending := fresh[w.Measurement]
		if pending == nil {
			pending = make(map[string]struct{})
			fresh[w.Measurement] = pending
		}
		if _, ok := pending[key]; ok {
			continue
		}
		pending[key] = struct{}{}
		freshTotal++

		if c.total+freshTotal > MaxUniqueSeries {
			return ErrCardinalityLimit
		}
		if len(c.series[w.Measurement])+len(pending) > MaxSeriesPerMeasurement {
			return ErrMeasurementCardinalityLimit
		}
	}
	return nil
}

// Check is CheckBatch for a single request
func (c *CardinalityTracker) Check(w metrics.WriteRequest) error {
	return c.CheckBatch([]metrics.WriteRequest{w})
}

// RecordBatch marks the requests' series as written. Call it after the store
// accepted them.
func (c *CardinalityTracker) RecordBatch(requests []metrics.WriteRequest) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for _, w := range requests {
		known := c.series[w.Measurement]
		if known == nil {
			known = make(map[string]time.Time)
			c.series[w.Measurement] = known
		}
		key := w.SeriesKey()
		if _, ok := known[key]; !ok {
			c.total++
		}
		known[key] = now
	}
}

// Record is RecordBatch for a single request
func (c *CardinalityTracker) Record(w metrics.WriteRequest) {
	c.RecordBatch([]metrics.WriteRequest{w})
}

// pruneLocked forgets series idle for longer than seriesRetentionPeriod, at
// most once per cleanupInterval. Caller must hold c.mu.
func (c *CardinalityTracker) pruneLocked() {
	now := c.now()
	if now.Sub(c.lastCleanup) < cleanupInterval {
		return
	}
	c.lastCleanup = now
	cutoff := now.Add(-seriesRetentionPeriod)

	for measurement, known := range c.series {
		for key, lastSeen := range known {
			if lastSeen.Before(cutoff) {
				delete(known, key)
				c.total--
			}
		}
		if len(known) == 0 {
			delete(c.series, measurement)
		}
	}
}

// Stats returns current cardinality statistics
func (c *CardinalityTracker) Stats() CardinalityStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := CardinalityStats{
		TotalSeries:         c.total,
		UniqueMeasurements:  len(c.series),
		SeriesLimit:         MaxUniqueSeries,
		PerMeasurementLimit: MaxSeriesPerMeasurement,
		UtilizationPct:      float64(c.total) / float64(MaxUniqueSeries) * 100,
	}
	for name, known := range c.series {
		n := len(known)
		if n > stats.MaxSeriesCount || (n == stats.MaxSeriesCount && name < stats.MaxSeriesMeasurement) {
			stats.MaxSeriesCount = n
			stats.MaxSeriesMeasurement = name
		}
	}
	return stats
}

// CardinalityStats provides cardinality usage information
type CardinalityStats struct {
	TotalSeries          int     `json:"total_series"`
	UniqueMeasurements   int     `json:"unique_measurements"`
	MaxSeriesMeasurement string  `json:"max_series_measurement"`
	MaxSeriesCount       int     `json:"max_series_count"`
	SeriesLimit          int     `json:"series_limit"`
	PerMeasurementLimit  int     `json:"per_measurement_limit"`
	UtilizationPct       float64 `json:"utilization_percent"`
}
