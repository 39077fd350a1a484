package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/nicktill/munin2tinyobs/pkg/ingest"
	"github.com/nicktill/munin2tinyobs/pkg/sdk/batch"
	"github.com/nicktill/munin2tinyobs/pkg/sdk/metrics"
	"github.com/nicktill/munin2tinyobs/pkg/storage"
)

const (
	// MaxImportBatchSize is the maximum number of points to write at once
	MaxImportBatchSize = 5000

	// maxFutureSkew rejects points stamped too far ahead of the local clock
	maxFutureSkew = 24 * time.Hour
)

// Importer restores points from JSON backups
type Importer struct {
	storage storage.Writer
	now     func() time.Time
}

// NewImporter creates a new importer
func NewImporter(store storage.Writer) *Importer {
	return &Importer{storage: store, now: time.Now}
}

// ImportResult contains stats about the import operation
type ImportResult struct {
	PointsImported int       `json:"points_imported"`
	BatchesWritten int       `json:"batches_written"`
	TimeRange      string    `json:"time_range"`
	ImportedAt     time.Time `json:"imported_at"`
	Errors         []string  `json:"errors,omitempty"`
}

// ImportFromJSON imports points from a JSON backup. Invalid points are
// skipped and reported in ImportResult.Errors; a store failure aborts.
func (im *Importer) ImportFromJSON(ctx context.Context, r io.Reader) (*ImportResult, error) {
	var backup Backup
	if err := json.NewDecoder(r).Decode(&backup); err != nil {
		return nil, fmt.Errorf("failed to decode JSON: %w", err)
	}

	if len(backup.Points) == 0 {
		return &ImportResult{
			TimeRange:  "empty",
			ImportedAt: im.now(),
		}, nil
	}

	var validationErrors []string
	var minTime, maxTime time.Time

	b := batch.New(im.storage, batch.Config{MaxBatchSize: MaxImportBatchSize})
	for i, p := range backup.Points {
		if err := im.validate(p); err != nil {
			validationErrors = append(validationErrors, fmt.Sprintf("point %d: %v", i, err))
			continue
		}
		if err := b.Add(ctx, p); err != nil {
			return nil, err
		}

		if minTime.IsZero() || p.Time.Before(minTime) {
			minTime = p.Time
		}
		if p.Time.After(maxTime) {
			maxTime = p.Time
		}
	}
	if err := b.Flush(ctx); err != nil {
		return nil, err
	}

	return &ImportResult{
		PointsImported: b.Written(),
		BatchesWritten: b.Batches(),
		TimeRange:      timeRange(minTime, maxTime),
		ImportedAt:     im.now(),
		Errors:         validationErrors,
	}, nil
}

// validate applies the write limits. Munin archives reach years back, so
// only timestamps in the future are rejected.
func (im *Importer) validate(p metrics.WriteRequest) error {
	if err := ingest.ValidateWriteRequest(p); err != nil {
		return err
	}
	if p.Time.After(im.now().Add(maxFutureSkew)) {
		return fmt.Errorf("timestamp too far in future: %s", p.Time)
	}
	return nil
}
