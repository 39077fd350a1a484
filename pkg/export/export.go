package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/nicktill/munin2tinyobs/pkg/sdk/metrics"
	"github.com/nicktill/munin2tinyobs/pkg/storage"
)

// FormatVersion is written into every JSON backup
const FormatVersion = "1.0"

// Exporter handles exporting stored points to various formats
type Exporter struct {
	storage storage.Storage
}

// NewExporter creates a new exporter
func NewExporter(store storage.Storage) *Exporter {
	return &Exporter{storage: store}
}

// ExportOptions configures the export operation
type ExportOptions struct {
	// Time range to export
	Start time.Time
	End   time.Time

	// Filter by measurement (nil = all measurements)
	Measurements []string

	// Filter by tags (nil = no tag filtering)
	Tags map[string]string

	// Format: "json" or "csv"
	Format string
}

// ExportResult contains stats about the export
type ExportResult struct {
	PointsExported int       `json:"points_exported"`
	TimeRange      string    `json:"time_range"`
	Format         string    `json:"format"`
	ExportedAt     time.Time `json:"exported_at"`
}

// Metadata heads a JSON backup
type Metadata struct {
	ExportedAt time.Time `json:"exported_at"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	PointCount int       `json:"point_count"`
	Format     string    `json:"format"`
	Version    string    `json:"version"`
}

// Backup is the JSON backup document, readable by ImportFromJSON
type Backup struct {
	Metadata Metadata               `json:"metadata"`
	Points   []metrics.WriteRequest `json:"points"`
}

func (e *Exporter) query(ctx context.Context, opts ExportOptions) ([]metrics.WriteRequest, error) {
	points, err := e.storage.Query(ctx, storage.QueryRequest{
		Start:        opts.Start,
		End:          opts.End,
		Measurements: opts.Measurements,
		Tags:         opts.Tags,
		Limit:        0, // No limit - export everything
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query points: %w", err)
	}
	return points, nil
}

// ExportToJSON exports points as JSON to the given writer
func (e *Exporter) ExportToJSON(ctx context.Context, w io.Writer, opts ExportOptions) (*ExportResult, error) {
	points, err := e.query(ctx, opts)
	if err != nil {
		return nil, err
	}

	backup := Backup{
		Metadata: Metadata{
			ExportedAt: time.Now(),
			StartTime:  opts.Start,
			EndTime:    opts.End,
			PointCount: len(points),
			Format:     "json",
			Version:    FormatVersion,
		},
		Points: points,
	}

	// Encode as pretty JSON
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(backup); err != nil {
		return nil, fmt.Errorf("failed to encode JSON: %w", err)
	}

	return &ExportResult{
		PointsExported: len(points),
		TimeRange:      timeRange(opts.Start, opts.End),
		Format:         "json",
		ExportedAt:     backup.Metadata.ExportedAt,
	}, nil
}

// ExportToCSV exports points as CSV to the given writer. Unknown values are
// written as their raw text, e.g. "U".
func (e *Exporter) ExportToCSV(ctx context.Context, w io.Writer, opts ExportOptions) (*ExportResult, error) {
	points, err := e.query(ctx, opts)
	if err != nil {
		return nil, err
	}

	writer := csv.NewWriter(w)

	// Collect all unique tag keys across all points for consistent columns
	tagKeys := collectTagKeys(points)

	header := []string{"timestamp", "measurement", "value"}
	header = append(header, tagKeys...)
	if err := writer.Write(header); err != nil {
		return nil, fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, p := range points {
		row := []string{
			p.Time.UTC().Format(time.RFC3339),
			p.Measurement,
			p.Value.String(),
		}
		// Empty cell if tag not present
		for _, key := range tagKeys {
			row = append(row, p.Tags[key])
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush CSV: %w", err)
	}

	return &ExportResult{
		PointsExported: len(points),
		TimeRange:      timeRange(opts.Start, opts.End),
		Format:         "csv",
		ExportedAt:     time.Now(),
	}, nil
}

// collectTagKeys gathers all unique tag keys and returns them sorted
func collectTagKeys(points []metrics.WriteRequest) []string {
	keySet := make(map[string]bool)
	for _, p := range points {
		for key := range p.Tags {
			keySet[key] = true
		}
	}

	keys := make([]string, 0, len(keySet))
	for key := range keySet {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func timeRange(start, end time.Time) string {
	return fmt.Sprintf("%s to %s", start.Format(time.RFC3339), end.Format(time.RFC3339))
}
