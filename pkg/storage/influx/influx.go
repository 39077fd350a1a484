// Package influx writes points to InfluxDB 1.x over its HTTP line-protocol API.
package influx

import (
	"context"
	"errors"
	"fmt"
	"time"

	client "github.com/influxdata/influxdb1-client/v2"

	"github.com/nicktill/munin2tinyobs/pkg/sdk/metrics"
	"github.com/nicktill/munin2tinyobs/pkg/storage"
)

// Precision is the write precision; RRD timestamps are whole seconds
const Precision = "s"

// Config holds the InfluxDB connection settings
type Config struct {
	Addr     string
	Database string
	Username string
	Password string
	Timeout  time.Duration
}

// Writer implements storage.Writer. One Write call is one HTTP request.
type Writer struct {
	client   client.Client
	database string
}

var _ storage.Writer = (*Writer)(nil)

// New creates an InfluxDB writer. The database must already exist.
func New(cfg Config) (*Writer, error) {
	if cfg.Addr == "" {
		return nil, errors.New("influx address cannot be empty")
	}
	if cfg.Database == "" {
		return nil, errors.New("influx database cannot be empty")
	}

	c, err := client.NewHTTPClient(client.HTTPConfig{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create influx client: %w", err)
	}

	return &Writer{client: c, database: cfg.Database}, nil
}

// Write submits the requests as one batch
func (w *Writer) Write(ctx context.Context, requests []metrics.WriteRequest) error {
	if len(requests) == 0 {
		return nil
	}
	// The v1 client has no context support, so only check before sending
	if err := ctx.Err(); err != nil {
		return err
	}

	bp, err := client.NewBatchPoints(client.BatchPointsConfig{
		Database:  w.database,
		Precision: Precision,
	})
	if err != nil {
		return fmt.Errorf("failed to create batch: %w", err)
	}

	for i, req := range requests {
		pt, err := NewPoint(req)
		if err != nil {
			return fmt.Errorf("point %d (%s): %w", i, req.Measurement, err)
		}
		bp.AddPoint(pt)
	}

	if err := w.client.Write(bp); err != nil {
		return fmt.Errorf("influx write failed: %w", err)
	}
	return nil
}

// Close releases idle connections
func (w *Writer) Close() error {
	return w.client.Close()
}

// NewPoint converts a write request into an InfluxDB point. InfluxDB rejects
// NaN and infinite floats, so those are written as their text like "U" is.
func NewPoint(req metrics.WriteRequest) (*client.Point, error) {
	var value any = req.Value.Raw
	if req.Value.Finite() {
		value = req.Value.Number
	} else if req.Value.IsNumber {
		value = req.Value.String()
	}

	return client.NewPoint(req.Measurement, req.Tags, map[string]any{metrics.FieldValue: value}, req.Time)
}
