// Package timescale writes points into a PostgreSQL/TimescaleDB hypertable.
//
// The table is expected to exist with a unique key on (measurement, tags, ts):
//
//	CREATE TABLE munin_points (
//	  measurement TEXT             NOT NULL,
//	  tags        JSONB            NOT NULL,
//	  ts          TIMESTAMPTZ      NOT NULL,
//	  value       DOUBLE PRECISION,
//	  raw         TEXT             NOT NULL,
//	  UNIQUE (measurement, tags, ts)
//	);
//	SELECT create_hypertable('munin_points', 'ts');
package timescale

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/nicktill/munin2tinyobs/pkg/sdk/metrics"
	"github.com/nicktill/munin2tinyobs/pkg/storage"
)

// DriverName is the database/sql driver registered by pgx
const DriverName = "pgx"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Writer implements storage.Writer. Each batch is one transaction.
type Writer struct {
	db     *sql.DB
	insert string
}

var _ storage.Writer = (*Writer)(nil)

// Open connects with the pgx driver
func Open(dsn, table string) (*Writer, error) {
	if dsn == "" {
		return nil, errors.New("timescale dsn cannot be empty")
	}
	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open timescale: %w", err)
	}
	w, err := New(db, table)
	if err != nil {
		db.Close()
		return nil, err
	}
	return w, nil
}

// New wraps an existing *sql.DB
func New(db *sql.DB, table string) (*Writer, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Writer{
		db: db,
		insert: fmt.Sprintf(`INSERT INTO %s (measurement, tags, ts, value, raw)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (measurement, tags, ts) DO NOTHING`, table),
	}, nil
}

// Write inserts the requests in one transaction. Points already present are
// left untouched, so re-importing a file is idempotent.
func (w *Writer) Write(ctx context.Context, requests []metrics.WriteRequest) (err error) {
	if len(requests) == 0 {
		return nil
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("timescale: begin: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for i, req := range requests {
		tags, err := json.Marshal(req.Tags)
		if err != nil {
			return fmt.Errorf("timescale: encode tags of point %d: %w", i, err)
		}

		var value sql.NullFloat64
		if req.Value.Finite() {
			value = sql.NullFloat64{Float64: req.Value.Number, Valid: true}
		}

		if _, err := tx.ExecContext(ctx, w.insert,
			req.Measurement,
			string(tags),
			req.Time.UTC(),
			value,
			req.Value.Raw,
		); err != nil {
			return fmt.Errorf("timescale: insert point %d (%s): %w", i, req.Measurement, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("timescale: commit: %w", err)
	}
	return nil
}

// Close closes the underlying database handle
func (w *Writer) Close() error {
	return w.db.Close()
}
