/*
Package storage defines the store clients imported points are written to.

# Writer and Storage

Every backend accepts batches of metrics.WriteRequest through Writer:

	type Writer interface {
	    Write(ctx context.Context, requests []metrics.WriteRequest) error
	    Close() error
	}

Backends that can be read back (memory, badger) implement Storage, which adds
Query, Delete and Stats. The server keeps its points in badger so they can be
exported again; the CLI usually writes straight to InfluxDB.

Backends:
  - influx: InfluxDB 1.x over HTTP, second precision
  - badger: BadgerDB (LSM tree + Snappy compression), local and persistent
  - memory: in-memory, for tests
  - timescale: PostgreSQL/TimescaleDB through database/sql and pgx
  - parquet: a single Parquet file, written on Close
  - transport (pkg/sdk/transport): JSON over HTTP to a /v1/write endpoint

# Idempotency

Rewriting a file must not duplicate points. badger keys on series plus second,
timescale inserts with ON CONFLICT DO NOTHING, and InfluxDB overwrites points
with identical series and time.

# Usage Example

	store, err := badger.New(badger.Config{Path: "./data"})
	if err != nil {
	    log.Fatal(err)
	}
	defer store.Close()

	results, err := store.Query(ctx, storage.QueryRequest{
	    Start:        time.Unix(1304014500, 0),
	    End:          time.Unix(1304015100, 0),
	    Measurements: []string{"cpu.host1.system.load"},
	    Tags:         map[string]string{"rrd_cf": "AVERAGE"},
	})
*/
package storage
