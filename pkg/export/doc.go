// Package export provides the tabular RRA export and backup/restore of stored points.
//
// # RRA export
//
// ExportRRA writes one archive section of a decoded dump as CSV. The header
// row holds the data source names, each following record the trimmed values
// of one row:
//
//	42
//	5.0000000000e-01
//	U
//
// HTTP: POST /v1/rra/export?index=N with the XML dump as body.
//
//	rrdtool dump load-g.rrd | curl --data-binary @- "http://localhost:8080/v1/rra/export?index=0"
//
// # Backup and restore
//
// Export endpoint: GET /v1/export
// Query parameters:
//   - format: "json" or "csv" (default: json)
//   - start, end: RFC3339 or Unix seconds (default: the last 24 hours)
//   - measurement: e.g. "cpu.host1.system.load" (optional)
//   - cf: consolidation function (optional)
//
// Import endpoint: POST /v1/import (Content-Type: application/json), taking
// the JSON produced by a json export. CSV exports cannot be re-imported.
//
// The JSON backup format:
//
//	{
//	  "metadata": {
//	    "exported_at": "2026-10-16T03:00:00Z",
//	    "start_time": "2011-04-27T18:18:40Z",
//	    "end_time": "2011-04-28T18:18:40Z",
//	    "point_count": 1,
//	    "format": "json",
//	    "version": "1.0"
//	  },
//	  "points": [
//	    {
//	      "measurement": "cpu.host1.system.load",
//	      "tags": {"ds_type": "gauge", "rrd_cf": "AVERAGE", "source": "munin"},
//	      "time": "2011-04-28T18:18:40Z",
//	      "value": 0.5
//	    }
//	  ]
//	}
//
// Unknown values such as "U" are kept as JSON strings.
//
// # Error Handling
//
// Import validates each point against the ingest write limits and skips
// invalid ones, reporting them in ImportResult.Errors. Points are written
// through a batch.Batcher of MaxImportBatchSize; a store failure aborts the
// import with batch.ErrStoreWriteFailure.
package export
