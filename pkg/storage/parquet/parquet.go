// Package parquet appends points to a columnar Parquet file.
package parquet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/nicktill/munin2tinyobs/pkg/rrd"
	"github.com/nicktill/munin2tinyobs/pkg/sdk/metrics"
	"github.com/nicktill/munin2tinyobs/pkg/storage"
)

// DefaultRowGroupSize is the number of rows buffered before a row group is cut
const DefaultRowGroupSize = 100000

// Row is one point in Parquet form. Value is null when the point is not a finite number.
type Row struct {
	Measurement string            `parquet:"measurement,dict"`
	Tags        map[string]string `parquet:"tags"`
	Timestamp   int64             `parquet:"timestamp_s"`
	Value       *float64          `parquet:"value,optional"`
	Raw         string            `parquet:"raw"`
}

// RowFromWriteRequest converts a write request to a Row
func RowFromWriteRequest(req metrics.WriteRequest) Row {
	row := Row{
		Measurement: req.Measurement,
		Tags:        req.Tags,
		Timestamp:   req.Time.Unix(),
		Raw:         req.Value.Raw,
	}
	if req.Value.Finite() {
		v := req.Value.Number
		row.Value = &v
	}
	return row
}

// WriteRequest converts a Row back. The value is re-parsed from its raw text.
func (r Row) WriteRequest() metrics.WriteRequest {
	value := rrd.ParseValue(r.Raw)
	if r.Value != nil {
		value.Number = *r.Value
		value.IsNumber = true
	}
	return metrics.WriteRequest{
		Measurement: r.Measurement,
		Tags:        r.Tags,
		Time:        time.Unix(r.Timestamp, 0),
		Value:       value,
	}
}

// ParseCompression maps a codec name to its parquet-go codec
func ParseCompression(name string) (compress.Codec, error) {
	switch strings.ToLower(name) {
	case "snappy":
		return &parquet.Snappy, nil
	case "zstd":
		return &parquet.Zstd, nil
	case "gzip":
		return &parquet.Gzip, nil
	case "lz4":
		return &parquet.Lz4Raw, nil
	case "none", "":
		return &parquet.Uncompressed, nil
	default:
		return nil, fmt.Errorf("unknown parquet compression %q", name)
	}
}

// Config configures the Parquet writer
type Config struct {
	Path         string
	Compression  string
	RowGroupSize int64
}

// Writer implements storage.Writer. The file footer is only written on Close,
// so a Writer that is never closed leaves an unreadable file.
type Writer struct {
	mu     sync.Mutex
	file   *os.File
	writer *parquet.GenericWriter[Row]
	rows   int64
	closed bool
}

var _ storage.Writer = (*Writer)(nil)

// New creates (or truncates) the file at cfg.Path
func New(cfg Config) (*Writer, error) {
	if cfg.Path == "" {
		return nil, errors.New("parquet path cannot be empty")
	}
	codec, err := ParseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}
	if cfg.RowGroupSize <= 0 {
		cfg.RowGroupSize = DefaultRowGroupSize
	}

	f, err := os.Create(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("create parquet file: %w", err)
	}

	w := parquet.NewGenericWriter[Row](f,
		parquet.Compression(codec),
		parquet.MaxRowsPerRowGroup(cfg.RowGroupSize),
	)
	return &Writer{file: f, writer: w}, nil
}

// Write appends the requests as rows
func (w *Writer) Write(ctx context.Context, requests []metrics.WriteRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	rows := make([]Row, len(requests))
	for i, req := range requests {
		rows[i] = RowFromWriteRequest(req)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.New("parquet writer is closed")
	}

	n, err := w.writer.Write(rows)
	w.rows += int64(n)
	if err != nil {
		return fmt.Errorf("write parquet rows: %w", err)
	}
	return nil
}

// Rows returns the number of rows written so far
func (w *Writer) Rows() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows
}

// Close flushes buffered rows, writes the footer and closes the file
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return w.file.Close()
}

// ReadFile reads every row of a file written by Writer
func ReadFile(path string) ([]metrics.WriteRequest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	reader := parquet.NewGenericReader[Row](f)
	defer reader.Close()

	rows := make([]Row, reader.NumRows())
	n, err := reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read parquet rows: %w", err)
	}

	out := make([]metrics.WriteRequest, n)
	for i := range rows[:n] {
		out[i] = rows[i].WriteRequest()
	}
	return out, nil
}
