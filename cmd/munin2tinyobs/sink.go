package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/nicktill/munin2tinyobs/pkg/config"
	"github.com/nicktill/munin2tinyobs/pkg/sdk/metrics"
	"github.com/nicktill/munin2tinyobs/pkg/sdk/transport"
	"github.com/nicktill/munin2tinyobs/pkg/storage"
	"github.com/nicktill/munin2tinyobs/pkg/storage/badger"
	"github.com/nicktill/munin2tinyobs/pkg/storage/influx"
	"github.com/nicktill/munin2tinyobs/pkg/storage/memory"
	"github.com/nicktill/munin2tinyobs/pkg/storage/parquet"
	"github.com/nicktill/munin2tinyobs/pkg/storage/timescale"
)

// openSink builds the store client named by cfg.Sink
func openSink(cfg *config.Config) (storage.Writer, error) {
	switch cfg.Sink {
	case config.SinkInflux:
		log.Printf("📤 Writing to InfluxDB %s (database %q)", cfg.Influx.Addr, cfg.Influx.Database)
		return influx.New(influx.Config{
			Addr:     cfg.Influx.Addr,
			Database: cfg.Influx.Database,
			Username: cfg.Influx.Username,
			Password: cfg.Influx.Password,
			Timeout:  cfg.Influx.Timeout,
		})
	case config.SinkBadger:
		log.Printf("💾 Writing to BadgerDB at %s", cfg.Badger.Path)
		return badger.New(badger.Config{Path: cfg.Badger.Path, MaxMemoryMB: cfg.Badger.MaxMemoryMB})
	case config.SinkTimescale:
		log.Printf("🐘 Writing to TimescaleDB table %s", cfg.Timescale.Table)
		return timescale.Open(cfg.Timescale.DSN, cfg.Timescale.Table)
	case config.SinkParquet:
		log.Printf("📦 Writing to Parquet file %s (%s)", cfg.Parquet.Path, cfg.Parquet.Compression)
		return parquet.New(parquet.Config{Path: cfg.Parquet.Path, Compression: cfg.Parquet.Compression})
	case config.SinkHTTP:
		log.Printf("🌐 Writing to %s", cfg.HTTP.Endpoint)
		return transport.NewHTTP(cfg.HTTP.Endpoint, cfg.HTTP.APIKey)
	case config.SinkMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown sink %q", cfg.Sink)
	}
}

// lineWriter prints each point as one JSON line. It backs -print.
type lineWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

var _ storage.Writer = (*lineWriter)(nil)

func newLineWriter(w io.Writer) *lineWriter {
	return &lineWriter{enc: json.NewEncoder(w)}
}

func (lw *lineWriter) Write(ctx context.Context, requests []metrics.WriteRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	lw.mu.Lock()
	defer lw.mu.Unlock()
	for _, req := range requests {
		if err := lw.enc.Encode(req); err != nil {
			return err
		}
	}
	return nil
}

func (lw *lineWriter) Close() error { return nil }
