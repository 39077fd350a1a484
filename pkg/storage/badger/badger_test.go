package badger

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/nicktill/munin2tinyobs/pkg/rrd"
	"github.com/nicktill/munin2tinyobs/pkg/sdk/metrics"
	"github.com/nicktill/munin2tinyobs/pkg/storage"
)

func point(measurement, cf string, ts int64, v rrd.Value) metrics.WriteRequest {
	return metrics.WriteRequest{
		Measurement: measurement,
		Tags:        map[string]string{"rrd_cf": cf, "ds_type": "gauge", "source": "munin"},
		Time:        time.Unix(ts, 0),
		Value:       v,
	}
}

func allTime() storage.QueryRequest {
	return storage.QueryRequest{Start: time.Unix(0, 0), End: time.Unix(1<<40, 0)}
}

func TestBadgerStorage_WriteAndQuery(t *testing.T) {
	store, err := New(Config{InMemory: true})
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	err = store.Write(ctx, []metrics.WriteRequest{
		point("cpu.host1.system.load", "AVERAGE", 1304014720, rrd.NumberValue(0.5)),
		point("cpu.host1.system.load", "AVERAGE", 1304014780, rrd.ParseValue("U")),
		point("cpu.host1.system.load", "MAX", 1304014780, rrd.NumberValue(0.9)),
	})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	results, err := store.Query(ctx, storage.QueryRequest{
		Start: time.Unix(1304014700, 0),
		End:   time.Unix(1304014800, 0),
		Tags:  map[string]string{"rrd_cf": "AVERAGE"},
	})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("Expected 2 AVERAGE points, got %d", len(results))
	}

	var sawUnknown bool
	for _, r := range results {
		if !r.Value.IsNumber && r.Value.Raw == "U" {
			sawUnknown = true
		}
	}
	if !sawUnknown {
		t.Error("Expected the U value to survive storage as raw text")
	}
}

func TestBadgerStorage_IdempotentRewrite(t *testing.T) {
	store, err := New(Config{InMemory: true})
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	batch := []metrics.WriteRequest{
		point("m", "AVERAGE", 100, rrd.NumberValue(1)),
		point("m", "AVERAGE", 200, rrd.NumberValue(2)),
	}

	for i := 0; i < 3; i++ {
		if err := store.Write(ctx, batch); err != nil {
			t.Fatalf("Write %d failed: %v", i, err)
		}
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalPoints != 2 {
		t.Errorf("Expected 2 points after rewrites, got %d", stats.TotalPoints)
	}
}

func TestBadgerStorage_Persistence(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "badger-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	ctx := context.Background()

	// Write to first instance
	{
		store, err := New(Config{Path: tmpDir})
		if err != nil {
			t.Fatalf("Failed to create storage: %v", err)
		}

		if err := store.Write(ctx, []metrics.WriteRequest{point("persistent", "LAST", 1304014720, rrd.NumberValue(123.45))}); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		store.Close()
	}

	// Read from second instance (reopens same directory)
	{
		store, err := New(Config{Path: tmpDir})
		if err != nil {
			t.Fatalf("Failed to reopen storage: %v", err)
		}
		defer store.Close()

		results, err := store.Query(ctx, allTime())
		if err != nil {
			t.Fatalf("Query failed: %v", err)
		}

		if len(results) != 1 {
			t.Fatalf("Expected 1 persisted point, got %d", len(results))
		}
		if results[0].Measurement != "persistent" || results[0].Value.Number != 123.45 {
			t.Errorf("Unexpected point: %+v", results[0])
		}
	}
}

func TestBadgerStorage_Delete(t *testing.T) {
	store, err := New(Config{InMemory: true})
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	store.Write(ctx, []metrics.WriteRequest{
		point("m", "AVERAGE", 100, rrd.NumberValue(1)),
		point("m", "AVERAGE", 200, rrd.NumberValue(2)),
		point("m", "AVERAGE", 300, rrd.NumberValue(3)),
	})

	if err := store.Delete(ctx, time.Unix(250, 0)); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	results, err := store.Query(ctx, allTime())
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("Expected 1 point after delete, got %d", len(results))
	}
}

func TestBadgerStorage_Stats(t *testing.T) {
	store, err := New(Config{InMemory: true})
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	store.Write(ctx, []metrics.WriteRequest{
		point("m", "AVERAGE", 100, rrd.NumberValue(1)),
		point("m", "AVERAGE", 400, rrd.NumberValue(2)),
		point("m", "MIN", 250, rrd.NumberValue(3)),
		point("n", "MIN", 250, rrd.NumberValue(3)),
	})

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}

	if stats.TotalPoints != 4 {
		t.Errorf("Expected 4 points, got %d", stats.TotalPoints)
	}
	if stats.TotalSeries != 3 {
		t.Errorf("Expected 3 series, got %d", stats.TotalSeries)
	}
	if !stats.OldestPoint.Equal(time.Unix(100, 0)) {
		t.Errorf("Expected oldest 100, got %v", stats.OldestPoint)
	}
	if !stats.NewestPoint.Equal(time.Unix(400, 0)) {
		t.Errorf("Expected newest 400, got %v", stats.NewestPoint)
	}
}

func TestBadgerStorage_LargeWrite(t *testing.T) {
	store, err := New(Config{InMemory: true})
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	// A munin daily archive holds 576 rows; write a few sections' worth
	var batch []metrics.WriteRequest
	for i := 0; i < 2000; i++ {
		batch = append(batch, point(fmt.Sprintf("m%d", i%4), "AVERAGE", int64(1304000000+i*300), rrd.NumberValue(float64(i))))
	}

	if err := store.Write(ctx, batch); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	results, err := store.Query(ctx, storage.QueryRequest{
		Start: time.Unix(0, 0),
		End:   time.Unix(1<<40, 0),
		Limit: 500,
	})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 500 {
		t.Errorf("Expected 500 points with limit, got %d", len(results))
	}
}

func TestBadgerStorage_CancelledContext(t *testing.T) {
	store, err := New(Config{InMemory: true})
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := store.Write(ctx, []metrics.WriteRequest{point("m", "LAST", 1, rrd.NumberValue(1))}); err == nil {
		t.Error("Expected write to fail with cancelled context")
	}
	if _, err := store.Query(ctx, allTime()); err == nil {
		t.Error("Expected query to fail with cancelled context")
	}
}

func TestBadgerStorage_QueryByMeasurement(t *testing.T) {
	store, err := New(Config{InMemory: true})
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	store.Write(ctx, []metrics.WriteRequest{
		point("cpu.host1.system.load", "AVERAGE", 100, rrd.NumberValue(1)),
		point("disk.host1.df.root", "AVERAGE", 100, rrd.NumberValue(2)),
		point("disk.host1.df.root", "AVERAGE", 200, rrd.NumberValue(3)),
		point("net.host1.if_eth0.down", "AVERAGE", 100, rrd.NumberValue(4)),
	})

	req := allTime()
	req.Measurements = []string{"disk.host1.df.root"}
	results, err := store.Query(ctx, req)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 disk points, got %d", len(results))
	}
	for _, r := range results {
		if r.Measurement != "disk.host1.df.root" {
			t.Errorf("Unexpected measurement %q", r.Measurement)
		}
	}

	// Limit spans all scanned prefixes
	req.Measurements = []string{"cpu.host1.system.load", "disk.host1.df.root"}
	req.Limit = 2
	results, err = store.Query(ctx, req)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("Expected limit of 2 across measurements, got %d", len(results))
	}
}

func TestNew_Options(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "laptop default", cfg: Config{Path: t.TempDir()}},
		{name: "memory limit", cfg: Config{Path: t.TempDir(), MaxMemoryMB: 48}},
		{name: "in memory", cfg: Config{InMemory: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := New(tt.cfg)
			if err != nil {
				t.Fatalf("New(%+v) failed: %v", tt.cfg, err)
			}
			defer store.Close()

			if err := store.Write(context.Background(), []metrics.WriteRequest{point("m", "AVERAGE", 100, rrd.NumberValue(1))}); err != nil {
				t.Errorf("Write failed: %v", err)
			}
		})
	}
}
