package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/nicktill/munin2tinyobs/pkg/config"
	"github.com/nicktill/munin2tinyobs/pkg/ingest"
	"github.com/nicktill/munin2tinyobs/pkg/munin"
	"github.com/nicktill/munin2tinyobs/pkg/rrd"
	"github.com/nicktill/munin2tinyobs/pkg/sdk/transport"
	"github.com/nicktill/munin2tinyobs/pkg/server"
)

func startServer(t *testing.T) *httptest.Server {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Server.DataDir = t.TempDir()

	store, err := server.InitializeStorage(cfg)
	if err != nil {
		t.Fatalf("Failed to open storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	handler := server.SetupRoutes(mux.NewRouter(), server.InitializeHandlers(cfg, store, server.InitializeMonitor(cfg)), cfg.Server.Port)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

// TestE2E_TransportAndQuery imports the load-g fixture locally and ships
// the points to the server through the HTTP transport
func TestE2E_TransportAndQuery(t *testing.T) {
	srv := startServer(t)

	f, err := os.Open("../../pkg/rrd/testdata/load-g.xml")
	if err != nil {
		t.Fatalf("Failed to open fixture: %v", err)
	}
	defer f.Close()

	archive, err := rrd.Parse(f)
	if err != nil {
		t.Fatalf("Failed to parse fixture: %v", err)
	}

	client, err := transport.NewHTTP(srv.URL+"/v1/write", "")
	if err != nil {
		t.Fatalf("Failed to create transport: %v", err)
	}
	defer client.Close()

	id, err := munin.ParseFilename("system/localhost-load-load-g.rrd")
	if err != nil {
		t.Fatalf("Failed to parse identity: %v", err)
	}

	importer := &ingest.Importer{Writer: client, BatchSize: 10}
	res, err := importer.ImportArchive(context.Background(), id, archive)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if res.Points == 0 {
		t.Fatal("Expected points from the fixture")
	}

	resp, err := http.Get(srv.URL + "/v1/measurements")
	if err != nil {
		t.Fatalf("Measurements request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}

	var measurements ingest.MeasurementsResponse
	if err := json.NewDecoder(resp.Body).Decode(&measurements); err != nil {
		t.Fatalf("Failed to decode measurements: %v", err)
	}
	if measurements.Count != 1 || measurements.Measurements[0] != "system.localhost.load.load" {
		t.Errorf("Unexpected measurements: %+v", measurements)
	}
}

// TestE2E_HealthAndShutdownTimeouts guards the write timeout against the archive import budget
func TestE2E_HealthAndShutdownTimeouts(t *testing.T) {
	srv := startServer(t)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(srv.URL + "/v1/health")
	if err != nil {
		t.Fatalf("Health request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected healthy server, got %d", resp.StatusCode)
	}

	if serverWriteTimeout <= config.ArchiveImportTimeout {
		t.Errorf("serverWriteTimeout %v must exceed ArchiveImportTimeout %v", serverWriteTimeout, config.ArchiveImportTimeout)
	}
}
