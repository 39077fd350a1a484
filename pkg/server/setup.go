package server

import (
	"fmt"
	"log"
	"os"

	"github.com/nicktill/munin2tinyobs/pkg/config"
	"github.com/nicktill/munin2tinyobs/pkg/export"
	"github.com/nicktill/munin2tinyobs/pkg/ingest"
	"github.com/nicktill/munin2tinyobs/pkg/observability"
	"github.com/nicktill/munin2tinyobs/pkg/server/monitor"
	"github.com/nicktill/munin2tinyobs/pkg/storage/badger"
)

const bytesPerGB = 1024 * 1024 * 1024

// Handlers groups everything SetupRoutes mounts
type Handlers struct {
	Ingest   *ingest.Handler
	Export   *export.Handler
	Hub      *ingest.ProgressHub
	Recorder *observability.Recorder
	Monitor  *monitor.StorageMonitor
}

// InitializeStorage opens the BadgerDB store under cfg.Server.DataDir
func InitializeStorage(cfg *config.Config) (*badger.Storage, error) {
	if err := os.MkdirAll(cfg.Server.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	log.Printf("💾 Opening BadgerDB at %s (%d MB memory budget)", cfg.Server.DataDir, cfg.Server.MaxMemoryMB)
	store, err := badger.New(badger.Config{
		Path:        cfg.Server.DataDir,
		MaxMemoryMB: cfg.Server.MaxMemoryMB,
	})
	if err != nil {
		return nil, err
	}
	log.Println("✅ BadgerDB storage ready")
	return store, nil
}

// InitializeMonitor creates the disk usage monitor for the data directory
func InitializeMonitor(cfg *config.Config) *monitor.StorageMonitor {
	limit := cfg.Server.MaxStorageGB * bytesPerGB
	if limit > 0 {
		log.Printf("📏 Storage limit: %d GB", cfg.Server.MaxStorageGB)
	} else {
		log.Println("📏 Storage limit disabled")
	}
	return monitor.NewStorageMonitor(cfg.Server.DataDir, limit)
}

// InitializeHandlers wires the ingest and export handlers to store
func InitializeHandlers(cfg *config.Config, store *badger.Storage, storageMonitor *monitor.StorageMonitor) *Handlers {
	recorder := observability.New()
	hub := ingest.NewProgressHub()

	ingestHandler := ingest.NewHandler(store, ingest.HandlerConfig{
		BatchSize: cfg.Import.BatchSize,
		Recorder:  recorder,
		Hub:       hub,
		Storage:   storageMonitor,
	})
	log.Printf("📥 Ingest handler ready (batch size %d)", cfg.Import.BatchSize)

	exportHandler := export.NewHandler(store)
	log.Println("📦 Export handler ready (RRA CSV, JSON and CSV backups)")

	return &Handlers{
		Ingest:   ingestHandler,
		Export:   exportHandler,
		Hub:      hub,
		Recorder: recorder,
		Monitor:  storageMonitor,
	}
}
