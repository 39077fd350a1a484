// Command server accepts Munin archives and points over HTTP and keeps them
// in a local BadgerDB store.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/nicktill/munin2tinyobs/pkg/config"
	"github.com/nicktill/munin2tinyobs/pkg/server"
)

const (
	serverReadTimeout = 30 * time.Second
	// archive imports may run for config.ArchiveImportTimeout
	serverWriteTimeout = config.ArchiveImportTimeout + 30*time.Second
	shutdownTimeout    = 30 * time.Second
	tasksStopTimeout   = 5 * time.Second
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	log.Println("🚀 Starting munin2tinyobs server...")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}
	log.Printf("⚙️  Configuration: storage limit = %d GB, memory limit = %d MB", cfg.Server.MaxStorageGB, cfg.Server.MaxMemoryMB)

	store, err := server.InitializeStorage(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to initialize storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("⚠️  Failed to close storage: %v", err)
		}
	}()

	storageMonitor := server.InitializeMonitor(cfg)
	handlers := server.InitializeHandlers(cfg, store, storageMonitor)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		handlers.Hub.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		server.RunBadgerGC(ctx, store, config.BadgerGCInterval, config.BadgerGCDiscardRatio)
	}()
	go func() {
		defer wg.Done()
		server.RunStorageWatch(ctx, storageMonitor, config.StorageCheckInterval)
	}()
	log.Println("📡 Progress hub, GC and storage watch started")

	handler := server.SetupRoutes(mux.NewRouter(), handlers, cfg.Server.Port)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
	}

	go func() {
		log.Printf("🌐 Server listening on http://localhost:%s", cfg.Server.Port)
		log.Println("📡 API endpoints:")
		log.Println("   POST /v1/archives      - Import an rrdtool dump")
		log.Println("   POST /v1/write         - Write points (HTTP transport)")
		log.Println("   POST /v1/rra/export    - Export one RRA section as CSV")
		log.Println("   GET  /v1/query         - Range queries")
		log.Println("   GET  /v1/export        - Backup as JSON or CSV")
		log.Println("   GET  /metrics          - Prometheus endpoint")
		log.Println("✅ Server ready to accept requests")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("❌ Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutdown signal received...")

	// cancel before wg.Wait, the background loops only exit on ctx
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	log.Println("🔄 Gracefully shutting down server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️  Server shutdown warning: %v", err)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Println("✅ All background tasks stopped cleanly")
	case <-time.After(tasksStopTimeout):
		log.Println("⚠️  Some background tasks did not stop in time (forcing exit)")
	}

	log.Println("👋 munin2tinyobs server exited cleanly")
}
