package server

import (
	"log"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/mux"

	"github.com/nicktill/munin2tinyobs/pkg/httpx"
	"github.com/nicktill/munin2tinyobs/pkg/server/monitor"
)

// Version is reported by /v1/health
var Version = "dev"

var startTime = time.Now()

// HealthResponse is the body of GET /v1/health
type HealthResponse struct {
	Status  string         `json:"status"`
	Version string         `json:"version"`
	Uptime  string         `json:"uptime"`
	Storage *monitor.Usage `json:"storage,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// handleHealth reports degraded once the data directory is over its limit,
// since every write will be refused from then on.
func handleHealth(storageMonitor *monitor.StorageMonitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := HealthResponse{
			Status:  "healthy",
			Version: Version,
			Uptime:  time.Since(startTime).Round(time.Second).String(),
		}
		status := http.StatusOK

		usage, err := storageMonitor.Snapshot()
		switch {
		case err != nil:
			response.Error = err.Error()
		case usage.Exceeded:
			response.Status = "degraded"
			status = http.StatusServiceUnavailable
			fallthrough
		default:
			response.Storage = &usage
		}

		httpx.RespondJSON(w, status, response)
	}
}

// handleStorageUsage serves GET /v1/storage
func handleStorageUsage(storageMonitor *monitor.StorageMonitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		usage, err := storageMonitor.Snapshot()
		if err != nil {
			httpx.RespondError(w, http.StatusInternalServerError, err)
			return
		}
		httpx.RespondJSON(w, http.StatusOK, usage)
	}
}

// SetupRoutes mounts every endpoint on router and returns the handler to
// serve. CORS wraps the whole router so preflights, which match no route,
// still get their headers.
func SetupRoutes(router *mux.Router, h *Handlers, port string) http.Handler {
	router.Use(h.Recorder.Middleware)
	router.MethodNotAllowedHandler = http.HandlerFunc(handleMethodNotAllowed)

	api := router.PathPrefix("/v1").Subrouter()
	api.MethodNotAllowedHandler = http.HandlerFunc(handleMethodNotAllowed)

	// Ingestion
	api.HandleFunc("/write", h.Ingest.HandleWrite).Methods(http.MethodPost)
	api.HandleFunc("/archives", h.Ingest.HandleArchive).Methods(http.MethodPost)

	// Reads
	api.HandleFunc("/nodes", h.Ingest.HandleNodes).Methods(http.MethodGet)
	api.HandleFunc("/measurements", h.Ingest.HandleMeasurements).Methods(http.MethodGet)
	api.HandleFunc("/query", h.Ingest.HandleRangeQuery).Methods(http.MethodGet)
	api.HandleFunc("/prometheus", h.Ingest.HandlePrometheusExport).Methods(http.MethodGet)
	api.HandleFunc("/stats", h.Ingest.HandleStats).Methods(http.MethodGet)

	// Export and backup
	api.HandleFunc("/rra/export", h.Export.HandleRRAExport).Methods(http.MethodPost)
	api.HandleFunc("/export", h.Export.HandleExport).Methods(http.MethodGet)
	api.HandleFunc("/import", h.Export.HandleImport).Methods(http.MethodPost)

	// Operations
	api.HandleFunc("/storage", handleStorageUsage(h.Monitor)).Methods(http.MethodGet)
	api.HandleFunc("/health", handleHealth(h.Monitor)).Methods(http.MethodGet)
	api.HandleFunc("/ws", h.Hub.HandleWebSocket).Methods(http.MethodGet)

	router.Handle("/metrics", h.Recorder.Handler()).Methods(http.MethodGet)

	log.Println("🛣️  Routes registered under /v1 and /metrics")
	return corsMiddleware(port)(router)
}

func handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	httpx.RespondErrorString(w, http.StatusMethodNotAllowed, "Method not allowed")
}

// corsMiddleware allows browser clients served from localhost only
func corsMiddleware(port string) mux.MiddlewareFunc {
	allowedOrigins := []string{
		"http://localhost:" + port,
		"http://127.0.0.1:" + port,
		"http://localhost:3000",
		"http://127.0.0.1:3000",
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); slices.Contains(allowedOrigins, origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
