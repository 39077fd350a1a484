package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/nicktill/munin2tinyobs/pkg/config"
	"github.com/nicktill/munin2tinyobs/pkg/httpx"
	"github.com/nicktill/munin2tinyobs/pkg/munin"
	"github.com/nicktill/munin2tinyobs/pkg/rrd"
	"github.com/nicktill/munin2tinyobs/pkg/sdk/transport"
	"github.com/nicktill/munin2tinyobs/pkg/storage"
)

// HandlerConfig holds the optional collaborators of a Handler
type HandlerConfig struct {
	// BatchSize for archive imports (0 = batch.DefaultMaxBatchSize)
	BatchSize int

	// Recorder observes imports, may be nil
	Recorder Recorder

	// Hub receives progress events, may be nil
	Hub *ProgressHub

	// Storage refuses writes once the data directory is full, may be nil
	Storage StorageChecker
}

// StorageChecker reports disk usage of the store
type StorageChecker interface {
	GetUsage() (int64, error)
	GetLimit() int64
}

// ErrStorageFull is returned once usage reaches the configured limit
var ErrStorageFull = errors.New("storage limit reached")

// Handler serves the write, archive import and read endpoints
type Handler struct {
	storage     storage.Storage
	importer    *Importer
	hub         *ProgressHub
	cardinality *CardinalityTracker
	inventory   *Inventory
	checker     StorageChecker
}

// NewHandler creates a new ingest handler backed by store
func NewHandler(store storage.Storage, cfg HandlerConfig) *Handler {
	return &Handler{
		storage: store,
		importer: &Importer{
			Writer:    store,
			BatchSize: cfg.BatchSize,
			Recorder:  cfg.Recorder,
		},
		hub:         cfg.Hub,
		cardinality: NewCardinalityTracker(),
		inventory:   NewInventory(),
		checker:     cfg.Storage,
	}
}

// checkStorage fails when the store is at or over its disk limit.
// A usage that cannot be measured does not block writes.
func (h *Handler) checkStorage() error {
	if h.checker == nil || h.checker.GetLimit() <= 0 {
		return nil
	}
	used, err := h.checker.GetUsage()
	if err != nil {
		log.Printf("⚠️  Failed to check storage usage: %v", err)
		return nil
	}
	if used >= h.checker.GetLimit() {
		return fmt.Errorf("%w: %d of %d bytes used", ErrStorageFull, used, h.checker.GetLimit())
	}
	return nil
}

// WriteResponse is returned by HandleWrite
type WriteResponse struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// HandleWrite handles POST /v1/write, the endpoint of the HTTP transport
func (h *Handler) HandleWrite(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.RespondErrorString(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if err := h.checkStorage(); err != nil {
		httpx.RespondError(w, http.StatusInsufficientStorage, err)
		return
	}

	var req transport.WritePayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.RespondError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}

	if len(req.Requests) > MaxRequestsPerWrite {
		httpx.RespondError(w, http.StatusBadRequest, fmt.Errorf("%w: got %d", ErrTooManyRequests, len(req.Requests)))
		return
	}

	for i, wr := range req.Requests {
		if err := ValidateWriteRequest(wr); err != nil {
			httpx.RespondError(w, http.StatusBadRequest, fmt.Errorf("invalid write request %d: %w", i, err))
			return
		}
	}
	if err := h.cardinality.CheckBatch(req.Requests); err != nil {
		httpx.RespondError(w, http.StatusTooManyRequests, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), config.WriteTimeout)
	defer cancel()

	if err := h.storage.Write(ctx, req.Requests); err != nil {
		log.Printf("❌ Failed to store %d write requests: %v", len(req.Requests), err)
		httpx.RespondError(w, http.StatusInternalServerError, fmt.Errorf("failed to store points: %w", err))
		return
	}

	h.cardinality.RecordBatch(req.Requests)

	if h.hub != nil && len(req.Requests) > 0 {
		h.hub.Publish(ProgressEvent{
			Type:        EventPointsWritten,
			Measurement: req.Requests[0].Measurement,
			Points:      len(req.Requests),
		})
	}

	httpx.RespondJSON(w, http.StatusOK, WriteResponse{Status: "success", Count: len(req.Requests)})
}

// HandleArchive handles POST /v1/archives?path=<group>/<node>-<service>-<field>-<t>.rrd.
// The body is the `rrdtool dump` XML of that file; path only supplies the identity.
func (h *Handler) HandleArchive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.RespondErrorString(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if err := h.checkStorage(); err != nil {
		httpx.RespondError(w, http.StatusInsufficientStorage, err)
		return
	}

	path := r.URL.Query().Get("path")
	id, err := munin.ParseFilename(path)
	if err != nil {
		h.importer.failed(err)
		h.archiveFailed(path, err)
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}

	body := http.MaxBytesReader(w, r.Body, MaxArchiveBytes)
	archive, err := rrd.Parse(body)
	if err != nil {
		h.importer.failed(err)
		h.archiveFailed(path, err)
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), config.ArchiveImportTimeout)
	defer cancel()

	res, err := h.importer.ImportArchive(ctx, id, archive)
	if err != nil {
		h.archiveFailed(path, err)
		status := http.StatusInternalServerError
		if errors.Is(err, rrd.ErrMalformedArchive) {
			status = http.StatusUnprocessableEntity
		}
		log.Printf("❌ Import of %s failed after %d points: %v", path, res.Points, err)
		httpx.RespondError(w, status, err)
		return
	}
	res.Path = path

	h.inventory.Add(res)
	log.Printf("📥 Imported %s: %d points in %d batches", id.Measurement(), res.Points, res.Batches)

	if h.hub != nil {
		h.hub.Publish(ProgressEvent{
			Type:        EventArchiveImported,
			Path:        path,
			Measurement: id.Measurement(),
			Points:      res.Points,
			PointsByCF:  res.PointsByCF,
			Batches:     res.Batches,
		})
	}

	httpx.RespondJSON(w, http.StatusOK, res)
}

func (h *Handler) archiveFailed(path string, err error) {
	if h.hub == nil {
		return
	}
	h.hub.Publish(ProgressEvent{
		Type:  EventArchiveFailed,
		Path:  path,
		Error: err.Error(),
	})
}

// StatsResponse is returned by HandleStats
type StatsResponse struct {
	Storage     *storage.Stats   `json:"storage"`
	Cardinality CardinalityStats `json:"cardinality"`
	Files       int              `json:"files_imported"`
}

// HandleStats handles GET /v1/stats
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), config.StatsTimeout)
	defer cancel()

	stats, err := h.storage.Stats(ctx)
	if err != nil {
		httpx.RespondError(w, http.StatusInternalServerError, fmt.Errorf("failed to get stats: %w", err))
		return
	}

	httpx.RespondJSON(w, http.StatusOK, StatsResponse{
		Storage:     stats,
		Cardinality: h.cardinality.Stats(),
		Files:       h.inventory.Files(),
	})
}
