package export

import (
	"errors"
	"fmt"
	"log"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nicktill/munin2tinyobs/pkg/config"
	"github.com/nicktill/munin2tinyobs/pkg/httpx"
	"github.com/nicktill/munin2tinyobs/pkg/ingest"
	"github.com/nicktill/munin2tinyobs/pkg/rrd"
	"github.com/nicktill/munin2tinyobs/pkg/sdk/batch"
	"github.com/nicktill/munin2tinyobs/pkg/sdk/metrics"
	"github.com/nicktill/munin2tinyobs/pkg/storage"
)

const maxLoggedImportErrors = 10

// Handler handles export/import HTTP endpoints
type Handler struct {
	exporter *Exporter
	importer *Importer
}

// NewHandler creates a new export/import handler
func NewHandler(store storage.Storage) *Handler {
	return &Handler{
		exporter: NewExporter(store),
		importer: NewImporter(store),
	}
}

// exportFormats maps the format parameter to its content type
var exportFormats = map[string]string{
	"json": "application/json",
	"csv":  "text/csv",
}

// parseExportOptions reads format, time range and filters from the query string
func parseExportOptions(query url.Values, now time.Time) (ExportOptions, error) {
	format := query.Get("format")
	if format == "" {
		format = "json"
	}
	if _, ok := exportFormats[format]; !ok {
		return ExportOptions{}, fmt.Errorf("invalid format %q, must be json or csv", format)
	}

	end := parseTimeParam(query.Get("end"), now)
	start := parseTimeParam(query.Get("start"), end.Add(-config.DefaultExportWindow))
	if !start.Before(end) {
		return ExportOptions{}, errors.New("start must be before end")
	}
	if end.Sub(start) > config.MaxExportWindow {
		return ExportOptions{}, fmt.Errorf("time range too large, maximum is %v", config.MaxExportWindow)
	}

	opts := ExportOptions{Start: start, End: end, Format: format}
	if measurement := query.Get("measurement"); measurement != "" {
		opts.Measurements = []string{measurement}
	}
	if cf := query.Get("cf"); cf != "" {
		opts.Tags = map[string]string{metrics.TagCF: strings.ToUpper(cf)}
	}
	return opts, nil
}

// HandleExport handles GET /v1/export
// Query params:
//   - format: "json" or "csv" (default: json)
//   - start: RFC3339 timestamp or Unix seconds (default: 24h before end)
//   - end: RFC3339 timestamp or Unix seconds (default: now)
//   - measurement: measurement filter (optional)
//   - cf: consolidation function filter (optional)
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.RespondErrorString(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	opts, err := parseExportOptions(r.URL.Query(), time.Now())
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}

	// Headers go out with the first streamed row, so a failure after this
	// point can only be logged
	filename := fmt.Sprintf("munin2tinyobs-export-%s.%s", time.Now().Format("20060102-150405"), opts.Format)
	httpx.SetAttachment(w, exportFormats[opts.Format], filename)

	export := h.exporter.ExportToJSON
	if opts.Format == "csv" {
		export = h.exporter.ExportToCSV
	}
	result, err := export(r.Context(), w, opts)
	if err != nil {
		log.Printf("❌ Export failed: %v", err)
		http.Error(w, fmt.Sprintf("Export failed: %v", err), http.StatusInternalServerError)
		return
	}

	log.Printf("✅ Exported %d points (%s) from %s", result.PointsExported, opts.Format, result.TimeRange)
}

// HandleImport handles POST /v1/import
// Accepts JSON backups produced by HandleExport
func (h *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.RespondErrorString(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mediaType != "application/json" {
		httpx.RespondErrorString(w, http.StatusBadRequest, "Content-Type must be application/json")
		return
	}

	result, err := h.importer.ImportFromJSON(r.Context(), r.Body)
	if err != nil {
		log.Printf("❌ Import failed: %v", err)
		status := http.StatusBadRequest
		if errors.Is(err, batch.ErrStoreWriteFailure) {
			status = http.StatusInternalServerError
		}
		httpx.RespondError(w, status, fmt.Errorf("import failed: %w", err))
		return
	}

	if n := len(result.Errors); n > 0 {
		log.Printf("⚠️  Import completed with %d validation errors", n)
		for _, msg := range result.Errors[:min(n, maxLoggedImportErrors)] {
			log.Printf("   - %s", msg)
		}
		if n > maxLoggedImportErrors {
			log.Printf("   ... and %d more errors", n-maxLoggedImportErrors)
		}
	}

	log.Printf("✅ Imported %d points in %d batches from %s", result.PointsImported, result.BatchesWritten, result.TimeRange)
	httpx.RespondJSON(w, http.StatusOK, result)
}

// HandleRRAExport handles POST /v1/rra/export?index=N
// The body is an rrdtool XML dump; the response is the section as CSV.
func (h *Handler) HandleRRAExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.RespondErrorString(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	index, err := strconv.Atoi(r.URL.Query().Get("index"))
	if err != nil {
		httpx.RespondErrorString(w, http.StatusBadRequest, "index must be an integer")
		return
	}

	archive, err := rrd.Parse(http.MaxBytesReader(w, r.Body, ingest.MaxArchiveBytes))
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, err)
		return
	}

	// Validate before streaming so errors still get a JSON status
	if index < 0 || index >= len(archive.RRAs) {
		httpx.RespondError(w, http.StatusNotFound, fmt.Errorf("%w: %d (archive has %d sections)", ErrRRAIndex, index, len(archive.RRAs)))
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	if err := ExportRRA(w, archive, index); err != nil {
		log.Printf("❌ RRA export failed: %v", err)
	}
}

// parseTimeParam accepts RFC3339, a bare datetime, or Unix seconds
func parseTimeParam(param string, defaultTime time.Time) time.Time {
	if param == "" {
		return defaultTime
	}

	if t, err := time.Parse(time.RFC3339, param); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02T15:04:05", param); err == nil {
		return t
	}
	if ts, err := strconv.ParseInt(param, 10, 64); err == nil {
		return time.Unix(ts, 0)
	}

	return defaultTime
}
