package ingest

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/nicktill/munin2tinyobs/pkg/config"
	"github.com/nicktill/munin2tinyobs/pkg/httpx"
	"github.com/nicktill/munin2tinyobs/pkg/rrd"
	"github.com/nicktill/munin2tinyobs/pkg/sdk/metrics"
	"github.com/nicktill/munin2tinyobs/pkg/storage"
)

// MeasurementsResponse lists stored measurement names
type MeasurementsResponse struct {
	Measurements []string `json:"measurements"`
	Count        int      `json:"count"`
}

// RangeQueryResponse returns series for charting
type RangeQueryResponse struct {
	Data []SeriesData `json:"data"`
}

// SeriesData is one series: a measurement with one CF
type SeriesData struct {
	Measurement string            `json:"measurement"`
	Tags        map[string]string `json:"tags,omitempty"`
	Points      []SeriesPoint     `json:"points"`
}

// SeriesPoint is a single data point
type SeriesPoint struct {
	Timestamp int64     `json:"t"` // Unix seconds
	Value     rrd.Value `json:"v"`
}

// HandleMeasurements handles GET /v1/measurements
func (h *Handler) HandleMeasurements(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.RespondErrorString(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), config.QueryTimeout)
	defer cancel()

	// Munin archives reach back years, so list across all stored time
	results, err := h.storage.Query(ctx, storage.QueryRequest{
		Start: time.Unix(0, 0),
		End:   time.Now().Add(24 * time.Hour),
	})
	if err != nil {
		httpx.RespondError(w, http.StatusInternalServerError, fmt.Errorf("query failed: %w", err))
		return
	}

	set := make(map[string]bool)
	for _, p := range results {
		set[p.Measurement] = true
	}

	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)

	httpx.RespondJSON(w, http.StatusOK, MeasurementsResponse{Measurements: names, Count: len(names)})
}

// HandleRangeQuery handles GET /v1/query?measurement=&cf=&start=&end=&maxPoints=
func (h *Handler) HandleRangeQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.RespondErrorString(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	query := r.URL.Query()

	measurement := query.Get("measurement")
	if measurement == "" {
		httpx.RespondErrorString(w, http.StatusBadRequest, "measurement parameter required")
		return
	}
	if len(measurement) > MaxMeasurementNameLength {
		httpx.RespondError(w, http.StatusBadRequest, ErrMeasurementTooLong)
		return
	}

	end := parseTimeParam(query.Get("end"), time.Now())
	start := parseTimeParam(query.Get("start"), end.Add(-config.DefaultQueryWindow))

	if end.Before(start) {
		httpx.RespondErrorString(w, http.StatusBadRequest, "end must be after start")
		return
	}
	if end.Sub(start) > config.MaxQueryWindow {
		httpx.RespondErrorString(w, http.StatusBadRequest, "query window too large")
		return
	}

	maxPoints := config.DefaultMaxPoints
	if mp := query.Get("maxPoints"); mp != "" {
		parsed, err := strconv.Atoi(mp)
		if err != nil {
			httpx.RespondError(w, http.StatusBadRequest, fmt.Errorf("invalid maxPoints: %q is not an integer", mp))
			return
		}
		if parsed <= 0 || parsed > config.MaxPointsLimit {
			httpx.RespondErrorString(w, http.StatusBadRequest, fmt.Sprintf("maxPoints must be between 1 and %d", config.MaxPointsLimit))
			return
		}
		maxPoints = parsed
	}

	req := storage.QueryRequest{
		Start:        start,
		End:          end,
		Measurements: []string{measurement},
	}
	if cf := query.Get("cf"); cf != "" {
		req.Tags = map[string]string{metrics.TagCF: cf}
	}

	ctx, cancel := context.WithTimeout(r.Context(), config.QueryTimeout)
	defer cancel()

	results, err := h.storage.Query(ctx, req)
	if err != nil {
		httpx.RespondError(w, http.StatusInternalServerError, fmt.Errorf("query failed: %w", err))
		return
	}

	seriesMap := make(map[string]*SeriesData)
	for _, p := range results {
		key := p.SeriesKey()
		series, ok := seriesMap[key]
		if !ok {
			series = &SeriesData{Measurement: p.Measurement, Tags: p.Tags, Points: []SeriesPoint{}}
			seriesMap[key] = series
		}
		series.Points = append(series.Points, SeriesPoint{Timestamp: p.Time.Unix(), Value: p.Value})
	}

	keys := make([]string, 0, len(seriesMap))
	for k := range seriesMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	response := RangeQueryResponse{Data: []SeriesData{}}
	for _, k := range keys {
		series := seriesMap[k]
		sort.Slice(series.Points, func(i, j int) bool {
			return series.Points[i].Timestamp < series.Points[j].Timestamp
		})
		if len(series.Points) > maxPoints {
			series.Points = downsamplePoints(series.Points, maxPoints)
		}
		response.Data = append(response.Data, *series)
	}

	w.Header().Set("Cache-Control", "no-cache")
	httpx.RespondJSON(w, http.StatusOK, response)
}

// downsamplePoints reduces points to at most maxPoints by averaging buckets.
// Unknown and non-finite values are left out of the average; a bucket with no
// finite value keeps its first value.
func downsamplePoints(points []SeriesPoint, maxPoints int) []SeriesPoint {
	if len(points) <= maxPoints {
		return points
	}

	bucketSize := (len(points) + maxPoints - 1) / maxPoints
	downsampled := make([]SeriesPoint, 0, maxPoints)

	for i := 0; i < len(points); i += bucketSize {
		end := min(i+bucketSize, len(points))

		var sum float64
		count := 0
		for j := i; j < end; j++ {
			if points[j].Value.Finite() {
				sum += points[j].Value.Number
				count++
			}
		}

		p := SeriesPoint{Timestamp: points[i].Timestamp, Value: points[i].Value}
		if count > 0 {
			p.Value = rrd.NumberValue(sum / float64(count))
		}
		downsampled = append(downsampled, p)
	}

	return downsampled
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
