package ingest

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nicktill/munin2tinyobs/pkg/config"
	"github.com/nicktill/munin2tinyobs/pkg/sdk/metrics"
	"github.com/nicktill/munin2tinyobs/pkg/storage"
)

// HandlePrometheusExport exposes the newest stored point of every series in
// Prometheus text format, so imported Munin data can be scraped or federated.
// Unknown values are skipped.
//
// Format: https://prometheus.io/docs/instrumenting/exposition_formats/
func (h *Handler) HandlePrometheusExport(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), config.StatsTimeout)
	defer cancel()

	results, err := h.storage.Query(ctx, storage.QueryRequest{
		Start: time.Unix(0, 0),
		End:   time.Now().Add(24 * time.Hour),
	})
	if err != nil {
		http.Error(w, fmt.Sprintf("Query failed: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	grouped := latestByMeasurement(results)

	names := make([]string, 0, len(grouped))
	for name := range grouped {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, measurement := range names {
		name := prometheusName(measurement)
		fmt.Fprintf(w, "# HELP %s Munin %s\n", name, measurement)
		fmt.Fprintf(w, "# TYPE %s gauge\n", name)

		for _, p := range grouped[measurement] {
			// Format: metric_name{label="value"} value timestamp
			fmt.Fprintf(w, "%s%s %s %d\n",
				name,
				formatPrometheusLabels(p.Tags),
				strconv.FormatFloat(p.Value.Number, 'g', -1, 64),
				p.Time.UnixMilli(),
			)
		}

		// Empty line between metric families
		fmt.Fprintf(w, "\n")
	}
}

// latestByMeasurement keeps the newest numeric point of each series,
// grouped by measurement and sorted by series key
func latestByMeasurement(points []metrics.WriteRequest) map[string][]metrics.WriteRequest {
	latest := make(map[string]metrics.WriteRequest)
	for _, p := range points {
		if !p.Value.IsNumber {
			continue
		}
		key := p.SeriesKey()
		if cur, ok := latest[key]; !ok || p.Time.After(cur.Time) {
			latest[key] = p
		}
	}

	keys := make([]string, 0, len(latest))
	for k := range latest {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	grouped := make(map[string][]metrics.WriteRequest)
	for _, k := range keys {
		p := latest[k]
		grouped[p.Measurement] = append(grouped[p.Measurement], p)
	}
	return grouped
}

// prometheusName maps a dotted Munin measurement onto the metric name
// charset [a-zA-Z0-9_:], e.g. "cpu.host1.system.load" -> "munin_cpu_host1_system_load"
func prometheusName(measurement string) string {
	var b strings.Builder
	b.WriteString("munin_")
	for _, r := range measurement {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == ':':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// formatPrometheusLabels formats labels in Prometheus format: {key="value",key2="value2"}
func formatPrometheusLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf(`%s="%s"`, k, escapePrometheusValue(labels[k])))
	}

	return "{" + strings.Join(pairs, ",") + "}"
}

// escapePrometheusValue escapes backslash, double-quote and line feed
func escapePrometheusValue(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return s
}
