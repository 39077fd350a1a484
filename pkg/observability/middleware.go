package observability

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/gorilla/mux"
)

var (
	numericSegment = regexp.MustCompile(`/\d+`)
	uuidSegment    = regexp.MustCompile(`/[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
)

// Middleware tracks http_requests_total and http_request_duration_seconds.
// Installed with router.Use, the path label is the matched route template.
//
// Usage:
//
//	rec := observability.New()
//	router := mux.NewRouter()
//	router.Use(rec.Middleware)
func (r *Recorder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()

		// Wrap ResponseWriter to capture status code
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, req)

		path := routePath(req)
		status := strconv.Itoa(rw.statusCode)
		r.requestsTotal.WithLabelValues(req.Method, path, status).Inc()
		r.requestDuration.WithLabelValues(req.Method, path, status).Observe(time.Since(start).Seconds())
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrade on /v1/ws pass through the wrapper
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer %T does not support hijacking", rw.ResponseWriter)
	}
	return h.Hijack()
}

func routePath(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return normalizePath(r.URL.Path)
}

// normalizePath normalizes paths to avoid cardinality explosion.
// Examples:
//   - /v1/archives/123 → /v1/archives/{id}
//   - /api/users/abc-123-def → /api/users/{id}
func normalizePath(path string) string {
	path = numericSegment.ReplaceAllString(path, "/{id}")
	return uuidSegment.ReplaceAllString(path, "/{id}")
}
