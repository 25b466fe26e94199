package api

import (
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/okian/diamond/pkg/metrics"
)

// Endpoint labels. Path parameters never become label values, so a lookup
// per player does not grow the label set.
const (
	endpointHealth        = "healthz"
	endpointStats         = "stats"
	endpointRatingsPlayer = "ratings_player"
	endpointRatingsLeague = "ratings_league"
)

// EndpointLabel names the endpoint a request is counted under.
type EndpointLabel func(r *http.Request) string

// FixedEndpoint counts every request under name.
func FixedEndpoint(name string) EndpointLabel {
	return func(*http.Request) string { return name }
}

// RatingsEndpoint counts league-average lookups apart from player lookups.
func RatingsEndpoint(r *http.Request) string {
	if path.Base(r.URL.Path) == LeagueSegment {
		return endpointRatingsLeague
	}
	return endpointRatingsPlayer
}

// MetricsMiddleware wraps HTTP handlers to record Prometheus metrics.
func MetricsMiddleware(next http.HandlerFunc, label EndpointLabel) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		endpoint := label(r)
		durationMs := float64(time.Since(start).Milliseconds())
		status := strconv.Itoa(wrapped.statusCode)
		metrics.RecordHTTPRequest(endpoint, r.Method, status)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, status, durationMs)

		if wrapped.statusCode >= http.StatusBadRequest {
			metrics.RecordErrorByComponent("http", errorType(endpoint, wrapped.statusCode))
		}
	}
}

// errorType classifies a failed response. Rating lookups fail for their own
// reasons: a malformed key, a participant never rated, or the store.
func errorType(endpoint string, status int) string {
	ratings := strings.HasPrefix(endpoint, "ratings")
	switch {
	case status >= http.StatusInternalServerError && ratings:
		return "store_error"
	case status >= http.StatusInternalServerError:
		return "server_error"
	case status == http.StatusNotFound && ratings:
		return "no_ratings"
	case status == http.StatusNotFound:
		return "not_found"
	case status == http.StatusBadRequest && ratings:
		return "invalid_key"
	case status >= http.StatusBadRequest:
		return "client_error"
	default:
		return "unknown"
	}
}

// responseWriter captures the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
