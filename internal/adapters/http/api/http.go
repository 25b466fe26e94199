// Package api serves the read-only inspection endpoints of a running
// evaluation: health, Prometheus metrics, run statistics and single ratings.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/diamond/internal/adapters/repository"
	"github.com/okian/diamond/internal/domain/rating"
)

// Dependencies required by HTTP handlers.
type Dependencies interface {
	StatsProvider
	RatingsReader
}

// RatingsReader looks up stored ratings.
type RatingsReader interface {
	Get(ctx context.Context, key rating.Key) (rating.Snapshot, error)
}

// Server wires HTTP routes for the inspection API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	ratingsHandler *RatingsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(deps),
		ratingsHandler: NewRatingsHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, FixedEndpoint(endpointHealth)))
	mux.Handle("/metrics", s.healthHandler.MetricsHandler())
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, FixedEndpoint(endpointStats)))
	mux.HandleFunc("/ratings/", MetricsMiddleware(s.ratingsHandler.HandleGetRatings, RatingsEndpoint))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
