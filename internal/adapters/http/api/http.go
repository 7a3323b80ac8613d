// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/favedex/favedex/internal/domain/model"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// SyncAll reconciles a batch of owner snapshots and recomputes ranking.
	SyncAll(ctx context.Context, owners map[string][]model.FavoritePair) (model.SyncReport, error)

	// ForceClearStorage irreversibly truncates all stored state.
	ForceClearStorage(ctx context.Context) (model.SyncReport, error)

	// RebuildRanking rebuilds the ranking table from the event store.
	RebuildRanking(ctx context.Context) (model.SyncReport, error)

	// Read operations expose ranking data.
	TopN(ctx context.Context, limit int) ([]model.RankingEntry, error)
	Entry(ctx context.Context, pokemonID int) (model.RankingEntry, error)
	Stats(ctx context.Context) (model.RankingStats, error)

	// MaxRankingLimit caps GET /ranking?limit.
	MaxRankingLimit() int
}

// StatsProvider exposes operational service statistics.
type StatsProvider interface {
	GetStats() map[string]any
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	syncHandler    *SyncHandler
	adminHandler   *AdminHandler
	rankingHandler *RankingHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		healthHandler:  NewHealthHandler(),
		statsHandler:   NewStatsHandler(statsProvider),
		syncHandler:    NewSyncHandler(deps),
		adminHandler:   NewAdminHandler(deps),
		rankingHandler: NewRankingHandler(deps),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Register attaches all HTTP routes to mux, most specific path first.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/sync", MetricsMiddleware(s.syncHandler.HandlePostSync, "sync"))
	mux.HandleFunc("/force-clear-storage", MetricsMiddleware(s.adminHandler.HandleForceClear, "force_clear"))
	mux.HandleFunc("/ranking/rebuild", MetricsMiddleware(s.adminHandler.HandleRebuild, "rebuild"))
	mux.HandleFunc("/ranking/stats", MetricsMiddleware(s.rankingHandler.HandleGetStats, "ranking_stats"))
	mux.HandleFunc("/ranking/", MetricsMiddleware(s.rankingHandler.HandleGetEntry, "ranking_entry"))
	mux.HandleFunc("/ranking", MetricsMiddleware(s.rankingHandler.HandleGetRanking, "ranking"))
}

// syncRequest mirrors the OpenAPI schema for POST /sync: each owner reports
// its complete current favorite set, not a delta.
type syncRequest struct {
	Owners map[string][]model.FavoritePair `json:"owners"`
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
