// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/favedex/favedex/internal/adapters/repository"
	"github.com/favedex/favedex/internal/domain/model"
)

// RankingDependencies defines the interface for ranking reads.
type RankingDependencies interface {
	TopN(ctx context.Context, limit int) ([]model.RankingEntry, error)
	Entry(ctx context.Context, pokemonID int) (model.RankingEntry, error)
	Stats(ctx context.Context) (model.RankingStats, error)
	MaxRankingLimit() int
}

// RankingHandler handles ranking queries.
type RankingHandler struct {
	deps RankingDependencies
}

// NewRankingHandler creates a new ranking handler.
func NewRankingHandler(deps RankingDependencies) *RankingHandler {
	return &RankingHandler{deps: deps}
}

// HandleGetRanking handles GET /ranking?limit=N requests.
func (h *RankingHandler) HandleGetRanking(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	limit := h.deps.MaxRankingLimit()
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
			return
		}
		if n > h.deps.MaxRankingLimit() {
			writeError(w, http.StatusBadRequest, "limit_exceeded", ErrBadRequest)
			return
		}
		limit = n
	}

	entries, err := h.deps.TopN(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	if entries == nil {
		entries = []model.RankingEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleGetEntry handles GET /ranking/{pokemon_id} requests.
func (h *RankingHandler) HandleGetEntry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/ranking/")
	id, err := strconv.Atoi(path)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}

	entry, err := h.deps.Entry(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// HandleGetStats handles GET /ranking/stats requests.
func (h *RankingHandler) HandleGetStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	stats, err := h.deps.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
