// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/favedex/favedex/internal/domain/model"
)

// SyncDependencies defines the interface for snapshot synchronization.
type SyncDependencies interface {
	SyncAll(ctx context.Context, owners map[string][]model.FavoritePair) (model.SyncReport, error)
}

// SyncHandler handles snapshot sync requests.
type SyncHandler struct {
	deps SyncDependencies
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(deps SyncDependencies) *SyncHandler {
	return &SyncHandler{deps: deps}
}

// HandlePostSync handles POST /sync requests.
//
// The batch always answers 200 with per-owner failure counts embedded in the
// report; only a malformed request or a store-wide failure is non-2xx.
func (h *SyncHandler) HandlePostSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if req.Owners == nil {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}

	report, err := h.deps.SyncAll(r.Context(), req.Owners)
	if err != nil {
		if errors.Is(err, model.ErrValidation) {
			writeError(w, http.StatusBadRequest, "invalid_snapshot", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
