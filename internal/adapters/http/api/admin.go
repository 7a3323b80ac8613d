// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/favedex/favedex/internal/domain/model"
)

// adminTokenHeader carries the shared secret for destructive operations.
const adminTokenHeader = "X-Admin-Token"

// AdminDependencies defines the interface for destructive operations.
type AdminDependencies interface {
	ForceClearStorage(ctx context.Context) (model.SyncReport, error)
	RebuildRanking(ctx context.Context) (model.SyncReport, error)
}

// AdminHandler handles explicitly gated destructive requests.
type AdminHandler struct {
	deps  AdminDependencies
	token string
}

// NewAdminHandler creates a new admin handler. Destructive routes stay
// disabled until a token is configured.
func NewAdminHandler(deps AdminDependencies) *AdminHandler {
	return &AdminHandler{deps: deps}
}

// authorize rejects requests without the configured admin token.
func (h *AdminHandler) authorize(w http.ResponseWriter, r *http.Request) bool {
	if h.token == "" {
		writeError(w, http.StatusForbidden, "disabled", ErrForbidden)
		return false
	}
	got := r.Header.Get(adminTokenHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) != 1 {
		writeError(w, http.StatusForbidden, "forbidden", ErrForbidden)
		return false
	}
	return true
}

// HandleForceClear handles POST /force-clear-storage requests. Truncates
// all favorite history and the ranking table; irreversible.
func (h *AdminHandler) HandleForceClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if !h.authorize(w, r) {
		return
	}

	report, err := h.deps.ForceClearStorage(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleRebuild handles POST /ranking/rebuild requests: the explicit repair
// path that rebuilds the ranking table from the event store.
func (h *AdminHandler) HandleRebuild(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	if !h.authorize(w, r) {
		return
	}

	report, err := h.deps.RebuildRanking(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
