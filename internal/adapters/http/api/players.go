package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/pointercrate/demonlist/internal/domain/model"
)

// PlayerDependencies defines the ranking and moderation operations.
type PlayerDependencies interface {
	Ranking(ctx context.Context, limit int) ([]model.RankedPlayer, error)
	SetBanned(ctx context.Context, playerID int64, banned bool) (model.Player, error)
}

// PlayersHandler handles player requests.
type PlayersHandler struct {
	deps     PlayerDependencies
	maxLimit int
}

// NewPlayersHandler creates a new players handler.
func NewPlayersHandler(deps PlayerDependencies, maxLimit int) *PlayersHandler {
	return &PlayersHandler{
		deps:     deps,
		maxLimit: maxLimit,
	}
}

type banRequest struct {
	Banned *bool `json:"banned" validate:"required"`
}

// HandleRanking handles GET /api/v1/players/ranking?limit=N requests.
// A missing limit returns the maximum page.
func (h *PlayersHandler) HandleRanking(w http.ResponseWriter, r *http.Request) {
	n := h.maxLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		var err error
		n, err = strconv.Atoi(limitStr)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
			return
		}
	}
	if n > h.maxLimit {
		writeError(w, http.StatusBadRequest, "limit_exceeded", ErrBadRequest)
		return
	}
	ranked, err := h.deps.Ranking(r.Context(), n)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ranked)
}

// HandlePatchPlayer handles PATCH /api/v1/players/{id}.
func (h *PlayersHandler) HandlePatchPlayer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req banRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	p, err := h.deps.SetBanned(r.Context(), id, *req.Banned)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
