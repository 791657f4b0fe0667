package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	service "github.com/pointercrate/demonlist/internal/app"
	"github.com/pointercrate/demonlist/internal/domain/model"
	"github.com/pointercrate/demonlist/pkg/logger"
	"github.com/pointercrate/demonlist/pkg/metrics"
)

// whenCookie carries the time machine instant chosen in the web UI.
const whenCookie = "when"

// DemonDependencies defines the list and ledger operations.
type DemonDependencies interface {
	ListInformation() service.ListInformation
	Listed(ctx context.Context, at *time.Time) (service.Listing, error)
	Demon(ctx context.Context, id int64) (model.Demon, error)
	Movements(ctx context.Context, id int64) ([]model.Movement, error)
	AddDemon(ctx context.Context, nd model.NewDemon) (model.Demon, error)
	MoveDemon(ctx context.Context, id int64, position int) (model.Demon, error)
	RemoveDemon(ctx context.Context, id int64) (model.Demon, error)
}

// DemonsHandler handles demon requests.
type DemonsHandler struct {
	deps     DemonDependencies
	addLimit *limiter
	logger   logger.Logger
}

// NewDemonsHandler creates a new demons handler.
func NewDemonsHandler(deps DemonDependencies, addLimit *limiter, log logger.Logger) *DemonsHandler {
	return &DemonsHandler{deps: deps, addLimit: addLimit, logger: log}
}

type moveRequest struct {
	Position *int `json:"position" validate:"required"`
}

// HandleListInformation handles GET /api/v1/list_information.
func (h *DemonsHandler) HandleListInformation(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.ListInformation())
}

// HandleListed handles GET /api/v2/demons/listed. The at query parameter
// wins over the when cookie; an unparsable cookie is ignored.
func (h *DemonsHandler) HandleListed(w http.ResponseWriter, r *http.Request) {
	var at *time.Time
	if raw := r.URL.Query().Get("at"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", Wrap(ErrBadRequest, err))
			return
		}
		at = &t
	} else if c, err := r.Cookie(whenCookie); err == nil {
		if t, err := time.Parse(time.RFC3339, c.Value); err == nil {
			at = &t
		}
	}

	listing, err := h.deps.Listed(r.Context(), at)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

// HandleGetDemon handles GET /api/v2/demons/{id}.
func (h *DemonsHandler) HandleGetDemon(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	d, err := h.deps.Demon(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// HandleMovements handles GET /api/v2/demons/{id}/audit/movement.
func (h *DemonsHandler) HandleMovements(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	moves, err := h.deps.Movements(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, moves)
}

// HandlePostDemon handles POST /api/v2/demons.
func (h *DemonsHandler) HandlePostDemon(w http.ResponseWriter, r *http.Request) {
	var req model.NewDemon
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if !h.addLimit.allow() {
		metrics.RecordRateLimited("add_demon")
		h.logger.Debug(r.Context(), "add demon rate limited", logger.String("ip", clientIP(r)))
		writeError(w, http.StatusTooManyRequests, "rate_limited", Wrap(ErrRateLimited, errAddDemonLimited))
		return
	}

	d, err := h.deps.AddDemon(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("Location", "/api/v2/demons/"+strconv.FormatInt(d.ID, 10))
	writeJSON(w, http.StatusCreated, d)
}

// HandlePatchDemon handles PATCH /api/v2/demons/{id}.
func (h *DemonsHandler) HandlePatchDemon(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req moveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	d, err := h.deps.MoveDemon(r.Context(), id, *req.Position)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// HandleDeletePosition handles DELETE /api/v2/demons/{id}/position.
func (h *DemonsHandler) HandleDeletePosition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	d, err := h.deps.RemoveDemon(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// pathID parses the {id} wildcard, writing a 400 when it is malformed.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "bad_request", Wrap(ErrBadRequest, errMalformedID))
		return 0, false
	}
	return id, true
}
