package api

import (
	"context"
	"net/http"

	service "github.com/pointercrate/demonlist/internal/app"
	"github.com/pointercrate/demonlist/internal/domain/model"
	"github.com/pointercrate/demonlist/pkg/logger"
	"github.com/pointercrate/demonlist/pkg/metrics"
)

// RecordDependencies defines the record submission and approval operations.
type RecordDependencies interface {
	SubmitRecord(ctx context.Context, req service.RecordSubmission) (model.Submission, error)
	Record(ctx context.Context, id int64) (model.Record, error)
	SetRecordStatus(ctx context.Context, id int64, status model.RecordStatus) (model.Record, error)
}

// RecordsHandler handles record requests.
type RecordsHandler struct {
	deps   RecordDependencies
	perIP  *keyedLimiter
	global *limiter
	logger logger.Logger
}

// NewRecordsHandler creates a new records handler.
func NewRecordsHandler(deps RecordDependencies, perIP *keyedLimiter, global *limiter, log logger.Logger) *RecordsHandler {
	return &RecordsHandler{deps: deps, perIP: perIP, global: global, logger: log}
}

// recordRequest mirrors the OpenAPI schema for POST /api/v1/records.
type recordRequest struct {
	Demon    int64  `json:"demon" validate:"required,gt=0"`
	Player   string `json:"player" validate:"required,max=50"`
	Progress *int   `json:"progress" validate:"required"`
	Video    string `json:"video" validate:"required,url"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=submitted approved rejected under_consideration"`
}

type ackResponse struct {
	Status string `json:"status"`
	ID     string `json:"id"`
}

// HandlePostRecord handles POST /api/v1/records. Accepted submissions are
// persisted asynchronously.
func (h *RecordsHandler) HandlePostRecord(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	ip := clientIP(r)
	if !h.perIP.allow(ip) {
		metrics.RecordRateLimited("record_submission")
		h.logger.Debug(r.Context(), "submission rate limited", logger.String("ip", ip))
		writeError(w, http.StatusTooManyRequests, "rate_limited", Wrap(ErrRateLimited, errSubmissionIPLimited))
		return
	}
	if !h.global.allow() {
		metrics.RecordRateLimited("record_submission_global")
		writeError(w, http.StatusTooManyRequests, "rate_limited", Wrap(ErrRateLimited, errSubmissionLimited))
		return
	}

	sub, err := h.deps.SubmitRecord(r.Context(), service.RecordSubmission{
		DemonID:  req.Demon,
		Player:   req.Player,
		Progress: *req.Progress,
		Video:    req.Video,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", ID: sub.ID})
}

// HandleGetRecord handles GET /api/v1/records/{id}.
func (h *RecordsHandler) HandleGetRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rec, err := h.deps.Record(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandlePatchRecord handles PATCH /api/v1/records/{id}.
func (h *RecordsHandler) HandlePatchRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	status, err := model.ParseRecordStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", Wrap(ErrBadRequest, err))
		return
	}
	rec, err := h.deps.SetRecordStatus(r.Context(), id, status)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
