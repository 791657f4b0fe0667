// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/pointercrate/demonlist/internal/adapters/mq/queue"
	service "github.com/pointercrate/demonlist/internal/app"
	"github.com/pointercrate/demonlist/internal/domain/model"
	"github.com/pointercrate/demonlist/pkg/logger"
)

const maxBodyBytes = 64 * 1024

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	DemonDependencies
	RecordDependencies
	PlayerDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler  *HealthHandler
	statsHandler   *StatsHandler
	demonsHandler  *DemonsHandler
	recordsHandler *RecordsHandler
	playersHandler *PlayersHandler

	limits  RateLimits
	maxRank int
	now     func() time.Time
	logger  logger.Logger
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		limits:  DefaultRateLimits(),
		maxRank: defaultMaxRankingLimit,
		now:     time.Now,
		logger:  logger.Get().Named("api"),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(statsProvider)
	s.demonsHandler = NewDemonsHandler(deps, newLimiter(s.limits.AddDemonInterval, 1, s.now), s.logger)
	s.recordsHandler = NewRecordsHandler(deps,
		newKeyedLimiter(s.limits.SubmissionIPWindow, s.limits.SubmissionsPerIP, s.now),
		newLimiter(s.limits.SubmissionGlobalWindow, s.limits.SubmissionsGlobal, s.now),
		s.logger,
	)
	s.playersHandler = NewPlayersHandler(deps, s.maxRank)
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("GET /api/v1/list_information", MetricsMiddleware(s.demonsHandler.HandleListInformation, "list_information"))
	mux.HandleFunc("GET /api/v2/demons/listed", MetricsMiddleware(s.demonsHandler.HandleListed, "demons_listed"))
	mux.HandleFunc("GET /api/v2/demons/{id}", MetricsMiddleware(s.demonsHandler.HandleGetDemon, "demon"))
	mux.HandleFunc("GET /api/v2/demons/{id}/audit/movement", MetricsMiddleware(s.demonsHandler.HandleMovements, "demon_movement"))
	mux.HandleFunc("POST /api/v2/demons", MetricsMiddleware(s.demonsHandler.HandlePostDemon, "demon_add"))
	mux.HandleFunc("PATCH /api/v2/demons/{id}", MetricsMiddleware(s.demonsHandler.HandlePatchDemon, "demon_move"))
	mux.HandleFunc("DELETE /api/v2/demons/{id}/position", MetricsMiddleware(s.demonsHandler.HandleDeletePosition, "demon_remove"))

	mux.HandleFunc("POST /api/v1/records", MetricsMiddleware(s.recordsHandler.HandlePostRecord, "record_submit"))
	mux.HandleFunc("GET /api/v1/records/{id}", MetricsMiddleware(s.recordsHandler.HandleGetRecord, "record"))
	mux.HandleFunc("PATCH /api/v1/records/{id}", MetricsMiddleware(s.recordsHandler.HandlePatchRecord, "record_status"))

	mux.HandleFunc("GET /api/v1/players/ranking", MetricsMiddleware(s.playersHandler.HandleRanking, "players_ranking"))
	mux.HandleFunc("PATCH /api/v1/players/{id}", MetricsMiddleware(s.playersHandler.HandlePatchPlayer, "player"))
}

// validate is shared by all handlers; validator caches struct metadata.
var validate = validator.New()

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Maximal *int   `json:"maximal,omitempty"`
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
	writeErrorResponse(w, status, errorResponse{Code: code, Message: msg})
}

func writeErrorResponse(w http.ResponseWriter, status int, resp errorResponse) {
	noteErrorCode(w, resp.Code)
	writeJSON(w, status, resp)
}

// writeDomainError maps engine and service errors onto the error envelope.
func writeDomainError(w http.ResponseWriter, err error) {
	var de *model.Error
	if errors.As(err, &de) {
		switch de.Kind {
		case model.KindInvalidPosition:
			maximal := de.Maximal
			writeErrorResponse(w, http.StatusUnprocessableEntity, errorResponse{
				Code: de.Kind.Code(), Message: de.Error(), Maximal: &maximal,
			})
		case model.KindInvalidRequirement:
			writeError(w, http.StatusUnprocessableEntity, de.Kind.Code(), de)
		case model.KindNotFound:
			writeError(w, http.StatusNotFound, de.Kind.Code(), de)
		default:
			writeError(w, http.StatusInternalServerError, de.Kind.Code(), errors.New("storage failure"))
		}
		return
	}

	switch {
	case errors.Is(err, service.ErrDuplicateSubmission):
		writeError(w, http.StatusConflict, "duplicate", err)
	case errors.Is(err, service.ErrInvalidSubmission):
		writeError(w, http.StatusUnprocessableEntity, "invalid_submission", err)
	case errors.Is(err, queue.ErrQueueFull):
		writeError(w, http.StatusTooManyRequests, "backpressure", Wrap(ErrBackpressure, err))
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}

// decodeJSON reads a bounded JSON body into v and validates it.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return Wrap(ErrBadRequest, err)
	}
	if err := validate.Struct(v); err != nil {
		return Wrap(ErrBadRequest, err)
	}
	return nil
}
