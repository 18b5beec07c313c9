// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	service "github.com/volunteerfinder/reputation/internal/app"
	"github.com/volunteerfinder/reputation/internal/domain/reputation"
	"github.com/volunteerfinder/reputation/pkg/metrics"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	EventDependencies
	ApplicationDependencies
	UserDependencies
	RankingDependencies
	AdminDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler       *HealthHandler
	statsHandler        *StatsHandler
	eventsHandler       *EventsHandler
	applicationsHandler *ApplicationsHandler
	usersHandler        *UsersHandler
	rankingsHandler     *RankingsHandler
	adminHandler        *AdminHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:       NewHealthHandler(),
		statsHandler:        NewStatsHandler(statsProvider),
		eventsHandler:       NewEventsHandler(deps),
		applicationsHandler: NewApplicationsHandler(deps),
		usersHandler:        NewUsersHandler(deps),
		rankingsHandler:     NewRankingsHandler(deps),
		adminHandler:        NewAdminHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /events", MetricsMiddleware(s.eventsHandler.HandleCreate, "events_create"))
	mux.HandleFunc("GET /events/{id}", MetricsMiddleware(s.eventsHandler.HandleGet, "events_get"))
	mux.HandleFunc("DELETE /events/{id}", MetricsMiddleware(s.eventsHandler.HandleDelete, "events_delete"))
	mux.HandleFunc("POST /events/{id}/complete", MetricsMiddleware(s.eventsHandler.HandleComplete, "events_complete"))
	mux.HandleFunc("POST /events/{id}/applications", MetricsMiddleware(s.eventsHandler.HandleSubmitApplication, "applications_submit"))

	mux.HandleFunc("POST /applications/{id}/review", MetricsMiddleware(s.applicationsHandler.HandleReview, "applications_review"))

	mux.HandleFunc("POST /users", MetricsMiddleware(s.usersHandler.HandleCreate, "users_create"))
	mux.HandleFunc("GET /users/{id}", MetricsMiddleware(s.usersHandler.HandleGet, "users_get"))
	mux.HandleFunc("POST /users/{id}/badges/refresh", MetricsMiddleware(s.usersHandler.HandleRefreshBadges, "badges_refresh"))

	mux.HandleFunc("GET /rankings", MetricsMiddleware(s.rankingsHandler.HandleGetRankings, "rankings"))
	mux.HandleFunc("POST /admin/scores/reset", MetricsMiddleware(s.adminHandler.HandleResetScores, "scores_reset"))
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

// writeFailure maps a domain error to its HTTP status.
func writeFailure(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "bad_request", tagged(op, err))
	case errors.Is(err, reputation.ErrEventNotFound),
		errors.Is(err, reputation.ErrUserNotFound),
		errors.Is(err, service.ErrApplicationNotFound):
		writeError(w, http.StatusNotFound, "not_found", tagged(op, err))
	case errors.Is(err, service.ErrEventClosed):
		writeError(w, http.StatusConflict, "event_completed", tagged(op, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", tagged(op, err))
	}
}

// tagged adds op unless err already carries one.
func tagged(op string, err error) error {
	var oe *OpError
	if errors.As(err, &oe) {
		return err
	}
	return Wrap(op, err)
}

func decode(r *http.Request, op string, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return WrapKind(op, ErrBadRequest, err)
	}
	return nil
}
