// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/auth"
	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/eligibility"
	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/repository"
	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/service"
)

// Error codes returned in ErrorResponse.Error.
const (
	CodeUnauthenticated     = "unauthenticated"
	CodeForbidden           = "forbidden"
	CodeRoleNotEligible     = "role_not_eligible"
	CodeNotFound            = "not_found"
	CodeEventClosed         = "event_closed"
	CodePartnersNotAccepted = "partners_not_accepted"
	CodeCapacityConflict    = "capacity_conflict"
	CodeEventFull           = "event_full"
	CodeInvalidRequest      = "invalid_request"
	CodeUnavailable         = "unavailable"
	CodeInternal            = "internal"
)

// Handler holds all HTTP handlers for the participation and ticketing API.
type Handler struct {
	svc *service.Services
	log *slog.Logger
}

// New constructs a Handler.
func New(svc *service.Services, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: code, Message: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// identity returns the caller attached by auth.AuthContext. A missing
// identity is passed through as the zero value; the services reject it.
func identity(r *http.Request) model.Identity {
	id, _ := auth.IdentityFrom(r.Context())
	return id
}

// requireCaller is for routes whose service call takes no identity.
func (h *Handler) requireCaller(r *http.Request) (model.Identity, error) {
	id, ok := auth.IdentityFrom(r.Context())
	if !ok {
		return model.Identity{}, service.ErrUnauthenticated
	}
	return id, nil
}

// writeServiceError maps service and repository errors onto HTTP responses.
// Anything unrecognised is logged and reported as a 500 without detail.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, CodeUnauthenticated, "authentication required")
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, CodeForbidden, "not allowed")
	case errors.Is(err, eligibility.ErrRoleNotEligible):
		writeError(w, http.StatusForbidden, CodeRoleNotEligible, err.Error())
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, CodeNotFound, "not found")
	case errors.Is(err, eligibility.ErrEventClosed):
		writeError(w, http.StatusConflict, CodeEventClosed, err.Error())
	case errors.Is(err, eligibility.ErrPartnersNotAccepted):
		writeError(w, http.StatusConflict, CodePartnersNotAccepted, err.Error())
	case errors.Is(err, service.ErrCapacityConflict):
		writeError(w, http.StatusConflict, CodeCapacityConflict, err.Error())
	case errors.Is(err, repository.ErrEventFull):
		writeError(w, http.StatusConflict, CodeEventFull, "event is fully booked")
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, err.Error())
	case errors.Is(err, repository.ErrUnavailable):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, CodeUnavailable,
			"temporarily unavailable; re-check status before retrying")
	default:
		h.log.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "internal error")
	}
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
