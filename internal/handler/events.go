package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/model"
)

// ListEvents handles GET /events
// Returns a JSON array of approved events.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	if _, err := h.requireCaller(r); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	events, err := h.svc.Events.ListEvents(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	// Return an empty array rather than null for better client compatibility.
	if events == nil {
		events = []model.Event{}
	}

	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /events/{id}
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	if _, err := h.requireCaller(r); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	event, err := h.svc.Events.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

// Status handles GET /events/{id}/status
// Reports whether the caller is registered and in which capacity.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Status.Status(r.Context(), identity(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// JoinParticipation handles POST /events/{id}/participation
// Responds 201 with a new ticket, or 200 with the existing one on a repeat.
func (h *Handler) JoinParticipation(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Participation.Join(r.Context(), identity(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJoin(w, res)
}

// CancelParticipation handles DELETE /events/{id}/participation
func (h *Handler) CancelParticipation(w http.ResponseWriter, r *http.Request) {
	ack, err := h.svc.Participation.Cancel(r.Context(), identity(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

// JoinPartnership handles POST /events/{id}/partnership
func (h *Handler) JoinPartnership(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Partnership.Join(r.Context(), identity(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJoin(w, res)
}

// CancelPartnership handles DELETE /events/{id}/partnership
func (h *Handler) CancelPartnership(w http.ResponseWriter, r *http.Request) {
	ack, err := h.svc.Partnership.Cancel(r.Context(), identity(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

func writeJoin(w http.ResponseWriter, res model.JoinResult) {
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, res.Ticket)
}

// ListRegistrations handles GET /events/{id}/registrations
// Returns the current roster for an event. Admin only.
func (h *Handler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	regs, err := h.svc.Tickets.ListRegistrations(r.Context(), identity(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if regs == nil {
		regs = []model.Registration{}
	}
	writeJSON(w, http.StatusOK, regs)
}
