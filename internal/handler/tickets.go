package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/model"
)

// FetchTicket handles GET /tickets/{ticketId}
func (h *Handler) FetchTicket(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.Tickets.Fetch(r.Context(), identity(r), chi.URLParam(r, "ticketId"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// TicketPayload handles GET /tickets/{ticketId}/payload
// Returns the text block clients encode into a scannable code.
func (h *Handler) TicketPayload(w http.ResponseWriter, r *http.Request) {
	payload, err := h.svc.Tickets.Payload(r.Context(), identity(r), chi.URLParam(r, "ticketId"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(payload))
}

// VerifyTicket handles POST /tickets/verify
// Checks a scanned payload. Invalid payloads are a 200 with valid=false.
func (h *Handler) VerifyTicket(w http.ResponseWriter, r *http.Request) {
	var req model.VerifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid request body: "+err.Error())
		return
	}
	res, err := h.svc.Tickets.Verify(r.Context(), identity(r), req.Payload)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListMyTickets handles GET /me/tickets
// Returns every ticket the caller was ever issued, newest first.
func (h *Handler) ListMyTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.svc.Tickets.ListMine(r.Context(), identity(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if tickets == nil {
		tickets = []model.Ticket{}
	}
	writeJSON(w, http.StatusOK, tickets)
}
