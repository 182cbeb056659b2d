package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/metrics"
	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/repository"
	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/ticket"
)

// TicketService reads issued tickets, renders payloads and verifies scanned
// payloads. Tickets are visible only to their owner; verification and
// rosters are for admins.
type TicketService struct {
	store   repository.Store
	issuer  *ticket.Issuer
	metrics *metrics.Metrics
	log     *slog.Logger
}

// Fetch returns a ticket owned by the caller.
func (s *TicketService) Fetch(ctx context.Context, id model.Identity, ticketID string) (model.Ticket, error) {
	if err := requireIdentity(id); err != nil {
		return model.Ticket{}, err
	}
	ticketID = strings.TrimSpace(ticketID)
	if ticketID == "" {
		return model.Ticket{}, fmt.Errorf("%w: ticket id is required", ErrInvalidInput)
	}

	t, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Ticket{}, repository.ErrNotFound
		}
		return model.Ticket{}, fmt.Errorf("get ticket: %w", err)
	}
	if t.UserID != id.UserID {
		return model.Ticket{}, ErrForbidden
	}
	return t, nil
}

// Payload renders the scannable payload of a ticket owned by the caller.
func (s *TicketService) Payload(ctx context.Context, id model.Identity, ticketID string) (string, error) {
	t, err := s.Fetch(ctx, id, ticketID)
	if err != nil {
		return "", err
	}
	return s.issuer.RenderPayload(t), nil
}

// ListMine returns the caller's tickets, newest first, including those whose
// registration was canceled.
func (s *TicketService) ListMine(ctx context.Context, id model.Identity) ([]model.Ticket, error) {
	if err := requireIdentity(id); err != nil {
		return nil, err
	}
	tickets, err := s.store.ListTicketsByUser(ctx, id.UserID)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	return tickets, nil
}

// Verify checks a scanned payload against the stored ticket it names.
// A payload that fails to parse or match is reported as invalid, not as an
// error.
func (s *TicketService) Verify(ctx context.Context, id model.Identity, payload string) (model.VerifyResult, error) {
	if err := requireIdentity(id); err != nil {
		return model.VerifyResult{}, err
	}
	if id.Role != model.RoleAdmin {
		return model.VerifyResult{}, ErrForbidden
	}

	res, err := s.verify(ctx, payload)
	if err != nil {
		return model.VerifyResult{}, err
	}
	result := "invalid"
	switch {
	case res.Valid && res.Active:
		result = "active"
	case res.Valid:
		result = "inactive"
	}
	s.metrics.TicketsVerified.WithLabelValues(result).Inc()
	s.log.Info("ticket verified", "ticket_id", res.TicketID, "result", result, "by", id.UserID)
	return res, nil
}

func (s *TicketService) verify(ctx context.Context, payload string) (model.VerifyResult, error) {
	ticketID, err := ticket.ParsePayload(payload)
	if err != nil {
		return model.VerifyResult{Valid: false, Reason: "malformed"}, nil
	}
	t, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.VerifyResult{Valid: false, TicketID: ticketID, Reason: "unknown_ticket"}, nil
		}
		return model.VerifyResult{}, fmt.Errorf("get ticket: %w", err)
	}
	if err := s.issuer.Check(payload, t); err != nil {
		return model.VerifyResult{Valid: false, TicketID: ticketID, Reason: "mismatch"}, nil
	}
	res := model.VerifyResult{
		Valid:    true,
		Active:   t.Active,
		TicketID: t.ID,
		EventID:  t.EventID,
		UserID:   t.UserID,
		Capacity: t.Capacity,
	}
	if !t.Active {
		res.Reason = "registration_canceled"
	}
	return res, nil
}

// ListRegistrations returns an event's current roster. Admin only.
func (s *TicketService) ListRegistrations(ctx context.Context, id model.Identity, eventID string) ([]model.Registration, error) {
	if err := requireIdentity(id); err != nil {
		return nil, err
	}
	if id.Role != model.RoleAdmin {
		return nil, ErrForbidden
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return nil, fmt.Errorf("%w: event id is required", ErrInvalidInput)
	}
	if _, err := s.store.GetEvent(ctx, eventID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	regs, err := s.store.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	return regs, nil
}
