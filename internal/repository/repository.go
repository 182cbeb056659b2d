// Package repository declares the storage contracts for registrations,
// tickets and the read-only event catalog, plus the error kinds every backend
// reports. Backends live in the memory, sqlite and postgres subpackages.
package repository

import (
	"context"
	"errors"

	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/model"
)

// ErrNotFound is returned when a requested event or ticket does not exist.
var ErrNotFound = errors.New("not found")

// ErrAlreadyRegistered is returned by Create when the (event, user) pair
// already holds a registration. The existing registration is returned with it.
var ErrAlreadyRegistered = errors.New("already registered for this event")

// ErrNotRegistered is returned when no registration exists for the pair.
var ErrNotRegistered = errors.New("not registered for this event")

// ErrCapacityMismatch is returned by Delete when the pair is registered in a
// different capacity than the one being canceled. Nothing is deleted.
var ErrCapacityMismatch = errors.New("registered in a different capacity")

// ErrEventFull is returned when an event has no participant seats left.
var ErrEventFull = errors.New("event is fully booked")

// ErrUnavailable is a retryable storage failure. When returned from a
// mutation the outcome is unknown and callers must re-read before retrying.
var ErrUnavailable = errors.New("storage temporarily unavailable")

// MintFunc issues the ticket for a registration being created. Stores call it
// inside their atomic section and persist the ticket in the same unit.
type MintFunc func(reg model.Registration) (model.Ticket, error)

// CreateParams describes a registration to create.
type CreateParams struct {
	Registration model.Registration
	// SeatLimit caps participant registrations for the event. Zero means no cap.
	SeatLimit int
	Mint      MintFunc
}

// RegistrationStore holds at most one registration per (event, user) pair.
type RegistrationStore interface {
	// Get returns the registration for the pair or ErrNotRegistered.
	Get(ctx context.Context, eventID, userID string) (model.Registration, error)
	// Create atomically checks for an existing registration and creates one
	// together with its ticket. On conflict it returns the existing
	// registration and ErrAlreadyRegistered.
	Create(ctx context.Context, p CreateParams) (model.Registration, error)
	// Delete atomically removes the pair's registration if it has the given
	// capacity. Tickets are kept.
	Delete(ctx context.Context, eventID, userID string, capacity model.Capacity) (model.Registration, error)
	// ListByEvent returns an event's registrations, oldest first.
	ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error)
}

// TicketStore reads issued tickets. Active is filled from the live
// registrations at read time.
type TicketStore interface {
	GetTicket(ctx context.Context, ticketID string) (model.Ticket, error)
	ListTicketsByUser(ctx context.Context, userID string) ([]model.Ticket, error)
}

// EventCatalog is the read-only view of the external event catalog.
type EventCatalog interface {
	GetEvent(ctx context.Context, id string) (model.Event, error)
	ListEvents(ctx context.Context) ([]model.Event, error)
}

// Store bundles everything a backend provides.
type Store interface {
	RegistrationStore
	TicketStore
	EventCatalog
	Close() error
}
