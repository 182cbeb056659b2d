// Package model defines the core domain types for event participation,
// partnership and ticketing.
package model

import (
	"fmt"
	"strings"
	"time"
)

// EventType says whether an event happens at a venue or online.
type EventType string

const (
	EventInPerson EventType = "in-person"
	EventOnline   EventType = "online"
)

// EventStatus is the lifecycle status reported by the event catalog.
type EventStatus string

const (
	StatusUpcoming EventStatus = "upcoming"
	StatusOngoing  EventStatus = "ongoing"
	StatusPast     EventStatus = "past"
	StatusCanceled EventStatus = "canceled"
)

// Event is owned by the event catalog. The core only reads it.
type Event struct {
	ID              string      `json:"id" yaml:"id"`
	Title           string      `json:"title" yaml:"title"`
	Type            EventType   `json:"type" yaml:"type"`
	StartsAt        time.Time   `json:"starts_at" yaml:"starts_at"`
	EndsAt          time.Time   `json:"ends_at" yaml:"ends_at"`
	Location        string      `json:"location,omitempty" yaml:"location"`
	Venue           string      `json:"venue,omitempty" yaml:"venue"`
	OnlineLink      string      `json:"online_link,omitempty" yaml:"online_link"`
	AcceptsPartners bool        `json:"accepts_partners" yaml:"accepts_partners"`
	Status          EventStatus `json:"status" yaml:"status"`
	Approved        bool        `json:"approved" yaml:"approved"`
	MaxParticipants int         `json:"max_participants" yaml:"max_participants"`
}

// EffectiveStatus folds the schedule into the catalog status: an event whose
// end has elapsed is past even if the catalog has not caught up yet.
func (e *Event) EffectiveStatus(now time.Time) EventStatus {
	if e.Status == StatusCanceled || e.Status == StatusPast {
		return e.Status
	}
	if !e.EndsAt.IsZero() && !now.Before(e.EndsAt) {
		return StatusPast
	}
	return e.Status
}

// Snapshot freezes the schedule and location fields printed on a ticket.
func (e *Event) Snapshot() EventSnapshot {
	return EventSnapshot{
		Title:      e.Title,
		Type:       e.Type,
		StartsAt:   e.StartsAt.UTC(),
		EndsAt:     e.EndsAt.UTC(),
		Location:   e.Location,
		Venue:      e.Venue,
		OnlineLink: e.OnlineLink,
	}
}

// Capacity is the role a user holds at an event.
type Capacity string

const (
	CapacityNone        Capacity = "none"
	CapacityParticipant Capacity = "participant"
	CapacityPartner     Capacity = "partner"
)

// ParseCapacity accepts only the two registrable capacities.
func ParseCapacity(s string) (Capacity, error) {
	switch Capacity(strings.ToLower(strings.TrimSpace(s))) {
	case CapacityParticipant:
		return CapacityParticipant, nil
	case CapacityPartner:
		return CapacityPartner, nil
	default:
		return "", fmt.Errorf("unknown capacity %q", s)
	}
}

// Registration is a user's single active relationship to an event.
// It is created by a join and destroyed by a cancel, never updated.
type Registration struct {
	EventID        string    `json:"event_id"`
	UserID         string    `json:"user_id"`
	Capacity       Capacity  `json:"capacity"`
	OrganizationID string    `json:"organization_id,omitempty"`
	TicketID       string    `json:"ticket_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// EventSnapshot is the copy of event details taken when a ticket is issued.
type EventSnapshot struct {
	Title      string    `json:"title"`
	Type       EventType `json:"type"`
	StartsAt   time.Time `json:"starts_at"`
	EndsAt     time.Time `json:"ends_at"`
	Location   string    `json:"location,omitempty"`
	Venue      string    `json:"venue,omitempty"`
	OnlineLink string    `json:"online_link,omitempty"`
}

// Ticket is the immutable record minted with a registration. It outlives the
// registration; Active reports whether that registration still exists.
type Ticket struct {
	ID             string        `json:"ticket_id"`
	EventID        string        `json:"event_id"`
	UserID         string        `json:"user_id"`
	Capacity       Capacity      `json:"capacity"`
	OrganizationID string        `json:"organization_id,omitempty"`
	Event          EventSnapshot `json:"event"`
	IssuedAt       time.Time     `json:"issued_at"`
	Active         bool          `json:"active"`
}

// Status answers "is this identity registered for the event, and as what?".
type Status struct {
	EventID    string   `json:"event_id"`
	Registered bool     `json:"registered"`
	Capacity   Capacity `json:"capacity"`
	TicketID   string   `json:"ticket_id,omitempty"`
}

// ChangeAction names a registration transition.
type ChangeAction string

const (
	ChangeJoined   ChangeAction = "joined"
	ChangeCanceled ChangeAction = "canceled"
)

// Change is pushed to subscribers after a registration is created or removed.
type Change struct {
	EventID  string       `json:"event_id"`
	UserID   string       `json:"user_id"`
	Capacity Capacity     `json:"capacity"`
	Action   ChangeAction `json:"action"`
	TicketID string       `json:"ticket_id,omitempty"`
	At       time.Time    `json:"at"`
}

// JoinResult is returned by a join. Created is false when the join was
// already satisfied and the existing ticket is returned.
type JoinResult struct {
	Ticket  Ticket `json:"ticket"`
	Created bool   `json:"created"`
}

// CancelResult acknowledges a cancel. Canceled is false when there was
// nothing to cancel.
type CancelResult struct {
	EventID  string `json:"event_id"`
	Canceled bool   `json:"canceled"`
}

// VerifyRequest carries a scanned ticket payload.
type VerifyRequest struct {
	Payload string `json:"payload"`
}

// VerifyResult is the outcome of checking a scanned payload.
type VerifyResult struct {
	Valid    bool     `json:"valid"`
	Active   bool     `json:"active"`
	TicketID string   `json:"ticket_id,omitempty"`
	EventID  string   `json:"event_id,omitempty"`
	UserID   string   `json:"user_id,omitempty"`
	Capacity Capacity `json:"capacity,omitempty"`
	Reason   string   `json:"reason,omitempty"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
