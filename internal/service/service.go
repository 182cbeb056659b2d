// Package service implements the participation, partnership, status and
// ticket operations on top of the repository layer. Handlers call into it
// with an authenticated identity; it decides eligibility, resolves
// idempotent repeats and publishes registration changes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/metrics"
	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/notify"
	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/repository"
	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/ticket"
)

// ErrCapacityConflict is returned when the caller already holds the other
// capacity at the event and must cancel it first.
var ErrCapacityConflict = errors.New("already registered in the other capacity")

// ErrForbidden is returned when the caller may not see or do something.
var ErrForbidden = errors.New("forbidden")

// ErrUnauthenticated is returned when no identity accompanies the call.
var ErrUnauthenticated = errors.New("authentication required")

// ErrInvalidInput wraps malformed request values.
var ErrInvalidInput = errors.New("invalid input")

// Deps are the collaborators shared by every service.
type Deps struct {
	Store   repository.Store
	Issuer  *ticket.Issuer
	Bus     notify.Bus
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	// Now is the clock used for eligibility and timestamps. Defaults to
	// time.Now.
	Now func() time.Time
}

// Services groups the operations exposed to the transport layer.
type Services struct {
	Events        *EventService
	Participation *ParticipationService
	Partnership   *PartnershipService
	Status        *StatusQueryService
	Tickets       *TicketService
}

// New wires every service around a single registrar.
func New(d Deps) *Services {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	if d.Bus == nil {
		d.Bus = notify.NewHub(notify.WithDropCounter(d.Metrics.NotifyDropped))
	}
	if d.Issuer == nil {
		d.Issuer = ticket.NewIssuer("", d.Now)
	}

	r := newRegistrar(d)
	return &Services{
		Events:        &EventService{catalog: d.Store},
		Participation: &ParticipationService{r: r},
		Partnership:   &PartnershipService{r: r},
		Status:        &StatusQueryService{store: d.Store, bus: d.Bus},
		Tickets: &TicketService{
			store:   d.Store,
			issuer:  d.Issuer,
			metrics: d.Metrics,
			log:     d.Logger,
		},
	}
}

// EventService is the read-only view of the catalog offered to clients.
// Unapproved events are hidden.
type EventService struct {
	catalog repository.EventCatalog
}

// ListEvents returns all approved events.
func (s *EventService) ListEvents(ctx context.Context) ([]model.Event, error) {
	all, err := s.catalog.ListEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	events := make([]model.Event, 0, len(all))
	for _, e := range all {
		if e.Approved {
			events = append(events, e)
		}
	}
	return events, nil
}

// GetEvent returns a single approved event by ID.
func (s *EventService) GetEvent(ctx context.Context, id string) (model.Event, error) {
	return loadEvent(ctx, s.catalog, id)
}

func loadEvent(ctx context.Context, catalog repository.EventCatalog, id string) (model.Event, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return model.Event{}, fmt.Errorf("%w: event id is required", ErrInvalidInput)
	}
	ev, err := catalog.GetEvent(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Event{}, repository.ErrNotFound
		}
		return model.Event{}, fmt.Errorf("get event: %w", err)
	}
	if !ev.Approved {
		return model.Event{}, repository.ErrNotFound
	}
	return ev, nil
}

func requireIdentity(id model.Identity) error {
	if strings.TrimSpace(id.UserID) == "" {
		return ErrUnauthenticated
	}
	return nil
}
