// Package memory is an in-process backend for development and tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/repository"
)

type pairKey struct {
	eventID string
	userID  string
}

// Store keeps registrations, tickets and catalog events in maps guarded by
// one lock. Create and Delete hold the write lock for the whole
// check-and-mutate, which is what makes them atomic.
type Store struct {
	mu            sync.RWMutex
	events        map[string]model.Event
	registrations map[pairKey]model.Registration
	tickets       map[string]model.Ticket
}

// New returns a Store whose catalog holds events.
func New(events ...model.Event) *Store {
	s := &Store{
		events:        make(map[string]model.Event),
		registrations: make(map[pairKey]model.Registration),
		tickets:       make(map[string]model.Ticket),
	}
	for _, e := range events {
		s.events[e.ID] = e
	}
	return s
}

// PutEvent adds or replaces a catalog event. It stands in for the external
// catalog when seeding.
func (s *Store) PutEvent(_ context.Context, e model.Event) error {
	if strings.TrimSpace(e.ID) == "" {
		return errors.New("event id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[e.ID] = e
	return nil
}

func (s *Store) GetEvent(_ context.Context, id string) (model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[id]
	if !ok {
		return model.Event{}, repository.ErrNotFound
	}
	return e, nil
}

func (s *Store) ListEvents(_ context.Context) ([]model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Event, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartsAt.Before(out[j].StartsAt)
	})
	return out, nil
}

func (s *Store) Get(_ context.Context, eventID, userID string) (model.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reg, ok := s.registrations[pairKey{eventID, userID}]
	if !ok {
		return model.Registration{}, repository.ErrNotRegistered
	}
	return reg, nil
}

func (s *Store) Create(ctx context.Context, p repository.CreateParams) (model.Registration, error) {
	reg := p.Registration
	key := pairKey{reg.EventID, reg.UserID}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.registrations[key]; ok {
		return existing, repository.ErrAlreadyRegistered
	}
	if p.SeatLimit > 0 && reg.Capacity == model.CapacityParticipant {
		if s.countLocked(reg.EventID, model.CapacityParticipant) >= p.SeatLimit {
			return model.Registration{}, repository.ErrEventFull
		}
	}

	t, err := p.Mint(reg)
	if err != nil {
		return model.Registration{}, err
	}
	if _, dup := s.tickets[t.ID]; dup {
		return model.Registration{}, errors.New("ticket id collision")
	}
	// Nothing is visible yet; a canceled request leaves no trace.
	if err := ctx.Err(); err != nil {
		return model.Registration{}, err
	}

	reg.TicketID = t.ID
	t.Active = false
	s.tickets[t.ID] = t
	s.registrations[key] = reg
	return reg, nil
}

func (s *Store) Delete(ctx context.Context, eventID, userID string, capacity model.Capacity) (model.Registration, error) {
	key := pairKey{eventID, userID}

	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.registrations[key]
	if !ok {
		return model.Registration{}, repository.ErrNotRegistered
	}
	if capacity != "" && reg.Capacity != capacity {
		return reg, repository.ErrCapacityMismatch
	}
	if err := ctx.Err(); err != nil {
		return model.Registration{}, err
	}
	delete(s.registrations, key)
	return reg, nil
}

func (s *Store) ListByEvent(_ context.Context, eventID string) ([]model.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Registration, 0)
	for k, reg := range s.registrations {
		if k.eventID == eventID {
			out = append(out, reg)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (s *Store) GetTicket(_ context.Context, ticketID string) (model.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tickets[ticketID]
	if !ok {
		return model.Ticket{}, repository.ErrNotFound
	}
	t.Active = s.activeLocked(t)
	return t, nil
}

func (s *Store) ListTicketsByUser(_ context.Context, userID string) ([]model.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Ticket, 0)
	for _, t := range s.tickets {
		if t.UserID != userID {
			continue
		}
		t.Active = s.activeLocked(t)
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IssuedAt.Equal(out[j].IssuedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].IssuedAt.After(out[j].IssuedAt)
	})
	return out, nil
}

func (s *Store) Close() error { return nil }

func (s *Store) activeLocked(t model.Ticket) bool {
	reg, ok := s.registrations[pairKey{t.EventID, t.UserID}]
	return ok && reg.TicketID == t.ID
}

func (s *Store) countLocked(eventID string, capacity model.Capacity) int {
	n := 0
	for k, reg := range s.registrations {
		if k.eventID == eventID && reg.Capacity == capacity {
			n++
		}
	}
	return n
}

var _ repository.Store = (*Store)(nil)
