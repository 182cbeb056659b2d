package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/notify"
	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/repository"
)

// StatusQueryService answers registration status questions.
//
// Status reads the store directly on every call. Within one backend the
// answer reflects every mutation that returned before the read started.
type StatusQueryService struct {
	store repository.RegistrationStore
	bus   notify.Subscriber
}

// Status reports whether the caller is registered for eventID and as what.
func (s *StatusQueryService) Status(ctx context.Context, id model.Identity, eventID string) (model.Status, error) {
	if err := requireIdentity(id); err != nil {
		return model.Status{}, err
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return model.Status{}, fmt.Errorf("%w: event id is required", ErrInvalidInput)
	}

	reg, err := s.store.Get(ctx, eventID, id.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotRegistered) {
			return model.Status{EventID: eventID, Registered: false, Capacity: model.CapacityNone}, nil
		}
		return model.Status{}, fmt.Errorf("get registration: %w", err)
	}
	return model.Status{
		EventID:    eventID,
		Registered: true,
		Capacity:   reg.Capacity,
		TicketID:   reg.TicketID,
	}, nil
}

// Subscribe streams the caller's registration changes until ctx is done.
func (s *StatusQueryService) Subscribe(ctx context.Context, id model.Identity) (<-chan model.Change, error) {
	if err := requireIdentity(id); err != nil {
		return nil, err
	}
	ch, err := s.bus.Subscribe(ctx, id.UserID)
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	return ch, nil
}
