package service

import (
	"context"

	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/model"
)

// ParticipationService lets any eligible identity attend an event.
type ParticipationService struct {
	r *registrar
}

// Join registers the caller as a participant. Repeating the call returns the
// same ticket with Created=false. Events with a participant cap refuse new
// participants with repository.ErrEventFull once it is reached.
func (s *ParticipationService) Join(ctx context.Context, id model.Identity, eventID string) (model.JoinResult, error) {
	return s.r.join(ctx, id, eventID, model.CapacityParticipant)
}

// Cancel drops the caller's participant registration. The ticket stays
// readable but is reported inactive.
func (s *ParticipationService) Cancel(ctx context.Context, id model.Identity, eventID string) (model.CancelResult, error) {
	return s.r.cancel(ctx, id, eventID, model.CapacityParticipant)
}
