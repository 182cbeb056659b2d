package service

import (
	"context"

	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/model"
)

// PartnershipService lets association representatives take part in an event
// on behalf of their organization.
type PartnershipService struct {
	r *registrar
}

// Join registers the caller as a partner for the organization named in its
// identity claim. Partners do not take participant seats.
func (s *PartnershipService) Join(ctx context.Context, id model.Identity, eventID string) (model.JoinResult, error) {
	return s.r.join(ctx, id, eventID, model.CapacityPartner)
}

// Cancel drops the caller's partner registration.
func (s *PartnershipService) Cancel(ctx context.Context, id model.Identity, eventID string) (model.CancelResult, error) {
	return s.r.cancel(ctx, id, eventID, model.CapacityPartner)
}
