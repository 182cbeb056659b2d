// Package eligibility decides whether an identity may register for an event
// in a given capacity. It has no side effects and is safe for concurrent use.
package eligibility

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/model"
)

// ErrEventClosed is returned for past or canceled events.
var ErrEventClosed = errors.New("event is closed for registration")

// ErrRoleNotEligible is returned when the identity's role cannot hold the
// requested capacity.
var ErrRoleNotEligible = errors.New("role is not eligible for this capacity")

// ErrPartnersNotAccepted is returned when an event takes no partners.
var ErrPartnersNotAccepted = errors.New("event does not accept partners")

// Denial explains why a registration was refused. It unwraps to one of the
// sentinel errors above.
type Denial struct {
	Reason error
	Detail string
}

func (d *Denial) Error() string {
	if d.Detail == "" {
		return d.Reason.Error()
	}
	return fmt.Sprintf("%s: %s", d.Reason, d.Detail)
}

func (d *Denial) Unwrap() error { return d.Reason }

func deny(reason error, detail string) *Denial {
	return &Denial{Reason: reason, Detail: detail}
}

// Check returns nil when id may register for ev as capacity at time now.
//
// The partner role rule runs before the event state rules: a role that can
// never be a partner is refused with ErrRoleNotEligible whatever the event.
func Check(id model.Identity, ev model.Event, capacity model.Capacity, now time.Time) error {
	switch capacity {
	case model.CapacityParticipant:
	case model.CapacityPartner:
		if err := partnerCapable(id); err != nil {
			return err
		}
	default:
		return fmt.Errorf("check eligibility: unsupported capacity %q", capacity)
	}

	switch ev.EffectiveStatus(now) {
	case model.StatusPast, model.StatusCanceled:
		return deny(ErrEventClosed, string(ev.EffectiveStatus(now)))
	}

	if capacity == model.CapacityPartner && !ev.AcceptsPartners {
		return deny(ErrPartnersNotAccepted, "")
	}
	return nil
}

func partnerCapable(id model.Identity) error {
	switch id.Role {
	case model.RoleAssociationMember:
		if strings.TrimSpace(id.OrganizationID) == "" {
			return deny(ErrRoleNotEligible, "association member without organization")
		}
		return nil
	case model.RoleStudent, model.RolePsychiatrist, model.RoleAdmin:
		return deny(ErrRoleNotEligible, id.Role.String())
	case model.RoleUnknown:
		return deny(ErrRoleNotEligible, "unknown role")
	default:
		panic(fmt.Sprintf("eligibility: unhandled role %d", id.Role))
	}
}
