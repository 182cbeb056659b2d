package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/eligibility"
	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/metrics"
	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/notify"
	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/repository"
	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/telemetry"
	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/ticket"
)

// publishTimeout bounds how long a change notification may take once the
// registration has committed.
const publishTimeout = 2 * time.Second

// registrar holds the join/cancel state machine shared by the participation
// and partnership services. The two differ only in the capacity they pass.
type registrar struct {
	store   repository.Store
	issuer  *ticket.Issuer
	bus     notify.Publisher
	metrics *metrics.Metrics
	log     *slog.Logger
	now     func() time.Time
	tracer  trace.Tracer
}

func newRegistrar(d Deps) *registrar {
	return &registrar{
		store:   d.Store,
		issuer:  d.Issuer,
		bus:     d.Bus,
		metrics: d.Metrics,
		log:     d.Logger,
		now:     d.Now,
		tracer:  telemetry.Tracer(),
	}
}

// join registers id for eventID in capacity and returns the ticket.
//
// A repeat join in the same capacity returns the existing ticket with
// Created=false. A join while holding the other capacity fails with
// ErrCapacityConflict and leaves the existing registration untouched.
func (r *registrar) join(ctx context.Context, id model.Identity, eventID string, capacity model.Capacity) (res model.JoinResult, err error) {
	ctx, span := r.tracer.Start(ctx, "registration.join", trace.WithAttributes(
		attribute.String("event.id", eventID),
		attribute.String("registration.capacity", string(capacity)),
	))
	defer func() {
		r.finish(span, "join", capacity, err, func() string {
			if res.Created {
				return metrics.OutcomeCreated
			}
			return metrics.OutcomeIdempotent
		})
	}()

	if err := requireIdentity(id); err != nil {
		return model.JoinResult{}, err
	}
	ev, err := loadEvent(ctx, r.store, eventID)
	if err != nil {
		return model.JoinResult{}, err
	}

	now := r.now()
	if err := eligibility.Check(id, ev, capacity, now); err != nil {
		r.log.Debug("join refused",
			"event_id", ev.ID, "user_id", id.UserID, "capacity", capacity, "reason", err)
		return model.JoinResult{}, err
	}

	reg := model.Registration{
		EventID:   ev.ID,
		UserID:    id.UserID,
		Capacity:  capacity,
		CreatedAt: now.UTC(),
	}
	seatLimit := 0
	switch capacity {
	case model.CapacityPartner:
		reg.OrganizationID = id.OrganizationID
	case model.CapacityParticipant:
		seatLimit = ev.MaxParticipants
	}

	// The store may call Mint more than once when it retries a transaction
	// that never reached commit; the last minted ticket is the stored one.
	var minted model.Ticket
	created, err := r.store.Create(ctx, repository.CreateParams{
		Registration: reg,
		SeatLimit:    seatLimit,
		Mint: func(reg model.Registration) (model.Ticket, error) {
			t, err := r.issuer.Issue(reg, ev)
			if err != nil {
				return model.Ticket{}, err
			}
			minted = t
			return t, nil
		},
	})

	switch {
	case err == nil:
		r.metrics.TicketsIssued.WithLabelValues(string(capacity)).Inc()
		r.log.Info("registration created",
			"event_id", created.EventID, "user_id", created.UserID,
			"capacity", created.Capacity, "ticket_id", created.TicketID)
		r.publish(ctx, model.Change{
			EventID:  created.EventID,
			UserID:   created.UserID,
			Capacity: created.Capacity,
			Action:   model.ChangeJoined,
			TicketID: created.TicketID,
			At:       created.CreatedAt,
		})
		minted.Active = true
		return model.JoinResult{Ticket: minted, Created: true}, nil

	case errors.Is(err, repository.ErrAlreadyRegistered):
		if created.Capacity != capacity {
			return model.JoinResult{}, fmt.Errorf("%w: registered as %s", ErrCapacityConflict, created.Capacity)
		}
		t, err := r.store.GetTicket(ctx, created.TicketID)
		if err != nil {
			return model.JoinResult{}, fmt.Errorf("load existing ticket: %w", err)
		}
		r.log.Debug("join already satisfied",
			"event_id", created.EventID, "user_id", created.UserID, "ticket_id", t.ID)
		return model.JoinResult{Ticket: t, Created: false}, nil

	case errors.Is(err, repository.ErrEventFull),
		errors.Is(err, repository.ErrNotFound),
		errors.Is(err, repository.ErrUnavailable):
		return model.JoinResult{}, err

	default:
		return model.JoinResult{}, fmt.Errorf("create registration: %w", err)
	}
}

// cancel removes id's registration for eventID when it holds capacity.
// Having nothing to cancel is a successful no-op. The event itself is not
// consulted, so a registration can be canceled after the event closed.
func (r *registrar) cancel(ctx context.Context, id model.Identity, eventID string, capacity model.Capacity) (res model.CancelResult, err error) {
	ctx, span := r.tracer.Start(ctx, "registration.cancel", trace.WithAttributes(
		attribute.String("event.id", eventID),
		attribute.String("registration.capacity", string(capacity)),
	))
	defer func() {
		r.finish(span, "cancel", capacity, err, func() string {
			if res.Canceled {
				return metrics.OutcomeCanceled
			}
			return metrics.OutcomeNoop
		})
	}()

	if err := requireIdentity(id); err != nil {
		return model.CancelResult{}, err
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return model.CancelResult{}, fmt.Errorf("%w: event id is required", ErrInvalidInput)
	}

	removed, err := r.store.Delete(ctx, eventID, id.UserID, capacity)
	switch {
	case err == nil:
		r.log.Info("registration canceled",
			"event_id", eventID, "user_id", id.UserID,
			"capacity", removed.Capacity, "ticket_id", removed.TicketID)
		r.publish(ctx, model.Change{
			EventID:  eventID,
			UserID:   id.UserID,
			Capacity: removed.Capacity,
			Action:   model.ChangeCanceled,
			TicketID: removed.TicketID,
			At:       r.now().UTC(),
		})
		return model.CancelResult{EventID: eventID, Canceled: true}, nil

	case errors.Is(err, repository.ErrNotRegistered):
		r.log.Debug("cancel with nothing to cancel", "event_id", eventID, "user_id", id.UserID)
		return model.CancelResult{EventID: eventID, Canceled: false}, nil

	case errors.Is(err, repository.ErrCapacityMismatch):
		return model.CancelResult{}, fmt.Errorf("%w: registered as %s", ErrCapacityConflict, removed.Capacity)

	case errors.Is(err, repository.ErrUnavailable):
		return model.CancelResult{}, err

	default:
		return model.CancelResult{}, fmt.Errorf("delete registration: %w", err)
	}
}

// publish sends c after commit. Failures are logged and counted only.
func (r *registrar) publish(ctx context.Context, c model.Change) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := r.bus.Publish(ctx, c); err != nil {
		r.metrics.NotifyFailures.Inc()
		r.log.Warn("publish registration change failed",
			"event_id", c.EventID, "user_id", c.UserID, "action", c.Action, "err", err)
	}
}

func (r *registrar) finish(span trace.Span, op string, capacity model.Capacity, err error, success func() string) {
	defer span.End()
	outcome := outcomeFor(err)
	if err == nil {
		outcome = success()
	} else if outcome == metrics.OutcomeError {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.String("registration.outcome", outcome))
	r.metrics.Registrations.WithLabelValues(op, string(capacity), outcome).Inc()
}

func outcomeFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, eligibility.ErrEventClosed),
		errors.Is(err, eligibility.ErrRoleNotEligible),
		errors.Is(err, eligibility.ErrPartnersNotAccepted),
		errors.Is(err, repository.ErrEventFull):
		return metrics.OutcomeDenied
	case errors.Is(err, ErrCapacityConflict):
		return metrics.OutcomeConflict
	default:
		return metrics.OutcomeError
	}
}
