// Package postgres implements the repository contracts on PostgreSQL using
// pgx directly (no ORM).
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/repository"
)

// Store persists registrations and tickets and reads the catalog's events
// table.
type Store struct {
	db *pgxpool.Pool
}

// New constructs a Store on an open pool.
func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// isTransient reports connection-level failures and serialization/deadlock
// aborts, all of which may succeed on a second attempt.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "57P03":
			return true
		}
		return false
	}
	var connErr *pgconn.ConnectError
	return errors.As(err, &connErr)
}

// safeToRetry holds only when pgx guarantees nothing was sent to the server,
// or when the server aborted the transaction itself.
func safeToRetry(err error) bool {
	if pgconn.SafeToRetry(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

const eventColumns = `id, title, event_type, starts_at, ends_at, location, venue,
	online_link, accepts_partners, status, approved, max_participants`

func scanEvent(row pgx.Row) (model.Event, error) {
	var (
		e           model.Event
		typ, status string
	)
	if err := row.Scan(&e.ID, &e.Title, &typ, &e.StartsAt, &e.EndsAt, &e.Location, &e.Venue,
		&e.OnlineLink, &e.AcceptsPartners, &status, &e.Approved, &e.MaxParticipants); err != nil {
		return model.Event{}, err
	}
	e.Type = model.EventType(typ)
	e.Status = model.EventStatus(status)
	e.StartsAt = e.StartsAt.UTC()
	e.EndsAt = e.EndsAt.UTC()
	return e, nil
}

// GetEvent returns a single catalog event or ErrNotFound.
func (s *Store) GetEvent(ctx context.Context, id string) (model.Event, error) {
	return repository.RetryRead(ctx, isTransient, func(ctx context.Context) (model.Event, error) {
		e, err := scanEvent(s.db.QueryRow(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return model.Event{}, repository.ErrNotFound
			}
			return model.Event{}, fmt.Errorf("get event: %w", err)
		}
		return e, nil
	})
}

// ListEvents returns catalog events ordered by start time.
func (s *Store) ListEvents(ctx context.Context) ([]model.Event, error) {
	return repository.RetryRead(ctx, isTransient, func(ctx context.Context) ([]model.Event, error) {
		rows, err := s.db.Query(ctx, `SELECT `+eventColumns+` FROM events ORDER BY starts_at ASC, id ASC`)
		if err != nil {
			return nil, fmt.Errorf("list events: %w", err)
		}
		defer rows.Close()

		var events []model.Event
		for rows.Next() {
			e, err := scanEvent(rows)
			if err != nil {
				return nil, fmt.Errorf("scan event: %w", err)
			}
			events = append(events, e)
		}
		return events, rows.Err()
	})
}

// PutEvent upserts a catalog event. The catalog owns this table; this is
// only used to seed local environments.
func (s *Store) PutEvent(ctx context.Context, e model.Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			event_type = EXCLUDED.event_type,
			starts_at = EXCLUDED.starts_at,
			ends_at = EXCLUDED.ends_at,
			location = EXCLUDED.location,
			venue = EXCLUDED.venue,
			online_link = EXCLUDED.online_link,
			accepts_partners = EXCLUDED.accepts_partners,
			status = EXCLUDED.status,
			approved = EXCLUDED.approved,
			max_participants = EXCLUDED.max_participants`,
		e.ID, e.Title, string(e.Type), e.StartsAt, e.EndsAt, e.Location, e.Venue,
		e.OnlineLink, e.AcceptsPartners, string(e.Status), e.Approved, e.MaxParticipants,
	)
	if err != nil {
		return fmt.Errorf("upsert event: %w", err)
	}
	return nil
}

const registrationColumns = `event_id, user_id, capacity, organization_id, ticket_id, created_at`

func scanRegistration(row pgx.Row) (model.Registration, error) {
	var (
		reg      model.Registration
		capacity string
	)
	if err := row.Scan(&reg.EventID, &reg.UserID, &capacity, &reg.OrganizationID, &reg.TicketID, &reg.CreatedAt); err != nil {
		return model.Registration{}, err
	}
	reg.Capacity = model.Capacity(capacity)
	reg.CreatedAt = reg.CreatedAt.UTC()
	return reg, nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getRegistration(ctx context.Context, q querier, eventID, userID string, lock bool) (model.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations WHERE event_id = $1 AND user_id = $2`
	if lock {
		query += ` FOR UPDATE`
	}
	reg, err := scanRegistration(q.QueryRow(ctx, query, eventID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Registration{}, repository.ErrNotRegistered
		}
		return model.Registration{}, fmt.Errorf("get registration: %w", err)
	}
	return reg, nil
}

// Get returns the pair's registration or ErrNotRegistered.
func (s *Store) Get(ctx context.Context, eventID, userID string) (model.Registration, error) {
	return repository.RetryRead(ctx, isTransient, func(ctx context.Context) (model.Registration, error) {
		return getRegistration(ctx, s.db, eventID, userID, false)
	})
}

// Create performs the concurrency-safe check-and-create.
//
// The (event_id, user_id) primary key is the final arbiter: the registration
// row is written with INSERT ... ON CONFLICT DO NOTHING, so of two racing
// transactions exactly one inserts and the other sees zero rows affected
// once the first commits. The loser rolls back its ticket and reports the
// winner's registration.
//
// When a seat limit applies the event row is locked with SELECT ... FOR
// UPDATE first. That serialises all participant joins for the event, so the
// seat count read inside the transaction cannot go stale before the insert.
func (s *Store) Create(ctx context.Context, p repository.CreateParams) (model.Registration, error) {
	// A conflicting row can vanish between our failed insert and the
	// follow-up read if its owner cancels; one more pass settles it.
	for attempt := 0; ; attempt++ {
		reg, err := repository.RetryMutation(ctx, safeToRetry, isTransient, func(ctx context.Context) (model.Registration, error) {
			return s.create(ctx, p)
		})
		if !errors.Is(err, errLostRace) {
			return reg, err
		}
		existing, err := s.Get(ctx, p.Registration.EventID, p.Registration.UserID)
		if err == nil {
			return existing, repository.ErrAlreadyRegistered
		}
		if !errors.Is(err, repository.ErrNotRegistered) || attempt >= 2 {
			return model.Registration{}, err
		}
	}
}

var errLostRace = errors.New("registration inserted concurrently")

func (s *Store) create(ctx context.Context, p repository.CreateParams) (reg model.Registration, err error) {
	reg = p.Registration

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return model.Registration{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if p.SeatLimit > 0 && reg.Capacity == model.CapacityParticipant {
		var id string
		err = tx.QueryRow(ctx, `SELECT id FROM events WHERE id = $1 FOR UPDATE`, reg.EventID).Scan(&id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return model.Registration{}, repository.ErrNotFound
			}
			return model.Registration{}, fmt.Errorf("lock event row: %w", err)
		}
	}

	existing, gerr := getRegistration(ctx, tx, reg.EventID, reg.UserID, false)
	if gerr == nil {
		err = repository.ErrAlreadyRegistered
		return existing, err
	}
	if !errors.Is(gerr, repository.ErrNotRegistered) {
		err = gerr
		return model.Registration{}, err
	}

	if p.SeatLimit > 0 && reg.Capacity == model.CapacityParticipant {
		var taken int
		err = tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM registrations WHERE event_id = $1 AND capacity = $2`,
			reg.EventID, string(model.CapacityParticipant),
		).Scan(&taken)
		if err != nil {
			return model.Registration{}, fmt.Errorf("count participants: %w", err)
		}
		if taken >= p.SeatLimit {
			err = repository.ErrEventFull
			return model.Registration{}, err
		}
	}

	t, err := p.Mint(reg)
	if err != nil {
		return model.Registration{}, err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO tickets (ticket_id, event_id, user_id, capacity, organization_id,
		                     event_title, event_type, event_starts_at, event_ends_at,
		                     event_location, event_venue, event_link, issued_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		t.ID, t.EventID, t.UserID, string(t.Capacity), t.OrganizationID,
		t.Event.Title, string(t.Event.Type), t.Event.StartsAt, t.Event.EndsAt,
		t.Event.Location, t.Event.Venue, t.Event.OnlineLink, t.IssuedAt,
	)
	if err != nil {
		return model.Registration{}, fmt.Errorf("insert ticket: %w", err)
	}

	reg.TicketID = t.ID
	tag, err := tx.Exec(ctx,
		`INSERT INTO registrations (`+registrationColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (event_id, user_id) DO NOTHING`,
		reg.EventID, reg.UserID, string(reg.Capacity), reg.OrganizationID, reg.TicketID, reg.CreatedAt,
	)
	if err != nil {
		return model.Registration{}, fmt.Errorf("insert registration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		err = errLostRace
		return model.Registration{}, err
	}

	if err = tx.Commit(ctx); err != nil {
		return model.Registration{}, fmt.Errorf("commit transaction: %w", err)
	}
	return reg, nil
}

// Delete removes the pair's registration when it holds the given capacity.
// The row is locked before the capacity check so a concurrent create or
// delete observes either the full pre-state or the full post-state.
func (s *Store) Delete(ctx context.Context, eventID, userID string, capacity model.Capacity) (model.Registration, error) {
	return repository.RetryMutation(ctx, safeToRetry, isTransient, func(ctx context.Context) (model.Registration, error) {
		return s.delete(ctx, eventID, userID, capacity)
	})
}

func (s *Store) delete(ctx context.Context, eventID, userID string, capacity model.Capacity) (reg model.Registration, err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return model.Registration{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	reg, err = getRegistration(ctx, tx, eventID, userID, true)
	if err != nil {
		return model.Registration{}, err
	}
	if capacity != "" && reg.Capacity != capacity {
		err = repository.ErrCapacityMismatch
		return reg, err
	}
	if _, err = tx.Exec(ctx, `DELETE FROM registrations WHERE event_id = $1 AND user_id = $2`, eventID, userID); err != nil {
		return model.Registration{}, fmt.Errorf("delete registration: %w", err)
	}
	if err = tx.Commit(ctx); err != nil {
		return model.Registration{}, fmt.Errorf("commit transaction: %w", err)
	}
	return reg, nil
}

// ListByEvent returns all registrations for a given event.
func (s *Store) ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error) {
	return repository.RetryRead(ctx, isTransient, func(ctx context.Context) ([]model.Registration, error) {
		rows, err := s.db.Query(ctx,
			`SELECT `+registrationColumns+`
			 FROM registrations
			 WHERE event_id = $1
			 ORDER BY created_at ASC, user_id COLLATE "C" ASC`,
			eventID,
		)
		if err != nil {
			return nil, fmt.Errorf("list registrations: %w", err)
		}
		defer rows.Close()

		regs := make([]model.Registration, 0)
		for rows.Next() {
			reg, err := scanRegistration(rows)
			if err != nil {
				return nil, fmt.Errorf("scan registration: %w", err)
			}
			regs = append(regs, reg)
		}
		return regs, rows.Err()
	})
}

const ticketSelect = `
	SELECT t.ticket_id, t.event_id, t.user_id, t.capacity, t.organization_id,
	       t.event_title, t.event_type, t.event_starts_at, t.event_ends_at,
	       t.event_location, t.event_venue, t.event_link, t.issued_at,
	       r.ticket_id IS NOT NULL
	FROM tickets t
	LEFT JOIN registrations r ON r.ticket_id = t.ticket_id`

func scanTicket(row pgx.Row) (model.Ticket, error) {
	var (
		t             model.Ticket
		capacity, typ string
	)
	if err := row.Scan(&t.ID, &t.EventID, &t.UserID, &capacity, &t.OrganizationID,
		&t.Event.Title, &typ, &t.Event.StartsAt, &t.Event.EndsAt,
		&t.Event.Location, &t.Event.Venue, &t.Event.OnlineLink, &t.IssuedAt,
		&t.Active); err != nil {
		return model.Ticket{}, err
	}
	t.Capacity = model.Capacity(capacity)
	t.Event.Type = model.EventType(typ)
	t.Event.StartsAt = t.Event.StartsAt.UTC()
	t.Event.EndsAt = t.Event.EndsAt.UTC()
	t.IssuedAt = t.IssuedAt.UTC()
	return t, nil
}

// GetTicket returns a ticket with its active flag, or ErrNotFound.
func (s *Store) GetTicket(ctx context.Context, ticketID string) (model.Ticket, error) {
	return repository.RetryRead(ctx, isTransient, func(ctx context.Context) (model.Ticket, error) {
		t, err := scanTicket(s.db.QueryRow(ctx, ticketSelect+` WHERE t.ticket_id = $1`, ticketID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return model.Ticket{}, repository.ErrNotFound
			}
			return model.Ticket{}, fmt.Errorf("get ticket: %w", err)
		}
		return t, nil
	})
}

// ListTicketsByUser returns a user's tickets, newest first.
func (s *Store) ListTicketsByUser(ctx context.Context, userID string) ([]model.Ticket, error) {
	return repository.RetryRead(ctx, isTransient, func(ctx context.Context) ([]model.Ticket, error) {
		rows, err := s.db.Query(ctx,
			ticketSelect+` WHERE t.user_id = $1 ORDER BY t.issued_at DESC, t.ticket_id DESC`, userID)
		if err != nil {
			return nil, fmt.Errorf("list tickets: %w", err)
		}
		defer rows.Close()

		tickets := make([]model.Ticket, 0)
		for rows.Next() {
			t, err := scanTicket(rows)
			if err != nil {
				return nil, fmt.Errorf("scan ticket: %w", err)
			}
			tickets = append(tickets, t)
		}
		return tickets, rows.Err()
	})
}

// Close releases the pool.
func (s *Store) Close() error {
	s.db.Close()
	return nil
}

var _ repository.Store = (*Store)(nil)
