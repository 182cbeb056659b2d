// Package sqlite is the embedded durable backend built on modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/repository"
)

// Store persists registrations, tickets and the local event catalog.
// The (event_id, user_id) primary key backs the one-registration invariant.
type Store struct {
	db *sql.DB
}

// New wraps a handle opened with database.OpenSQLite.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

// commitError marks a failure at COMMIT, after which the outcome is unknown.
type commitError struct{ err error }

func (e *commitError) Error() string { return "commit transaction: " + e.err.Error() }
func (e *commitError) Unwrap() error { return e.err }

func isTransient(err error) bool {
	var se *msqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3lib.SQLITE_BUSY, sqlite3lib.SQLITE_LOCKED:
			return true
		}
	}
	return false
}

// safeToRetry holds for transient failures raised before COMMIT: the
// transaction was rolled back and nothing became visible.
func safeToRetry(err error) bool {
	var ce *commitError
	return isTransient(err) && !errors.As(err, &ce)
}

func isUniqueViolation(err error) bool {
	var se *msqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

// PutEvent upserts a catalog event. Used to seed the local catalog.
func (s *Store) PutEvent(ctx context.Context, e model.Event) error {
	if strings.TrimSpace(e.ID) == "" {
		return errors.New("event id required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (id, title, event_type, starts_at, ends_at, location, venue,
		                    online_link, accepts_partners, status, approved, max_participants)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			event_type = excluded.event_type,
			starts_at = excluded.starts_at,
			ends_at = excluded.ends_at,
			location = excluded.location,
			venue = excluded.venue,
			online_link = excluded.online_link,
			accepts_partners = excluded.accepts_partners,
			status = excluded.status,
			approved = excluded.approved,
			max_participants = excluded.max_participants`,
		e.ID, e.Title, string(e.Type), toMillis(e.StartsAt), toMillis(e.EndsAt), e.Location, e.Venue,
		e.OnlineLink, e.AcceptsPartners, string(e.Status), e.Approved, e.MaxParticipants,
	)
	if err != nil {
		return fmt.Errorf("upsert event: %w", err)
	}
	return nil
}

const eventColumns = `id, title, event_type, starts_at, ends_at, location, venue,
	online_link, accepts_partners, status, approved, max_participants`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (model.Event, error) {
	var (
		e                model.Event
		typ, status      string
		starts, ends     int64
		accepts, approve bool
	)
	if err := row.Scan(&e.ID, &e.Title, &typ, &starts, &ends, &e.Location, &e.Venue,
		&e.OnlineLink, &accepts, &status, &approve, &e.MaxParticipants); err != nil {
		return model.Event{}, err
	}
	e.Type = model.EventType(typ)
	e.Status = model.EventStatus(status)
	e.StartsAt = fromMillis(starts)
	e.EndsAt = fromMillis(ends)
	e.AcceptsPartners = accepts
	e.Approved = approve
	return e, nil
}

func (s *Store) GetEvent(ctx context.Context, id string) (model.Event, error) {
	return repository.RetryRead(ctx, isTransient, func(ctx context.Context) (model.Event, error) {
		e, err := scanEvent(s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return model.Event{}, repository.ErrNotFound
			}
			return model.Event{}, fmt.Errorf("get event: %w", err)
		}
		return e, nil
	})
}

func (s *Store) ListEvents(ctx context.Context) ([]model.Event, error) {
	return repository.RetryRead(ctx, isTransient, func(ctx context.Context) ([]model.Event, error) {
		rows, err := s.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM events ORDER BY starts_at ASC, id ASC`)
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

const registrationColumns = `event_id, user_id, capacity, organization_id, ticket_id, created_at`

func scanRegistration(row rowScanner) (model.Registration, error) {
	var (
		reg      model.Registration
		capacity string
		created  int64
	)
	if err := row.Scan(&reg.EventID, &reg.UserID, &capacity, &reg.OrganizationID, &reg.TicketID, &created); err != nil {
		return model.Registration{}, err
	}
	reg.Capacity = model.Capacity(capacity)
	reg.CreatedAt = fromMillis(created)
	return reg, nil
}

func getRegistration(ctx context.Context, q querier, eventID, userID string) (model.Registration, error) {
	reg, err := scanRegistration(q.QueryRowContext(ctx,
		`SELECT `+registrationColumns+` FROM registrations WHERE event_id = ? AND user_id = ?`,
		eventID, userID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Registration{}, repository.ErrNotRegistered
		}
		return model.Registration{}, fmt.Errorf("get registration: %w", err)
	}
	return reg, nil
}

func (s *Store) Get(ctx context.Context, eventID, userID string) (model.Registration, error) {
	return repository.RetryRead(ctx, isTransient, func(ctx context.Context) (model.Registration, error) {
		return getRegistration(ctx, s.db, eventID, userID)
	})
}

func (s *Store) Create(ctx context.Context, p repository.CreateParams) (model.Registration, error) {
	return repository.RetryMutation(ctx, safeToRetry, isTransient, func(ctx context.Context) (model.Registration, error) {
		return s.create(ctx, p)
	})
}

// create runs the check-and-insert inside one BEGIN IMMEDIATE transaction,
// so no other writer can slip in between the existence check and the insert.
func (s *Store) create(ctx context.Context, p repository.CreateParams) (model.Registration, error) {
	reg := p.Registration

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Registration{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := getRegistration(ctx, tx, reg.EventID, reg.UserID)
	if err == nil {
		return existing, repository.ErrAlreadyRegistered
	}
	if !errors.Is(err, repository.ErrNotRegistered) {
		return model.Registration{}, err
	}

	if p.SeatLimit > 0 && reg.Capacity == model.CapacityParticipant {
		var taken int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM registrations WHERE event_id = ? AND capacity = ?`,
			reg.EventID, string(model.CapacityParticipant),
		).Scan(&taken); err != nil {
			return model.Registration{}, fmt.Errorf("count participants: %w", err)
		}
		if taken >= p.SeatLimit {
			return model.Registration{}, repository.ErrEventFull
		}
	}

	t, err := p.Mint(reg)
	if err != nil {
		return model.Registration{}, err
	}
	if err := insertTicket(ctx, tx, t); err != nil {
		return model.Registration{}, err
	}

	reg.TicketID = t.ID
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO registrations (`+registrationColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		reg.EventID, reg.UserID, string(reg.Capacity), reg.OrganizationID, reg.TicketID, toMillis(reg.CreatedAt),
	); err != nil {
		if isUniqueViolation(err) {
			// The handle is single-connection, so release it before re-reading.
			_ = tx.Rollback()
			existing, gerr := getRegistration(ctx, s.db, reg.EventID, reg.UserID)
			if gerr != nil {
				return model.Registration{}, fmt.Errorf("insert registration: %w", err)
			}
			return existing, repository.ErrAlreadyRegistered
		}
		return model.Registration{}, fmt.Errorf("insert registration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.Registration{}, &commitError{err: err}
	}
	return reg, nil
}

func insertTicket(ctx context.Context, tx *sql.Tx, t model.Ticket) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO tickets (ticket_id, event_id, user_id, capacity, organization_id,
		                     event_title, event_type, event_starts_at, event_ends_at,
		                     event_location, event_venue, event_link, issued_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.EventID, t.UserID, string(t.Capacity), t.OrganizationID,
		t.Event.Title, string(t.Event.Type), toMillis(t.Event.StartsAt), toMillis(t.Event.EndsAt),
		t.Event.Location, t.Event.Venue, t.Event.OnlineLink, toMillis(t.IssuedAt),
	)
	if err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, eventID, userID string, capacity model.Capacity) (model.Registration, error) {
	return repository.RetryMutation(ctx, safeToRetry, isTransient, func(ctx context.Context) (model.Registration, error) {
		return s.delete(ctx, eventID, userID, capacity)
	})
}

func (s *Store) delete(ctx context.Context, eventID, userID string, capacity model.Capacity) (model.Registration, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Registration{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	reg, err := getRegistration(ctx, tx, eventID, userID)
	if err != nil {
		return model.Registration{}, err
	}
	if capacity != "" && reg.Capacity != capacity {
		return reg, repository.ErrCapacityMismatch
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM registrations WHERE event_id = ? AND user_id = ?`, eventID, userID,
	); err != nil {
		return model.Registration{}, fmt.Errorf("delete registration: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.Registration{}, &commitError{err: err}
	}
	return reg, nil
}

func (s *Store) ListByEvent(ctx context.Context, eventID string) ([]model.Registration, error) {
	return repository.RetryRead(ctx, isTransient, func(ctx context.Context) ([]model.Registration, error) {
		rows, err := s.db.QueryContext(ctx,
			`SELECT `+registrationColumns+` FROM registrations WHERE event_id = ? ORDER BY created_at ASC, user_id ASC`,
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

func scanTicket(row rowScanner) (model.Ticket, error) {
	var (
		t                    model.Ticket
		capacity, typ        string
		starts, ends, issued int64
	)
	if err := row.Scan(&t.ID, &t.EventID, &t.UserID, &capacity, &t.OrganizationID,
		&t.Event.Title, &typ, &starts, &ends,
		&t.Event.Location, &t.Event.Venue, &t.Event.OnlineLink, &issued,
		&t.Active); err != nil {
		return model.Ticket{}, err
	}
	t.Capacity = model.Capacity(capacity)
	t.Event.Type = model.EventType(typ)
	t.Event.StartsAt = fromMillis(starts)
	t.Event.EndsAt = fromMillis(ends)
	t.IssuedAt = fromMillis(issued)
	return t, nil
}

func (s *Store) GetTicket(ctx context.Context, ticketID string) (model.Ticket, error) {
	return repository.RetryRead(ctx, isTransient, func(ctx context.Context) (model.Ticket, error) {
		t, err := scanTicket(s.db.QueryRowContext(ctx, ticketSelect+` WHERE t.ticket_id = ?`, ticketID))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return model.Ticket{}, repository.ErrNotFound
			}
			return model.Ticket{}, fmt.Errorf("get ticket: %w", err)
		}
		return t, nil
	})
}

func (s *Store) ListTicketsByUser(ctx context.Context, userID string) ([]model.Ticket, error) {
	return repository.RetryRead(ctx, isTransient, func(ctx context.Context) ([]model.Ticket, error) {
		rows, err := s.db.QueryContext(ctx,
			ticketSelect+` WHERE t.user_id = ? ORDER BY t.issued_at DESC, t.ticket_id DESC`, userID)
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

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var _ repository.Store = (*Store)(nil)
