package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/database"
	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/repository"
	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/repository/storetest"
)

func openStore(t *testing.T, events []model.Event) *Store {
	t.Helper()

	ctx := context.Background()
	db, err := database.OpenSQLite(ctx, filepath.Join(t.TempDir(), "tickets.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	s := New(db)
	t.Cleanup(func() { _ = s.Close() })

	for _, e := range events {
		if err := s.PutEvent(ctx, e); err != nil {
			t.Fatalf("seed event %s: %v", e.ID, err)
		}
	}
	return s
}

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T, events []model.Event) repository.Store {
		return openStore(t, events)
	})
}

func TestPutEventUpserts(t *testing.T) {
	s := openStore(t, storetest.Events())
	ctx := context.Background()

	e, err := s.GetEvent(ctx, "e1")
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	e.Status = model.StatusCanceled
	e.AcceptsPartners = false
	if err := s.PutEvent(ctx, e); err != nil {
		t.Fatalf("PutEvent: %v", err)
	}

	got, err := s.GetEvent(ctx, "e1")
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if got.Status != model.StatusCanceled || got.AcceptsPartners {
		t.Fatalf("expected updated event, got %+v", got)
	}
}

func TestTicketSnapshotRoundTrip(t *testing.T) {
	s := openStore(t, storetest.Events())
	ctx := context.Background()

	ev, err := s.GetEvent(ctx, "e2")
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	reg, err := s.Create(ctx, repository.CreateParams{
		Registration: model.Registration{EventID: "e2", UserID: "u1", Capacity: model.CapacityParticipant, CreatedAt: ev.StartsAt},
		Mint: func(r model.Registration) (model.Ticket, error) {
			return model.Ticket{
				ID: "TKT-SNAP", EventID: r.EventID, UserID: r.UserID, Capacity: r.Capacity,
				Event: ev.Snapshot(), IssuedAt: ev.StartsAt,
			}, nil
		},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	tk, err := s.GetTicket(ctx, reg.TicketID)
	if err != nil {
		t.Fatalf("GetTicket: %v", err)
	}
	want := ev.Snapshot()
	got := tk.Event
	if got.Title != want.Title || got.Type != want.Type || got.OnlineLink != want.OnlineLink ||
		!got.StartsAt.Equal(want.StartsAt) || !got.EndsAt.Equal(want.EndsAt) {
		t.Fatalf("snapshot changed in storage:\n got %+v\nwant %+v", got, want)
	}
}

func TestIsTransient(t *testing.T) {
	if isTransient(errors.New("boom")) {
		t.Fatalf("plain errors are not transient")
	}
	if safeToRetry(&commitError{err: errors.New("boom")}) {
		t.Fatalf("commit failures are never safe to retry")
	}
}
