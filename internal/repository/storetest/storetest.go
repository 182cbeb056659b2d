// Package storetest is a conformance suite every repository backend runs
// from its own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/repository"
)

// Factory opens an empty backend whose catalog holds events.
type Factory func(t *testing.T, events []model.Event) repository.Store

var base = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

// Events returns the catalog fixtures the suite expects.
func Events() []model.Event {
	return []model.Event{
		{
			ID: "e1", Title: "Campus run", Type: model.EventInPerson,
			StartsAt: base, EndsAt: base.Add(2 * time.Hour),
			Location: "Tunis", Venue: "Stadium",
			AcceptsPartners: true, Status: model.StatusUpcoming, Approved: true,
		},
		{
			ID: "e2", Title: "Sleep webinar", Type: model.EventOnline,
			StartsAt: base.Add(24 * time.Hour), EndsAt: base.Add(25 * time.Hour),
			OnlineLink: "https://meet.example.org/sleep",
			Status:     model.StatusUpcoming, Approved: true, MaxParticipants: 2,
		},
	}
}

type minter struct {
	seq atomic.Int64
}

func (m *minter) mint(reg model.Registration) (model.Ticket, error) {
	n := m.seq.Add(1)
	return model.Ticket{
		ID:             fmt.Sprintf("TKT-%04d", n),
		EventID:        reg.EventID,
		UserID:         reg.UserID,
		Capacity:       reg.Capacity,
		OrganizationID: reg.OrganizationID,
		Event:          model.EventSnapshot{Title: "snap", Type: model.EventInPerson, StartsAt: base, EndsAt: base.Add(time.Hour)},
		IssuedAt:       base.Add(time.Duration(n) * time.Second),
	}, nil
}

func (m *minter) params(eventID, userID string, capacity model.Capacity, seatLimit int) repository.CreateParams {
	reg := model.Registration{
		EventID:   eventID,
		UserID:    userID,
		Capacity:  capacity,
		CreatedAt: base.Add(time.Duration(m.seq.Load()) * time.Second),
	}
	if capacity == model.CapacityPartner {
		reg.OrganizationID = "org-" + userID
	}
	return repository.CreateParams{Registration: reg, SeatLimit: seatLimit, Mint: m.mint}
}

// Run executes the suite against newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("CatalogLookup", func(t *testing.T) { testCatalog(t, newStore) })
	t.Run("CreateGetDelete", func(t *testing.T) { testCreateGetDelete(t, newStore) })
	t.Run("ConflictReturnsExisting", func(t *testing.T) { testConflict(t, newStore) })
	t.Run("ConcurrentCreateSingleWinner", func(t *testing.T) { testConcurrentCreate(t, newStore) })
	t.Run("CreateRacingDelete", func(t *testing.T) { testCreateRacingDelete(t, newStore) })
	t.Run("RosterOrderStableOnTies", func(t *testing.T) { testRosterOrder(t, newStore) })
	t.Run("DeleteCapacityMismatch", func(t *testing.T) { testDeleteMismatch(t, newStore) })
	t.Run("RejoinIssuesNewTicket", func(t *testing.T) { testRejoin(t, newStore) })
	t.Run("SeatLimit", func(t *testing.T) { testSeatLimit(t, newStore) })
	t.Run("MintFailureRollsBack", func(t *testing.T) { testMintFailure(t, newStore) })
	t.Run("CanceledContextCreatesNothing", func(t *testing.T) { testCanceledContext(t, newStore) })
	t.Run("ListTicketsByUser", func(t *testing.T) { testListTickets(t, newStore) })
}

func testCatalog(t *testing.T, newStore Factory) {
	s := newStore(t, Events())
	ctx := context.Background()

	e, err := s.GetEvent(ctx, "e2")
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if e.Type != model.EventOnline || e.MaxParticipants != 2 || e.OnlineLink == "" {
		t.Fatalf("unexpected event %+v", e)
	}
	if !e.StartsAt.Equal(base.Add(24 * time.Hour)) {
		t.Fatalf("starts_at not preserved: %s", e.StartsAt)
	}
	if _, err := s.GetEvent(ctx, "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	list, err := s.ListEvents(ctx)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(list) != 2 || list[0].ID != "e1" {
		t.Fatalf("expected e1 first of 2, got %+v", list)
	}
}

func testCreateGetDelete(t *testing.T, newStore Factory) {
	s := newStore(t, Events())
	ctx := context.Background()
	m := &minter{}

	if _, err := s.Get(ctx, "e1", "u1"); !errors.Is(err, repository.ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}

	reg, err := s.Create(ctx, m.params("e1", "u1", model.CapacityParticipant, 0))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if reg.TicketID == "" {
		t.Fatalf("expected ticket id on registration")
	}

	got, err := s.Get(ctx, "e1", "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Capacity != model.CapacityParticipant || got.TicketID != reg.TicketID {
		t.Fatalf("unexpected registration %+v", got)
	}

	tk, err := s.GetTicket(ctx, reg.TicketID)
	if err != nil {
		t.Fatalf("GetTicket: %v", err)
	}
	if !tk.Active || tk.UserID != "u1" || tk.EventID != "e1" {
		t.Fatalf("unexpected ticket %+v", tk)
	}

	if _, err := s.Delete(ctx, "e1", "u1", model.CapacityParticipant); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "e1", "u1"); !errors.Is(err, repository.ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered after delete, got %v", err)
	}
	if _, err := s.Delete(ctx, "e1", "u1", model.CapacityParticipant); !errors.Is(err, repository.ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered on second delete, got %v", err)
	}

	tk, err = s.GetTicket(ctx, reg.TicketID)
	if err != nil {
		t.Fatalf("ticket must survive cancel: %v", err)
	}
	if tk.Active {
		t.Fatalf("expected inactive ticket after cancel")
	}
	if _, err := s.GetTicket(ctx, "TKT-missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testConflict(t *testing.T, newStore Factory) {
	s := newStore(t, Events())
	ctx := context.Background()
	m := &minter{}

	first, err := s.Create(ctx, m.params("e1", "u1", model.CapacityPartner, 0))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	existing, err := s.Create(ctx, m.params("e1", "u1", model.CapacityParticipant, 0))
	if !errors.Is(err, repository.ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
	if existing.Capacity != model.CapacityPartner || existing.TicketID != first.TicketID {
		t.Fatalf("expected existing partner registration, got %+v", existing)
	}
	if existing.OrganizationID != "org-u1" {
		t.Fatalf("expected organization preserved, got %q", existing.OrganizationID)
	}
}

func testConcurrentCreate(t *testing.T, newStore Factory) {
	s := newStore(t, Events())
	ctx := context.Background()
	m := &minter{}

	const n = 24
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		conflicts atomic.Int32
		ticketIDs sync.Map
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reg, err := s.Create(ctx, m.params("e1", "same-user", model.CapacityParticipant, 0))
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, repository.ErrAlreadyRegistered):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
				return
			}
			ticketIDs.Store(reg.TicketID, true)
		}()
	}
	wg.Wait()

	if successes.Load() != 1 || conflicts.Load() != n-1 {
		t.Fatalf("expected 1 success and %d conflicts, got %d and %d", n-1, successes.Load(), conflicts.Load())
	}
	distinct := 0
	ticketIDs.Range(func(_, _ any) bool { distinct++; return true })
	if distinct != 1 {
		t.Fatalf("expected every caller to see one ticket id, saw %d", distinct)
	}

	regs, err := s.ListByEvent(ctx, "e1")
	if err != nil {
		t.Fatalf("ListByEvent: %v", err)
	}
	if len(regs) != 1 {
		t.Fatalf("expected exactly one registration, got %d", len(regs))
	}
	tickets, err := s.ListTicketsByUser(ctx, "same-user")
	if err != nil {
		t.Fatalf("ListTicketsByUser: %v", err)
	}
	if len(tickets) != 1 {
		t.Fatalf("expected exactly one persisted ticket, got %d", len(tickets))
	}
}

func testCreateRacingDelete(t *testing.T, newStore Factory) {
	s := newStore(t, Events())
	ctx := context.Background()
	m := &minter{}

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := s.Create(ctx, m.params("e1", "racer", model.CapacityParticipant, 0))
			if err != nil && !errors.Is(err, repository.ErrAlreadyRegistered) {
				t.Errorf("Create: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			_, err := s.Delete(ctx, "e1", "racer", model.CapacityParticipant)
			if err != nil && !errors.Is(err, repository.ErrNotRegistered) {
				t.Errorf("Delete: %v", err)
			}
		}()
	}
	wg.Wait()

	reg, err := s.Get(ctx, "e1", "racer")
	registered := err == nil
	if err != nil && !errors.Is(err, repository.ErrNotRegistered) {
		t.Fatalf("Get: %v", err)
	}

	tickets, err := s.ListTicketsByUser(ctx, "racer")
	if err != nil {
		t.Fatalf("ListTicketsByUser: %v", err)
	}
	var active []model.Ticket
	for _, tk := range tickets {
		if tk.Active {
			active = append(active, tk)
		}
	}
	switch {
	case registered && (len(active) != 1 || active[0].ID != reg.TicketID):
		t.Fatalf("registered with ticket %s but active tickets are %+v", reg.TicketID, active)
	case !registered && len(active) != 0:
		t.Fatalf("not registered but %d tickets are active", len(active))
	}

	regs, err := s.ListByEvent(ctx, "e1")
	if err != nil {
		t.Fatalf("ListByEvent: %v", err)
	}
	want := 0
	if registered {
		want = 1
	}
	if len(regs) != want {
		t.Fatalf("expected %d roster entries, got %d", want, len(regs))
	}

	// A final cancel always leaves the pair unregistered.
	if _, err := s.Delete(ctx, "e1", "racer", model.CapacityParticipant); err != nil && !errors.Is(err, repository.ErrNotRegistered) {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "e1", "racer"); !errors.Is(err, repository.ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered after final cancel, got %v", err)
	}
}

func testRosterOrder(t *testing.T, newStore Factory) {
	s := newStore(t, Events())
	ctx := context.Background()
	m := &minter{}

	// Same creation instant for everyone, inserted out of order.
	for _, uid := range []string{"u-c", "u-a", "u-d", "u-b"} {
		p := m.params("e1", uid, model.CapacityParticipant, 0)
		p.Registration.CreatedAt = base
		if _, err := s.Create(ctx, p); err != nil {
			t.Fatalf("Create %s: %v", uid, err)
		}
	}
	late := m.params("e1", "u-0", model.CapacityParticipant, 0)
	late.Registration.CreatedAt = base.Add(time.Minute)
	if _, err := s.Create(ctx, late); err != nil {
		t.Fatalf("Create: %v", err)
	}

	want := []string{"u-a", "u-b", "u-c", "u-d", "u-0"}
	for round := 0; round < 3; round++ {
		regs, err := s.ListByEvent(ctx, "e1")
		if err != nil {
			t.Fatalf("ListByEvent: %v", err)
		}
		if len(regs) != len(want) {
			t.Fatalf("expected %d registrations, got %d", len(want), len(regs))
		}
		for i, reg := range regs {
			if reg.UserID != want[i] {
				t.Fatalf("position %d: got %s, want %s", i, reg.UserID, want[i])
			}
		}
	}
}

func testDeleteMismatch(t *testing.T, newStore Factory) {
	s := newStore(t, Events())
	ctx := context.Background()
	m := &minter{}

	if _, err := s.Create(ctx, m.params("e1", "u1", model.CapacityParticipant, 0)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	reg, err := s.Delete(ctx, "e1", "u1", model.CapacityPartner)
	if !errors.Is(err, repository.ErrCapacityMismatch) {
		t.Fatalf("expected ErrCapacityMismatch, got %v", err)
	}
	if reg.Capacity != model.CapacityParticipant {
		t.Fatalf("expected existing participant returned, got %+v", reg)
	}
	if _, err := s.Get(ctx, "e1", "u1"); err != nil {
		t.Fatalf("registration must be untouched: %v", err)
	}
}

func testRejoin(t *testing.T, newStore Factory) {
	s := newStore(t, Events())
	ctx := context.Background()
	m := &minter{}

	first, err := s.Create(ctx, m.params("e1", "u1", model.CapacityPartner, 0))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Delete(ctx, "e1", "u1", model.CapacityPartner); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	second, err := s.Create(ctx, m.params("e1", "u1", model.CapacityParticipant, 0))
	if err != nil {
		t.Fatalf("re-Create: %v", err)
	}
	if second.TicketID == first.TicketID {
		t.Fatalf("expected a new ticket on rejoin")
	}

	old, err := s.GetTicket(ctx, first.TicketID)
	if err != nil {
		t.Fatalf("GetTicket old: %v", err)
	}
	if old.Active {
		t.Fatalf("old ticket must be inactive after rejoin")
	}
	cur, err := s.GetTicket(ctx, second.TicketID)
	if err != nil {
		t.Fatalf("GetTicket new: %v", err)
	}
	if !cur.Active || cur.Capacity != model.CapacityParticipant {
		t.Fatalf("unexpected new ticket %+v", cur)
	}
}

func testSeatLimit(t *testing.T, newStore Factory) {
	s := newStore(t, Events())
	ctx := context.Background()
	m := &minter{}

	for _, u := range []string{"u1", "u2"} {
		if _, err := s.Create(ctx, m.params("e2", u, model.CapacityParticipant, 2)); err != nil {
			t.Fatalf("Create %s: %v", u, err)
		}
	}
	if _, err := s.Create(ctx, m.params("e2", "u3", model.CapacityParticipant, 2)); !errors.Is(err, repository.ErrEventFull) {
		t.Fatalf("expected ErrEventFull, got %v", err)
	}
	if _, err := s.Create(ctx, m.params("e2", "u4", model.CapacityPartner, 2)); err != nil {
		t.Fatalf("partners do not take seats: %v", err)
	}
	if _, err := s.Delete(ctx, "e2", "u1", model.CapacityParticipant); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Create(ctx, m.params("e2", "u3", model.CapacityParticipant, 2)); err != nil {
		t.Fatalf("freed seat should be bookable: %v", err)
	}
}

func testMintFailure(t *testing.T, newStore Factory) {
	s := newStore(t, Events())
	ctx := context.Background()

	boom := errors.New("mint failed")
	p := repository.CreateParams{
		Registration: model.Registration{EventID: "e1", UserID: "u1", Capacity: model.CapacityParticipant, CreatedAt: base},
		Mint:         func(model.Registration) (model.Ticket, error) { return model.Ticket{}, boom },
	}
	if _, err := s.Create(ctx, p); !errors.Is(err, boom) {
		t.Fatalf("expected mint error, got %v", err)
	}
	if _, err := s.Get(ctx, "e1", "u1"); !errors.Is(err, repository.ErrNotRegistered) {
		t.Fatalf("expected no registration after failed mint, got %v", err)
	}
}

func testCanceledContext(t *testing.T, newStore Factory) {
	s := newStore(t, Events())
	m := &minter{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Create(ctx, m.params("e1", "u1", model.CapacityParticipant, 0)); err == nil {
		t.Fatalf("expected error with canceled context")
	}
	if _, err := s.Get(context.Background(), "e1", "u1"); !errors.Is(err, repository.ErrNotRegistered) {
		t.Fatalf("expected no registration, got %v", err)
	}
	tickets, err := s.ListTicketsByUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ListTicketsByUser: %v", err)
	}
	if len(tickets) != 0 {
		t.Fatalf("expected no orphan ticket, got %d", len(tickets))
	}
}

func testListTickets(t *testing.T, newStore Factory) {
	s := newStore(t, Events())
	ctx := context.Background()
	m := &minter{}

	if _, err := s.Create(ctx, m.params("e1", "u1", model.CapacityParticipant, 0)); err != nil {
		t.Fatalf("Create e1: %v", err)
	}
	if _, err := s.Create(ctx, m.params("e2", "u1", model.CapacityParticipant, 0)); err != nil {
		t.Fatalf("Create e2: %v", err)
	}
	if _, err := s.Create(ctx, m.params("e2", "u2", model.CapacityParticipant, 0)); err != nil {
		t.Fatalf("Create other user: %v", err)
	}

	tickets, err := s.ListTicketsByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("ListTicketsByUser: %v", err)
	}
	if len(tickets) != 2 {
		t.Fatalf("expected 2 tickets, got %d", len(tickets))
	}
	if tickets[0].EventID != "e2" {
		t.Fatalf("expected newest ticket first, got %+v", tickets[0])
	}
	for _, tk := range tickets {
		if !tk.Active {
			t.Fatalf("expected active ticket %s", tk.ID)
		}
	}
}
