package catalog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/repository/memory"
)

const sample = `
events:
  - id: e1
    title: Mental Health Awareness Day
    type: in-person
    starts_at: 2026-06-01T09:00:00Z
    ends_at: 2026-06-01T17:00:00Z
    venue: Main Hall
    location: Ljubljana
    accepts_partners: true
    approved: true
    max_participants: 120
  - id: e2
    title: Online Q&A
    type: online
    starts_at: 2026-06-02T18:00:00+02:00
    ends_at: 2026-06-02T19:30:00+02:00
    online_link: https://meet.example.org/qa
    status: ongoing
    approved: true
`

func TestParse(t *testing.T) {
	events, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	e1 := events[0]
	if e1.Status != model.StatusUpcoming {
		t.Fatalf("expected default status upcoming, got %q", e1.Status)
	}
	if !e1.AcceptsPartners || e1.MaxParticipants != 120 || e1.Venue != "Main Hall" {
		t.Fatalf("unexpected e1 %+v", e1)
	}

	e2 := events[1]
	want := time.Date(2026, 6, 2, 16, 0, 0, 0, time.UTC)
	if !e2.StartsAt.Equal(want) || e2.StartsAt.Location() != time.UTC {
		t.Fatalf("expected UTC start %s, got %s", want, e2.StartsAt)
	}
	if e2.Type != model.EventOnline || e2.Status != model.StatusOngoing {
		t.Fatalf("unexpected e2 %+v", e2)
	}
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"unknown key": `
events:
  - id: e1
    title: T
    type: online
    starts_at: 2026-06-01T09:00:00Z
    ends_at: 2026-06-01T10:00:00Z
    colour: red`,
		"bad type": `
events:
  - id: e1
    title: T
    type: hybrid
    starts_at: 2026-06-01T09:00:00Z
    ends_at: 2026-06-01T10:00:00Z`,
		"ends before start": `
events:
  - id: e1
    title: T
    type: online
    starts_at: 2026-06-01T09:00:00Z
    ends_at: 2026-06-01T08:00:00Z`,
		"duplicate id": `
events:
  - id: e1
    title: T
    type: online
    starts_at: 2026-06-01T09:00:00Z
    ends_at: 2026-06-01T10:00:00Z
  - id: e1
    title: T2
    type: online
    starts_at: 2026-06-01T09:00:00Z
    ends_at: 2026-06-01T10:00:00Z`,
		"missing id": `
events:
  - title: T
    type: online
    starts_at: 2026-06-01T09:00:00Z
    ends_at: 2026-06-01T10:00:00Z`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestParseEmpty(t *testing.T) {
	events, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events")
	}
}

func TestLoadFileAndSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	events, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	store := memory.New()
	if err := Seed(context.Background(), store, events); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	got, err := store.GetEvent(context.Background(), "e2")
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if got.OnlineLink != "https://meet.example.org/qa" {
		t.Fatalf("unexpected seeded event %+v", got)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil || !strings.Contains(err.Error(), "read seed file") {
		t.Fatalf("expected read error, got %v", err)
	}
}
