package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.Registrations.WithLabelValues("join", "participant", OutcomeCreated).Inc()
	m.TicketsIssued.WithLabelValues("participant").Inc()
	m.NotifyDropped.Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	text := string(body)

	for _, want := range []string{
		`events_registration_operations_total{capacity="participant",operation="join",outcome="created"} 1`,
		`events_tickets_issued_total{capacity="participant"} 1`,
		`events_change_notifications_dropped_total 1`,
		`go_goroutines`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}

func TestNewUsesPrivateRegistries(t *testing.T) {
	// Two instances must not collide on registration.
	a, b := New(), New()
	if a.Registry() == b.Registry() {
		t.Fatalf("expected separate registries")
	}
}
