package handler_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/auth"
	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/handler"
	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/metrics"
	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/notify"
	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/repository/memory"
	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/service"
	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/ticket"
)

const jwtSecret = "handler-test-secret"

var now = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type caller struct {
	id, role, org string
}

var (
	student = caller{id: "stu-1", role: "student"}
	memberA = caller{id: "A", role: "association_member", org: "O1"}
	admin   = caller{id: "adm-1", role: "admin"}
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()

	e1 := model.Event{
		ID: "E1", Title: "Community Day", Type: model.EventInPerson,
		StartsAt: now.AddDate(0, 0, 7), EndsAt: now.AddDate(0, 0, 7).Add(4 * time.Hour),
		Venue: "Main Hall", Location: "Ljubljana",
		AcceptsPartners: true, Status: model.StatusUpcoming, Approved: true,
	}
	closed := e1
	closed.ID = "closed"
	closed.Status = model.StatusPast
	noPartners := e1
	noPartners.ID = "no-partners"
	noPartners.AcceptsPartners = false

	m := metrics.New()
	svc := service.New(service.Deps{
		Store:   memory.New(e1, closed, noPartners),
		Issuer:  ticket.NewIssuer("k", func() time.Time { return now }),
		Bus:     notify.NewHub(),
		Metrics: m,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:     func() time.Time { return now },
	})

	ts := httptest.NewServer(handler.NewRouter(handler.RouterConfig{
		Services: svc,
		Auth:     auth.Options{Secret: jwtSecret, Issuer: "test", DevHeaders: true},
		Metrics:  m.Handler(),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}))
	t.Cleanup(ts.Close)
	return ts
}

func doReq(t *testing.T, baseURL, method, path string, who *caller, body any) (int, []byte) {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json marshal: %v", err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, baseURL+path, rdr)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if who != nil {
		req.Header.Set("X-Debug-User-ID", who.id)
		req.Header.Set("X-Debug-Role", who.role)
		if who.org != "" {
			req.Header.Set("X-Debug-Org", who.org)
		}
	}

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()

	respBody, _ := io.ReadAll(res.Body)
	return res.StatusCode, respBody
}

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		t.Fatalf("decode %s: %v", string(body), err)
	}
	return v
}

func expectError(t *testing.T, st int, body []byte, wantStatus int, wantCode string) {
	t.Helper()
	if st != wantStatus {
		t.Fatalf("expected %d, got %d body=%s", wantStatus, st, string(body))
	}
	e := decode[model.ErrorResponse](t, body)
	if e.Error != wantCode {
		t.Fatalf("expected error code %q, got %q", wantCode, e.Error)
	}
}

func TestHTTP_EndToEnd_PartnerThenParticipant(t *testing.T) {
	ts := newServer(t)

	// 1) Partner join issues a partner ticket
	st, body := doReq(t, ts.URL, "POST", "/events/E1/partnership", &memberA, nil)
	if st != http.StatusCreated {
		t.Fatalf("expected 201 partner join, got %d body=%s", st, string(body))
	}
	partner := decode[model.Ticket](t, body)
	if partner.Capacity != model.CapacityPartner || partner.OrganizationID != "O1" || !partner.Active {
		t.Fatalf("unexpected partner ticket %+v", partner)
	}

	// 2) Repeat is idempotent
	st, body = doReq(t, ts.URL, "POST", "/events/E1/partnership", &memberA, nil)
	if st != http.StatusOK {
		t.Fatalf("expected 200 repeat join, got %d body=%s", st, string(body))
	}
	if again := decode[model.Ticket](t, body); again.ID != partner.ID {
		t.Fatalf("repeat join returned %s, want %s", again.ID, partner.ID)
	}

	// 3) Participant join conflicts
	st, body = doReq(t, ts.URL, "POST", "/events/E1/participation", &memberA, nil)
	expectError(t, st, body, http.StatusConflict, handler.CodeCapacityConflict)

	// 4) Status reflects the partner registration
	st, body = doReq(t, ts.URL, "GET", "/events/E1/status", &memberA, nil)
	if st != http.StatusOK {
		t.Fatalf("expected 200 status, got %d", st)
	}
	if s := decode[model.Status](t, body); !s.Registered || s.Capacity != model.CapacityPartner {
		t.Fatalf("unexpected status %+v", s)
	}

	// 5) Cancel partner, then join as participant
	st, body = doReq(t, ts.URL, "DELETE", "/events/E1/partnership", &memberA, nil)
	if st != http.StatusOK || !decode[model.CancelResult](t, body).Canceled {
		t.Fatalf("expected canceled ack, got %d body=%s", st, string(body))
	}
	st, body = doReq(t, ts.URL, "POST", "/events/E1/participation", &memberA, nil)
	if st != http.StatusCreated {
		t.Fatalf("expected 201 participant join, got %d body=%s", st, string(body))
	}
	participant := decode[model.Ticket](t, body)
	if participant.Capacity != model.CapacityParticipant || participant.ID == partner.ID {
		t.Fatalf("unexpected participant ticket %+v", participant)
	}

	// 6) The old ticket is still readable but inactive
	st, body = doReq(t, ts.URL, "GET", "/tickets/"+partner.ID, &memberA, nil)
	if st != http.StatusOK {
		t.Fatalf("expected 200 fetch, got %d", st)
	}
	if old := decode[model.Ticket](t, body); old.Active {
		t.Fatalf("old partner ticket should be inactive")
	}

	// 7) Both tickets are listed
	st, body = doReq(t, ts.URL, "GET", "/me/tickets", &memberA, nil)
	if st != http.StatusOK {
		t.Fatalf("expected 200 my tickets, got %d", st)
	}
	if mine := decode[[]model.Ticket](t, body); len(mine) != 2 {
		t.Fatalf("expected 2 tickets, got %d", len(mine))
	}
}

func TestHTTP_EligibilityErrors(t *testing.T) {
	ts := newServer(t)

	st, body := doReq(t, ts.URL, "POST", "/events/E1/partnership", &student, nil)
	expectError(t, st, body, http.StatusForbidden, handler.CodeRoleNotEligible)

	st, body = doReq(t, ts.URL, "POST", "/events/no-partners/partnership", &memberA, nil)
	expectError(t, st, body, http.StatusConflict, handler.CodePartnersNotAccepted)

	st, body = doReq(t, ts.URL, "POST", "/events/closed/participation", &student, nil)
	expectError(t, st, body, http.StatusConflict, handler.CodeEventClosed)

	st, body = doReq(t, ts.URL, "POST", "/events/missing/participation", &student, nil)
	expectError(t, st, body, http.StatusNotFound, handler.CodeNotFound)
}

func TestHTTP_Unauthenticated(t *testing.T) {
	ts := newServer(t)

	for _, tc := range []struct{ method, path string }{
		{"GET", "/events"},
		{"GET", "/events/E1"},
		{"GET", "/events/E1/status"},
		{"POST", "/events/E1/participation"},
		{"DELETE", "/events/E1/partnership"},
		{"GET", "/tickets/TKT-X"},
		{"GET", "/me/tickets"},
		{"GET", "/me/registrations/stream"},
	} {
		st, body := doReq(t, ts.URL, tc.method, tc.path, nil, nil)
		expectError(t, st, body, http.StatusUnauthorized, handler.CodeUnauthenticated)
	}

	st, _ := doReq(t, ts.URL, "GET", "/health", nil, nil)
	if st != http.StatusOK {
		t.Fatalf("health should not need auth, got %d", st)
	}
}

func TestHTTP_CancelWithoutRegistration(t *testing.T) {
	ts := newServer(t)

	st, body := doReq(t, ts.URL, "DELETE", "/events/E1/participation", &student, nil)
	if st != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", st, string(body))
	}
	if ack := decode[model.CancelResult](t, body); ack.Canceled {
		t.Fatalf("nothing should have been canceled")
	}
}

func TestHTTP_TicketOwnershipPayloadAndVerify(t *testing.T) {
	ts := newServer(t)

	st, body := doReq(t, ts.URL, "POST", "/events/E1/participation", &student, nil)
	if st != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", st, string(body))
	}
	tk := decode[model.Ticket](t, body)

	st, body = doReq(t, ts.URL, "GET", "/tickets/"+tk.ID, &memberA, nil)
	expectError(t, st, body, http.StatusForbidden, handler.CodeForbidden)

	st, first := doReq(t, ts.URL, "GET", "/tickets/"+tk.ID+"/payload", &student, nil)
	if st != http.StatusOK {
		t.Fatalf("expected 200 payload, got %d", st)
	}
	_, second := doReq(t, ts.URL, "GET", "/tickets/"+tk.ID+"/payload", &student, nil)
	if !bytes.Equal(first, second) {
		t.Fatalf("payload not byte-stable")
	}
	if !strings.HasPrefix(string(first), ticket.PayloadHeader+"\n") {
		t.Fatalf("unexpected payload %q", string(first))
	}

	st, body = doReq(t, ts.URL, "POST", "/tickets/verify", &student, model.VerifyRequest{Payload: string(first)})
	expectError(t, st, body, http.StatusForbidden, handler.CodeForbidden)

	st, body = doReq(t, ts.URL, "POST", "/tickets/verify", &admin, model.VerifyRequest{Payload: string(first)})
	if st != http.StatusOK {
		t.Fatalf("expected 200 verify, got %d body=%s", st, string(body))
	}
	if v := decode[model.VerifyResult](t, body); !v.Valid || !v.Active || v.UserID != student.id {
		t.Fatalf("unexpected verify result %+v", v)
	}

	st, body = doReq(t, ts.URL, "POST", "/tickets/verify", &admin, map[string]any{"nope": true})
	expectError(t, st, body, http.StatusBadRequest, handler.CodeInvalidRequest)

	st, body = doReq(t, ts.URL, "GET", "/events/E1/registrations", &admin, nil)
	if st != http.StatusOK {
		t.Fatalf("expected 200 roster, got %d", st)
	}
	if regs := decode[[]model.Registration](t, body); len(regs) != 1 || regs[0].TicketID != tk.ID {
		t.Fatalf("unexpected roster %+v", regs)
	}
	st, body = doReq(t, ts.URL, "GET", "/events/E1/registrations", &student, nil)
	expectError(t, st, body, http.StatusForbidden, handler.CodeForbidden)
}

func TestHTTP_BearerToken(t *testing.T) {
	ts := newServer(t)

	token, err := auth.NewAccessToken(jwtSecret, "test", time.Hour, auth.Claims{
		UserID: "jwt-user", Role: "psychiatrist",
	})
	if err != nil {
		t.Fatalf("NewAccessToken: %v", err)
	}
	req, err := http.NewRequest("POST", ts.URL+"/events/E1/participation", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", res.StatusCode, string(body))
	}
	if tk := decode[model.Ticket](t, body); tk.UserID != "jwt-user" {
		t.Fatalf("ticket issued to %q", tk.UserID)
	}
}

func TestHTTP_StreamDeliversChanges(t *testing.T) {
	ts := newServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", ts.URL+"/me/registrations/stream", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("X-Debug-User-ID", student.id)
	req.Header.Set("X-Debug-Role", student.role)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer res.Body.Close()
	if ct := res.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("expected text/event-stream, got %q", ct)
	}

	st, body := doReq(t, ts.URL, "POST", "/events/E1/participation", &student, nil)
	if st != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", st, string(body))
	}

	lines := make(chan string, 64)
	go func() {
		sc := bufio.NewScanner(res.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	deadline := time.After(3 * time.Second)
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatalf("stream closed before change arrived")
			}
			data, found := strings.CutPrefix(line, "data: ")
			if !found {
				continue
			}
			c := decode[model.Change](t, []byte(data))
			if c.Action != model.ChangeJoined || c.EventID != "E1" || c.UserID != student.id {
				t.Fatalf("unexpected change %+v", c)
			}
			return
		case <-deadline:
			t.Fatalf("timed out waiting for change")
		}
	}
}

func TestHTTP_MetricsAndCORS(t *testing.T) {
	ts := newServer(t)

	doReq(t, ts.URL, "POST", "/events/E1/participation", &student, nil)
	st, body := doReq(t, ts.URL, "GET", "/metrics", nil, nil)
	if st != http.StatusOK {
		t.Fatalf("expected 200 metrics, got %d", st)
	}
	if !strings.Contains(string(body), "events_tickets_issued_total") {
		t.Fatalf("metrics missing ticket counter")
	}

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/events/E1/participation", nil)
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusNoContent || res.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("unexpected preflight response %d %v", res.StatusCode, res.Header)
	}
}
