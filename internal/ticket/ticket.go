// Package ticket mints tickets for new registrations and renders the text
// payload that is encoded into a scannable code.
package ticket

import (
	"encoding/base32"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/model"
)

// PayloadHeader is the first line of every rendered payload.
const PayloadHeader = "EVENT-TICKET/1"

const (
	idPrefix   = "TKT-"
	keyContext = "event-partnership-ticketing 2026 ticket payload check v1"
)

var idEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// ErrMalformedPayload is returned when a scanned payload cannot be parsed.
var ErrMalformedPayload = errors.New("malformed ticket payload")

// ErrPayloadMismatch is returned when a payload does not match the stored
// ticket it names.
var ErrPayloadMismatch = errors.New("ticket payload does not match")

// Issuer mints tickets and renders their payloads.
type Issuer struct {
	key [32]byte
	now func() time.Time
}

// NewIssuer derives the payload check key from signingKey. A nil now uses
// the wall clock.
func NewIssuer(signingKey string, now func() time.Time) *Issuer {
	if now == nil {
		now = time.Now
	}
	i := &Issuer{now: now}
	blake3.DeriveKey(keyContext, []byte(signingKey), i.key[:])
	return i
}

// NewID returns a fresh ticket id: TKT- followed by the base32 form of 128
// random bits.
func NewID() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate ticket id: %w", err)
	}
	return idPrefix + idEncoding.EncodeToString(u[:]), nil
}

// Issue builds the ticket for reg, freezing ev's schedule and location as
// they are now. The caller persists it together with the registration.
func (i *Issuer) Issue(reg model.Registration, ev model.Event) (model.Ticket, error) {
	id, err := NewID()
	if err != nil {
		return model.Ticket{}, err
	}
	t := model.Ticket{
		ID:       id,
		EventID:  reg.EventID,
		UserID:   reg.UserID,
		Capacity: reg.Capacity,
		Event:    ev.Snapshot(),
		IssuedAt: i.now().UTC().Truncate(time.Second),
		Active:   true,
	}
	if reg.Capacity == model.CapacityPartner {
		t.OrganizationID = reg.OrganizationID
	}
	return t, nil
}

// RenderPayload produces the deterministic payload for t. Only stored,
// immutable fields are used, so the same ticket always renders to the same
// bytes.
func (i *Issuer) RenderPayload(t model.Ticket) string {
	body := renderBody(t)
	return body + "check: " + i.digest(body) + "\n"
}

func renderBody(t model.Ticket) string {
	var b strings.Builder
	line := func(key, value string) {
		b.WriteString(key)
		b.WriteString(": ")
		b.WriteString(clean(value))
		b.WriteByte('\n')
	}

	b.WriteString(PayloadHeader)
	b.WriteByte('\n')
	line("ticket", t.ID)
	line("event", t.EventID)
	line("title", t.Event.Title)
	line("user", t.UserID)
	line("capacity", string(t.Capacity))
	if t.OrganizationID != "" {
		line("organization", t.OrganizationID)
	}
	line("type", string(t.Event.Type))
	line("starts", formatTime(t.Event.StartsAt))
	line("ends", formatTime(t.Event.EndsAt))
	if t.Event.Type == model.EventOnline {
		line("link", t.Event.OnlineLink)
	} else {
		line("venue", t.Event.Venue)
		line("location", t.Event.Location)
	}
	line("issued", formatTime(t.IssuedAt))
	return b.String()
}

func formatTime(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339)
}

// clean keeps every value on a single line.
func clean(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "-"
	}
	return strings.Join(strings.Fields(s), " ")
}

func (i *Issuer) digest(body string) string {
	h, err := blake3.NewKeyed(i.key[:])
	if err != nil {
		panic("ticket: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	_, _ = h.Write([]byte(body))
	return hex.EncodeToString(h.Sum(nil))
}

// ParsePayload extracts the ticket id from a scanned payload. It checks the
// shape only; Check compares it against the stored ticket.
func ParsePayload(payload string) (string, error) {
	lines := strings.Split(strings.TrimRight(payload, "\r\n"), "\n")
	if len(lines) < 3 || strings.TrimSpace(lines[0]) != PayloadHeader {
		return "", ErrMalformedPayload
	}
	id, ok := strings.CutPrefix(strings.TrimSpace(lines[1]), "ticket: ")
	if !ok || !strings.HasPrefix(id, idPrefix) {
		return "", ErrMalformedPayload
	}
	if !strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "check: ") {
		return "", ErrMalformedPayload
	}
	return id, nil
}

// Check reports whether payload is exactly what RenderPayload produces for
// the stored ticket. Trailing line endings and CRLF are tolerated.
func (i *Issuer) Check(payload string, stored model.Ticket) error {
	got := strings.ReplaceAll(payload, "\r\n", "\n")
	got = strings.TrimRight(got, "\n") + "\n"
	if got != i.RenderPayload(stored) {
		return ErrPayloadMismatch
	}
	return nil
}
