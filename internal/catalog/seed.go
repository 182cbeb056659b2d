// Package catalog loads event catalog seed files for local and test
// deployments, where the real catalog service is not available.
package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/model"
)

// EventWriter is implemented by stores that can hold seeded events.
type EventWriter interface {
	PutEvent(ctx context.Context, e model.Event) error
}

type seedFile struct {
	Events []model.Event `yaml:"events"`
}

// LoadFile reads and validates a YAML seed file.
func LoadFile(path string) ([]model.Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	events, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return events, nil
}

// Parse decodes a seed document of the form
//
//	events:
//	  - id: e1
//	    title: ...
//	    type: in-person
//	    starts_at: 2026-06-01T09:00:00Z
//	    ...
//
// Unknown keys are rejected. A missing status defaults to upcoming.
func Parse(data []byte) ([]model.Event, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f seedFile
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode seed: %w", err)
	}

	seen := make(map[string]bool, len(f.Events))
	for i := range f.Events {
		e := &f.Events[i]
		e.ID = strings.TrimSpace(e.ID)
		if e.Status == "" {
			e.Status = model.StatusUpcoming
		}
		if err := validate(*e); err != nil {
			return nil, fmt.Errorf("event %d (%q): %w", i, e.ID, err)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("event %q listed twice", e.ID)
		}
		seen[e.ID] = true
		e.StartsAt = e.StartsAt.UTC()
		e.EndsAt = e.EndsAt.UTC()
	}
	return f.Events, nil
}

func validate(e model.Event) error {
	if e.ID == "" {
		return errors.New("id is required")
	}
	if strings.TrimSpace(e.Title) == "" {
		return errors.New("title is required")
	}
	switch e.Type {
	case model.EventInPerson, model.EventOnline:
	default:
		return fmt.Errorf("unknown type %q", e.Type)
	}
	switch e.Status {
	case model.StatusUpcoming, model.StatusOngoing, model.StatusPast, model.StatusCanceled:
	default:
		return fmt.Errorf("unknown status %q", e.Status)
	}
	if e.StartsAt.IsZero() || e.EndsAt.IsZero() {
		return errors.New("starts_at and ends_at are required")
	}
	if !e.EndsAt.After(e.StartsAt) {
		return errors.New("ends_at must be after starts_at")
	}
	if e.MaxParticipants < 0 {
		return errors.New("max_participants must not be negative")
	}
	return nil
}

// Seed writes every event into w.
func Seed(ctx context.Context, w EventWriter, events []model.Event) error {
	for _, e := range events {
		if err := w.PutEvent(ctx, e); err != nil {
			return fmt.Errorf("seed event %s: %w", e.ID, err)
		}
	}
	return nil
}
