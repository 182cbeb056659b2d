package database

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"
)

func TestRetryConnect(t *testing.T) {
	log := slog.New(slog.DiscardHandler)
	refused := errors.New("connection refused")

	t.Run("no wait after final attempt", func(t *testing.T) {
		calls := 0
		done := make(chan error, 1)
		go func() {
			done <- retryConnect(context.Background(), 1, time.Hour, log, func() error {
				calls++
				return refused
			})
		}()
		select {
		case err := <-done:
			if !errors.Is(err, refused) {
				t.Fatalf("expected last attempt error, got %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("retryConnect slept after its last attempt")
		}
		if calls != 1 {
			t.Fatalf("expected 1 attempt, got %d", calls)
		}
	})

	t.Run("gives up after attempts", func(t *testing.T) {
		calls := 0
		err := retryConnect(context.Background(), 3, time.Millisecond, log, func() error {
			calls++
			return refused
		})
		if !errors.Is(err, refused) || calls != 3 {
			t.Fatalf("expected 3 failed attempts, got %d (%v)", calls, err)
		}
	})

	t.Run("stops on success", func(t *testing.T) {
		calls := 0
		err := retryConnect(context.Background(), 5, time.Millisecond, log, func() error {
			calls++
			if calls < 2 {
				return refused
			}
			return nil
		})
		if err != nil || calls != 2 {
			t.Fatalf("expected success on attempt 2, got %d (%v)", calls, err)
		}
	})

	t.Run("canceled while waiting", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		err := retryConnect(ctx, 5, time.Hour, log, func() error {
			cancel()
			return refused
		})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	})
}
