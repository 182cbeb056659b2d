package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/Shivanand-hulikatti/event-partnership-ticketing/internal/model"
)

const channelPrefix = "registrations:"

// ChannelFor is the Redis pub/sub channel carrying a user's changes.
func ChannelFor(userID string) string {
	return channelPrefix + userID
}

// Redis is a Bus over Redis pub/sub, for deployments running more than one
// instance. Each change is published on the owning user's channel.
type Redis struct {
	client  *redis.Client
	log     *slog.Logger
	dropped prometheus.Counter
}

// NewRedis wraps an already connected client.
func NewRedis(client *redis.Client, log *slog.Logger, opts ...Option) *Redis {
	if log == nil {
		log = slog.Default()
	}
	o := buildOptions(opts)
	return &Redis{client: client, log: log, dropped: o.dropped}
}

// Publish sends c as JSON on the user's channel.
func (r *Redis) Publish(ctx context.Context, c model.Change) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal change: %w", err)
	}
	if err := r.client.Publish(ctx, ChannelFor(c.UserID), data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Subscribe listens on the user's channel until ctx is done. The
// subscription is confirmed before returning so no change published after
// Subscribe returns is missed.
func (r *Redis) Subscribe(ctx context.Context, userID string) (<-chan model.Change, error) {
	ps := r.client.Subscribe(ctx, ChannelFor(userID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	out := make(chan model.Change, subscriberBuffer)
	go func() {
		defer close(out)
		defer ps.Close()

		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var c model.Change
				if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
					r.log.Warn("discarding malformed change", "channel", msg.Channel, "err", err)
					continue
				}
				if !offer(out, c, r.dropped) {
					r.log.Debug("subscriber lagging, change dropped", "user_id", userID)
				}
			}
		}
	}()
	return out, nil
}

var _ Bus = (*Redis)(nil)
