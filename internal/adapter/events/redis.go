// Package events bridges job events across instances through Redis pub/sub
// so a websocket connection on one instance still sees jobs running on
// another.
package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/introweave/matchpipe/internal/domain"
)

// envelope carries the routing user id alongside the event, since the event
// itself never serializes it.
type envelope struct {
	UserID string          `json:"user_id"`
	Event  domain.JobEvent `json:"event"`
}

// Bus publishes job events to a Redis channel and forwards subscribed
// events to the local notifier. Every instance runs a subscriber, so local
// delivery happens through the subscription rather than directly; a failed
// publish falls back to local-only delivery.
type Bus struct {
	rdb     *redis.Client
	channel string
	local   domain.Notifier
}

// NewBus constructs a bus over the given Redis client and channel.
func NewBus(rdb *redis.Client, channel string, local domain.Notifier) *Bus {
	return &Bus{rdb: rdb, channel: channel, local: local}
}

// Publish implements domain.Notifier by broadcasting through Redis.
func (b *Bus) Publish(ctx domain.Context, ev domain.JobEvent) {
	raw, err := json.Marshal(envelope{UserID: ev.UserID, Event: ev})
	if err != nil {
		slog.Error("marshal event envelope", slog.Any("error", err))
		return
	}
	if err := b.rdb.Publish(ctx, b.channel, raw).Err(); err != nil {
		slog.Warn("redis publish failed; delivering locally only", slog.Any("error", err))
		b.local.Publish(ctx, ev)
	}
}

// Run subscribes to the channel and forwards events to the local notifier
// until ctx is done.
func (b *Bus) Run(ctx context.Context) {
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer func() { _ = sub.Close() }()
	slog.Info("event bridge subscribed", slog.String("channel", b.channel))
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				slog.Warn("bad event envelope", slog.Any("error", err))
				continue
			}
			env.Event.UserID = env.UserID
			b.local.Publish(ctx, env.Event)
		}
	}
}
