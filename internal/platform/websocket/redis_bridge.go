package websocket

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisBridge fans events out to every server instance. Publish delivers to
// the local hub and to a redis channel; Run re-broadcasts events published
// by other instances.
type RedisBridge struct {
	client  *redis.Client
	channel string
	hub     *Hub
	origin  string
	logger  zerolog.Logger
}

func NewRedisBridge(client *redis.Client, channel string, hub *Hub, logger zerolog.Logger) *RedisBridge {
	return &RedisBridge{
		client:  client,
		channel: channel,
		hub:     hub,
		origin:  uuid.New().String(),
		logger:  logger.With().Str("component", "redis_bridge").Logger(),
	}
}

func (b *RedisBridge) Publish(ctx context.Context, event Event) error {
	event.Origin = b.origin
	b.hub.Broadcast(event)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Run subscribes to the channel until ctx is cancelled.
func (b *RedisBridge) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe %s: %w", b.channel, err)
	}
	b.logger.Info().Str("channel", b.channel).Msg("subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.handleMessage(msg.Payload)
		}
	}
}

// handleMessage broadcasts events that came from another instance.
func (b *RedisBridge) handleMessage(payload string) {
	var event Event
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		b.logger.Warn().Err(err).Msg("discarding malformed event")
		return
	}
	if event.Origin == b.origin {
		return
	}
	b.hub.Broadcast(event)
}
