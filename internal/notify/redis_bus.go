package notify

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ehtisham-id/proj7-ai-platform-api/internal/domain"
)

// RedisBus fans terminal events out from workers to every API instance over
// Redis pub/sub. Events published while no instance is subscribed are lost.
type RedisBus struct {
	rdb     *goredis.Client
	channel string
	logger  *zap.Logger
}

func NewRedisBus(rdb *goredis.Client, channel string, logger *zap.Logger) *RedisBus {
	return &RedisBus{rdb: rdb, channel: channel, logger: logger}
}

// Notify publishes ev on the bus channel.
func (b *RedisBus) Notify(ctx context.Context, ev domain.Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.channel, raw).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// StartForwarder subscribes to the bus and calls onEvent for every event
// until ctx is cancelled. It returns once the subscription is live.
func (b *RedisBus) StartForwarder(ctx context.Context, onEvent func(domain.Event)) error {
	if onEvent == nil {
		return fmt.Errorf("onEvent callback required")
	}

	sub := b.rdb.Subscribe(ctx, b.channel)

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var ev domain.Event
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					b.logger.Warn("Bad notification payload on bus", zap.Error(err))
					continue
				}
				onEvent(ev)
			}
		}
	}()

	b.logger.Info("Notification forwarder started", zap.String("channel", b.channel))
	return nil
}
