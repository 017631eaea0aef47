// Package events fans conversation events out over Redis pub/sub so every
// CRM instance (and any dashboard tailing the channel) sees new messages.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/zulandar/concierge/internal/config"
	"github.com/zulandar/concierge/internal/logger"
	"github.com/zulandar/concierge/internal/messaging"
)

// RedisBus publishes and receives messaging.Event values on one channel.
// It implements messaging.EventPublisher.
type RedisBus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

var _ messaging.EventPublisher = (*RedisBus)(nil)

// NewRedisBus connects to cfg.RedisAddr and verifies the connection.
func NewRedisBus(ctx context.Context, cfg config.EventsConfig, log *logger.Logger) (*RedisBus, error) {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil, fmt.Errorf("events: redis address is required")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("events: redis ping %s: %w", addr, err)
	}
	return newRedisBus(rdb, cfg.Channel, log), nil
}

func newRedisBus(rdb *goredis.Client, channel string, log *logger.Logger) *RedisBus {
	if log == nil {
		log = logger.Nop()
	}
	if channel == "" {
		channel = "concierge.events"
	}
	return &RedisBus{
		log:     log.With("service", "events", "channel", channel),
		rdb:     rdb,
		channel: channel,
	}
}

// Channel returns the pub/sub channel name.
func (b *RedisBus) Channel() string { return b.channel }

// Publish encodes evt as JSON and publishes it.
func (b *RedisBus) Publish(ctx context.Context, evt messaging.Event) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("events: redis bus not initialized")
	}
	raw, err := Encode(evt)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, b.channel, raw).Err(); err != nil {
		return fmt.Errorf("events: publish %s: %w", evt.Type, err)
	}
	return nil
}

// Subscribe delivers every decoded event to onEvent until ctx is cancelled.
// It returns once the subscription is confirmed; delivery runs on its own
// goroutine. Payloads that fail to decode are logged and skipped.
func (b *RedisBus) Subscribe(ctx context.Context, onEvent func(messaging.Event)) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("events: redis bus not initialized")
	}
	if onEvent == nil {
		return fmt.Errorf("events: onEvent callback required")
	}

	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("events: subscribe %s: %w", b.channel, err)
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
				evt, err := Decode([]byte(m.Payload))
				if err != nil {
					b.log.Warn("bad event payload", "error", err)
					continue
				}
				onEvent(evt)
			}
		}
	}()
	return nil
}

// Close closes the Redis client.
func (b *RedisBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}

// Encode serializes an event for the wire.
func Encode(evt messaging.Event) ([]byte, error) {
	if evt.Type == "" {
		return nil, fmt.Errorf("events: event type is required")
	}
	raw, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("events: encode %s: %w", evt.Type, err)
	}
	return raw, nil
}

// Decode parses a wire payload produced by Encode.
func Decode(raw []byte) (messaging.Event, error) {
	var evt messaging.Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		return messaging.Event{}, fmt.Errorf("events: decode: %w", err)
	}
	if evt.Type == "" {
		return messaging.Event{}, fmt.Errorf("events: decode: missing type")
	}
	return evt, nil
}
