package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

type redisBroadcaster struct {
	client  *redis.Client
	channel string
	logger  *logrus.Logger

	mu  sync.Mutex
	sub *redis.PubSub
}

// NewRedisBroadcaster publishes changes on a Redis Pub/Sub channel. The
// client is owned by the caller and is not closed by Close.
func NewRedisBroadcaster(client *redis.Client, channel string, logger *logrus.Logger) (Broadcaster, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if channel == "" {
		return nil, fmt.Errorf("redis channel required")
	}
	return &redisBroadcaster{
		client:  client,
		channel: channel,
		logger:  logger,
	}, nil
}

func (b *redisBroadcaster) Publish(ctx context.Context, change Change) error {
	raw, err := json.Marshal(change)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, raw).Err()
}

func (b *redisBroadcaster) StartForwarder(ctx context.Context, onMsg func(Change)) error {
	if onMsg == nil {
		return fmt.Errorf("onMsg callback required")
	}

	sub := b.client.Subscribe(ctx, b.channel)

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	b.mu.Lock()
	b.sub = sub
	b.mu.Unlock()

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var change Change
				if err := json.Unmarshal([]byte(m.Payload), &change); err != nil {
					b.logger.WithError(err).Warn("Bad experiment change payload on redis")
					continue
				}
				onMsg(change)
			}
		}
	}()

	return nil
}

func (b *redisBroadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sub == nil {
		return nil
	}
	err := b.sub.Close()
	b.sub = nil
	return err
}
