package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

type natsBroadcaster struct {
	nc      *nats.Conn
	subject string
	logger  *logrus.Logger
}

// NewNATSBroadcaster connects to NATS and publishes changes on subject.
func NewNATSBroadcaster(url, subject string, logger *logrus.Logger) (Broadcaster, error) {
	if subject == "" {
		return nil, fmt.Errorf("nats subject required")
	}
	nc, err := nats.Connect(url,
		nats.Name("metricslab"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.WithError(err).Warn("NATS disconnected")
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &natsBroadcaster{nc: nc, subject: subject, logger: logger}, nil
}

// Publish is synchronous in nats.go, so ctx is only checked up front.
func (b *natsBroadcaster) Publish(ctx context.Context, change Change) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}
	raw, err := json.Marshal(change)
	if err != nil {
		return err
	}
	return b.nc.Publish(b.subject, raw)
}

func (b *natsBroadcaster) StartForwarder(ctx context.Context, onMsg func(Change)) error {
	if onMsg == nil {
		return fmt.Errorf("onMsg callback required")
	}

	sub, err := b.nc.Subscribe(b.subject, func(m *nats.Msg) {
		var change Change
		if err := json.Unmarshal(m.Data, &change); err != nil {
			b.logger.WithError(err).Warn("Bad experiment change payload on NATS")
			return
		}
		onMsg(change)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}
	if err := b.nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("nats flush: %w", err)
	}

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()
	return nil
}

func (b *natsBroadcaster) Close() error {
	if b.nc.IsClosed() {
		return nil
	}
	return b.nc.Drain()
}
