package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

var broadcastsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "experiment_bus_broadcasts_total",
	Help: "Cross-process change broadcasts by result",
}, []string{"result"})

// Change announces that a user's experiment record was written or erased.
type Change struct {
	UserID string    `json:"userId"`
	Origin string    `json:"origin"`
	At     time.Time `json:"at"`
}

// Broadcaster carries changes between processes sharing one record backend.
type Broadcaster interface {
	Publish(ctx context.Context, change Change) error
	StartForwarder(ctx context.Context, onMsg func(Change)) error
	Close() error
}

// Listener receives the id of the user whose state changed.
type Listener func(userID string)

// Bus fans state changes out to in-process listeners and, through an
// optional Broadcaster, to other processes. Changes received from other
// processes are delivered to local listeners only.
type Bus struct {
	mu        sync.RWMutex
	listeners map[uint64]Listener
	nextID    uint64

	origin      string
	broadcaster Broadcaster
	logger      *logrus.Logger
}

type Option func(*Bus)

func WithBroadcaster(b Broadcaster) Option {
	return func(bus *Bus) { bus.broadcaster = b }
}

func NewBus(logger *logrus.Logger, opts ...Option) *Bus {
	b := &Bus{
		listeners: make(map[uint64]Listener),
		origin:    uuid.NewString(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Origin identifies this process on the broadcast channel.
func (b *Bus) Origin() string {
	return b.origin
}

// Subscribe registers fn and returns its unsubscribe func. Unsubscribing is
// idempotent and never affects other listeners.
func (b *Bus) Subscribe(fn Listener) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.listeners, id)
			b.mu.Unlock()
		})
	}
}

// Notify delivers the change locally, then broadcasts it. Broadcast failures
// are logged and dropped.
func (b *Bus) Notify(ctx context.Context, userID string) {
	b.dispatch(userID)

	if b.broadcaster == nil {
		return
	}
	change := Change{UserID: userID, Origin: b.origin, At: time.Now().UTC()}
	if err := b.broadcaster.Publish(ctx, change); err != nil {
		broadcastsTotal.WithLabelValues("error").Inc()
		b.logger.WithError(err).WithField("user_id", userID).Warn("Failed to broadcast experiment change")
		return
	}
	broadcastsTotal.WithLabelValues("ok").Inc()
}

// Start forwards changes published by other processes to local listeners
// until ctx is done. Without a broadcaster it is a no-op.
func (b *Bus) Start(ctx context.Context) error {
	if b.broadcaster == nil {
		return nil
	}
	err := b.broadcaster.StartForwarder(ctx, func(change Change) {
		if change.Origin == b.origin || change.UserID == "" {
			return
		}
		b.logger.WithFields(logrus.Fields{
			"user_id": change.UserID,
			"origin":  change.Origin,
		}).Debug("Received remote experiment change")
		b.dispatch(change.UserID)
	})
	if err != nil {
		return fmt.Errorf("failed to start change forwarder: %w", err)
	}
	return nil
}

func (b *Bus) Close() error {
	if b.broadcaster == nil {
		return nil
	}
	return b.broadcaster.Close()
}

// ListenerCount is the number of active subscriptions.
func (b *Bus) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

func (b *Bus) dispatch(userID string) {
	b.mu.RLock()
	snapshot := make([]Listener, 0, len(b.listeners))
	for _, fn := range b.listeners {
		snapshot = append(snapshot, fn)
	}
	b.mu.RUnlock()

	for _, fn := range snapshot {
		fn(userID)
	}
}
