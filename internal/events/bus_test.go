package events

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// loopback is a Broadcaster shared by several buses in one test process.
type loopback struct {
	mu       sync.Mutex
	handlers []func(Change)
	fail     error
}

type loopbackPeer struct {
	net *loopback
}

func (l *loopback) peer() Broadcaster { return &loopbackPeer{net: l} }

func (p *loopbackPeer) Publish(ctx context.Context, change Change) error {
	p.net.mu.Lock()
	handlers := append([]func(Change){}, p.net.handlers...)
	fail := p.net.fail
	p.net.mu.Unlock()
	if fail != nil {
		return fail
	}
	for _, h := range handlers {
		h(change)
	}
	return nil
}

func (p *loopbackPeer) StartForwarder(ctx context.Context, onMsg func(Change)) error {
	p.net.mu.Lock()
	p.net.handlers = append(p.net.handlers, onMsg)
	p.net.mu.Unlock()
	return nil
}

func (p *loopbackPeer) Close() error { return nil }

type recorder struct {
	mu    sync.Mutex
	users []string
}

func (r *recorder) listen(userID string) {
	r.mu.Lock()
	r.users = append(r.users, userID)
	r.mu.Unlock()
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.users...)
}

func TestBus_NotifyReachesEverySubscriber(t *testing.T) {
	bus := NewBus(quietLogger())
	var a, b recorder
	bus.Subscribe(a.listen)
	bus.Subscribe(b.listen)

	bus.Notify(context.Background(), "u1")

	assert.Equal(t, []string{"u1"}, a.seen())
	assert.Equal(t, []string{"u1"}, b.seen())
}

func TestBus_UnsubscribeIsIndependentAndIdempotent(t *testing.T) {
	bus := NewBus(quietLogger())
	var a, b recorder
	unsubA := bus.Subscribe(a.listen)
	bus.Subscribe(b.listen)

	unsubA()
	unsubA()
	bus.Notify(context.Background(), "u1")

	assert.Empty(t, a.seen())
	assert.Equal(t, []string{"u1"}, b.seen())
	assert.Equal(t, 1, bus.ListenerCount())
}

func TestBus_ListenerMayUnsubscribeDuringDispatch(t *testing.T) {
	bus := NewBus(quietLogger())
	var unsub func()
	calls := 0
	unsub = bus.Subscribe(func(string) {
		calls++
		unsub()
	})

	bus.Notify(context.Background(), "u1")
	bus.Notify(context.Background(), "u1")

	assert.Equal(t, 1, calls)
}

func TestBus_ForwardsRemoteChangesButNotOwnEchoes(t *testing.T) {
	net := &loopback{}
	busA := NewBus(quietLogger(), WithBroadcaster(net.peer()))
	busB := NewBus(quietLogger(), WithBroadcaster(net.peer()))
	require.NoError(t, busA.Start(context.Background()))
	require.NoError(t, busB.Start(context.Background()))

	var a, b recorder
	busA.Subscribe(a.listen)
	busB.Subscribe(b.listen)

	busA.Notify(context.Background(), "u1")

	assert.Equal(t, []string{"u1"}, a.seen(), "local listener fires once, echo ignored")
	assert.Equal(t, []string{"u1"}, b.seen())
}

func TestBus_BroadcastFailureDoesNotBlockLocalListeners(t *testing.T) {
	net := &loopback{fail: errors.New("broker down")}
	bus := NewBus(quietLogger(), WithBroadcaster(net.peer()))
	var a recorder
	bus.Subscribe(a.listen)

	bus.Notify(context.Background(), "u1")

	assert.Equal(t, []string{"u1"}, a.seen())
}

func TestBus_StartWithoutBroadcasterIsNoop(t *testing.T) {
	bus := NewBus(quietLogger())
	assert.NoError(t, bus.Start(context.Background()))
	assert.NoError(t, bus.Close())
	assert.NotEmpty(t, bus.Origin())
}
