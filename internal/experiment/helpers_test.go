package experiment

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/Ayash-Bera/metricslab/backend/internal/database"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 3, 14, 9, 26, 53, 589000000, time.UTC)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func openKV(t *testing.T) *database.BadgerStore {
	t.Helper()
	kv, err := database.OpenBadger(database.InMemoryBadgerConfig(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })
	return kv
}

type countingNotifier struct {
	mu    sync.Mutex
	users []string
}

func (n *countingNotifier) Notify(_ context.Context, userID string) {
	n.mu.Lock()
	n.users = append(n.users, userID)
	n.mu.Unlock()
}

func (n *countingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.users)
}

type fixture struct {
	kv       *database.BadgerStore
	store    *Store
	tracker  *Tracker
	notifier *countingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	kv := openKV(t)
	notifier := &countingNotifier{}
	store := NewStore(kv, quietLogger(),
		WithNotifier(notifier),
		WithClock(func() time.Time { return testNow }),
	)
	return &fixture{
		kv:       kv,
		store:    store,
		tracker:  NewTracker(store, DefaultRequirements(), quietLogger()),
		notifier: notifier,
	}
}

func (f *fixture) state(t *testing.T, userID string) State {
	t.Helper()
	s, err := f.store.Read(context.Background(), userID)
	require.NoError(t, err)
	return s
}

func entry(question, createdAt string) ChatEntryInput {
	return ChatEntryInput{
		Question:        question,
		Model:           "gpt-4o-mini",
		MetricID:        "t1",
		MetricName:      "Throughput",
		CreatedAt:       createdAt,
		ChosenText:      "answer",
		PreferredOption: float64(1),
		Ratings:         RatingsInput{Option1: float64(4), Option2: float64(2)},
		Option1Variant:  "rag",
		Option2Variant:  "norag",
	}
}

func intPtr(v int) *int { return &v }
