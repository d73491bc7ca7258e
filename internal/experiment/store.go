package experiment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Ayash-Bera/metricslab/backend/internal/models"
	"github.com/sirupsen/logrus"
)

// KV is the local record medium. Get returns models.ErrNotFound for a
// missing key.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Notifier is told about every successful write or erase.
type Notifier interface {
	Notify(ctx context.Context, userID string)
}

// Store owns the per-user persisted experiment state.
type Store struct {
	kv       KV
	notifier Notifier
	logger   *logrus.Logger
	now      func() time.Time

	locks sync.Map // user key -> *sync.Mutex
}

// StoreOption customizes a Store.
type StoreOption func(*Store)

// WithClock replaces the wall clock used to stamp meta.updatedAt.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// WithNotifier attaches the change notification bus.
func WithNotifier(n Notifier) StoreOption {
	return func(s *Store) { s.notifier = n }
}

func NewStore(kv KV, logger *logrus.Logger, opts ...StoreOption) *Store {
	s := &Store{
		kv:     kv,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the store clock reading.
func (s *Store) Now() time.Time {
	return s.now()
}

// Read loads the user's state. A missing or undecodable record yields the
// default state.
func (s *Store) Read(ctx context.Context, userID string) (State, error) {
	data, err := s.kv.Get(ctx, StorageKey(userID))
	if errors.Is(err, models.ErrNotFound) {
		return DefaultState(), nil
	}
	if err != nil {
		return DefaultState(), fmt.Errorf("failed to read experiment state: %w", err)
	}
	if !json.Valid(data) {
		s.logger.WithField("user_id", UserKey(userID)).Warn("Discarding undecodable experiment state")
	}
	return NormalizeJSON(data), nil
}

// Write normalizes, stamps and persists the state, then notifies.
func (s *Store) Write(ctx context.Context, userID string, state State) error {
	mu := s.lock(userID)
	mu.Lock()
	_, err := s.persist(ctx, userID, state, true)
	mu.Unlock()
	if err != nil {
		return err
	}
	s.notify(ctx, userID)
	return nil
}

// Overwrite persists an externally resolved state as-is after normalization.
// meta.updatedAt is kept so remote timestamps survive reconciliation.
func (s *Store) Overwrite(ctx context.Context, userID string, state State) error {
	mu := s.lock(userID)
	mu.Lock()
	_, err := s.persist(ctx, userID, state, false)
	mu.Unlock()
	if err != nil {
		return err
	}
	s.notify(ctx, userID)
	return nil
}

// Erase deletes the persisted record, then notifies.
func (s *Store) Erase(ctx context.Context, userID string) error {
	mu := s.lock(userID)
	mu.Lock()
	err := s.kv.Delete(ctx, StorageKey(userID))
	mu.Unlock()
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to erase experiment state: %w", err)
	}
	s.notify(ctx, userID)
	return nil
}

// Update runs a read-modify-write cycle for one user. fn reports whether it
// changed the state; nothing is written or notified when it did not.
// Concurrent Updates for the same user within this process are serialized.
func (s *Store) Update(ctx context.Context, userID string, fn func(*State) bool) (State, bool, error) {
	mu := s.lock(userID)
	mu.Lock()

	state, err := s.Read(ctx, userID)
	if err != nil {
		mu.Unlock()
		return state, false, err
	}
	if !fn(&state) {
		mu.Unlock()
		return state, false, nil
	}
	saved, err := s.persist(ctx, userID, state, true)
	mu.Unlock()
	if err != nil {
		return state, false, err
	}

	s.notify(ctx, userID)
	return saved, true, nil
}

func (s *Store) persist(ctx context.Context, userID string, state State, stamp bool) (State, error) {
	next := NormalizeState(state)
	next.Meta.Version = CurrentVersion
	if stamp {
		now := s.now()
		next.Meta.UpdatedAt = &now
	}

	data, err := json.Marshal(next)
	if err != nil {
		return next, fmt.Errorf("failed to marshal experiment state: %w", err)
	}
	if err := s.kv.Set(ctx, StorageKey(userID), data); err != nil {
		return next, fmt.Errorf("failed to persist experiment state: %w", err)
	}
	return next, nil
}

func (s *Store) notify(ctx context.Context, userID string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, UserKey(userID))
}

func (s *Store) lock(userID string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(UserKey(userID), &sync.Mutex{})
	return mu.(*sync.Mutex)
}
