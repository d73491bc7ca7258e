package cloudsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Ayash-Bera/metricslab/backend/internal/events"
	"github.com/Ayash-Bera/metricslab/backend/internal/experiment"
	"github.com/Ayash-Bera/metricslab/backend/internal/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Subscriber is the part of the change bus a session listens on.
type Subscriber interface {
	Subscribe(fn events.Listener) func()
}

type Config struct {
	Collection string        `mapstructure:"collection" json:"collection" yaml:"collection" validate:"required"`
	Debounce   time.Duration `mapstructure:"debounce" json:"debounce" yaml:"debounce" validate:"gt=0"`
	Resolution Resolution    `mapstructure:"resolution" json:"resolution" yaml:"resolution" validate:"oneof=remote_first merge"`
	MaxEntries int           `mapstructure:"max_entries" json:"maxEntries" yaml:"max_entries" validate:"min=1"`
	Retry      RetryConfig   `mapstructure:"retry" json:"retry" yaml:"retry"`
}

func DefaultConfig() Config {
	return Config{
		Collection: "experimentStates",
		Debounce:   600 * time.Millisecond,
		Resolution: ResolutionRemoteFirst,
		MaxEntries: defaultMaxEntries,
		Retry:      DefaultRetryConfig(),
	}
}

// Service reconciles local experiment state with the remote document
// service and keeps the remote copy current while a session is open.
type Service struct {
	store  *experiment.Store
	docs   models.DocumentRepository
	bus    Subscriber
	config Config
	logger *logrus.Logger
}

func NewService(store *experiment.Store, docs models.DocumentRepository, bus Subscriber, config Config, logger *logrus.Logger) *Service {
	if config.MaxEntries <= 0 {
		config.MaxEntries = defaultMaxEntries
	}
	if config.Resolution == "" {
		config.Resolution = ResolutionRemoteFirst
	}
	return &Service{
		store:  store,
		docs:   docs,
		bus:    bus,
		config: config,
		logger: logger,
	}
}

func (s *Service) Config() Config {
	return s.config
}

// Session is one open reconciliation for a user. Stop must be called on
// sign-out so no pending push writes under a stale user id.
type Session struct {
	ID        string
	UserID    string
	Outcome   Outcome
	StartedAt time.Time

	service     *Service
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
	once    sync.Once
}

// Start resolves local against remote state, overwrites the local record,
// pushes the result and begins pushing debounced local changes. Remote
// failures are logged and tolerated. ctx bounds only the start sequence;
// the session lives until Stop.
func (s *Service) Start(ctx context.Context, userID string) (*Session, error) {
	uid := experiment.UserKey(userID)
	log := s.logger.WithField("user_id", uid)

	local, err := s.store.Read(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("failed to read local state: %w", err)
	}

	remote, exists, err := s.fetch(ctx, uid)
	if err != nil {
		log.WithError(err).Warn("Remote state unavailable, continuing with local state")
		exists = false
	}

	resolved, outcome := resolve(s.config.Resolution, local, remote, exists, s.config.MaxEntries)
	if err := s.store.Overwrite(ctx, uid, resolved); err != nil {
		return nil, fmt.Errorf("failed to apply resolved state: %w", err)
	}

	pushErr := s.push(ctx, uid)
	if pushErr != nil {
		log.WithError(pushErr).Warn("Initial push of experiment state failed")
	}
	observePush(phaseInitial, pushErr)

	sessCtx, cancel := context.WithCancel(context.Background())
	sess := &Session{
		ID:        uuid.NewString(),
		UserID:    uid,
		Outcome:   outcome,
		StartedAt: time.Now().UTC(),
		service:   s,
		ctx:       sessCtx,
		cancel:    cancel,
	}
	sess.unsubscribe = s.bus.Subscribe(func(changed string) {
		if changed == uid {
			sess.schedule()
		}
	})
	sessionsActive.Inc()

	log.WithFields(logrus.Fields{
		"session_id": sess.ID,
		"outcome":    outcome,
	}).Info("Experiment sync session started")
	return sess, nil
}

// Pull runs the start sequence once and immediately stops the session.
func (s *Service) Pull(ctx context.Context, userID string) (Outcome, error) {
	sess, err := s.Start(ctx, userID)
	if err != nil {
		return "", err
	}
	sess.Stop()
	return sess.Outcome, nil
}

func (s *Service) fetch(ctx context.Context, uid string) (experiment.State, bool, error) {
	var doc models.Document
	err := retryOperation(ctx, s.config.Retry, s.logger, "fetch remote state", func(ctx context.Context) error {
		var err error
		doc, err = s.docs.GetDocument(ctx, s.config.Collection, uid)
		return err
	})
	if err != nil || !doc.Exists {
		return experiment.State{}, false, err
	}
	state, ok := decodeRemote(doc.Data)
	return state, ok, nil
}

func (s *Service) push(ctx context.Context, uid string) error {
	state, err := s.store.Read(ctx, uid)
	if err != nil {
		return err
	}
	data, err := encodeRemote(state, time.Now())
	if err != nil {
		return err
	}
	return retryOperation(ctx, s.config.Retry, s.logger, "push local state", func(ctx context.Context) error {
		return s.docs.SetDocument(ctx, s.config.Collection, uid, data, models.SetOptions{Merge: true})
	})
}

// schedule restarts the debounce timer.
func (sess *Session) schedule() {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.stopped {
		return
	}
	if sess.timer != nil {
		sess.timer.Stop()
	}
	sess.timer = time.AfterFunc(sess.service.config.Debounce, sess.flush)
}

func (sess *Session) flush() {
	sess.mu.Lock()
	stopped := sess.stopped
	sess.mu.Unlock()
	if stopped {
		return
	}

	err := sess.service.push(sess.ctx, sess.UserID)
	if sess.ctx.Err() != nil {
		return
	}
	observePush(phaseDebounced, err)
	if err != nil {
		sess.service.logger.WithError(err).WithField("user_id", sess.UserID).
			Warn("Debounced push of experiment state failed")
	}
}

// Stop cancels any pending push and unsubscribes. It is safe to call more
// than once.
func (sess *Session) Stop() {
	sess.once.Do(func() {
		sess.mu.Lock()
		sess.stopped = true
		if sess.timer != nil {
			sess.timer.Stop()
		}
		sess.mu.Unlock()

		sess.cancel()
		sess.unsubscribe()
		sessionsActive.Dec()

		sess.service.logger.WithFields(logrus.Fields{
			"user_id":    sess.UserID,
			"session_id": sess.ID,
		}).Info("Experiment sync session stopped")
	})
}
