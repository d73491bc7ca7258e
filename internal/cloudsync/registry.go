package cloudsync

import (
	"context"
	"sync"

	"github.com/Ayash-Bera/metricslab/backend/internal/experiment"
)

// Registry keeps at most one open session per user.
type Registry struct {
	service *Service

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(service *Service) *Registry {
	return &Registry{
		service:  service,
		sessions: make(map[string]*Session),
	}
}

// Start opens a session for the user, replacing any session already open.
func (r *Registry) Start(ctx context.Context, userID string) (*Session, error) {
	uid := experiment.UserKey(userID)
	r.Stop(uid)

	sess, err := r.service.Start(ctx, uid)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	previous := r.sessions[uid]
	r.sessions[uid] = sess
	r.mu.Unlock()
	if previous != nil {
		previous.Stop()
	}
	return sess, nil
}

// Stop tears down the user's session and reports whether one was open.
func (r *Registry) Stop(userID string) bool {
	uid := experiment.UserKey(userID)
	r.mu.Lock()
	sess, ok := r.sessions[uid]
	delete(r.sessions, uid)
	r.mu.Unlock()
	if ok {
		sess.Stop()
	}
	return ok
}

func (r *Registry) Get(userID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[experiment.UserKey(userID)]
	return sess, ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) StopAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()
	for _, sess := range sessions {
		sess.Stop()
	}
}
