package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"medchat-backend/internal/dialogue"
	"medchat-backend/internal/logger"
)

// ErrSessionNotFound is returned for ids the registry does not hold.
var ErrSessionNotFound = errors.New("session not found")

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock sets the time source used to judge idleness.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// WithLogger sets the logger for session lifecycle events.
func WithLogger(l logrus.FieldLogger) RegistryOption {
	return func(r *Registry) { r.log = l }
}

// Registry owns every live dialogue session in the process, keyed by session
// id. The map lock only guards lookups; each session serialises its own turns.
type Registry struct {
	mu       sync.RWMutex
	engine   *dialogue.Engine
	sessions map[string]*dialogue.Session
	idleTTL  time.Duration
	now      func() time.Time
	log      logrus.FieldLogger
}

// NewRegistry creates sessions from engine. Sessions untouched for idleTTL
// are dropped by Sweep; zero keeps them forever.
func NewRegistry(engine *dialogue.Engine, idleTTL time.Duration, opts ...RegistryOption) *Registry {
	r := &Registry{
		engine:   engine,
		sessions: make(map[string]*dialogue.Session),
		idleTTL:  idleTTL,
		now:      time.Now,
		log:      logger.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewSessionID mints a random session id.
func NewSessionID() string {
	return uuid.NewString()
}

// GetOrCreate returns the session for id, creating it on first use. An empty
// id gets a fresh one. created reports whether a new session was made.
func (r *Registry) GetOrCreate(id string) (s *dialogue.Session, created bool) {
	if id != "" {
		r.mu.RLock()
		s, ok := r.sessions[id]
		r.mu.RUnlock()
		if ok {
			return s, false
		}
	} else {
		id = NewSessionID()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		return s, false
	}
	s = r.engine.NewSession(id)
	r.sessions[id] = s
	r.log.WithField("session_id", id).Debug("session created")
	return s, true
}

// Get returns the session for id or ErrSessionNotFound. It never creates one.
func (r *Registry) Get(id string) (*dialogue.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Reset clears the session for id, creating it when absent, so a new
// conversation can start under the same id.
func (r *Registry) Reset(id string) *dialogue.Session {
	s, created := r.GetOrCreate(id)
	if !created {
		s.Reset()
	}
	return s
}

// Delete drops the session for id and reports whether it existed.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep drops sessions idle for longer than the TTL and returns how many went.
func (r *Registry) Sweep() int {
	if r.idleTTL <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, s := range r.sessions {
		if s.LastActive().Before(cutoff) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if r.idleTTL <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.log.WithFields(logrus.Fields{"removed": n, "remaining": r.Len()}).Info("swept idle sessions")
			}
		}
	}
}
