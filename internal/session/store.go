// Package session provides session management functionality.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/kyiku/slide-textguard-back/internal/controller"
	"github.com/kyiku/slide-textguard-back/internal/geom"
	"github.com/kyiku/slide-textguard-back/internal/model"
)

// Builder creates the controller for a new canvas.
type Builder func(canvas *model.Canvas) *controller.Controller

// Session is one canvas being edited. All access to its controller goes
// through the session lock.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu       sync.Mutex
	ctl      *controller.Controller
	pending  controller.SkipToken
	lastSeen time.Time
}

// Do runs fn with exclusive access to the session's controller.
func (s *Session) Do(fn func(ctl *controller.Controller) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.ctl)
}

// Release commits a drag and holds the returned skip token until the next Reflow.
func (s *Session) Release(ctx context.Context, itemID string) (controller.ItemUpdate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, token, err := s.ctl.Release(ctx, itemID)
	if err != nil {
		return controller.ItemUpdate{}, err
	}
	s.pending = token
	return u, nil
}

// Resize resizes an item. A resize that commits an idle item holds its skip
// token until the next Reflow, like Release. It reports whether it committed.
func (s *Session) Resize(ctx context.Context, itemID string, width, height float64) (controller.ItemUpdate, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, token, err := s.ctl.Resize(ctx, itemID, width, height)
	if err != nil {
		return controller.ItemUpdate{}, false, err
	}
	if token.Armed() {
		s.pending = token
	}
	return u, token.Armed(), nil
}

// Reflow consumes the pending skip token and runs a reflow with it.
func (s *Session) Reflow(ctx context.Context) controller.ReflowResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	token := s.pending
	s.pending = controller.SkipToken{}
	return s.ctl.Reflow(ctx, token)
}

// Snapshot returns a copy of the canvas.
func (s *Session) Snapshot() *model.Canvas {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctl.Canvas().Snapshot()
}

// SessionStore manages canvas sessions in memory.
type SessionStore struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	expiry   time.Duration // 0 means no expiry
	build    Builder
}

// NewSessionStore creates a new SessionStore with no expiry.
func NewSessionStore(build Builder) *SessionStore {
	return NewSessionStoreWithExpiry(build, 0)
}

// NewSessionStoreWithExpiry creates a SessionStore whose sessions expire after
// being idle for expiry.
func NewSessionStoreWithExpiry(build Builder, expiry time.Duration) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		expiry:   expiry,
		build:    build,
	}
}

// Create creates a canvas session. The session ID is the canvas ID.
func (s *SessionStore) Create(content geom.Rect, padding float64) *Session {
	canvas := model.NewCanvas(content, padding)
	now := time.Now()
	sess := &Session{
		ID:        canvas.ID,
		CreatedAt: now,
		ctl:       s.build(canvas),
		lastSeen:  now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return sess
}

// Get retrieves a session by ID.
// Returns nil and false if the session does not exist or has expired.
func (s *SessionStore) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, exists := s.sessions[id]
	if !exists {
		return nil, false
	}

	now := time.Now()
	if s.expired(sess, now) {
		delete(s.sessions, id)
		return nil, false
	}
	sess.lastSeen = now
	return sess, true
}

// Delete removes a session by ID. It returns false if the session did not exist.
func (s *SessionStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok
}

// Count returns the number of active sessions.
func (s *SessionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Cleanup removes expired sessions and returns how many were removed.
func (s *SessionStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, sess := range s.sessions {
		if s.expired(sess, now) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// StartCleanup runs Cleanup every interval until ctx is done.
func (s *SessionStore) StartCleanup(ctx context.Context, interval time.Duration, onRemoved func(n int)) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := s.Cleanup(); n > 0 && onRemoved != nil {
					onRemoved(n)
				}
			}
		}
	}()
}

func (s *SessionStore) expired(sess *Session, now time.Time) bool {
	return s.expiry > 0 && now.Sub(sess.lastSeen) > s.expiry
}
