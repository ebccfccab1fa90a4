package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentwire/agentwire/pkg/logging"
)

// DefaultTTL is how long an idle session survives before the reaper removes
// it. Any request or stream attach refreshes the clock.
const DefaultTTL = 30 * time.Minute

// defaultReapInterval is how often the reaper scans for expired sessions.
const defaultReapInterval = time.Minute

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTTL overrides the idle session TTL.
func WithTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithLogger sets the manager's logger.
func WithLogger(logger logging.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger.WithFields(logging.String("component", "session"))
		}
	}
}

// WithReapInterval overrides the expiry scan cadence. Mostly for tests.
func WithReapInterval(interval time.Duration) ManagerOption {
	return func(m *Manager) {
		if interval > 0 {
			m.reapInterval = interval
		}
	}
}

// Manager creates, indexes, and expires sessions. Session IDs are opaque
// UUIDs; clients echo them back on every request.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	ttl          time.Duration
	reapInterval time.Duration
	logger       logging.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewManager creates a Manager and starts its expiry reaper. Call Stop when
// the server shuts down.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		sessions:     make(map[string]*Session),
		ttl:          DefaultTTL,
		reapInterval: defaultReapInterval,
		logger:       logging.Discard(),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	go m.reapLoop()
	return m
}

// Create mints a new uninitialized session and registers it.
func (m *Manager) Create() *Session {
	sess := newSession(uuid.NewString(), m.ttl)

	m.mu.Lock()
	m.sessions[sess.id] = sess
	total := len(m.sessions)
	m.mu.Unlock()

	m.logger.Debug("session created",
		logging.String("session_id", sess.id),
		logging.Int("active_sessions", total))
	return sess
}

// Get looks a session up by ID and refreshes its TTL.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	sess.touch(m.ttl)
	return sess, true
}

// Terminate closes a session and removes it from the index. It reports
// whether the session existed.
func (m *Manager) Terminate(id string) bool {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}

	sess.BeginClose()
	sess.FinishClose()
	m.logger.Debug("session terminated", logging.String("session_id", id))
	return true
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Each calls fn for every live session. fn must not call back into the
// Manager.
func (m *Manager) Each(fn func(*Session)) {
	m.mu.RLock()
	snapshot := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		snapshot = append(snapshot, sess)
	}
	m.mu.RUnlock()

	for _, sess := range snapshot {
		fn(sess)
	}
}

// Stop halts the reaper and closes all sessions.
func (m *Manager) Stop(ctx context.Context) error {
	m.stopOnce.Do(func() {
		close(m.stop)
	})

	select {
	case <-m.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, sess := range sessions {
		sess.BeginClose()
		sess.FinishClose()
	}
	return nil
}

func (m *Manager) reapLoop() {
	defer close(m.done)
	ticker := time.NewTicker(m.reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case now := <-ticker.C:
			m.reap(now)
		}
	}
}

func (m *Manager) reap(now time.Time) {
	var expired []*Session

	m.mu.Lock()
	for id, sess := range m.sessions {
		if sess.expired(now) {
			delete(m.sessions, id)
			expired = append(expired, sess)
		}
	}
	m.mu.Unlock()

	for _, sess := range expired {
		sess.BeginClose()
		sess.FinishClose()
		m.logger.Debug("session expired", logging.String("session_id", sess.id))
	}
}
