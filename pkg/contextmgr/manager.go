package contextmgr

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Manager owns the sessions of one process, keyed by session id. Sessions
// share configuration and collaborators but never data; there is no
// cross-session coordination.
type Manager struct {
	mu       sync.Mutex
	cfg      Config
	opts     []SessionOption
	sessions map[string]*Session

	evictIdle     time.Duration
	evictInterval time.Duration
	evictRunning  bool
}

func NewManager(cfg Config, opts ...SessionOption) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Manager{
		cfg:      cfg,
		opts:     opts,
		sessions: map[string]*Session{},
	}, nil
}

// GetOrCreate returns the session for id, creating it on first use. An empty
// id gets a fresh uuid.
func (m *Manager) GetOrCreate(id string) (*Session, error) {
	if m == nil {
		return nil, errors.New("context manager: nil manager")
	}
	if strings.TrimSpace(id) == "" {
		id = uuid.NewString()
	}

	m.mu.Lock()
	if sess, ok := m.sessions[id]; ok {
		m.mu.Unlock()
		return sess, nil
	}
	m.mu.Unlock()

	sess, err := NewSession(id, m.cfg, m.opts...)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[id]; ok {
		return existing, nil
	}
	m.sessions[id] = sess
	return sess, nil
}

func (m *Manager) Get(id string) (*Session, bool) {
	if m == nil {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	return sess, ok
}

func (m *Manager) Remove(id string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

func (m *Manager) Len() int {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) SetIdleConfig(idle, interval time.Duration) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.evictIdle = idle
	m.evictInterval = interval
	m.mu.Unlock()
}

// StartIdleLoop evicts idle sessions in the background until ctx is done.
// A no-op unless SetIdleConfig set both durations.
func (m *Manager) StartIdleLoop(ctx context.Context) {
	if m == nil {
		return
	}
	if ctx == nil {
		panic("contextmgr: StartIdleLoop requires non-nil ctx")
	}
	m.mu.Lock()
	if m.evictRunning {
		m.mu.Unlock()
		return
	}
	idle := m.evictIdle
	interval := m.evictInterval
	if idle <= 0 || interval <= 0 {
		m.mu.Unlock()
		return
	}
	m.evictRunning = true
	m.mu.Unlock()

	go m.runIdleLoop(ctx, interval)
}

func (m *Manager) runIdleLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			m.evictRunning = false
			m.mu.Unlock()
			return
		case now := <-ticker.C:
			m.evictIdleOnce(now)
		}
	}
}

func (m *Manager) evictIdleOnce(now time.Time) int {
	if m == nil {
		return 0
	}
	if now.IsZero() {
		now = time.Now()
	}

	m.mu.Lock()
	idle := m.evictIdle
	if idle <= 0 {
		m.mu.Unlock()
		return 0
	}
	sessions := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	m.mu.Unlock()

	evicted := 0
	for _, sess := range sessions {
		if sess == nil {
			continue
		}
		if !m.shouldEvictSession(now, idle, sess) {
			continue
		}
		m.mu.Lock()
		current, ok := m.sessions[sess.id]
		if !ok || current != sess {
			m.mu.Unlock()
			continue
		}
		delete(m.sessions, sess.id)
		m.mu.Unlock()

		log.Info().Str("component", "contextmgr").Str("session_id", sess.id).Msg("idle session evicted")
		evicted++
	}

	return evicted
}

func (m *Manager) shouldEvictSession(now time.Time, idle time.Duration, sess *Session) bool {
	if sess.CompactionInFlight() {
		return false
	}
	sess.stateMu.RLock()
	last := sess.lastActivity
	outstanding := len(sess.drafts)
	sess.stateMu.RUnlock()
	if outstanding > 0 {
		return false
	}
	if last.IsZero() {
		return false
	}
	return now.Sub(last) >= idle
}
