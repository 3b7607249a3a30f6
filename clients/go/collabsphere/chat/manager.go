package chat

import (
	"context"
	"errors"
	"sync"

	"github.com/Talha-Tahir2001/CollabSphere/clients/go/collabsphere"
)

// Manager keeps at most one chat session open. Opening a room closes the
// session of the previous room before the new one connects, so nothing from
// the old room can reach the new room's store.
type Manager struct {
	cfg Config

	mu       sync.Mutex
	active   *Session
	shutdown bool

	unsubscribe func()
}

// NewManager creates a Manager. When cfg.Auth is set, logging out closes
// the active session and reports collabsphere.ErrAuthRequired.
func NewManager(cfg Config) *Manager {
	m := &Manager{cfg: cfg.withDefaults()}
	if cfg.Auth != nil {
		m.unsubscribe = cfg.Auth.Subscribe(func(ev collabsphere.AuthEvent) {
			if ev.LoggedIn {
				return
			}
			if roomID, ok := m.closeActive(); ok {
				m.cfg.Logger.Info().Str("room", roomID).Msg("logged out, chat session closed")
				if m.cfg.OnError != nil {
					m.cfg.OnError(roomID, collabsphere.ErrAuthRequired)
				}
			}
		})
	}
	return m
}

// Open closes the active session, if any, and opens a session for roomID
// acting as cred.
func (m *Manager) Open(ctx context.Context, roomID string, cred collabsphere.Credential) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shutdown {
		return nil, collabsphere.ErrSessionClosed
	}
	if m.active != nil {
		if err := m.active.Close(); err != nil {
			m.cfg.Logger.Debug().Err(err).Str("room", m.active.RoomID()).Msg("close previous session")
		}
		m.active = nil
	}

	s, err := open(ctx, m.cfg, roomID, cred)
	if err != nil {
		return nil, err
	}
	m.active = s
	return s, nil
}

// OpenCurrent opens roomID with the credential held by cfg.Auth.
func (m *Manager) OpenCurrent(ctx context.Context, roomID string) (*Session, error) {
	if m.cfg.Auth == nil {
		return nil, collabsphere.ErrAuthRequired
	}
	cred, err := m.cfg.Auth.Current()
	if err != nil {
		return nil, err
	}
	return m.Open(ctx, roomID, cred)
}

// Active returns the open session, or nil.
func (m *Manager) Active() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Close closes s. Closing a session that is no longer active is a no-op
// apart from s itself being closed.
func (m *Manager) Close(s *Session) error {
	if s == nil {
		return nil
	}
	m.mu.Lock()
	if m.active == s {
		m.active = nil
	}
	m.mu.Unlock()
	return s.Close()
}

// Shutdown closes the active session and stops watching the auth state.
// Later calls to Open fail.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	m.shutdown = true
	s := m.active
	m.active = nil
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if s == nil {
		return nil
	}
	if err := s.Close(); err != nil && !errors.Is(err, collabsphere.ErrSessionClosed) {
		return err
	}
	return nil
}

func (m *Manager) closeActive() (string, bool) {
	m.mu.Lock()
	s := m.active
	m.active = nil
	m.mu.Unlock()

	if s == nil {
		return "", false
	}
	_ = s.Close()
	return s.RoomID(), true
}
