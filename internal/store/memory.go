package store

import (
	"sync"
	"time"
)

var oauthStateTTL = 10 * time.Minute

type pendingState struct {
	state     string
	createdAt time.Time
}

// MemoryStore keeps per-session OAuth states between the auth and token
// actions.
type MemoryStore struct {
	mu sync.RWMutex
	// OAuth state mapping per session (for CSRF protection)
	oauthStateBySession map[string]pendingState
	// Reverse mapping: state -> sessionID to resolve callbacks
	sessionByOAuthState map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		oauthStateBySession: make(map[string]pendingState),
		sessionByOAuthState: make(map[string]string),
	}
}

// SetOAuthState replaces any previous state of the session.
func (m *MemoryStore) SetOAuthState(sessionID, state string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.oauthStateBySession[sessionID]; ok {
		delete(m.sessionByOAuthState, old.state)
	}
	m.oauthStateBySession[sessionID] = pendingState{state: state, createdAt: time.Now()}
	m.sessionByOAuthState[state] = sessionID
}

// GetOAuthState returns the session's state if it has not expired.
func (m *MemoryStore) GetOAuthState(sessionID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.oauthStateBySession[sessionID]
	if !ok {
		return ""
	}
	if time.Since(p.createdAt) > oauthStateTTL {
		delete(m.oauthStateBySession, sessionID)
		delete(m.sessionByOAuthState, p.state)
		return ""
	}
	return p.state
}

func (m *MemoryStore) ClearOAuthState(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.oauthStateBySession[sessionID]; ok {
		delete(m.sessionByOAuthState, p.state)
		delete(m.oauthStateBySession, sessionID)
	}
}

// GetSessionByOAuthState resolves the session that asked for state.
func (m *MemoryStore) GetSessionByOAuthState(state string) string {
	m.mu.RLock()
	sid := m.sessionByOAuthState[state]
	m.mu.RUnlock()
	if sid == "" || m.GetOAuthState(sid) != state {
		return ""
	}
	return sid
}
