package session

import (
	"sort"
	"sync"
)

// Manager tracks attached sessions and which one control surfaces target.
// A nil active session is a normal state (no page attached yet, or the page
// is one veil cannot work on) and callers are expected to degrade, not error.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	active   string
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Add registers a session. The first session added becomes the active one.
func (m *Manager) Add(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID()] = s
	if m.active == "" {
		m.active = s.ID()
	}
}

// Remove unregisters a session and returns it for closing, or nil if absent.
func (m *Manager) Remove(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil
	}
	delete(m.sessions, id)
	if m.active == id {
		m.active = ""
		for other := range m.sessions {
			m.active = other
			break
		}
	}
	return s
}

// Get returns the session with id, or nil.
func (m *Manager) Get(id string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[id]
}

// Active returns the targeted session, or nil when none is attached.
func (m *Manager) Active() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[m.active]
}

// SetActive switches the target. Reports whether id names a live session.
func (m *Manager) SetActive(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return false
	}
	m.active = id
	return true
}

// List returns all sessions ordered by id.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// CloseAll closes every session and empties the manager.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.active = ""
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
