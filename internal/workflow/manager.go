package workflow

import (
	"sync"

	"github.com/google/uuid"
)

// Manager owns the live workflows, one per in-progress attempt, keyed by
// session id.
type Manager struct {
	mu        sync.RWMutex
	cfg       Config
	workflows map[uuid.UUID]*Workflow
}

// NewManager creates a manager that builds workflows from cfg.
func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg, workflows: make(map[uuid.UUID]*Workflow)}
}

// Create starts a new ballot-creation attempt.
func (m *Manager) Create() *Workflow {
	sessionID := uuid.New()
	w := New(sessionID, m.cfg)
	m.mu.Lock()
	m.workflows[sessionID] = w
	m.mu.Unlock()
	return w
}

// Get returns the workflow for a session.
func (m *Manager) Get(sessionID uuid.UUID) (*Workflow, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.workflows[sessionID]
	return w, ok
}

// Remove drops a terminal workflow from the registry.
func (m *Manager) Remove(sessionID uuid.UUID) {
	m.mu.Lock()
	delete(m.workflows, sessionID)
	m.mu.Unlock()
}
