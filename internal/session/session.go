package session

import (
	"strings"
	"sync"

	"Mansoor88-6/site-analytics/internal/platform"

	"github.com/google/uuid"
)

// StorageKey is the session storage key holding the session id
const StorageKey = "analytics_session_id"

// Manager hands out the session id of one tab
type Manager struct {
	storage platform.SessionStorage
	newID   func() string
	mu      sync.Mutex
}

// NewManager creates a new session manager over the tab's session storage
func NewManager(storage platform.SessionStorage) *Manager {
	return &Manager{
		storage: storage,
		newID:   uuid.NewString,
	}
}

// GetOrCreate returns the stored session id, generating and storing one
// when the tab has none yet
func (m *Manager) GetOrCreate() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.storage.GetItem(StorageKey); ok && strings.TrimSpace(existing) != "" {
		return existing
	}

	// First load in this tab
	id := m.newID()
	m.storage.SetItem(StorageKey, id)
	return id
}
