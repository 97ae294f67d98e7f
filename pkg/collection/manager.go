package collection

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/oxidb/oxidb/pkg/oxierr"
)

// Manager owns the mapping from collection name to live handle
// (spec.md §4.5). Open is idempotent; Drop removes the collection's
// on-disk files and evicts the handle under an exclusive lock. Different
// collections proceed independently: Manager only serializes access to
// its own name->handle map, never to a collection's own operations.
type Manager struct {
	baseDir string

	mu          sync.RWMutex
	collections map[string]*Collection
}

// NewManager returns a Manager rooted at baseDir (one subdirectory per
// collection).
func NewManager(baseDir string) *Manager {
	return &Manager{baseDir: baseDir, collections: make(map[string]*Collection)}
}

// systemPrefix marks reserved system collection names (_audit, _users,
// _schedules, ...).
const systemPrefix = "_"

// ValidateName rejects empty names; system names (leading "_") are
// permitted only when explicit is true, since they're reserved for
// internal bookkeeping collections the dispatcher creates itself.
func ValidateName(name string, explicit bool) error {
	if name == "" {
		return oxierr.New(oxierr.BadRequest, "collection name must not be empty")
	}
	if !explicit && strings.HasPrefix(name, systemPrefix) {
		return oxierr.New(oxierr.BadRequest, "collection name %q is reserved for system use", name)
	}
	return nil
}

// Open returns the live handle for name, opening it from disk (or
// creating it) if not already held. Open is idempotent: a second Open of
// an already-open collection returns the same handle.
func (m *Manager) Open(name string) (*Collection, error) {
	m.mu.RLock()
	if c, ok := m.collections[name]; ok {
		m.mu.RUnlock()
		return c, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.collections[name]; ok {
		return c, nil
	}
	c, err := Open(name, filepath.Join(m.baseDir, name))
	if err != nil {
		return nil, err
	}
	m.collections[name] = c
	return c, nil
}

// Drop closes and removes a collection's on-disk directory, evicting its
// handle. Dropping a collection that was never opened is not an error.
func (m *Manager) Drop(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.collections[name]; ok {
		c.Close()
		delete(m.collections, name)
	}
	dir := filepath.Join(m.baseDir, name)
	if err := os.RemoveAll(dir); err != nil {
		return oxierr.Wrap(oxierr.IOError, err, "remove collection directory %q", name)
	}
	return nil
}

// List returns the names of every collection directory on disk, whether
// or not it is currently open.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.baseDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, oxierr.Wrap(oxierr.IOError, err, "list collections")
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// CloseAll closes every currently open collection handle (used at
// shutdown).
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for name, c := range m.collections {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.collections, name)
	}
	return firstErr
}
