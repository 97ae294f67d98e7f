package auth

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/oxidb/oxidb/pkg/oxierr"
)

// storedUser is the JSON-persisted form of a Credential plus its role;
// byte slices are base64-encoded since JSON has no binary type.
type storedUser struct {
	Role       Role   `json:"role"`
	Salt       string `json:"salt"`
	Iterations int    `json:"iterations"`
	StoredKey  string `json:"stored_key"`
	ServerKey  string `json:"server_key"`
}

// Store persists user credentials to <dir>/_users/users.json, the
// system collection reserved for this purpose (spec.md §3 "Collection
// names ... reserved for system collections such as _users").
type Store struct {
	path string

	mu    sync.RWMutex
	users map[string]storedUser
}

// OpenStore loads (or creates) the user store rooted at dir.
func OpenStore(dir string) (*Store, error) {
	sysDir := filepath.Join(dir, "_users")
	if err := os.MkdirAll(sysDir, 0o755); err != nil {
		return nil, oxierr.Wrap(oxierr.IOError, err, "create _users directory")
	}
	path := filepath.Join(sysDir, "users.json")
	s := &Store{path: path, users: make(map[string]storedUser)}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, oxierr.Wrap(oxierr.IOError, err, "read users.json")
	}
	if err := json.Unmarshal(data, &s.users); err != nil {
		return nil, oxierr.Wrap(oxierr.Corruption, err, "parse users.json")
	}
	return s, nil
}

// CreateUser adds a new user with the given password and role. Only an
// Admin session may call this at the dispatcher layer (spec.md §4.8
// "user administration [is] Admin-only").
func (s *Store) CreateUser(name, password string, role Role) error {
	cred, err := NewCredential(password)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[name]; exists {
		return oxierr.New(oxierr.Conflict, "user %q already exists", name)
	}
	s.users[name] = storedUser{
		Role:       role,
		Salt:       base64.StdEncoding.EncodeToString(cred.Salt),
		Iterations: cred.Iterations,
		StoredKey:  base64.StdEncoding.EncodeToString(cred.StoredKey),
		ServerKey:  base64.StdEncoding.EncodeToString(cred.ServerKey),
	}
	return s.save()
}

// Lookup returns the credential and role for name.
func (s *Store) Lookup(name string) (Credential, Role, bool, error) {
	s.mu.RLock()
	u, ok := s.users[name]
	s.mu.RUnlock()
	if !ok {
		return Credential{}, "", false, nil
	}
	salt, err := base64.StdEncoding.DecodeString(u.Salt)
	if err != nil {
		return Credential{}, "", false, oxierr.Wrap(oxierr.Corruption, err, "decode salt for %q", name)
	}
	storedKey, err := base64.StdEncoding.DecodeString(u.StoredKey)
	if err != nil {
		return Credential{}, "", false, oxierr.Wrap(oxierr.Corruption, err, "decode stored key for %q", name)
	}
	serverKey, err := base64.StdEncoding.DecodeString(u.ServerKey)
	if err != nil {
		return Credential{}, "", false, oxierr.Wrap(oxierr.Corruption, err, "decode server key for %q", name)
	}
	return Credential{Salt: salt, Iterations: u.Iterations, StoredKey: storedKey, ServerKey: serverKey}, u.Role, true, nil
}

// DropUser removes a user (Admin-only at the dispatcher layer).
func (s *Store) DropUser(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[name]; !ok {
		return oxierr.New(oxierr.NotFound, "user %q not found", name)
	}
	delete(s.users, name)
	return s.save()
}

func (s *Store) save() error {
	data, err := json.MarshalIndent(s.users, "", "  ")
	if err != nil {
		return oxierr.Wrap(oxierr.Internal, err, "marshal users.json")
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return oxierr.Wrap(oxierr.IOError, err, "write users.json.tmp")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return oxierr.Wrap(oxierr.IOError, err, "rename users.json.tmp")
	}
	return nil
}
