package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/MrEthical07/goBlog/auth"
)

// Storage persists the client's session between process runs.
// Load returns (nil, nil) when nothing is stored.
type Storage interface {
	Load() (*auth.Session, error)
	Save(session *auth.Session) error
	Clear() error
}

// MemoryStorage keeps the session for the life of the process only.
type MemoryStorage struct {
	mu      sync.Mutex
	session *auth.Session
}

func (m *MemoryStorage) Load() (*auth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneSession(m.session), nil
}

func (m *MemoryStorage) Save(session *auth.Session) error {
	m.mu.Lock()
	m.session = cloneSession(session)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStorage) Clear() error {
	m.mu.Lock()
	m.session = nil
	m.mu.Unlock()
	return nil
}

// FileStorage stores the session as JSON at Path with 0600 permissions.
type FileStorage struct {
	Path string
}

func (f FileStorage) Load() (*auth.Session, error) {
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session file: %w", err)
	}
	var session auth.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("decode session file: %w", err)
	}
	if session.ID == "" || session.AccessToken == "" {
		return nil, nil
	}
	return &session, nil
}

func (f FileStorage) Save(session *auth.Session) error {
	if session == nil {
		return f.Clear()
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	tmp := f.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return os.Rename(tmp, f.Path)
}

func (f FileStorage) Clear() error {
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

func cloneSession(s *auth.Session) *auth.Session {
	if s == nil {
		return nil
	}
	out := *s
	out.User = s.User.Clone()
	return &out
}
