// Package client is the portal SDK: token persistence, an authenticated
// HTTP client, session resolution and route guards, consumed by portalctl.
package client

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// State is the persisted session: the token pair plus a cached admin flag.
// The flag is a hint only; the session resolver recomputes it from the
// access token or the profile endpoint whenever it can.
type State struct {
	Access    string `json:"access,omitempty"`
	Refresh   string `json:"refresh,omitempty"`
	AdminHint *bool  `json:"is_admin,omitempty"`
}

// TokenStore persists session state between invocations.
type TokenStore interface {
	Load() (State, error)
	Save(State) error
	Clear() error
}

// FileStore keeps state in a JSON file. Writes go through a temp file and
// rename, so concurrent writers end up last-writer-wins with no torn reads.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return State{}, nil
		}
		return State{}, err
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		// A corrupt state file behaves like a logged-out session.
		return State{}, nil
	}
	return st, nil
}

func (s *FileStore) Save(st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// MemStore is an in-process TokenStore for tests and embedding.
type MemStore struct {
	mu sync.Mutex
	st State
}

func NewMemStore() *MemStore { return &MemStore{} }

func (s *MemStore) Load() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st, nil
}

func (s *MemStore) Save(st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st = st
	return nil
}

func (s *MemStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st = State{}
	return nil
}
