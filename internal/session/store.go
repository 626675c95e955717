package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store persists the session snapshot and the completion flag. Clear drops
// the snapshot only; completion outlives the session.
type Store interface {
	Load() (Snapshot, bool, error)
	Save(Snapshot) error
	Clear() error
	Completed() (bool, error)
	MarkCompleted() error
}

type persisted struct {
	Session   *Snapshot `json:"session,omitempty"`
	Completed bool      `json:"completed"`
}

// FileStore keeps the state in one JSON file, replaced atomically on write.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load() (Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.read()
	if err != nil || p.Session == nil {
		return Snapshot{}, false, err
	}
	return *p.Session, true, nil
}

func (s *FileStore) Save(snap Snapshot) error {
	return s.update(func(p *persisted) { p.Session = &snap })
}

func (s *FileStore) Clear() error {
	return s.update(func(p *persisted) { p.Session = nil })
}

func (s *FileStore) Completed() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.read()
	return p.Completed, err
}

func (s *FileStore) MarkCompleted() error {
	return s.update(func(p *persisted) { p.Completed = true })
}

func (s *FileStore) update(fn func(*persisted)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.read()
	if err != nil {
		return err
	}
	fn(&p)
	return s.write(p)
}

func (s *FileStore) read() (persisted, error) {
	var p persisted
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("read session file: %w", err)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return persisted{}, fmt.Errorf("decode session file: %w", err)
	}
	return p, nil
}

func (s *FileStore) write(p persisted) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write session file: %w", err)
	}
	return os.Rename(tmp, s.path)
}

// MemoryStore keeps the state in process; used by tests and one-off runs.
type MemoryStore struct {
	mu        sync.Mutex
	snap      *Snapshot
	completed bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load() (Snapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap == nil {
		return Snapshot{}, false, nil
	}
	return s.snap.clone(), true, nil
}

func (s *MemoryStore) Save(snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := snap.clone()
	s.snap = &c
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = nil
	return nil
}

func (s *MemoryStore) Completed() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed, nil
}

func (s *MemoryStore) MarkCompleted() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = true
	return nil
}
