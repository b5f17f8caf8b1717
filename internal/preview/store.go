// Package preview manages transient preview files for selected chart
// images. Handles follow a scoped-acquisition contract: acquired on
// selection, released on the next selection or on reset, on every exit
// path. The store tracks live handles so leaks are observable.
package preview

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Handle is a transient display reference for one selected image.
type Handle struct {
	ID   string
	Path string
}

// Store writes preview files into a spool directory.
type Store struct {
	dir  string
	mu   sync.Mutex
	live map[string]string
}

// NewStore creates a Store and ensures the spool directory exists.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("preview store: mkdir %s: %w", dir, err)
	}
	return &Store{dir: dir, live: make(map[string]string)}, nil
}

// Acquire derives a new preview file for the given image bytes.
func (s *Store) Acquire(name string, data []byte) (Handle, error) {
	id, err := newID()
	if err != nil {
		return Handle{}, fmt.Errorf("preview store: id: %w", err)
	}

	ext := filepath.Ext(name)
	if ext == "" {
		ext = ".png"
	}
	path := filepath.Join(s.dir, id+ext)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Handle{}, fmt.Errorf("preview store: write %s: %w", path, err)
	}

	s.mu.Lock()
	s.live[id] = path
	s.mu.Unlock()

	return Handle{ID: id, Path: path}, nil
}

// Release removes a preview file. Releasing an already-released or zero
// handle is a no-op; the file being gone is not an error either.
func (s *Store) Release(h Handle) {
	if h.ID == "" {
		return
	}

	s.mu.Lock()
	path, ok := s.live[h.ID]
	if ok {
		delete(s.live, h.ID)
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Debug("preview cleanup failed", "path", path, "error", err)
	}
}

// Live returns the number of handles not yet released.
func (s *Store) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

func newID() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
