package quota

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// FileStore persists counts as a single JSON object mapping client ID to
// count. The whole file is read and rewritten on every operation; a mutex
// serializes access so concurrent requests cannot lose updates.
type FileStore struct {
	mu   sync.Mutex
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// InitializeIfAbsent creates the backing file as an empty mapping when it
// does not exist. Existing content is left untouched.
func (s *FileStore) InitializeIfAbsent() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat quota store: %w", err)
	}

	if err := os.WriteFile(s.path, []byte("{}"), 0644); err != nil {
		return fmt.Errorf("failed to create quota store: %w", err)
	}
	return nil
}

func (s *FileStore) Get(ctx context.Context, clientID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts, err := s.read()
	if err != nil {
		return 0, err
	}
	return counts[clientID], nil
}

func (s *FileStore) Increment(ctx context.Context, clientID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts, err := s.read()
	if err != nil {
		return 0, err
	}

	counts[clientID]++
	if err := s.write(counts); err != nil {
		return 0, err
	}
	return counts[clientID], nil
}

func (s *FileStore) read() (map[string]int, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read quota store: %w", err)
	}

	counts := make(map[string]int)
	if err := json.Unmarshal(data, &counts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return counts, nil
}

func (s *FileStore) write(counts map[string]int) error {
	data, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("failed to encode quota store: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write quota store: %w", err)
	}
	return nil
}
