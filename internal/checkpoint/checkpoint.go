// Package checkpoint remembers where each thread's cursor stood when a
// stepping session ended, so the next one can resume there.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Checkpoint is the navigation state of one run.
type Checkpoint struct {
	Session   string          `json:"session"`
	Thread    int64           `json:"thread"`              // Thread that was selected
	Positions map[int64]int64 `json:"positions,omitempty"` // Cursor position per navigated thread
	Timestamp time.Time       `json:"timestamp"`
}

// Store manages checkpoints, one JSON file per run.
type Store struct {
	dir         string
	checkpoints map[string]*Checkpoint
	mu          sync.RWMutex
}

// NewStore creates a new checkpoint store.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &Store{
		dir:         dir,
		checkpoints: make(map[string]*Checkpoint),
	}, nil
}

// Save records cp, replacing any earlier checkpoint of the same run.
func (s *Store) Save(cp *Checkpoint) error {
	if cp.Session == "" {
		return fmt.Errorf("checkpoint without session")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if cp.Timestamp.IsZero() {
		cp.Timestamp = time.Now()
	}
	s.checkpoints[cp.Session] = cp
	return s.flush(cp.Session)
}

// Get retrieves the checkpoint of a run, or nil.
func (s *Store) Get(session string) *Checkpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkpoints[session]
}

// Delete forgets a run's checkpoint.
func (s *Store) Delete(session string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.checkpoints, session)
	err := os.Remove(filepath.Join(s.dir, session+".json"))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Recent returns all checkpoints, newest first.
func (s *Store) Recent() []*Checkpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trail := make([]*Checkpoint, 0, len(s.checkpoints))
	for _, cp := range s.checkpoints {
		trail = append(trail, cp)
	}
	sort.Slice(trail, func(i, j int) bool {
		return trail[i].Timestamp.After(trail[j].Timestamp)
	})
	return trail
}

// flush writes a checkpoint to disk.
func (s *Store) flush(session string) error {
	data, err := json.MarshalIndent(s.checkpoints[session], "", "  ")
	if err != nil {
		return err
	}

	path := filepath.Join(s.dir, session+".json")
	return os.WriteFile(path, data, 0644)
}

// Load loads checkpoints from disk. Unreadable files are ignored.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}

		var cp Checkpoint
		if err := json.Unmarshal(data, &cp); err != nil || cp.Session == "" {
			continue
		}
		s.checkpoints[cp.Session] = &cp
	}

	return nil
}
