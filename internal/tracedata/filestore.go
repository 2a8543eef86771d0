package tracedata

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	symbolsFile = "symbols.yaml"
	threadsDir  = "threads"
	traceExt    = ".trace"
)

// FileStore keeps one directory per run:
//
//	<root>/<session>/symbols.yaml
//	<root>/<session>/threads/<thread>.trace
type FileStore struct {
	dir string
}

// NewFileStore creates a new file-based trace store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir}, nil
}

// SessionDir returns the directory holding a run's files.
func (s *FileStore) SessionDir(sessionID string) string {
	return filepath.Join(s.dir, sessionID)
}

// ThreadsDir returns the directory holding a run's thread traces.
func (s *FileStore) ThreadsDir(sessionID string) string {
	return filepath.Join(s.dir, sessionID, threadsDir)
}

// Save writes a run to disk, replacing any thread files already present for
// the same thread ids.
func (s *FileStore) Save(sessionID string, data *Data) error {
	if err := ValidateSessionID(sessionID); err != nil {
		return err
	}
	dir := filepath.Join(s.SessionDir(sessionID), threadsDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	symbols, err := yaml.Marshal(data.Symbols)
	if err != nil {
		return fmt.Errorf("failed to marshal symbols: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.SessionDir(sessionID), symbolsFile), symbols, 0644); err != nil {
		return fmt.Errorf("failed to write symbols: %w", err)
	}

	for thread, blob := range data.Threads {
		path := filepath.Join(dir, strconv.FormatInt(thread, 10)+traceExt)
		if err := os.WriteFile(path, blob, 0644); err != nil {
			return fmt.Errorf("failed to write thread %d: %w", thread, err)
		}
	}
	return nil
}

// TraceData reads a run from disk. A run directory that does not exist is
// reported as no data.
func (s *FileStore) TraceData(ctx context.Context, sessionID string) (*Data, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}
	dir := s.SessionDir(sessionID)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	data := &Data{
		Threads: make(map[int64][]byte),
		Symbols: make(map[int]string),
	}

	raw, err := os.ReadFile(filepath.Join(dir, symbolsFile))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read symbols: %w", err)
	default:
		if err := yaml.Unmarshal(raw, &data.Symbols); err != nil {
			return nil, fmt.Errorf("failed to parse symbols: %w", err)
		}
	}

	entries, err := os.ReadDir(filepath.Join(dir, threadsDir))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	for _, e := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, traceExt) {
			continue
		}
		thread, err := strconv.ParseInt(strings.TrimSuffix(name, traceExt), 10, 64)
		if err != nil {
			continue
		}
		blob, err := os.ReadFile(filepath.Join(dir, threadsDir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read thread %d: %w", thread, err)
		}
		data.Threads[thread] = blob
	}
	return data, nil
}

// Sessions lists the runs in the store.
func (s *FileStore) Sessions(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() && ValidateSessionID(e.Name()) == nil {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}
