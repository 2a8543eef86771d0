// Package tracedata loads recorded per-thread traces for a test run and
// turns them into addressable sequences.
package tracedata

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Data is the raw material of one run: a compressed blob per thread and the
// class table the blobs' symbols refer to.
type Data struct {
	Threads map[int64][]byte
	Symbols map[int]string
}

// Provider supplies trace data for a run. A nil Data with a nil error means
// the run has no traces.
type Provider interface {
	TraceData(ctx context.Context, sessionID string) (*Data, error)
}

// Lister is implemented by providers that can enumerate their runs.
type Lister interface {
	Sessions(ctx context.Context) ([]string, error)
}

// ValidateSessionID rejects ids that cannot be used as a directory name, a
// key prefix, or a NATS subject token.
func ValidateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("session id is empty")
	}
	if id == "." || id == ".." {
		return fmt.Errorf("invalid session id %q", id)
	}
	if strings.ContainsAny(id, "/\\.*> \t\r\n") {
		return fmt.Errorf("invalid session id %q: contains a path separator, dot, wildcard or space", id)
	}
	return nil
}

// MemoryProvider serves trace data held in memory.
type MemoryProvider struct {
	mu       sync.RWMutex
	sessions map[string]*Data
}

// NewMemoryProvider creates an empty in-memory provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{sessions: make(map[string]*Data)}
}

// Save stores data under sessionID, replacing anything stored before.
func (m *MemoryProvider) Save(sessionID string, data *Data) error {
	if err := ValidateSessionID(sessionID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionID] = data
	return nil
}

func (m *MemoryProvider) TraceData(ctx context.Context, sessionID string) (*Data, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[sessionID], nil
}

func (m *MemoryProvider) Sessions(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
