package tracedata

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/sirupsen/logrus"
)

// Key layout:
//
//	sym/<session>           msgpack symbol table
//	trc/<session>/<thread>  compressed thread trace
const (
	symbolPrefix = "sym/"
	tracePrefix  = "trc/"
)

// PebbleStore keeps runs in a pebble database.
type PebbleStore struct {
	db *pebble.DB
}

// PebbleOption configures OpenPebbleStore.
type PebbleOption func(*pebble.Options)

// WithFS opens the database on fs instead of the OS filesystem.
func WithFS(fs vfs.FS) PebbleOption {
	return func(o *pebble.Options) {
		o.FS = fs
	}
}

// WithStoreLogger routes pebble's own log output through logger.
func WithStoreLogger(logger logrus.FieldLogger) PebbleOption {
	return func(o *pebble.Options) {
		o.Logger = logger.WithField("component", "pebble")
	}
}

// OpenPebbleStore opens the database at path. A read-only store can serve
// TraceData and Sessions but not Save.
func OpenPebbleStore(path string, readOnly bool, opts ...PebbleOption) (*PebbleStore, error) {
	o := &pebble.Options{ReadOnly: readOnly}
	for _, opt := range opts {
		opt(o)
	}
	db, err := pebble.Open(path, o)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace database: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

func traceKey(sessionID string, thread int64) []byte {
	return []byte(tracePrefix + sessionID + "/" + strconv.FormatInt(thread, 10))
}

// Save writes a run in one batch.
func (s *PebbleStore) Save(sessionID string, data *Data) error {
	if err := ValidateSessionID(sessionID); err != nil {
		return err
	}
	symbols, err := encodeSymbols(data.Symbols)
	if err != nil {
		return fmt.Errorf("failed to marshal symbols: %w", err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set([]byte(symbolPrefix+sessionID), symbols, nil); err != nil {
		return err
	}
	for thread, blob := range data.Threads {
		if err := batch.Set(traceKey(sessionID, thread), blob, nil); err != nil {
			return err
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit session %s: %w", sessionID, err)
	}
	return nil
}

// TraceData reads a run. A run without a symbol table entry is reported as
// no data.
func (s *PebbleStore) TraceData(ctx context.Context, sessionID string) (*Data, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return nil, err
	}

	raw, closer, err := s.db.Get([]byte(symbolPrefix + sessionID))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read symbols: %w", err)
	}
	symbols, err := decodeSymbols(raw)
	closer.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to parse symbols: %w", err)
	}

	data := &Data{
		Threads: make(map[int64][]byte),
		Symbols: symbols,
	}

	prefix := tracePrefix + sessionID + "/"
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: []byte(prefix + "\xff"),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		thread, err := strconv.ParseInt(strings.TrimPrefix(string(iter.Key()), prefix), 10, 64)
		if err != nil {
			continue
		}
		// Value is only valid until the iterator moves.
		data.Threads[thread] = append([]byte(nil), iter.Value()...)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("failed to scan threads: %w", err)
	}
	return data, nil
}

// Sessions lists the runs in the database.
func (s *PebbleStore) Sessions(ctx context.Context) ([]string, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(symbolPrefix),
		UpperBound: []byte(symbolPrefix + "\xff"),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var ids []string
	for iter.First(); iter.Valid(); iter.Next() {
		ids = append(ids, strings.TrimPrefix(string(iter.Key()), symbolPrefix))
	}
	return ids, iter.Error()
}

// Close closes the database.
func (s *PebbleStore) Close() error {
	return s.db.Close()
}
