// Package memstore provides an in-memory pantry.Store backed by a map.
// It is the fastest backend and the reference implementation of the
// store contract; nothing survives a process restart.
package memstore

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/pantrykv/pantry"
)

var errClosed = errors.New("memstore: store is closed")

// Store is an in-memory pantry.Store. The zero value is not usable;
// call New. Entries are stored as given, without copying.
type Store struct {
	mu      sync.RWMutex
	entries map[uint64]pantry.Entry
	closed  bool
}

var _ pantry.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{entries: make(map[uint64]pantry.Entry)}
}

// Capabilities declares no length limits, unlimited parent keys and
// peek support.
func (s *Store) Capabilities() pantry.Capabilities {
	return pantry.Capabilities{
		MaxPartitionLen: 0,
		MaxKeyLen:       0,
		MaxParentKeys:   -1,
		Peekable:        true,
	}
}

func (s *Store) Upsert(ctx context.Context, e pantry.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	for _, pk := range e.ParentKeys {
		if _, ok := s.entries[pantry.Fingerprint(e.Partition, pk)]; !ok {
			return errors.Newf("memstore: parent key %q not found in partition %q", pk, e.Partition)
		}
	}
	s.entries[e.Fingerprint] = e
	return nil
}

func (s *Store) Read(ctx context.Context, fp uint64) (pantry.Entry, bool, error) {
	if err := ctx.Err(); err != nil {
		return pantry.Entry{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return pantry.Entry{}, false, errClosed
	}
	e, ok := s.entries[fp]
	return e, ok, nil
}

func (s *Store) Delete(ctx context.Context, fp uint64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, errClosed
	}
	e, ok := s.entries[fp]
	if !ok {
		return false, nil
	}
	s.deleteCascade(e)
	return true, nil
}

func (s *Store) DeleteWhere(ctx context.Context, q pantry.Query) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errClosed
	}
	var matched []pantry.Entry
	for _, e := range s.entries {
		if matches(e, q) {
			matched = append(matched, e)
		}
	}
	for _, e := range matched {
		s.deleteCascade(e)
	}
	return int64(len(matched)), nil
}

func (s *Store) Count(ctx context.Context, q pantry.Query) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, errClosed
	}
	var n int64
	for _, e := range s.entries {
		if matches(e, q) {
			n++
		}
	}
	return n, nil
}

func (s *Store) Scan(ctx context.Context, q pantry.Query, fn func(pantry.Entry) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return errClosed
	}
	snapshot := make([]pantry.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if matches(e, q) {
			snapshot = append(snapshot, e)
		}
	}
	s.mu.RUnlock()

	for _, e := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) SizeEstimate(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, errClosed
	}
	var n int64
	for _, e := range s.entries {
		n += int64(len(e.Value))
	}
	return n, nil
}

// Close empties the store. Further operations return an error.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.entries = nil
	return nil
}

// deleteCascade removes root and every entry that transitively lists
// it as a parent. Callers hold the write lock.
func (s *Store) deleteCascade(root pantry.Entry) {
	queue := []pantry.Entry{root}
	for len(queue) > 0 {
		e := queue[0]
		queue = queue[1:]
		if _, ok := s.entries[e.Fingerprint]; !ok {
			continue
		}
		delete(s.entries, e.Fingerprint)
		for _, dep := range s.entries {
			if dep.Partition != e.Partition {
				continue
			}
			for _, pk := range dep.ParentKeys {
				if pk == e.Key {
					queue = append(queue, dep)
					break
				}
			}
		}
	}
}

func matches(e pantry.Entry, q pantry.Query) bool {
	if q.Partition != "" && e.Partition != q.Partition {
		return false
	}
	switch q.Expiry {
	case pantry.ExpiryValid:
		return !e.Expired(q.Now)
	case pantry.ExpiryExpired:
		return e.Expired(q.Now)
	default:
		return true
	}
}
