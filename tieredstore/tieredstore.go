// Package tieredstore chains pantry stores into one, a fast front tier
// over an authoritative back tier: typically memstore over a SQL store.
// Single-entry reads check tiers in order and copy a deeper hit
// forward, so a warm entry costs a map lookup while the back tier keeps
// the durable copy.
//
// The last store is authoritative: counts, scans and size estimates
// come from it alone. Entries carrying parent keys are written only to
// it, because front tiers are free to drop the parents such an entry
// depends on, and a dependent must never outlive its parent anywhere.
// Promotion copies an entry verbatim, expiry included, so peeks through
// a tiered store still leave every expiry untouched.
//
// Compaction is not forwarded; vacuum the underlying stores directly.
package tieredstore

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/pantrykv/pantry"
)

// Store is a pantry.Store layered over other stores. The zero value is
// not usable; call New.
type Store struct {
	tiers []pantry.Store
	caps  pantry.Capabilities
}

var _ pantry.Store = (*Store)(nil)

// New returns a Store reading through tiers in order, with the last
// tier authoritative. At least two stores are required; a single tier
// is just that store.
func New(tiers ...pantry.Store) (*Store, error) {
	if len(tiers) < 2 {
		return nil, errors.New("tieredstore: at least two stores required")
	}
	for _, t := range tiers {
		if t == nil {
			return nil, errors.New("tieredstore: store must not be nil")
		}
	}
	return &Store{tiers: tiers, caps: combine(tiers)}, nil
}

// combine intersects the tiers' capabilities: the tightest name limits
// so every write fits every tier, peekable only when every tier is, and
// the authoritative tier's parent limit since parent-carrying entries
// go only there.
func combine(tiers []pantry.Store) pantry.Capabilities {
	caps := pantry.Capabilities{
		MaxParentKeys: tiers[len(tiers)-1].Capabilities().MaxParentKeys,
		Peekable:      true,
	}
	for _, t := range tiers {
		tc := t.Capabilities()
		caps.MaxPartitionLen = tighter(caps.MaxPartitionLen, tc.MaxPartitionLen)
		caps.MaxKeyLen = tighter(caps.MaxKeyLen, tc.MaxKeyLen)
		caps.Peekable = caps.Peekable && tc.Peekable
	}
	return caps
}

// tighter picks the smaller of two length limits, where non-positive
// means unbounded.
func tighter(a, b int) int {
	if a <= 0 {
		return b
	}
	if b > 0 && b < a {
		return b
	}
	return a
}

func (s *Store) Capabilities() pantry.Capabilities {
	return s.caps
}

// back returns the authoritative tier.
func (s *Store) back() pantry.Store {
	return s.tiers[len(s.tiers)-1]
}

// Upsert writes the entry to every tier, the authoritative one first so
// a failure there leaves the front tiers untouched. Entries with parent
// keys skip the front tiers entirely. A front tier that fails the write
// is purged of its now-stale copy before the error is reported.
func (s *Store) Upsert(ctx context.Context, e pantry.Entry) error {
	if err := s.back().Upsert(ctx, e); err != nil {
		return err
	}
	if len(e.ParentKeys) > 0 {
		return nil
	}
	for _, t := range s.tiers[:len(s.tiers)-1] {
		if err := t.Upsert(ctx, e); err != nil {
			// The tier may still hold the previous version; a stale
			// front copy must not outlive the write that replaced it.
			if _, derr := t.Delete(ctx, e.Fingerprint); derr != nil {
				return errors.CombineErrors(err, derr)
			}
			return err
		}
	}
	return nil
}

// Read checks tiers in order and returns the first hit, copying it into
// the tiers it missed in unless it carries parent keys. Promotion is
// best-effort; a tier that refuses the copy just stays cold.
func (s *Store) Read(ctx context.Context, fp uint64) (pantry.Entry, bool, error) {
	for i, t := range s.tiers {
		e, found, err := t.Read(ctx, fp)
		if err != nil {
			return pantry.Entry{}, false, err
		}
		if !found {
			continue
		}
		if i > 0 && len(e.ParentKeys) == 0 {
			for _, front := range s.tiers[:i] {
				if err := front.Upsert(ctx, e); err != nil {
					break
				}
			}
		}
		return e, true, nil
	}
	return pantry.Entry{}, false, nil
}

// Delete removes the entry from every tier, front to back so no tier
// serves an entry the authoritative one has dropped. Whether the entry
// existed is the authoritative tier's answer.
func (s *Store) Delete(ctx context.Context, fp uint64) (bool, error) {
	for _, t := range s.tiers[:len(s.tiers)-1] {
		if _, err := t.Delete(ctx, fp); err != nil {
			return false, err
		}
	}
	return s.back().Delete(ctx, fp)
}

// DeleteWhere applies the same query to every tier, front to back, and
// returns the authoritative tier's count.
func (s *Store) DeleteWhere(ctx context.Context, q pantry.Query) (int64, error) {
	for _, t := range s.tiers[:len(s.tiers)-1] {
		if _, err := t.DeleteWhere(ctx, q); err != nil {
			return 0, err
		}
	}
	return s.back().DeleteWhere(ctx, q)
}

func (s *Store) Count(ctx context.Context, q pantry.Query) (int64, error) {
	return s.back().Count(ctx, q)
}

func (s *Store) Scan(ctx context.Context, q pantry.Query, fn func(pantry.Entry) error) error {
	return s.back().Scan(ctx, q, fn)
}

func (s *Store) SizeEstimate(ctx context.Context) (int64, error) {
	return s.back().SizeEstimate(ctx)
}

// Close closes every tier and returns the first failure.
func (s *Store) Close() error {
	var firstErr error
	for _, t := range s.tiers {
		if err := t.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
