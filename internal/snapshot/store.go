/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package snapshot

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
)

const defaultListLimit = 100

// Store keeps snapshots keyed by ID. Implementations must be safe for
// concurrent use; a stored snapshot is never modified in place.
type Store interface {
	Get(ctx context.Context, id string) (*Snapshot, error)
	Set(ctx context.Context, s *Snapshot) error
	List(ctx context.Context, limit int) ([]*Snapshot, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// MemoryStore is a process-lifetime Store backed by a map.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]*Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots: make(map[string]*Snapshot),
	}
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.snapshots[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return s, nil
}

func (m *MemoryStore) Set(ctx context.Context, s *Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if s == nil || s.ID == "" {
		return fmt.Errorf("%w: snapshot has no id", ErrInvalidItems)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.snapshots[s.ID] = s

	return nil
}

// List returns up to limit snapshots, newest first.
func (m *MemoryStore) List(ctx context.Context, limit int) ([]*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	out := make([]*Snapshot, 0, len(m.snapshots))
	for _, s := range m.snapshots {
		out = append(out, s)
	}
	m.mu.RUnlock()

	return newestFirst(out, limit), nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.snapshots[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	delete(m.snapshots, id)

	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}

func newestFirst(snaps []*Snapshot, limit int) []*Snapshot {
	if limit <= 0 {
		limit = defaultListLimit
	}

	slices.SortFunc(snaps, func(a, b *Snapshot) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}

		return cmp.Compare(a.ID, b.ID)
	})

	if len(snaps) > limit {
		snaps = snaps[:limit]
	}

	return snaps
}
