// Package memory is a process-local purchase store used by the memory
// backend and by tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"pricememory/internal/core"
	"pricememory/internal/storage"
)

type Store struct {
	mu    sync.RWMutex
	items map[string]core.Purchase
	// FailWith forces every call to return the error, for exercising
	// failure paths.
	FailWith error
}

var _ storage.PurchaseRepository = (*Store)(nil)

func New(seed ...core.Purchase) *Store {
	s := &Store{items: make(map[string]core.Purchase, len(seed))}
	for _, p := range seed {
		s.items[p.ID] = p
	}
	return s
}

func (s *Store) Add(_ context.Context, p core.Purchase) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return s.FailWith
	}
	if _, exists := s.items[p.ID]; exists {
		return fmt.Errorf("insert purchase %s: %w", p.ID, storage.ErrDuplicateID)
	}
	s.items[p.ID] = p
	return nil
}

// List returns a copy of the stored purchases, newest first.
func (s *Store) List(_ context.Context) ([]core.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.FailWith != nil {
		return nil, s.FailWith
	}
	out := make([]core.Purchase, 0, len(s.items))
	for _, p := range s.items {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PurchasedAt.Equal(out[j].PurchasedAt) {
			return out[i].PurchasedAt.After(out[j].PurchasedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *Store) Get(_ context.Context, id string) (core.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.FailWith != nil {
		return core.Purchase{}, s.FailWith
	}
	p, ok := s.items[id]
	if !ok {
		return core.Purchase{}, storage.ErrNotFound
	}
	return p, nil
}

func (s *Store) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailWith != nil {
		return false, s.FailWith
	}
	if _, ok := s.items[id]; !ok {
		return false, nil
	}
	delete(s.items, id)
	return true, nil
}

func (s *Store) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.FailWith != nil {
		return 0, s.FailWith
	}
	return len(s.items), nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.FailWith
}

func (s *Store) Close() error { return nil }
