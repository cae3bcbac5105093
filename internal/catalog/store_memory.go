package catalog

import (
	"context"
	"slices"
	"sync"
)

// MemStore keeps the collection in insertion order. When commit is set, every
// mutation hands it the next collection while the write lock is held, and
// only swaps it in if commit succeeds.
type MemStore struct {
	mu     sync.RWMutex
	items  []Product
	commit func([]Product) error
}

func NewMemStore(seed ...Product) *MemStore {
	items := make([]Product, 0, len(seed))
	for _, p := range seed {
		items = append(items, p.clone())
	}
	return &MemStore{items: items}
}

func (s *MemStore) Ping(ctx context.Context) error { return nil }

func (s *MemStore) List(ctx context.Context) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Product, 0, len(s.items))
	for _, p := range s.items {
		out = append(out, p.clone())
	}
	return out, nil
}

func (s *MemStore) Get(ctx context.Context, id string) (Product, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(id)
	if i < 0 {
		return Product{}, false, nil
	}
	return s.items[i].clone(), true, nil
}

func (s *MemStore) Add(ctx context.Context, p Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(p.ID) >= 0 {
		return ErrDuplicateID
	}

	next := make([]Product, len(s.items), len(s.items)+1)
	copy(next, s.items)
	next = append(next, p.clone())

	return s.swap(next)
}

func (s *MemStore) Update(ctx context.Context, id string, patch Patch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false, nil
	}

	next := slices.Clone(s.items)
	next[i] = patch.apply(next[i])

	if err := s.swap(next); err != nil {
		return false, err
	}
	return true, nil
}

func (s *MemStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false, nil
	}

	next := slices.Delete(slices.Clone(s.items), i, i+1)

	if err := s.swap(next); err != nil {
		return false, err
	}
	return true, nil
}

// swap installs next as the collection; caller holds mu for writing.
func (s *MemStore) swap(next []Product) error {
	if s.commit != nil {
		if err := s.commit(next); err != nil {
			return err
		}
	}
	s.items = next
	return nil
}

func (s *MemStore) indexOf(id string) int {
	return slices.IndexFunc(s.items, func(p Product) bool { return p.ID == id })
}
