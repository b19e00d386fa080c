package product

import (
	"context"
	"slices"
	"sync"
)

// MemStore keeps products in insertion order. Each record lives in a slot;
// byID points at the first slot (in order) whose record carries the id.
type MemStore struct {
	mu    sync.RWMutex
	next  uint64
	slots map[uint64]Product
	order []uint64
	byID  map[int64]uint64
}

func NewMemStore() *MemStore {
	return &MemStore{
		slots: make(map[uint64]Product),
		byID:  make(map[int64]uint64),
	}
}

func NewSeededMemStore() *MemStore {
	s := NewMemStore()
	_ = Seed(context.Background(), s)
	return s
}

func (s *MemStore) Ping(ctx context.Context) error { return nil }

func (s *MemStore) List(ctx context.Context) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Product, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.slots[k])
	}
	return out, nil
}

func (s *MemStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order), nil
}

func (s *MemStore) Get(ctx context.Context, id int64) (Product, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	k, ok := s.byID[id]
	if !ok {
		return Product{}, false, nil
	}
	return s.slots[k], true, nil
}

func (s *MemStore) Create(ctx context.Context, d Draft) (Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := d.withID(s.maxID() + 1)

	k := s.next
	s.next++
	s.slots[k] = p
	s.order = append(s.order, k)
	if _, taken := s.byID[p.ID]; !taken {
		s.byID[p.ID] = k
	}
	return p, nil
}

// Replace overwrites the slot in place. p.ID is stored as given, so the slot
// may stop answering to id afterwards.
func (s *MemStore) Replace(ctx context.Context, id int64, p Product) (Replacement, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.byID[id]
	if !ok {
		return Replacement{}, false, nil
	}

	old := s.slots[k]
	s.slots[k] = p
	if p.ID != old.ID {
		s.reindex(old.ID)
		s.reindex(p.ID)
	}
	return Replacement{Old: old, New: p}, true, nil
}

func (s *MemStore) Delete(ctx context.Context, id int64) (Product, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.byID[id]
	if !ok {
		return Product{}, false, nil
	}

	p := s.slots[k]
	delete(s.slots, k)
	if i := slices.Index(s.order, k); i >= 0 {
		s.order = slices.Delete(s.order, i, i+1)
	}
	s.reindex(id)
	return p, true, nil
}

// maxID is 0 on an empty store. Caller holds mu.
func (s *MemStore) maxID() int64 {
	var (
		m     int64
		first = true
	)
	for id := range s.byID {
		if first || id > m {
			m, first = id, false
		}
	}
	return m
}

// reindex points byID[id] at the first slot carrying id, or drops it.
// Caller holds mu.
func (s *MemStore) reindex(id int64) {
	for _, k := range s.order {
		if s.slots[k].ID == id {
			s.byID[id] = k
			return
		}
	}
	delete(s.byID, id)
}
