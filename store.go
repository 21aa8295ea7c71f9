package nodeflow

import (
	"sort"
	"sync"
)

// Store is a concurrency safe key value map that callers may use as the
// shared value of a run. The runtime itself never locks the shared value;
// Store exists for parallel batches whose units write overlapping keys.
type Store struct {
	mu   sync.RWMutex
	data map[string]any
}

// NewStore returns a store seeded with a copy of initial.
func NewStore(initial map[string]any) *Store {
	s := &Store{data: make(map[string]any, len(initial))}
	for k, v := range initial {
		s.data[k] = v
	}
	return s
}

func (s *Store) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		s.data = make(map[string]any)
	}
	s.data[key] = value
}

func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

// Update applies fn to the current value of key under the write lock and
// stores its result, so read-modify-write sequences are atomic.
func (s *Store) Update(key string, fn func(current any, ok bool) any) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		s.data = make(map[string]any)
	}
	current, ok := s.data[key]
	next := fn(current, ok)
	s.data[key] = next
	return next
}

// Append adds values to the slice stored under key, creating it if needed.
func (s *Store) Append(key string, values ...any) []any {
	out := s.Update(key, func(current any, _ bool) any {
		list, _ := current.([]any)
		return append(list, values...)
	})
	return out.([]any)
}

// Keys returns the stored keys sorted.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns a shallow copy of the current contents.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}

// StoreValue returns the value under key asserted to T.
func StoreValue[T any](s *Store, key string) (T, bool) {
	var zero T
	if s == nil {
		return zero, false
	}
	v, ok := s.Get(key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	return typed, ok
}
