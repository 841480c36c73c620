package storage

import (
	"sort"

	"stashdb/value"
)

// store is the authoritative key→value mapping. It is a plain map with no
// locking of its own; the engine serializes all access under one lock.
type store struct {
	entries map[string]value.Value
}

func newStore(entries map[string]value.Value) *store {
	if entries == nil {
		entries = make(map[string]value.Value)
	}
	return &store{entries: entries}
}

func (s *store) has(key string) bool {
	_, ok := s.entries[key]
	return ok
}

func (s *store) get(key string) (value.Value, bool) {
	v, ok := s.entries[key]
	return v, ok
}

func (s *store) put(key string, v value.Value) {
	s.entries[key] = v
}

func (s *store) remove(key string) {
	delete(s.entries, key)
}

func (s *store) len() int {
	return len(s.entries)
}

// keys returns all keys in sorted order.
func (s *store) keys() []string {
	out := make([]string, 0, len(s.entries))
	for k := range s.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// snapshot returns a shallow copy of the mapping. Values are immutable, so
// sharing them between the copy and the live map is safe.
func (s *store) snapshot() map[string]value.Value {
	out := make(map[string]value.Value, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}
