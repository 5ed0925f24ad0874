// Package memory provides the bounded key/value store shared by every run
// of an orchestrator.
//
// Entries track how often they are read. When the store is full, the entry
// with the fewest reads is evicted; among equally unread entries the one
// touched longest ago goes first.
package memory

import (
	"maps"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultCapacity is used when New is given a non-positive capacity.
const DefaultCapacity = 1000

// Entry is a snapshot of one stored value and its bookkeeping.
type Entry struct {
	Value       any
	Metadata    map[string]any
	StoredAt    time.Time
	LastAccess  time.Time
	AccessCount int

	// touch orders entries by their most recent store or retrieve.
	touch uint64
}

// EvictFunc is called for every evicted entry after the store lock is
// released.
type EvictFunc func(key string, entry Entry)

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now for stored/accessed timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithEvictionHook registers fn to observe evictions.
func WithEvictionHook(fn EvictFunc) Option {
	return func(s *Store) {
		s.onEvict = fn
	}
}

// Store is a capacity-bounded map safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	entries  map[string]*Entry
	capacity int
	seq      uint64
	now      func() time.Time
	onEvict  EvictFunc
}

// New returns an empty store holding at most capacity entries.
func New(capacity int, opts ...Option) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s := &Store{
		entries:  make(map[string]*Entry),
		capacity: capacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Capacity reports the maximum number of entries.
func (s *Store) Capacity() int {
	return s.capacity
}

// SetEvictionHook replaces the eviction hook of an existing store.
func (s *Store) SetEvictionHook(fn EvictFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEvict = fn
}

// Put stores value under key, resetting its access count. When the store
// is full one entry is evicted first, even if key is already present.
func (s *Store) Put(key string, value any, metadata map[string]any) {
	s.mu.Lock()
	var (
		victim  string
		evicted Entry
		hook    EvictFunc
		ok      bool
	)
	if len(s.entries) >= s.capacity {
		victim, evicted, ok = s.evictLocked()
		hook = s.onEvict
	}

	now := s.now()
	s.seq++
	s.entries[key] = &Entry{
		Value:      value,
		Metadata:   maps.Clone(metadata),
		StoredAt:   now,
		LastAccess: now,
		touch:      s.seq,
	}
	s.mu.Unlock()

	if ok && hook != nil {
		hook(victim, evicted)
	}
}

// Get returns the value stored under key. A hit increments the entry's
// access count and refreshes its last-access time.
func (s *Store) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	s.seq++
	e.AccessCount++
	e.LastAccess = s.now()
	e.touch = s.seq
	return e.Value, true
}

// Peek returns a copy of the entry under key without counting an access.
func (s *Store) Peek(key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return Entry{}, false
	}
	out := *e
	out.Metadata = maps.Clone(e.Metadata)
	return out, true
}

// Metadata returns a copy of the metadata attached to key.
func (s *Store) Metadata(key string) (map[string]any, bool) {
	e, ok := s.Peek(key)
	if !ok {
		return nil, false
	}
	return e.Metadata, true
}

// Search returns keys containing query, ignoring case, ordered by
// descending access count and then by key.
func (s *Store) Search(query string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := strings.ToLower(query)
	keys := make([]string, 0)
	for k := range s.entries {
		if strings.Contains(strings.ToLower(k), q) {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		ci, cj := s.entries[keys[i]].AccessCount, s.entries[keys[j]].AccessCount
		if ci != cj {
			return ci > cj
		}
		return keys[i] < keys[j]
	})
	return keys
}

// Keys returns all keys in lexical order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len reports the number of stored entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Clear removes every entry. Cleared entries are not reported as evictions.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*Entry)
}

func (s *Store) evictLocked() (string, Entry, bool) {
	var (
		victim string
		oldest *Entry
	)
	for k, e := range s.entries {
		if oldest == nil ||
			e.AccessCount < oldest.AccessCount ||
			(e.AccessCount == oldest.AccessCount && e.touch < oldest.touch) {
			victim, oldest = k, e
		}
	}
	if oldest == nil {
		return "", Entry{}, false
	}
	delete(s.entries, victim)
	return victim, *oldest, true
}
