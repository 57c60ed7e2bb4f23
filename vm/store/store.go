// Package store implements the Scoped Object Store: the concurrent hash
// map that backs both runtime scopes and object field dictionaries.
//
// Keys are pre-computed 64-bit hashes; the original key string is kept
// for iteration and printing. Up to three entries live inline in the
// Store with no bucket array, which keeps short-lived block scopes
// allocation free. The fourth insert allocates eight buckets and moves
// the inline entries into them; from then on the bucket array doubles
// whenever an insert would push the load factor above 0.75.
//
// Every Store has its own reader/writer lock held for exactly one
// operation. No lock is held across calls, so re-entrant access from the
// same goroutine cannot deadlock.
package store

import (
	"sort"
	"sync"
)

const (
	inlineCap      = 3
	initialBuckets = 8
)

// Entry is one key/value pair with its insertion order.
type Entry[V any] struct {
	Hash  uint64
	Key   string
	Value V
	Order uint64
}

type node[V any] struct {
	Entry[V]
	next *node[V]
}

// Store is a concurrency-safe hash map keyed by pre-computed hashes.
// The zero value is an empty store ready for use.
type Store[V any] struct {
	mu sync.RWMutex

	inline    [inlineCap]Entry[V]
	inlineLen int

	buckets []*node[V]
	count   int
	seq     uint64
}

// New returns an empty store.
func New[V any]() *Store[V] {
	return &Store[V]{}
}

// Insert sets key to value, overwriting any existing entry with the same
// hash. An order of 0 assigns the next insertion sequence number.
// Overwrites keep the entry's original order.
func (s *Store[V]) Insert(hash uint64, key string, value V, order uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.find(hash); e != nil {
		e.Value = value
		return
	}
	s.add(hash, key, value, order)
}

// InsertNew inserts only if no entry with hash exists. It reports
// whether the insert happened. The check and the insert are atomic.
func (s *Store[V]) InsertNew(hash uint64, key string, value V) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.find(hash) != nil {
		return false
	}
	s.add(hash, key, value, 0)
	return true
}

// Update overwrites an existing entry and reports whether one existed.
func (s *Store[V]) Update(hash uint64, value V) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.find(hash)
	if e == nil {
		return false
	}
	e.Value = value
	return true
}

// Lookup returns the value stored under hash.
func (s *Store[V]) Lookup(hash uint64) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if e := s.find(hash); e != nil {
		return e.Value, true
	}
	var zero V
	return zero, false
}

// Remove deletes the entry under hash and reports whether it existed.
func (s *Store[V]) Remove(hash uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.buckets == nil {
		for i := 0; i < s.inlineLen; i++ {
			if s.inline[i].Hash != hash {
				continue
			}
			copy(s.inline[i:], s.inline[i+1:s.inlineLen])
			s.inlineLen--
			s.inline[s.inlineLen] = Entry[V]{}
			s.count--
			return true
		}
		return false
	}

	idx := hash % uint64(len(s.buckets))
	for p := &s.buckets[idx]; *p != nil; p = &(*p).next {
		if (*p).Hash == hash {
			*p = (*p).next
			s.count--
			return true
		}
	}
	return false
}

// Len returns the number of entries.
func (s *Store[V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

// Entries returns a snapshot of all entries sorted by insertion order.
func (s *Store[V]) Entries() []Entry[V] {
	s.mu.RLock()
	out := make([]Entry[V], 0, s.count)
	if s.buckets == nil {
		out = append(out, s.inline[:s.inlineLen]...)
	} else {
		for _, n := range s.buckets {
			for ; n != nil; n = n.next {
				out = append(out, n.Entry)
			}
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// Clear removes every entry and returns the store to inline mode.
func (s *Store[V]) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inline = [inlineCap]Entry[V]{}
	s.inlineLen = 0
	s.buckets = nil
	s.count = 0
}

// Buckets returns the bucket array length, or 0 while entries are inline.
func (s *Store[V]) Buckets() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buckets)
}

// ---------------------------------------------------------------------------
// Internals (callers hold s.mu)
// ---------------------------------------------------------------------------

func (s *Store[V]) find(hash uint64) *Entry[V] {
	if s.buckets == nil {
		for i := 0; i < s.inlineLen; i++ {
			if s.inline[i].Hash == hash {
				return &s.inline[i]
			}
		}
		return nil
	}
	for n := s.buckets[hash%uint64(len(s.buckets))]; n != nil; n = n.next {
		if n.Hash == hash {
			return &n.Entry
		}
	}
	return nil
}

func (s *Store[V]) add(hash uint64, key string, value V, order uint64) {
	if order == 0 {
		s.seq++
		order = s.seq
	} else if order > s.seq {
		s.seq = order
	}
	e := Entry[V]{Hash: hash, Key: key, Value: value, Order: order}

	if s.buckets == nil {
		if s.inlineLen < inlineCap {
			s.inline[s.inlineLen] = e
			s.inlineLen++
			s.count++
			return
		}
		s.resize(initialBuckets)
	} else if float64(s.count+1) > 0.75*float64(len(s.buckets)) {
		s.resize(len(s.buckets) * 2)
	}

	idx := hash % uint64(len(s.buckets))
	s.buckets[idx] = &node[V]{Entry: e, next: s.buckets[idx]}
	s.count++
}

// resize rehashes inline and bucket entries into n buckets and clears
// the inline storage.
func (s *Store[V]) resize(n int) {
	buckets := make([]*node[V], n)
	place := func(e Entry[V]) {
		idx := e.Hash % uint64(n)
		buckets[idx] = &node[V]{Entry: e, next: buckets[idx]}
	}
	for i := 0; i < s.inlineLen; i++ {
		place(s.inline[i])
	}
	s.inline = [inlineCap]Entry[V]{}
	s.inlineLen = 0
	for _, head := range s.buckets {
		for nd := head; nd != nil; nd = nd.next {
			place(nd.Entry)
		}
	}
	s.buckets = buckets
}
