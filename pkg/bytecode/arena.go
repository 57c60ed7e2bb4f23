package bytecode

import (
	"bytes"

	"github.com/zeebo/xxh3"
)

const minArenaCap = 64

// Arena is an append-only byte store for literal, identifier and
// function-body bytes. Identical byte sequences are stored once.
//
// Offsets returned by Push remain valid for the lifetime of the arena.
type Arena struct {
	data  []byte
	index map[uint64][]span
}

type span struct {
	off, len int
}

// NewArena returns an empty arena.
func NewArena() *Arena {
	return &Arena{index: make(map[uint64][]span)}
}

// NewArenaFromBytes wraps a previously serialized constants blob.
// Later pushes are not deduplicated against the wrapped bytes.
func NewArenaFromBytes(data []byte) *Arena {
	return &Arena{data: data}
}

// Push stores b and returns its offset. If identical bytes were pushed
// before, the earlier offset is returned and nothing is appended.
func (a *Arena) Push(b []byte) int {
	if a.index == nil {
		a.index = make(map[uint64][]span)
	}
	h := xxh3.Hash(b)
	for _, s := range a.index[h] {
		if s.len == len(b) && bytes.Equal(a.data[s.off:s.off+s.len], b) {
			return s.off
		}
	}
	a.grow(len(b))
	off := len(a.data)
	a.data = append(a.data, b...)
	a.index[h] = append(a.index[h], span{off: off, len: len(b)})
	return off
}

// PushString is Push for string payloads.
func (a *Arena) PushString(s string) int {
	return a.Push([]byte(s))
}

// grow doubles the capacity until n more bytes fit.
func (a *Arena) grow(n int) {
	need := len(a.data) + n
	if need <= cap(a.data) {
		return
	}
	c := cap(a.data)
	if c < minArenaCap {
		c = minArenaCap
	}
	for c < need {
		c *= 2
	}
	buf := make([]byte, len(a.data), c)
	copy(buf, a.data)
	a.data = buf
}

// Get returns the bytes stored at [off, off+length).
// It returns nil when the range lies outside the arena.
func (a *Arena) Get(off, length uint64) []byte {
	end := off + length
	if end < off || end > uint64(len(a.data)) {
		return nil
	}
	return a.data[off:end:end]
}

// Bytes returns the arena contents.
func (a *Arena) Bytes() []byte {
	return a.data
}

// Len returns the number of bytes stored.
func (a *Arena) Len() int {
	return len(a.data)
}
