package vm

import (
	"math/big"
	"sync"

	"github.com/Open-Argon/Chloride-sub000/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Value: tagged runtime values
// ---------------------------------------------------------------------------

// Value is any runtime value. The concrete type is the tag.
type Value interface {
	// TypeName returns the name of the value's built-in type.
	TypeName() string
}

// NullType is the type of Null.
type NullType struct{}

// Null is the null value.
var Null Value = NullType{}

func (NullType) TypeName() string { return "null" }

// Bool is a boolean value.
type Bool bool

const (
	True  = Bool(true)
	False = Bool(false)
)

func (Bool) TypeName() string { return "boolean" }

// Number is an arbitrary-precision rational. Numbers are immutable.
type Number struct {
	r *big.Rat
}

// NewNumber wraps r. The caller must not modify r afterwards.
func NewNumber(r *big.Rat) *Number {
	return &Number{r: r}
}

// NumberFromInt returns the number n.
func NumberFromInt(n int64) *Number {
	return &Number{r: new(big.Rat).SetInt64(n)}
}

// Rat returns a copy of the rational value.
func (n *Number) Rat() *big.Rat {
	return new(big.Rat).Set(n.r)
}

func (*Number) TypeName() string { return "number" }

// IsInt reports whether the number is integral.
func (n *Number) IsInt() bool {
	return n.r.IsInt()
}

// Int64 returns the number truncated toward zero and whether it was an
// integer that fits in an int64.
func (n *Number) Int64() (int64, bool) {
	if !n.r.IsInt() || !n.r.Num().IsInt64() {
		q := new(big.Int).Quo(n.r.Num(), n.r.Denom())
		return q.Int64(), false
	}
	return n.r.Num().Int64(), true
}

// String is an immutable string with its lookup hash computed once.
type String struct {
	Data string
	hash uint64
}

// NewString returns a string value.
func NewString(s string) *String {
	return &String{Data: s, hash: bytecode.HashName(s)}
}

func (*String) TypeName() string { return "string" }

// Hash returns the string's lookup hash, the same hash the translator
// embeds for identifiers.
func (s *String) Hash() uint64 {
	return s.hash
}

// List is a mutable, concurrency-safe sequence.
type List struct {
	mu    sync.RWMutex
	items []Value
}

// NewList returns a list holding items.
func NewList(items ...Value) *List {
	return &List{items: items}
}

func (*List) TypeName() string { return "list" }

// Len returns the number of items.
func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// Items returns a snapshot of the items.
func (l *List) Items() []Value {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Value, len(l.items))
	copy(out, l.items)
	return out
}

// Append adds v to the end of the list.
func (l *List) Append(v Value) {
	l.mu.Lock()
	l.items = append(l.items, v)
	l.mu.Unlock()
}

// Get returns the item at i, which may be negative.
func (l *List) Get(i int) (Value, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if i < 0 {
		i += len(l.items)
	}
	if i < 0 || i >= len(l.items) {
		return nil, false
	}
	return l.items[i], true
}

// Set replaces the item at i, which may be negative.
func (l *List) Set(i int, v Value) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i < 0 {
		i += len(l.items)
	}
	if i < 0 || i >= len(l.items) {
		return false
	}
	l.items[i] = v
	return true
}

// Pop removes and returns the last item.
func (l *List) Pop() (Value, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.items) == 0 {
		return nil, false
	}
	v := l.items[len(l.items)-1]
	l.items[len(l.items)-1] = nil
	l.items = l.items[:len(l.items)-1]
	return v, true
}

// Buffer is a mutable byte buffer handed to and from native modules.
type Buffer struct {
	mu   sync.Mutex
	data []byte
}

// NewBuffer returns a buffer holding a copy of b.
func NewBuffer(b []byte) *Buffer {
	return &Buffer{data: append([]byte(nil), b...)}
}

func (*Buffer) TypeName() string { return "buffer" }

// Bytes returns a copy of the buffer contents.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.data...)
}

// Range is the half-open numeric interval produced by range().
type Range struct {
	Start, Stop, Step *big.Rat
}

func (*Range) TypeName() string { return "range" }

// Iterator yields successive values. It is created by LOAD_ITER.
type Iterator struct {
	mu   sync.Mutex
	next func() (Value, bool)
}

func (*Iterator) TypeName() string { return "iterator" }

// Next returns the next value, or false when exhausted.
func (it *Iterator) Next() (Value, bool) {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.next == nil {
		return nil, false
	}
	v, ok := it.next()
	if !ok {
		it.next = nil
	}
	return v, ok
}

// ---------------------------------------------------------------------------
// Callables
// ---------------------------------------------------------------------------

// Function is a closure: compiled code plus the scope it was created in.
type Function struct {
	Name   string
	Params []bytecode.Param
	Code   *bytecode.Translated
	Scope  *Scope
}

func (*Function) TypeName() string { return "function" }

// NativeFunc implements a function in Go. It runs on the calling State.
type NativeFunc func(s *State, args []Value) (Value, error)

// NativeFunction is a function implemented in Go. Arity < 0 accepts any
// number of arguments.
type NativeFunction struct {
	Name  string
	Arity int
	Fn    NativeFunc
}

func (*NativeFunction) TypeName() string { return "function" }

// BoundMethod pairs a function with the value it was looked up on. The
// value is passed as the first argument.
type BoundMethod struct {
	Self Value
	Fn   Value
}

func (*BoundMethod) TypeName() string { return "method" }
