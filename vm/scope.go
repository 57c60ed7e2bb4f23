package vm

import "github.com/Open-Argon/Chloride-sub000/vm/store"

// Scope is one lexical binding frame. Parent is a plain back reference;
// a closure keeps its defining scope alive after the block that created
// it has been popped.
type Scope struct {
	Store  *store.Store[Value]
	Parent *Scope
}

// NewScope returns an empty scope chained under parent.
func NewScope(parent *Scope) *Scope {
	return &Scope{Store: store.New[Value](), Parent: parent}
}

// Lookup walks from s outward and returns the first binding for hash.
func (s *Scope) Lookup(hash uint64) (Value, bool) {
	for cur := s; cur != nil; cur = cur.Parent {
		if v, ok := cur.Store.Lookup(hash); ok {
			return v, true
		}
	}
	return nil, false
}

// Declare binds name in s only. It fails if s already binds it.
func (s *Scope) Declare(hash uint64, name string, v Value) bool {
	return s.Store.InsertNew(hash, name, v)
}

// Assign updates the nearest existing binding, or declares the name in s
// when no enclosing scope binds it.
func (s *Scope) Assign(hash uint64, name string, v Value) {
	for cur := s; cur != nil; cur = cur.Parent {
		if cur.Store.Update(hash, v) {
			return
		}
	}
	s.Store.Insert(hash, name, v, 0)
}
