package vm

import (
	"math/big"
	"unicode/utf8"

	"github.com/Open-Argon/Chloride-sub000/pkg/arerr"
	"github.com/Open-Argon/Chloride-sub000/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Attributes
// ---------------------------------------------------------------------------

// GetAttr reads name off obj. Functions found on an instance's class
// chain, or on the class of a primitive, are bound to the receiver unless
// bind is false.
func (s *State) GetAttr(obj Value, name string, hash uint64, bind bool) (Value, error) {
	if o, ok := obj.(*Object); ok {
		v, inherited, found := o.lookup(hash)
		if !found {
			if o.Kind == KindClass {
				return nil, arerr.New(arerr.Attribute, "class '%s' has no attribute '%s'", o.Name(), name)
			}
			return nil, arerr.New(arerr.Attribute, "'%s' object has no attribute '%s'", o.TypeName(), name)
		}
		if bind && inherited && o.Kind == KindInstance && isCallable(v) {
			return &BoundMethod{Self: o, Fn: v}, nil
		}
		return v, nil
	}

	cls := s.it.ClassOf(obj)
	if hash == slotHashes[SlotClass] {
		return cls, nil
	}
	v, _, found := cls.lookup(hash)
	if !found {
		return nil, arerr.New(arerr.Attribute, "'%s' object has no attribute '%s'", obj.TypeName(), name)
	}
	if bind && isCallable(v) {
		return &BoundMethod{Self: obj, Fn: v}, nil
	}
	return v, nil
}

// SetAttr writes name on obj. __class__ and __base__ cannot be changed.
func (s *State) SetAttr(obj Value, name string, hash uint64, v Value) error {
	o, ok := obj.(*Object)
	if !ok {
		return arerr.New(arerr.Attribute, "cannot set attribute '%s' on '%s'", name, obj.TypeName())
	}
	if slot, ok := slotForHash(hash); ok {
		if slot == SlotClass || slot == SlotBase {
			return arerr.New(arerr.Runtime, "attribute '%s' is immutable", name)
		}
		o.SetSlot(slot, v)
		return nil
	}
	o.Fields.Insert(hash, name, v, 0)
	return nil
}

// method looks a built-in method up on an instance's class chain and
// binds it.
func (s *State) method(o *Object, slot Slot) (Value, bool, error) {
	v, _, ok := o.lookup(slotHashes[slot])
	if !ok {
		return nil, false, nil
	}
	if !isCallable(v) {
		return nil, false, arerr.New(arerr.Runtime, "%s is not callable", slot)
	}
	return &BoundMethod{Self: o, Fn: v}, true, nil
}

// ---------------------------------------------------------------------------
// Items
// ---------------------------------------------------------------------------

func indexOf(v Value) (int, error) {
	n, ok := v.(*Number)
	if !ok {
		return 0, arerr.New(arerr.Runtime, "index must be a number, not '%s'", v.TypeName())
	}
	i, ok := n.Int64()
	if !ok {
		return 0, arerr.New(arerr.Runtime, "index must be an integer, not %s", formatNumber(n))
	}
	return int(i), nil
}

// GetItem evaluates obj[index].
func (s *State) GetItem(obj, index Value) (Value, error) {
	switch o := obj.(type) {
	case *List:
		i, err := indexOf(index)
		if err != nil {
			return nil, err
		}
		v, ok := o.Get(i)
		if !ok {
			return nil, arerr.New(arerr.Index, "list index %d out of range", i)
		}
		return v, nil
	case *String:
		i, err := indexOf(index)
		if err != nil {
			return nil, err
		}
		runes := []rune(o.Data)
		if i < 0 {
			i += len(runes)
		}
		if i < 0 || i >= len(runes) {
			return nil, arerr.New(arerr.Index, "string index %d out of range", i)
		}
		return NewString(string(runes[i])), nil
	case *Buffer:
		i, err := indexOf(index)
		if err != nil {
			return nil, err
		}
		o.mu.Lock()
		defer o.mu.Unlock()
		if i < 0 {
			i += len(o.data)
		}
		if i < 0 || i >= len(o.data) {
			return nil, arerr.New(arerr.Index, "buffer index %d out of range", i)
		}
		return NumberFromInt(int64(o.data[i])), nil
	case *Object:
		key, ok := index.(*String)
		if !ok {
			return nil, arerr.New(arerr.Runtime, "object keys must be strings, not '%s'", index.TypeName())
		}
		return s.GetAttr(o, key.Data, key.Hash(), true)
	}
	return nil, arerr.New(arerr.Runtime, "'%s' object is not subscriptable", obj.TypeName())
}

// SetItem evaluates obj[index] = v.
func (s *State) SetItem(obj, index, v Value) error {
	switch o := obj.(type) {
	case *List:
		i, err := indexOf(index)
		if err != nil {
			return err
		}
		if !o.Set(i, v) {
			return arerr.New(arerr.Index, "list index %d out of range", i)
		}
		return nil
	case *Buffer:
		i, err := indexOf(index)
		if err != nil {
			return err
		}
		n, ok := v.(*Number)
		b, isInt := int64(0), false
		if ok {
			b, isInt = n.Int64()
		}
		if !isInt || b < 0 || b > 255 {
			return arerr.New(arerr.Runtime, "buffer items must be integers in 0..255")
		}
		o.mu.Lock()
		defer o.mu.Unlock()
		if i < 0 {
			i += len(o.data)
		}
		if i < 0 || i >= len(o.data) {
			return arerr.New(arerr.Index, "buffer index %d out of range", i)
		}
		o.data[i] = byte(b)
		return nil
	case *Object:
		key, ok := index.(*String)
		if !ok {
			return arerr.New(arerr.Runtime, "object keys must be strings, not '%s'", index.TypeName())
		}
		return s.SetAttr(o, key.Data, key.Hash(), v)
	}
	return arerr.New(arerr.Runtime, "'%s' object does not support item assignment", obj.TypeName())
}

// ---------------------------------------------------------------------------
// Iteration
// ---------------------------------------------------------------------------

// Iterate returns an iterator over v. Lists are iterated live by index;
// strings yield one-character strings.
func (s *State) Iterate(v Value) (*Iterator, error) {
	switch x := v.(type) {
	case *Iterator:
		return x, nil
	case *List:
		i := 0
		return &Iterator{next: func() (Value, bool) {
			item, ok := x.Get(i)
			if !ok {
				return nil, false
			}
			i++
			return item, true
		}}, nil
	case *String:
		rest := x.Data
		return &Iterator{next: func() (Value, bool) {
			if rest == "" {
				return nil, false
			}
			r, size := utf8.DecodeRuneInString(rest)
			rest = rest[size:]
			return NewString(string(r)), true
		}}, nil
	case *Range:
		cur := new(big.Rat).Set(x.Start)
		up := x.Step.Sign() > 0
		return &Iterator{next: func() (Value, bool) {
			c := cur.Cmp(x.Stop)
			if (up && c >= 0) || (!up && c <= 0) {
				return nil, false
			}
			out := NewNumber(new(big.Rat).Set(cur))
			cur.Add(cur, x.Step)
			return out, true
		}}, nil
	case *Buffer:
		data := x.Bytes()
		i := 0
		return &Iterator{next: func() (Value, bool) {
			if i >= len(data) {
				return nil, false
			}
			i++
			return NumberFromInt(int64(data[i-1])), true
		}}, nil
	case *Object:
		entries := x.Fields.Entries()
		i := 0
		return &Iterator{next: func() (Value, bool) {
			if i >= len(entries) {
				return nil, false
			}
			i++
			return NewString(entries[i-1].Key), true
		}}, nil
	}
	return nil, arerr.New(arerr.Runtime, "'%s' object is not iterable", v.TypeName())
}

// hashOf is a convenience for native code looking names up by string.
func hashOf(name string) uint64 {
	return bytecode.HashName(name)
}
