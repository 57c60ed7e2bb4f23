package vm

import (
	"sync"

	"github.com/Open-Argon/Chloride-sub000/pkg/bytecode"
	"github.com/Open-Argon/Chloride-sub000/vm/store"
)

// ---------------------------------------------------------------------------
// Built-in slots
// ---------------------------------------------------------------------------

// Slot identifies a built-in field kept outside the field store.
type Slot uint8

const (
	SlotClass Slot = iota
	SlotBase
	SlotName
	SlotInit
	SlotString
	SlotBoolean
	slotCount
)

var slotNames = [slotCount]string{
	SlotClass:   "__class__",
	SlotBase:    "__base__",
	SlotName:    "__name__",
	SlotInit:    "__init__",
	SlotString:  "__string__",
	SlotBoolean: "__boolean__",
}

var slotHashes [slotCount]uint64

func init() {
	for i, name := range slotNames {
		slotHashes[i] = bytecode.HashName(name)
	}
}

func (s Slot) String() string {
	if s < slotCount {
		return slotNames[s]
	}
	return "<slot>"
}

// slotForHash maps a field hash to its built-in slot.
func slotForHash(h uint64) (Slot, bool) {
	for i, sh := range slotHashes {
		if sh == h {
			return Slot(i), true
		}
	}
	return 0, false
}

type slotEntry struct {
	slot  Slot
	value Value
}

// ---------------------------------------------------------------------------
// Object: classes, instances and modules
// ---------------------------------------------------------------------------

// Kind distinguishes the roles an Object can play.
type Kind uint8

const (
	KindInstance Kind = iota
	KindClass
	KindModule
)

// Object is a user-visible object with built-in slots and a field store.
//
// Slots are held in a small array scanned linearly; it grows by doubling
// and never beyond the number of slot kinds. Every other field lives in
// Fields.
type Object struct {
	Kind Kind

	mu    sync.RWMutex // guards slots
	slots []slotEntry

	Fields *store.Store[Value]
}

// NewObject returns an empty object of the given kind.
func NewObject(kind Kind) *Object {
	return &Object{Kind: kind, Fields: store.New[Value]()}
}

// newObjectWithFields returns an object whose field store is fields.
func newObjectWithFields(kind Kind, fields *store.Store[Value]) *Object {
	return &Object{Kind: kind, Fields: fields}
}

func (o *Object) TypeName() string {
	switch o.Kind {
	case KindClass:
		return "class"
	case KindModule:
		return "module"
	}
	if cls, ok := o.Slot(SlotClass); ok {
		if c, ok := cls.(*Object); ok {
			return c.Name()
		}
	}
	return "object"
}

// Slot returns the value of a built-in slot.
func (o *Object) Slot(s Slot) (Value, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	for _, e := range o.slots {
		if e.slot == s {
			return e.value, true
		}
	}
	return nil, false
}

// SetSlot sets a built-in slot.
func (o *Object) SetSlot(s Slot, v Value) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := range o.slots {
		if o.slots[i].slot == s {
			o.slots[i].value = v
			return
		}
	}
	if len(o.slots) == cap(o.slots) {
		n := cap(o.slots) * 2
		if n == 0 {
			n = 2
		}
		if n > int(slotCount) {
			n = int(slotCount)
		}
		grown := make([]slotEntry, len(o.slots), n)
		copy(grown, o.slots)
		o.slots = grown
	}
	o.slots = append(o.slots, slotEntry{slot: s, value: v})
}

// Name returns the __name__ slot as a Go string.
func (o *Object) Name() string {
	if v, ok := o.Slot(SlotName); ok {
		if s, ok := v.(*String); ok {
			return s.Data
		}
	}
	return ""
}

// Base returns the object's __base__, or nil.
func (o *Object) Base() *Object {
	if v, ok := o.Slot(SlotBase); ok {
		if b, ok := v.(*Object); ok {
			return b
		}
	}
	return nil
}

// ownField looks a field up on o alone: slots first, then the store.
func (o *Object) ownField(hash uint64) (Value, bool) {
	if s, ok := slotForHash(hash); ok {
		if v, ok := o.Slot(s); ok {
			return v, true
		}
	}
	return o.Fields.Lookup(hash)
}

// maxBaseDepth bounds __base__ walks so a cycle built through native code
// cannot hang attribute lookup.
const maxBaseDepth = 1 << 12

// lookup finds a field on o or its __base__ chain. inherited reports
// whether the value came from a base rather than o itself.
func (o *Object) lookup(hash uint64) (v Value, inherited bool, ok bool) {
	if v, ok := o.ownField(hash); ok {
		return v, false, true
	}
	cur := o.Base()
	for i := 0; cur != nil && i < maxBaseDepth; i++ {
		if v, ok := cur.ownField(hash); ok {
			return v, true, true
		}
		cur = cur.Base()
	}
	return nil, false, false
}

// GetField returns a field by name, searching the __base__ chain.
func (o *Object) GetField(name string) (Value, bool) {
	v, _, ok := o.lookup(bytecode.HashName(name))
	return v, ok
}

// SetField stores a field by name, using the slot array for built-ins.
func (o *Object) SetField(name string, v Value) {
	h := bytecode.HashName(name)
	if s, ok := slotForHash(h); ok {
		o.SetSlot(s, v)
		return
	}
	o.Fields.Insert(h, name, v, 0)
}

// isSubclass reports whether cls is c or inherits from it.
func isSubclass(cls, c *Object) bool {
	for i := 0; cls != nil && i < maxBaseDepth; i++ {
		if cls == c {
			return true
		}
		cls = cls.Base()
	}
	return false
}
