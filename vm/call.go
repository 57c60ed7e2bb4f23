package vm

import (
	"github.com/Open-Argon/Chloride-sub000/pkg/arerr"
)

// Call invokes callee with args on this state. Errors from the callee are
// returned as they are; unlocated errors are pinned to the call site by
// the caller's CALL instruction.
func (s *State) Call(callee Value, args []Value) (Value, error) {
	switch c := callee.(type) {
	case *Function:
		return s.callFunction(c, args)

	case *NativeFunction:
		if c.Arity >= 0 && len(args) != c.Arity {
			return nil, arityError(c.Name, c.Arity, len(args))
		}
		v, err := c.Fn(s, args)
		if err != nil {
			return nil, err
		}
		if v == nil {
			v = Null
		}
		return v, nil

	case *BoundMethod:
		full := make([]Value, 0, len(args)+1)
		full = append(full, c.Self)
		full = append(full, args...)
		return s.Call(c.Fn, full)

	case *Object:
		if c.Kind == KindClass {
			return s.instantiate(c, args)
		}
	}
	return nil, arerr.New(arerr.Runtime, "'%s' object is not callable", callee.TypeName())
}

func arityError(name string, want, got int) error {
	if name == "" {
		name = "function"
	}
	plural := "s"
	if want == 1 {
		plural = ""
	}
	return arerr.New(arerr.Runtime, "%s expects %d argument%s, got %d", name, want, plural, got)
}

// callFunction binds args to the parameters in a new scope chained to the
// function's captured scope and runs the body on a new frame.
func (s *State) callFunction(fn *Function, args []Value) (Value, error) {
	if len(args) != len(fn.Params) {
		return nil, arityError(fn.Name, len(fn.Params), len(args))
	}
	scope := NewScope(fn.Scope)
	for i, p := range fn.Params {
		scope.Store.Insert(p.Hash, p.Name, args[i], 0)
	}
	return s.Execute(fn.Code, scope)
}

// instantiate creates an instance of cls and runs its __init__, if any,
// bound to the new instance.
func (s *State) instantiate(cls *Object, args []Value) (Value, error) {
	inst := s.it.NewInstance(cls)
	init, _, ok := cls.lookup(slotHashes[SlotInit])
	if !ok {
		if len(args) > 0 {
			return nil, arerr.New(arerr.Runtime, "%s() takes no arguments", cls.Name())
		}
		return inst, nil
	}
	if _, err := s.Call(&BoundMethod{Self: inst, Fn: init}, args); err != nil {
		return nil, err
	}
	return inst, nil
}

// isCallable reports whether v can be bound as a method.
func isCallable(v Value) bool {
	switch v.(type) {
	case *Function, *NativeFunction:
		return true
	}
	return false
}
