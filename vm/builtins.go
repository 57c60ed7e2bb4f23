package vm

import (
	"fmt"
	"math/big"
	"strings"
	"unicode/utf8"

	"github.com/Open-Argon/Chloride-sub000/pkg/arerr"
)

// installBuiltins populates the global scope and the methods of the
// primitive type classes.
func (it *Interpreter) installBuiltins() {
	it.Declare("object", it.BaseClass)
	it.Declare("print", it.native("print", -1, builtinPrint))
	it.Declare("range", it.native("range", -1, builtinRange))
	it.Declare("len", it.native("len", 1, builtinLen))
	it.Declare("string", it.native("string", 1, builtinString))
	it.Declare("number", it.native("number", 1, builtinNumber))
	it.Declare("boolean", it.native("boolean", 1, builtinBoolean))
	it.Declare("type", it.native("type", 1, builtinType))
	it.Declare("instanceof", it.native("instanceof", 2, builtinInstanceOf))

	it.method(it.StringClass, "upper", 1, stringUpper)
	it.method(it.StringClass, "lower", 1, stringLower)
	it.method(it.StringClass, "split", -1, stringSplit)
	it.method(it.StringClass, "join", 2, stringJoin)

	it.method(it.ListClass, "append", 2, listAppend)
	it.method(it.ListClass, "pop", 1, listPop)
}

func (it *Interpreter) native(name string, arity int, fn NativeFunc) *NativeFunction {
	return &NativeFunction{Name: name, Arity: arity, Fn: fn}
}

// method installs fn on cls. Arity counts the receiver.
func (it *Interpreter) method(cls *Object, name string, arity int, fn NativeFunc) {
	cls.Fields.Insert(hashOf(name), name, it.native(name, arity, fn), 0)
}

func builtinPrint(s *State, args []Value) (Value, error) {
	parts := make([]string, len(args))
	for i, a := range args {
		str, err := s.Str(a)
		if err != nil {
			return nil, err
		}
		parts[i] = str
	}
	if _, err := fmt.Fprintln(s.it.cfg.Stdout, strings.Join(parts, " ")); err != nil {
		return nil, arerr.New(arerr.Runtime, "print: %v", err)
	}
	return Null, nil
}

func builtinRange(s *State, args []Value) (Value, error) {
	nums := make([]*big.Rat, len(args))
	for i, a := range args {
		n, ok := a.(*Number)
		if !ok {
			return nil, arerr.New(arerr.Runtime, "range arguments must be numbers, not '%s'", a.TypeName())
		}
		nums[i] = n.Rat()
	}
	r := &Range{Start: new(big.Rat), Step: big.NewRat(1, 1)}
	switch len(nums) {
	case 1:
		r.Stop = nums[0]
	case 2:
		r.Start, r.Stop = nums[0], nums[1]
	case 3:
		r.Start, r.Stop, r.Step = nums[0], nums[1], nums[2]
	default:
		return nil, arerr.New(arerr.Runtime, "range expects 1 to 3 arguments, got %d", len(args))
	}
	if r.Step.Sign() == 0 {
		return nil, arerr.New(arerr.Runtime, "range step cannot be zero")
	}
	return r, nil
}

func builtinLen(s *State, args []Value) (Value, error) {
	switch x := args[0].(type) {
	case *String:
		return NumberFromInt(int64(utf8.RuneCountInString(x.Data))), nil
	case *List:
		return NumberFromInt(int64(x.Len())), nil
	case *Buffer:
		return NumberFromInt(int64(len(x.Bytes()))), nil
	case *Object:
		return NumberFromInt(int64(x.Fields.Len())), nil
	}
	return nil, arerr.New(arerr.Runtime, "'%s' object has no length", args[0].TypeName())
}

func builtinString(s *State, args []Value) (Value, error) {
	str, err := s.Str(args[0])
	if err != nil {
		return nil, err
	}
	return NewString(str), nil
}

func builtinNumber(s *State, args []Value) (Value, error) {
	switch x := args[0].(type) {
	case *Number:
		return x, nil
	case Bool:
		if x {
			return NumberFromInt(1), nil
		}
		return NumberFromInt(0), nil
	case *String:
		if n, ok := ParseNumber(x.Data); ok {
			return n, nil
		}
		return nil, arerr.New(arerr.Runtime, "cannot convert %s to a number", quote(x.Data))
	}
	return nil, arerr.New(arerr.Runtime, "cannot convert '%s' to a number", args[0].TypeName())
}

func builtinBoolean(s *State, args []Value) (Value, error) {
	t, err := s.Truthy(args[0])
	if err != nil {
		return nil, err
	}
	return Bool(t), nil
}

func builtinType(s *State, args []Value) (Value, error) {
	return s.it.ClassOf(args[0]), nil
}

func builtinInstanceOf(s *State, args []Value) (Value, error) {
	cls, ok := args[1].(*Object)
	if !ok || cls.Kind != KindClass {
		return nil, arerr.New(arerr.Runtime, "instanceof expects a class, got '%s'", args[1].TypeName())
	}
	return Bool(isSubclass(s.it.ClassOf(args[0]), cls)), nil
}

// ---------------------------------------------------------------------------
// Type class methods
// ---------------------------------------------------------------------------

func receiverString(args []Value, method string) (string, error) {
	str, ok := args[0].(*String)
	if !ok {
		return "", arerr.New(arerr.Runtime, "%s expects a string receiver, got '%s'", method, args[0].TypeName())
	}
	return str.Data, nil
}

func stringUpper(s *State, args []Value) (Value, error) {
	str, err := receiverString(args, "upper")
	if err != nil {
		return nil, err
	}
	return NewString(strings.ToUpper(str)), nil
}

func stringLower(s *State, args []Value) (Value, error) {
	str, err := receiverString(args, "lower")
	if err != nil {
		return nil, err
	}
	return NewString(strings.ToLower(str)), nil
}

// stringSplit splits on a separator, or on runs of whitespace when none
// is given.
func stringSplit(s *State, args []Value) (Value, error) {
	str, err := receiverString(args, "split")
	if err != nil {
		return nil, err
	}
	var parts []string
	switch len(args) {
	case 1:
		parts = strings.Fields(str)
	case 2:
		sep, ok := args[1].(*String)
		if !ok || sep.Data == "" {
			return nil, arerr.New(arerr.Runtime, "split separator must be a non-empty string")
		}
		parts = strings.Split(str, sep.Data)
	default:
		return nil, arityError("split", 1, len(args)-1)
	}
	items := make([]Value, len(parts))
	for i, p := range parts {
		items[i] = NewString(p)
	}
	return NewList(items...), nil
}

func stringJoin(s *State, args []Value) (Value, error) {
	sep, err := receiverString(args, "join")
	if err != nil {
		return nil, err
	}
	l, ok := args[1].(*List)
	if !ok {
		return nil, arerr.New(arerr.Runtime, "join expects a list, got '%s'", args[1].TypeName())
	}
	items := l.Items()
	parts := make([]string, len(items))
	for i, item := range items {
		if parts[i], err = s.Str(item); err != nil {
			return nil, err
		}
	}
	return NewString(strings.Join(parts, sep)), nil
}

func receiverList(args []Value, method string) (*List, error) {
	l, ok := args[0].(*List)
	if !ok {
		return nil, arerr.New(arerr.Runtime, "%s expects a list receiver, got '%s'", method, args[0].TypeName())
	}
	return l, nil
}

func listAppend(s *State, args []Value) (Value, error) {
	l, err := receiverList(args, "append")
	if err != nil {
		return nil, err
	}
	l.Append(args[1])
	return Null, nil
}

func listPop(s *State, args []Value) (Value, error) {
	l, err := receiverList(args, "pop")
	if err != nil {
		return nil, err
	}
	v, ok := l.Pop()
	if !ok {
		return nil, arerr.New(arerr.Index, "pop from an empty list")
	}
	return v, nil
}
