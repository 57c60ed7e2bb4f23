package vm

import (
	"math"
	"math/big"

	"github.com/Open-Argon/Chloride-sub000/pkg/arerr"
	"github.com/Open-Argon/Chloride-sub000/vm/store"
)

// ---------------------------------------------------------------------------
// Native module interface
// ---------------------------------------------------------------------------

// NativeEntry initialises a native module by registering its exports.
type NativeEntry func(api *NativeAPI, exports *Object) error

// NativeAPI is the surface native modules program against. It is a table
// of functions so modules never depend on the interpreter's internals.
type NativeAPI struct {
	NumberFromInt   func(n int64) Value
	NumberFromFloat func(f float64) (Value, error)
	NumberFromRat   func(r *big.Rat) Value
	NumberToInt     func(v Value) (int64, error)
	NumberToFloat   func(v Value) (float64, error)
	NumberToRat     func(v Value) (*big.Rat, error)

	StringFromGo func(str string) Value
	StringToGo   func(v Value) (string, error)

	BufferFromBytes func(b []byte) Value
	BufferToBytes   func(v Value) ([]byte, error)

	NewError    func(kind arerr.Kind, format string, args ...any) error
	NewFunction func(name string, arity int, fn NativeFunc) Value
	NewClass    func(name string, base *Object) *Object
	NewInstance func(cls *Object) *Object

	Register func(exports *Object, name string, v Value)
	Call     func(s *State, fn Value, args []Value) (Value, error)
	Logger   func() Logger
}

// Logger is the logging surface exposed to native modules.
type Logger interface {
	Debugf(format string, values ...any)
	Infof(format string, values ...any)
	Warningf(format string, values ...any)
	Errorf(format string, values ...any)
}

func expectNumber(v Value) (*Number, error) {
	n, ok := v.(*Number)
	if !ok {
		return nil, arerr.New(arerr.Runtime, "expected a number, got '%s'", v.TypeName())
	}
	return n, nil
}

func newNativeAPI(it *Interpreter) *NativeAPI {
	return &NativeAPI{
		NumberFromInt: func(n int64) Value { return NumberFromInt(n) },
		NumberFromFloat: func(f float64) (Value, error) {
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return nil, arerr.New(arerr.Runtime, "%v is not a number", f)
			}
			r, ok := new(big.Rat).SetString(big.NewFloat(f).Text('g', -1))
			if !ok {
				return nil, arerr.New(arerr.Runtime, "%v is not a number", f)
			}
			return NewNumber(r), nil
		},
		NumberFromRat: func(r *big.Rat) Value { return NewNumber(new(big.Rat).Set(r)) },
		NumberToInt: func(v Value) (int64, error) {
			n, err := expectNumber(v)
			if err != nil {
				return 0, err
			}
			i, ok := n.Int64()
			if !ok {
				return 0, arerr.New(arerr.Runtime, "%s is not an integer", formatNumber(n))
			}
			return i, nil
		},
		NumberToFloat: func(v Value) (float64, error) {
			n, err := expectNumber(v)
			if err != nil {
				return 0, err
			}
			f, _ := n.r.Float64()
			return f, nil
		},
		NumberToRat: func(v Value) (*big.Rat, error) {
			n, err := expectNumber(v)
			if err != nil {
				return nil, err
			}
			return n.Rat(), nil
		},

		StringFromGo: func(str string) Value { return NewString(str) },
		StringToGo: func(v Value) (string, error) {
			s, ok := v.(*String)
			if !ok {
				return "", arerr.New(arerr.Runtime, "expected a string, got '%s'", v.TypeName())
			}
			return s.Data, nil
		},

		BufferFromBytes: func(b []byte) Value { return NewBuffer(b) },
		BufferToBytes: func(v Value) ([]byte, error) {
			b, ok := v.(*Buffer)
			if !ok {
				return nil, arerr.New(arerr.Runtime, "expected a buffer, got '%s'", v.TypeName())
			}
			return b.Bytes(), nil
		},

		NewError: func(kind arerr.Kind, format string, args ...any) error {
			return arerr.New(kind, format, args...)
		},
		NewFunction: func(name string, arity int, fn NativeFunc) Value {
			return it.native(name, arity, fn)
		},
		NewClass:    it.NewClass,
		NewInstance: it.NewInstance,

		Register: func(exports *Object, name string, v Value) {
			exports.SetField(name, v)
		},
		Call: func(s *State, fn Value, args []Value) (Value, error) {
			return s.Call(fn, args)
		},
		Logger: func() Logger { return it.log },
	}
}

// RegisterNative makes a native module importable by name. Registering
// the same name again replaces the entry for later first imports.
func (it *Interpreter) RegisterNative(name string, entry NativeEntry) {
	it.natives.Insert(hashOf(name), name, entry, 0)
}

// nativeModule returns the module for a registered native name,
// initialising it on first use.
func (it *Interpreter) nativeModule(name string) (*Object, bool, error) {
	h := hashOf(name)
	if mod, ok := it.nativeModules.Lookup(h); ok {
		return mod, true, nil
	}
	entry, ok := it.natives.Lookup(h)
	if !ok {
		return nil, false, nil
	}

	it.nativeMu.Lock()
	defer it.nativeMu.Unlock()
	if mod, ok := it.nativeModules.Lookup(h); ok {
		return mod, true, nil
	}
	mod := it.NewModule(name, store.New[Value]())
	if err := entry(it.API(), mod); err != nil {
		return nil, true, arerr.New(arerr.Import, "native module '%s': %v", name, err)
	}
	it.nativeModules.Insert(h, name, mod, 0)
	it.log.Debugf("initialised native module %s", name)
	return mod, true, nil
}
