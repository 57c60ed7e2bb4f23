package vm

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/tliron/commonlog"

	"github.com/Open-Argon/Chloride-sub000/pkg/bytecode"
	"github.com/Open-Argon/Chloride-sub000/vm/store"
)

// Config holds runtime limits and I/O.
type Config struct {
	// Stdout receives print output. Defaults to os.Stdout.
	Stdout io.Writer
	// MaxDepth is the hard call-depth limit. Zero means unlimited.
	MaxDepth int
	// DepthWarning logs a warning every time the call depth reaches a
	// multiple of this value. Zero disables the warning.
	DepthWarning int
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{Stdout: os.Stdout, DepthWarning: 10000}
}

// Importer resolves an import issued from the unit at fromPath.
// The module loader implements it.
type Importer interface {
	Import(s *State, fromPath, path string) (*Object, error)
}

// Interpreter is the process-wide runtime: the global scope, the built-in
// classes and the native module registry. It is shared by every State.
type Interpreter struct {
	cfg Config
	log commonlog.Logger

	// Global is the root of every module's scope chain.
	Global *Scope

	// BaseClass is the implicit parent of every class, bound as `object`.
	BaseClass *Object

	TypeClass     *Object
	NullClass     *Object
	BoolClass     *Object
	NumberClass   *Object
	StringClass   *Object
	ListClass     *Object
	RangeClass    *Object
	BufferClass   *Object
	IteratorClass *Object
	FunctionClass *Object
	MethodClass   *Object
	ModuleClass   *Object

	natives       *store.Store[NativeEntry]
	nativeModules *store.Store[*Object]
	nativeMu      sync.Mutex // serialises native module initialisation
	importer      Importer

	api *NativeAPI
}

// New creates an interpreter with the global scope populated.
func New(cfg Config) *Interpreter {
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	it := &Interpreter{
		cfg:           cfg,
		log:           commonlog.GetLogger("argon.vm"),
		Global:        NewScope(nil),
		natives:       store.New[NativeEntry](),
		nativeModules: store.New[*Object](),
	}

	it.BaseClass = it.newClass("object", nil)
	it.TypeClass = it.newClass("type", it.BaseClass)
	it.BaseClass.SetSlot(SlotClass, it.TypeClass)
	it.TypeClass.SetSlot(SlotClass, it.TypeClass)

	it.NullClass = it.newClass("null", it.BaseClass)
	it.BoolClass = it.newClass("boolean", it.BaseClass)
	it.NumberClass = it.newClass("number", it.BaseClass)
	it.StringClass = it.newClass("string", it.BaseClass)
	it.ListClass = it.newClass("list", it.BaseClass)
	it.RangeClass = it.newClass("range", it.BaseClass)
	it.BufferClass = it.newClass("buffer", it.BaseClass)
	it.IteratorClass = it.newClass("iterator", it.BaseClass)
	it.FunctionClass = it.newClass("function", it.BaseClass)
	it.MethodClass = it.newClass("method", it.BaseClass)
	it.ModuleClass = it.newClass("module", it.BaseClass)

	it.api = newNativeAPI(it)
	it.installBuiltins()
	it.RegisterNative("threading", threadingModule)
	return it
}

// Config returns the interpreter's configuration.
func (it *Interpreter) Config() Config {
	return it.cfg
}

// SetImporter installs the module loader.
func (it *Interpreter) SetImporter(im Importer) {
	it.importer = im
}

// API returns the interface handed to native modules.
func (it *Interpreter) API() *NativeAPI {
	return it.api
}

// newClass creates a class object whose instances inherit from base.
func (it *Interpreter) newClass(name string, base *Object) *Object {
	cls := NewObject(KindClass)
	cls.SetSlot(SlotName, NewString(name))
	if it.TypeClass != nil {
		cls.SetSlot(SlotClass, it.TypeClass)
	}
	if base != nil {
		cls.SetSlot(SlotBase, base)
	}
	return cls
}

// NewClass creates a user-visible class whose parent is base, or the
// global base class when base is nil.
func (it *Interpreter) NewClass(name string, base *Object) *Object {
	if base == nil {
		base = it.BaseClass
	}
	return it.newClass(name, base)
}

// NewInstance returns an empty instance of cls.
func (it *Interpreter) NewInstance(cls *Object) *Object {
	inst := NewObject(KindInstance)
	inst.SetSlot(SlotClass, cls)
	inst.SetSlot(SlotBase, cls)
	return inst
}

// NewModule returns a module object whose exports live in fields.
func (it *Interpreter) NewModule(path string, fields *store.Store[Value]) *Object {
	mod := newObjectWithFields(KindModule, fields)
	mod.SetSlot(SlotClass, it.ModuleClass)
	name := filepath.Base(path)
	if name == "init.ar" {
		name = filepath.Base(filepath.Dir(path))
	}
	if ext := filepath.Ext(name); ext != "" {
		name = name[:len(name)-len(ext)]
	}
	mod.SetSlot(SlotName, NewString(name))
	return mod
}

// ClassOf returns the class of any value.
func (it *Interpreter) ClassOf(v Value) *Object {
	switch x := v.(type) {
	case NullType:
		return it.NullClass
	case Bool:
		return it.BoolClass
	case *Number:
		return it.NumberClass
	case *String:
		return it.StringClass
	case *List:
		return it.ListClass
	case *Range:
		return it.RangeClass
	case *Buffer:
		return it.BufferClass
	case *Iterator:
		return it.IteratorClass
	case *Function, *NativeFunction:
		return it.FunctionClass
	case *BoundMethod:
		return it.MethodClass
	case *Object:
		if c, ok := x.Slot(SlotClass); ok {
			if cls, ok := c.(*Object); ok {
				return cls
			}
		}
		if x.Kind == KindClass {
			return it.TypeClass
		}
	}
	return it.BaseClass
}

// Declare binds a global name.
func (it *Interpreter) Declare(name string, v Value) {
	it.Global.Store.Insert(bytecode.HashName(name), name, v, 0)
}

// NewState returns a fresh execution context for one thread of control.
func (it *Interpreter) NewState() *State {
	return &State{it: it}
}

// Logger returns the runtime logger.
func (it *Interpreter) Logger() commonlog.Logger {
	return it.log
}
