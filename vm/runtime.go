package vm

import (
	"encoding/binary"
	"path/filepath"

	"github.com/Open-Argon/Chloride-sub000/pkg/arerr"
	"github.com/Open-Argon/Chloride-sub000/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// State: one thread of execution
// ---------------------------------------------------------------------------

// State is the per-thread execution context: a frame stack and the frame
// currently running. Stores reached from a State may be shared with other
// States; the State itself must only be used by one goroutine.
type State struct {
	it      *Interpreter
	frames  frameStack
	current *Frame
}

// Interpreter returns the interpreter the state runs on.
func (s *State) Interpreter() *Interpreter {
	return s.it
}

// Depth returns the current call depth.
func (s *State) Depth() int {
	return s.frames.len()
}

// CurrentPath returns the path of the unit executing at the top of the
// stack, or "" when idle.
func (s *State) CurrentPath() string {
	if s.current == nil || s.current.Code == nil {
		return ""
	}
	return s.current.Code.Path
}

// Execute runs unit in scope on a new frame and returns the value left
// in r0.
func (s *State) Execute(unit *bytecode.Translated, scope *Scope) (Value, error) {
	f, err := s.pushFrame(unit, scope)
	if err != nil {
		return nil, err
	}
	defer s.popFrame(f)
	return s.run(f)
}

func (s *State) pushFrame(unit *bytecode.Translated, scope *Scope) (*Frame, error) {
	depth := s.Depth() + 1
	if limit := s.it.cfg.MaxDepth; limit > 0 && depth > limit {
		return nil, arerr.New(arerr.Runtime, "maximum call depth of %d exceeded", limit)
	}
	f := s.frames.push(unit, scope, s.current)
	s.current = f
	if w := s.it.cfg.DepthWarning; w > 0 && depth%w == 0 {
		s.it.log.Warningf("call depth reached %d in %s", depth, s.CurrentPath())
	}
	return f, nil
}

func (s *State) popFrame(f *Frame) {
	s.current = f.Parent
	s.frames.pop()
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

func errInvalidOpcode() error {
	return arerr.New(arerr.Runtime, "invalid opcode")
}

// locate pins an unlocated error to the source span at location index loc.
// Errors that already carry a location, such as ones raised inside a
// callee, are returned unchanged.
func locate(f *Frame, loc uint64, err error) error {
	if err == nil {
		return nil
	}
	ae, ok := arerr.As(err)
	if !ok {
		ae = arerr.New(arerr.Runtime, "%s", err.Error())
	} else if ae.HasLocation() {
		return err
	} else {
		cp := *ae
		ae = &cp
	}
	if l, ok := f.Code.Locations.At(loc); ok {
		ae.Path = f.Code.Path
		ae.Line = int(l.Line)
		ae.Column = int(l.Column)
		ae.Length = int(l.Length)
	}
	return ae
}

func errorAt(f *Frame, loc uint64, kind arerr.Kind, format string, args ...any) error {
	return locate(f, loc, arerr.New(kind, format, args...))
}

// ---------------------------------------------------------------------------
// Fetch, decode, execute
// ---------------------------------------------------------------------------

const maxOperands = 8

// fetch decodes the instruction at f.head, checks its register operands
// against the frame and advances head past it.
func fetch(f *Frame, ops *[maxOperands]uint64) (bytecode.Opcode, error) {
	code := f.Code.Bytecode
	op := bytecode.Opcode(code[f.head])
	info, ok := bytecode.GetOpcodeInfo(op)
	if !ok {
		return op, errInvalidOpcode()
	}
	pos := f.head + 1
	for i, kind := range info.Operands {
		switch kind {
		case bytecode.Word:
			if pos+8 > len(code) {
				return op, errInvalidOpcode()
			}
			ops[i] = binary.LittleEndian.Uint64(code[pos:])
			pos += 8
		default:
			if pos >= len(code) {
				return op, errInvalidOpcode()
			}
			ops[i] = uint64(code[pos])
			if kind == bytecode.Reg && int(ops[i]) >= len(f.Registers) {
				return op, errInvalidOpcode()
			}
			pos++
		}
	}
	f.head = pos
	return op, nil
}

func (f *Frame) jumpTo(target uint64) error {
	if target > uint64(len(f.Code.Bytecode)) {
		return errInvalidOpcode()
	}
	f.head = int(target)
	return nil
}

// run executes f until its head runs off the end of the buffer.
func (s *State) run(f *Frame) (Value, error) {
	var o [maxOperands]uint64
	regs := f.Registers
	unit := f.Code

	for f.head < len(unit.Bytecode) {
		op, err := fetch(f, &o)
		if err != nil {
			return nil, err
		}

		switch op {
		case bytecode.OpLoadNull:
			regs[o[0]] = Null

		case bytecode.OpLoadBool:
			regs[o[0]] = Bool(o[1] != 0)

		case bytecode.OpLoadConst:
			data := unit.Constants.Get(o[3], o[2])
			if data == nil && o[2] != 0 {
				return nil, errInvalidOpcode()
			}
			switch bytecode.ConstKind(o[1]) {
			case bytecode.ConstString:
				regs[o[0]] = NewString(string(data))
			case bytecode.ConstNumber:
				n, ok := ParseNumber(string(data))
				if !ok {
					return nil, errInvalidOpcode()
				}
				regs[o[0]] = n
			default:
				return nil, errInvalidOpcode()
			}

		case bytecode.OpLoadFunction:
			fn, err := s.loadFunction(f, &o)
			if err != nil {
				return nil, err
			}
			regs[o[0]] = fn

		case bytecode.OpLoadBaseClass:
			regs[o[0]] = s.it.BaseClass

		case bytecode.OpCopyToRegister:
			regs[o[1]] = regs[o[0]]

		case bytecode.OpIdentifier:
			v, ok := f.Scope.Lookup(o[3])
			if !ok {
				return nil, errorAt(f, o[4], arerr.Name, "name '%s' is not defined", unit.String(o[1], o[2]))
			}
			regs[o[0]] = v

		case bytecode.OpDeclare:
			name := unit.String(o[1], o[2])
			if !f.Scope.Declare(o[3], name, regs[o[0]]) {
				return nil, errorAt(f, o[4], arerr.Runtime, "'%s' is already declared in this scope", name)
			}

		case bytecode.OpAssign:
			f.Scope.Assign(o[3], unit.String(o[1], o[2]), regs[o[0]])

		case bytecode.OpJump:
			if err := f.jumpTo(o[0]); err != nil {
				return nil, err
			}

		case bytecode.OpJumpIfFalse, bytecode.OpJumpIfTrue:
			t, err := s.Truthy(regs[o[0]])
			if err != nil {
				return nil, err
			}
			if t == (op == bytecode.OpJumpIfTrue) {
				if err := f.jumpTo(o[1]); err != nil {
					return nil, err
				}
			}

		case bytecode.OpNewScope:
			f.Scope = NewScope(f.Scope)

		case bytecode.OpPopScope:
			if f.Scope.Parent == nil {
				return nil, errInvalidOpcode()
			}
			f.Scope = f.Scope.Parent

		case bytecode.OpEmptyScope:
			f.Scope = NewScope(f.Scope.Parent)

		case bytecode.OpInitCall:
			f.calls = append(f.calls, pendingCall{callee: regs[o[0]], args: make([]Value, o[1])})

		case bytecode.OpInsertArg:
			if len(f.calls) == 0 {
				return nil, errInvalidOpcode()
			}
			pc := &f.calls[len(f.calls)-1]
			if o[1] >= uint64(len(pc.args)) {
				return nil, errInvalidOpcode()
			}
			pc.args[o[1]] = regs[o[0]]

		case bytecode.OpCall:
			if len(f.calls) == 0 {
				return nil, errInvalidOpcode()
			}
			pc := f.calls[len(f.calls)-1]
			f.calls[len(f.calls)-1] = pendingCall{}
			f.calls = f.calls[:len(f.calls)-1]
			for i, a := range pc.args {
				if a == nil {
					pc.args[i] = Null
				}
			}
			v, err := s.Call(pc.callee, pc.args)
			if err != nil {
				return nil, locate(f, o[1], err)
			}
			regs[o[0]] = v

		case bytecode.OpOperation:
			v, err := s.BinaryOp(bytecode.BinaryOp(o[0]), regs[o[2]], regs[o[3]])
			if err != nil {
				return nil, locate(f, o[4], err)
			}
			regs[o[1]] = v

		case bytecode.OpNot:
			t, err := s.Truthy(regs[o[0]])
			if err != nil {
				return nil, err
			}
			regs[o[0]] = Bool(!t)

		case bytecode.OpNegate:
			v, err := s.Negate(regs[o[0]])
			if err != nil {
				return nil, locate(f, o[1], err)
			}
			regs[o[0]] = v

		case bytecode.OpLoadAccess:
			v, err := s.GetAttr(regs[o[1]], unit.String(o[2], o[3]), o[4], o[5] != 0)
			if err != nil {
				return nil, locate(f, o[6], err)
			}
			regs[o[0]] = v

		case bytecode.OpAssignAccess:
			if err := s.SetAttr(regs[o[0]], unit.String(o[2], o[3]), o[4], regs[o[1]]); err != nil {
				return nil, locate(f, o[5], err)
			}

		case bytecode.OpLoadItem:
			v, err := s.GetItem(regs[o[1]], regs[o[2]])
			if err != nil {
				return nil, locate(f, o[3], err)
			}
			regs[o[0]] = v

		case bytecode.OpAssignItem:
			if err := s.SetItem(regs[o[0]], regs[o[1]], regs[o[2]]); err != nil {
				return nil, locate(f, o[3], err)
			}

		case bytecode.OpNewList:
			n := o[1]
			if n > 1<<16 {
				n = 1 << 16
			}
			regs[o[0]] = &List{items: make([]Value, 0, n)}

		case bytecode.OpListAppend:
			l, ok := regs[o[0]].(*List)
			if !ok {
				return nil, errInvalidOpcode()
			}
			l.Append(regs[o[1]])

		case bytecode.OpCreateClass:
			parent, ok := regs[o[1]].(*Object)
			if !ok || parent.Kind != KindClass {
				return nil, errorAt(f, o[4], arerr.Runtime, "a class can only inherit from a class, not '%s'", regs[o[1]].TypeName())
			}
			regs[o[0]] = s.it.newClass(unit.String(o[2], o[3]), parent)

		case bytecode.OpEnterClass:
			cls, ok := regs[o[0]].(*Object)
			if !ok {
				return nil, errInvalidOpcode()
			}
			f.Scope = &Scope{Store: cls.Fields, Parent: f.Scope}

		case bytecode.OpLoadIter:
			iter, err := s.Iterate(regs[o[0]])
			if err != nil {
				return nil, locate(f, o[1], err)
			}
			regs[o[0]] = iter

		case bytecode.OpIterNext:
			iter, ok := regs[o[0]].(*Iterator)
			if !ok {
				return nil, errInvalidOpcode()
			}
			v, more := iter.Next()
			if !more {
				if err := f.jumpTo(o[2]); err != nil {
					return nil, err
				}
				continue
			}
			regs[o[1]] = v

		case bytecode.OpImport:
			mod, err := s.importModule(unit.Path, unit.String(o[1], o[2]))
			if err != nil {
				return nil, locate(f, o[3], err)
			}
			regs[o[0]] = mod

		case bytecode.OpImportAll:
			mod, ok := regs[o[0]].(*Object)
			if !ok {
				return nil, errInvalidOpcode()
			}
			for _, e := range mod.Fields.Entries() {
				if !f.Scope.Declare(e.Hash, e.Key, e.Value) {
					return nil, errorAt(f, o[1], arerr.Runtime, "'%s' is already declared in this scope", e.Key)
				}
			}

		default:
			return nil, errInvalidOpcode()
		}
	}
	return regs[0], nil
}

func (s *State) loadFunction(f *Frame, o *[maxOperands]uint64) (*Function, error) {
	unit := f.Code
	blob := unit.Constants.Get(o[4], o[3])
	if blob == nil && o[3] != 0 {
		return nil, errInvalidOpcode()
	}
	params, err := bytecode.DecodeParams(blob)
	if err != nil {
		return nil, errInvalidOpcode()
	}
	body := unit.Constants.Get(o[7], o[6])
	if body == nil && o[6] != 0 {
		return nil, errInvalidOpcode()
	}
	return &Function{
		Name:   unit.String(o[1], o[2]),
		Params: params,
		Code:   unit.View(body, uint8(o[5])),
		Scope:  f.Scope,
	}, nil
}

// importModule resolves path against native modules, then the installed
// importer.
func (s *State) importModule(fromPath, path string) (*Object, error) {
	if mod, ok, err := s.it.nativeModule(path); ok || err != nil {
		return mod, err
	}
	if s.it.importer == nil {
		return nil, arerr.New(arerr.Import, "cannot import '%s': no module loader installed", path)
	}
	return s.it.importer.Import(s, filepath.Clean(fromPath), path)
}
