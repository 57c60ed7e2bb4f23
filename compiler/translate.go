package compiler

import (
	"math/big"

	"github.com/Open-Argon/Chloride-sub000/pkg/arerr"
	"github.com/Open-Argon/Chloride-sub000/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Translator: lowers the AST into register bytecode
// ---------------------------------------------------------------------------

// loopTarget collects the jumps of one enclosing loop.
type loopTarget struct {
	breaks []int // placeholder offsets patched to the loop exit

	continueTo int  // guard (while) or iterator step (for) offset
	emptyScope bool // continue must empty the loop scope first

	breakDepth    int // scope depth outside the loop
	continueDepth int // scope depth the continue target expects
}

// returnTarget collects the return jumps of one function or class body.
type returnTarget struct {
	jumps []int
	depth int   // scope depth at the body boundary
	reg   uint8 // register receiving the returned value
}

// Translator compiles syntax trees into a Translated unit. A Translator
// holds the compilation context for one buffer; function bodies get a
// fresh Translator writing into a child unit.
type Translator struct {
	unit *bytecode.Translated

	regs  int // next free scratch register
	depth int // runtime scope depth relative to the buffer's entry

	loops   []*loopTarget
	returns []*returnTarget
}

// NewTranslator returns a translator emitting into unit. Register 0 is
// reserved as the accumulator, so scratch registers start at 1.
func NewTranslator(unit *bytecode.Translated) *Translator {
	_ = unit.SetRegisters(1)
	return &Translator{unit: unit, regs: 1}
}

// Translate compiles node into the unit, leaving its value in r0, and
// returns the offset of the first instruction emitted.
func Translate(unit *bytecode.Translated, node Node) (int, error) {
	return NewTranslator(unit).Translate(node)
}

// Translate compiles node with r0 as its destination.
func (t *Translator) Translate(node Node) (int, error) {
	first := t.unit.Len()
	if prog, ok := node.(*Program); ok {
		for _, stmt := range prog.Body {
			if err := t.expr(stmt, 0); err != nil {
				return first, err
			}
		}
		return first, nil
	}
	return first, t.expr(node, 0)
}

// Compile parses and translates a source file.
func Compile(path string, src []byte) (*bytecode.Translated, error) {
	prog, err := Parse(path, string(src))
	if err != nil {
		return nil, err
	}
	unit := bytecode.NewTranslated(path)
	if _, err := Translate(unit, prog); err != nil {
		return nil, err
	}
	return unit, nil
}

// ---------------------------------------------------------------------------
// Context helpers
// ---------------------------------------------------------------------------

func (t *Translator) errorAt(span Span, format string, args ...any) error {
	return arerr.At(arerr.Syntax, t.unit.Path, span.Start.Line, span.Start.Column, span.Length(), format, args...)
}

// alloc reserves the next scratch register.
func (t *Translator) alloc(span Span) (uint8, error) {
	r := t.regs
	if err := t.unit.SetRegisters(r + 1); err != nil {
		return 0, t.errorAt(span, "expression needs more than %d registers", bytecode.MaxRegisters)
	}
	t.regs++
	return uint8(r), nil
}

// release frees the n most recently allocated registers.
func (t *Translator) release(n int) {
	t.regs -= n
}

func (t *Translator) loc(span Span) uint64 {
	return t.unit.AddLocation(span.Start.Line, span.Start.Column, span.Length())
}

func (t *Translator) op(op bytecode.Opcode, operands ...uint64) int {
	off := t.unit.Emit(op)
	info, _ := bytecode.GetOpcodeInfo(op)
	for i, kind := range info.Operands {
		if kind == bytecode.Word {
			t.unit.PushWord(operands[i])
		} else {
			t.unit.PushByte(byte(operands[i]))
		}
	}
	return off
}

// jump emits a jump whose target is not yet known and returns the
// offset of its target word.
func (t *Translator) jump(op bytecode.Opcode, operands ...uint64) int {
	t.op(op, append(operands, 0)...)
	return t.unit.Len() - 8
}

func (t *Translator) popScopes(n int) {
	for i := 0; i < n; i++ {
		t.op(bytecode.OpPopScope)
	}
}

func (t *Translator) newScope() {
	t.op(bytecode.OpNewScope)
	t.depth++
}

func (t *Translator) popScope() {
	t.op(bytecode.OpPopScope)
	t.depth--
}

// name pushes an identifier into the arena and returns (len, off, hash).
func (t *Translator) name(s string) (uint64, uint64, uint64) {
	off := t.unit.Constants.PushString(s)
	return uint64(len(s)), uint64(off), bytecode.HashName(s)
}

// ---------------------------------------------------------------------------
// Dispatch
// ---------------------------------------------------------------------------

// expr compiles node so that its value ends up in dst.
func (t *Translator) expr(node Node, dst uint8) error {
	switch n := node.(type) {
	case *NumberLiteral:
		if _, ok := new(big.Rat).SetString(n.Text); !ok {
			return t.errorAt(n.Span(), "invalid number literal %q", n.Text)
		}
		off := t.unit.Constants.PushString(n.Text)
		t.op(bytecode.OpLoadConst, uint64(dst), uint64(bytecode.ConstNumber), uint64(len(n.Text)), uint64(off))
	case *StringLiteral:
		off := t.unit.Constants.PushString(n.Value)
		t.op(bytecode.OpLoadConst, uint64(dst), uint64(bytecode.ConstString), uint64(len(n.Value)), uint64(off))
	case *BoolLiteral:
		var b uint64
		if n.Value {
			b = 1
		}
		t.op(bytecode.OpLoadBool, uint64(dst), b)
	case *NullLiteral:
		t.op(bytecode.OpLoadNull, uint64(dst))
	case *Identifier:
		l, off, h := t.name(n.Name)
		t.op(bytecode.OpIdentifier, uint64(dst), l, off, h, t.loc(n.Span()))
	case *ListLiteral:
		return t.list(n, dst)
	case *Declaration:
		return t.declaration(n, dst)
	case *Assign:
		return t.assign(n, dst)
	case *BinaryOp:
		return t.binary(n, dst)
	case *LogicalOp:
		return t.logical(n, dst)
	case *Not:
		if err := t.expr(n.Operand, dst); err != nil {
			return err
		}
		t.op(bytecode.OpNot, uint64(dst))
	case *Negate:
		if err := t.expr(n.Operand, dst); err != nil {
			return err
		}
		t.op(bytecode.OpNegate, uint64(dst), t.loc(n.Span()))
	case *Access:
		return t.access(n, dst)
	case *Index:
		return t.index(n, dst)
	case *Call:
		return t.call(n, dst)
	case *Function:
		return t.function(n, dst)
	case *Block:
		return t.block(n, dst)
	case *If:
		return t.ifStmt(n, dst)
	case *While:
		return t.while(n, dst)
	case *For:
		return t.forStmt(n, dst)
	case *Return:
		return t.returnStmt(n)
	case *Break:
		return t.breakStmt(n)
	case *Continue:
		return t.continueStmt(n)
	case *Class:
		return t.class(n, dst)
	case *Import:
		return t.importStmt(n, dst)
	case *Program:
		for _, stmt := range n.Body {
			if err := t.expr(stmt, dst); err != nil {
				return err
			}
		}
	default:
		return t.errorAt(node.Span(), "unsupported syntax node %T", node)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Bindings
// ---------------------------------------------------------------------------

func (t *Translator) declaration(n *Declaration, dst uint8) error {
	if n.Value == nil {
		t.op(bytecode.OpLoadNull, uint64(dst))
	} else if err := t.expr(n.Value, dst); err != nil {
		return err
	}
	l, off, h := t.name(n.Name)
	t.op(bytecode.OpDeclare, uint64(dst), l, off, h, t.loc(n.NameSpan))
	return nil
}

func (t *Translator) assign(n *Assign, dst uint8) error {
	switch target := n.Target.(type) {
	case *Identifier:
		if err := t.expr(n.Value, dst); err != nil {
			return err
		}
		l, off, h := t.name(target.Name)
		t.op(bytecode.OpAssign, uint64(dst), l, off, h, t.loc(target.Span()))
		return nil

	case *Access:
		obj, err := t.alloc(target.Span())
		if err != nil {
			return err
		}
		defer t.release(1)
		if err := t.expr(target.Object, obj); err != nil {
			return err
		}
		if err := t.expr(n.Value, dst); err != nil {
			return err
		}
		l, off, h := t.name(target.Name)
		t.op(bytecode.OpAssignAccess, uint64(obj), uint64(dst), l, off, h, t.loc(target.NameSpan))
		return nil

	case *Index:
		obj, err := t.alloc(target.Span())
		if err != nil {
			return err
		}
		idx, err := t.alloc(target.Span())
		if err != nil {
			t.release(1)
			return err
		}
		defer t.release(2)
		if err := t.expr(target.Object, obj); err != nil {
			return err
		}
		if err := t.expr(target.Index, idx); err != nil {
			return err
		}
		if err := t.expr(n.Value, dst); err != nil {
			return err
		}
		t.op(bytecode.OpAssignItem, uint64(obj), uint64(idx), uint64(dst), t.loc(target.Span()))
		return nil
	}
	return t.errorAt(n.Target.Span(), "cannot assign to this expression")
}

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

var binaryOps = map[TokenType]bytecode.BinaryOp{
	TokenPlus:     bytecode.BinAdd,
	TokenMinus:    bytecode.BinSub,
	TokenStar:     bytecode.BinMul,
	TokenSlash:    bytecode.BinDiv,
	TokenFloorDiv: bytecode.BinFloorDiv,
	TokenPercent:  bytecode.BinMod,
	TokenCaret:    bytecode.BinPow,
	TokenEq:       bytecode.BinEq,
	TokenNe:       bytecode.BinNe,
	TokenLt:       bytecode.BinLt,
	TokenLe:       bytecode.BinLe,
	TokenGt:       bytecode.BinGt,
	TokenGe:       bytecode.BinGe,
}

func (t *Translator) binary(n *BinaryOp, dst uint8) error {
	op, ok := binaryOps[n.Op]
	if !ok {
		return t.errorAt(n.Span(), "unknown operator %s", n.Op)
	}
	if err := t.expr(n.Left, dst); err != nil {
		return err
	}
	right, err := t.alloc(n.Span())
	if err != nil {
		return err
	}
	defer t.release(1)
	if err := t.expr(n.Right, right); err != nil {
		return err
	}
	t.op(bytecode.OpOperation, uint64(op), uint64(dst), uint64(dst), uint64(right), t.loc(n.Span()))
	return nil
}

// logical short-circuits: "and" keeps a falsy left operand, "or" keeps a
// truthy one, otherwise the right operand's value is the result.
func (t *Translator) logical(n *LogicalOp, dst uint8) error {
	if err := t.expr(n.Left, dst); err != nil {
		return err
	}
	op := bytecode.OpJumpIfTrue
	if n.And {
		op = bytecode.OpJumpIfFalse
	}
	skip := t.jump(op, uint64(dst))
	if err := t.expr(n.Right, dst); err != nil {
		return err
	}
	t.unit.PatchJump(skip)
	return nil
}

// ---------------------------------------------------------------------------
// Access, items and lists
// ---------------------------------------------------------------------------

func (t *Translator) access(n *Access, dst uint8) error {
	if err := t.expr(n.Object, dst); err != nil {
		return err
	}
	bind := uint64(1)
	if id, ok := n.Object.(*Identifier); ok && id.Name == "super" {
		bind = 0
	}
	l, off, h := t.name(n.Name)
	t.op(bytecode.OpLoadAccess, uint64(dst), uint64(dst), l, off, h, bind, t.loc(n.NameSpan))
	return nil
}

func (t *Translator) index(n *Index, dst uint8) error {
	if err := t.expr(n.Object, dst); err != nil {
		return err
	}
	idx, err := t.alloc(n.Span())
	if err != nil {
		return err
	}
	defer t.release(1)
	if err := t.expr(n.Index, idx); err != nil {
		return err
	}
	t.op(bytecode.OpLoadItem, uint64(dst), uint64(dst), uint64(idx), t.loc(n.Span()))
	return nil
}

func (t *Translator) list(n *ListLiteral, dst uint8) error {
	t.op(bytecode.OpNewList, uint64(dst), uint64(len(n.Elements)))
	if len(n.Elements) == 0 {
		return nil
	}
	elem, err := t.alloc(n.Span())
	if err != nil {
		return err
	}
	defer t.release(1)
	for _, e := range n.Elements {
		if err := t.expr(e, elem); err != nil {
			return err
		}
		t.op(bytecode.OpListAppend, uint64(dst), uint64(elem))
	}
	return nil
}
