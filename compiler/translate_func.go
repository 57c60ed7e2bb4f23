package compiler

import "github.com/Open-Argon/Chloride-sub000/pkg/bytecode"

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------

const maxArgs = 255

// call emits INIT_CALL, one INSERT_ARG per argument, then CALL. Pending
// calls nest, so arguments may themselves contain calls.
func (t *Translator) call(n *Call, dst uint8) error {
	if len(n.Args) > maxArgs {
		return t.errorAt(n.Span(), "too many arguments (%d > %d)", len(n.Args), maxArgs)
	}
	if err := t.expr(n.Callee, dst); err != nil {
		return err
	}
	t.op(bytecode.OpInitCall, uint64(dst), uint64(len(n.Args)))
	if len(n.Args) > 0 {
		arg, err := t.alloc(n.Span())
		if err != nil {
			return err
		}
		defer t.release(1)
		for i, a := range n.Args {
			if err := t.expr(a, arg); err != nil {
				return err
			}
			t.op(bytecode.OpInsertArg, uint64(arg), uint64(i))
		}
	}
	t.op(bytecode.OpCall, uint64(dst), t.loc(n.Span()))
	return nil
}

// ---------------------------------------------------------------------------
// Functions
// ---------------------------------------------------------------------------

// function compiles the body into a child buffer with its own register
// file, copies the buffer into the arena and emits LOAD_FUNCTION.
func (t *Translator) function(n *Function, dst uint8) error {
	body := t.unit.Child()
	inner := NewTranslator(body)
	ret := &returnTarget{depth: 0, reg: 0}
	inner.returns = append(inner.returns, ret)
	if err := inner.expr(n.Body, 0); err != nil {
		return err
	}
	for _, off := range ret.jumps {
		body.PatchJump(off)
	}

	bodyOff := t.unit.Constants.Push(body.Bytecode)
	nameLen, nameOff, _ := t.name(n.Name)
	params := bytecode.EncodeParams(n.Params)
	paramsOff := t.unit.Constants.Push(params)

	t.op(bytecode.OpLoadFunction,
		uint64(dst),
		nameLen, nameOff,
		uint64(len(params)), uint64(paramsOff),
		uint64(body.RegisterCount),
		uint64(len(body.Bytecode)), uint64(bodyOff),
	)
	return nil
}

// ---------------------------------------------------------------------------
// Classes
// ---------------------------------------------------------------------------

// class emits:
//
//	parent -> p (or LOAD_BASE_CLASS p)
//	CREATE_CLASS dst p; DECLARE name dst
//	NEW_SCOPE; DECLARE super p; DECLARE this dst
//	ENTER_CLASS dst; body; POP_SCOPE; POP_SCOPE
//
// The body runs directly in the scope backed by the class fields, so its
// declarations become class attributes. A return in the body ends it
// early.
func (t *Translator) class(n *Class, dst uint8) error {
	parent, err := t.alloc(n.Span())
	if err != nil {
		return err
	}
	scratch, err := t.alloc(n.Span())
	if err != nil {
		t.release(1)
		return err
	}
	defer t.release(2)

	if n.Parent != nil {
		if err := t.expr(n.Parent, parent); err != nil {
			return err
		}
	} else {
		t.op(bytecode.OpLoadBaseClass, uint64(parent))
	}

	loc := t.loc(n.Span())
	l, off, h := t.name(n.Name)
	t.op(bytecode.OpCreateClass, uint64(dst), uint64(parent), l, off, loc)
	t.op(bytecode.OpDeclare, uint64(dst), l, off, h, loc)

	t.newScope()
	sl, soff, sh := t.name("super")
	t.op(bytecode.OpDeclare, uint64(parent), sl, soff, sh, loc)
	tl, toff, th := t.name("this")
	t.op(bytecode.OpDeclare, uint64(dst), tl, toff, th, loc)

	t.op(bytecode.OpEnterClass, uint64(dst))
	t.depth++

	ret := &returnTarget{depth: t.depth, reg: scratch}
	t.returns = append(t.returns, ret)
	stmts := []Node{n.Body}
	if b, ok := n.Body.(*Block); ok {
		stmts = b.Body
	}
	for _, stmt := range stmts {
		if err := t.expr(stmt, scratch); err != nil {
			t.returns = t.returns[:len(t.returns)-1]
			return err
		}
	}
	t.returns = t.returns[:len(t.returns)-1]
	for _, off := range ret.jumps {
		t.unit.PatchJump(off)
	}

	t.popScope()
	t.popScope()
	return nil
}

// ---------------------------------------------------------------------------
// Imports
// ---------------------------------------------------------------------------

func (t *Translator) importStmt(n *Import, dst uint8) error {
	loc := t.loc(n.Span())
	pl, poff, _ := t.name(n.Path)
	t.op(bytecode.OpImport, uint64(dst), pl, poff, loc)

	switch {
	case n.ExposeAll:
		t.op(bytecode.OpImportAll, uint64(dst), loc)
	case len(n.Expose) > 0:
		tmp, err := t.alloc(n.Span())
		if err != nil {
			return err
		}
		defer t.release(1)
		for _, e := range n.Expose {
			eloc := t.loc(e.Span)
			l, off, h := t.name(e.Name)
			t.op(bytecode.OpLoadAccess, uint64(tmp), uint64(dst), l, off, h, 0, eloc)
			al, aoff, ah := t.name(e.Alias)
			t.op(bytecode.OpDeclare, uint64(tmp), al, aoff, ah, eloc)
		}
	default:
		l, off, h := t.name(n.As)
		t.op(bytecode.OpDeclare, uint64(dst), l, off, h, loc)
	}
	return nil
}
