package compiler

import "github.com/Open-Argon/Chloride-sub000/pkg/bytecode"

// ---------------------------------------------------------------------------
// Blocks and conditionals
// ---------------------------------------------------------------------------

// block runs its statements in a new scope; the block's value is null.
func (t *Translator) block(n *Block, dst uint8) error {
	t.newScope()
	for _, stmt := range n.Body {
		if err := t.expr(stmt, dst); err != nil {
			return err
		}
	}
	t.op(bytecode.OpLoadNull, uint64(dst))
	t.popScope()
	return nil
}

// ifStmt emits, per branch:
//
//	NEW_SCOPE; cond; JUMP_IF_FALSE next; body; POP_SCOPE; JUMP end
//	next: POP_SCOPE
//
// followed by the else body, with every JUMP end patched at the close.
func (t *Translator) ifStmt(n *If, dst uint8) error {
	var ends []int
	for _, br := range n.Branches {
		t.newScope()
		if err := t.expr(br.Cond, dst); err != nil {
			return err
		}
		next := t.jump(bytecode.OpJumpIfFalse, uint64(dst))
		if err := t.expr(br.Body, dst); err != nil {
			return err
		}
		t.op(bytecode.OpPopScope)
		ends = append(ends, t.jump(bytecode.OpJump))
		t.unit.PatchJump(next)
		t.popScope()
	}
	if n.Else != nil {
		if err := t.expr(n.Else, dst); err != nil {
			return err
		}
	}
	for _, off := range ends {
		t.unit.PatchJump(off)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Loops
// ---------------------------------------------------------------------------

func (t *Translator) pushLoop(l *loopTarget) {
	t.loops = append(t.loops, l)
}

func (t *Translator) popLoop() *loopTarget {
	l := t.loops[len(t.loops)-1]
	t.loops = t.loops[:len(t.loops)-1]
	return l
}

// while emits:
//
//	NEW_SCOPE
//	guard: cond; JUMP_IF_FALSE exit
//	body; EMPTY_SCOPE; JUMP guard
//	exit: POP_SCOPE
//	after:
//
// The loop scope is replaced with a fresh one at the end of every
// iteration so closures created in one iteration keep their bindings.
// break pops down to the depth outside the loop and jumps to after.
func (t *Translator) while(n *While, dst uint8) error {
	outer := t.depth
	t.newScope()
	guard := t.unit.Len()
	if err := t.expr(n.Cond, dst); err != nil {
		return err
	}
	exit := t.jump(bytecode.OpJumpIfFalse, uint64(dst))

	loop := &loopTarget{
		continueTo:    guard,
		emptyScope:    true,
		breakDepth:    outer,
		continueDepth: t.depth,
	}
	t.pushLoop(loop)
	err := t.expr(n.Body, dst)
	t.popLoop()
	if err != nil {
		return err
	}

	t.op(bytecode.OpEmptyScope)
	t.unit.PatchJumpTo(t.jump(bytecode.OpJump), guard)
	t.unit.PatchJump(exit)
	t.popScope()
	for _, off := range loop.breaks {
		t.unit.PatchJump(off)
	}
	return nil
}

// forStmt emits:
//
//	NEW_SCOPE
//	iterable; LOAD_ITER it
//	step: ITER_NEXT it key exit
//	NEW_SCOPE; DECLARE key; body; POP_SCOPE; JUMP step
//	exit: POP_SCOPE
//	after:
func (t *Translator) forStmt(n *For, dst uint8) error {
	outer := t.depth
	it, err := t.alloc(n.Span())
	if err != nil {
		return err
	}
	key, err := t.alloc(n.Span())
	if err != nil {
		t.release(1)
		return err
	}
	defer t.release(2)

	t.newScope()
	if err := t.expr(n.Iterable, it); err != nil {
		return err
	}
	t.op(bytecode.OpLoadIter, uint64(it), t.loc(n.Iterable.Span()))
	step := t.unit.Len()
	exit := t.jump(bytecode.OpIterNext, uint64(it), uint64(key))

	loop := &loopTarget{
		continueTo:    step,
		breakDepth:    outer,
		continueDepth: t.depth,
	}
	t.newScope()
	l, off, h := t.name(n.Key)
	t.op(bytecode.OpDeclare, uint64(key), l, off, h, t.loc(n.KeySpan))

	t.pushLoop(loop)
	err = t.expr(n.Body, dst)
	t.popLoop()
	if err != nil {
		return err
	}

	t.popScope()
	t.unit.PatchJumpTo(t.jump(bytecode.OpJump), step)
	t.unit.PatchJump(exit)
	t.popScope()
	for _, off := range loop.breaks {
		t.unit.PatchJump(off)
	}
	return nil
}

func (t *Translator) breakStmt(n *Break) error {
	if len(t.loops) == 0 {
		return t.errorAt(n.Span(), "break outside of a loop")
	}
	loop := t.loops[len(t.loops)-1]
	t.popScopes(t.depth - loop.breakDepth)
	loop.breaks = append(loop.breaks, t.jump(bytecode.OpJump))
	return nil
}

func (t *Translator) continueStmt(n *Continue) error {
	if len(t.loops) == 0 {
		return t.errorAt(n.Span(), "continue outside of a loop")
	}
	loop := t.loops[len(t.loops)-1]
	t.popScopes(t.depth - loop.continueDepth)
	if loop.emptyScope {
		t.op(bytecode.OpEmptyScope)
	}
	t.unit.PatchJumpTo(t.jump(bytecode.OpJump), loop.continueTo)
	return nil
}

// ---------------------------------------------------------------------------
// Returns
// ---------------------------------------------------------------------------

func (t *Translator) returnStmt(n *Return) error {
	if len(t.returns) == 0 {
		return t.errorAt(n.Span(), "return outside of a function")
	}
	target := t.returns[len(t.returns)-1]
	if n.Value == nil {
		t.op(bytecode.OpLoadNull, uint64(target.reg))
	} else if err := t.expr(n.Value, target.reg); err != nil {
		return err
	}
	t.popScopes(t.depth - target.depth)
	target.jumps = append(target.jumps, t.jump(bytecode.OpJump))
	return nil
}
