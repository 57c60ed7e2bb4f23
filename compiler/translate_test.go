package compiler

import (
	"testing"

	"github.com/Open-Argon/Chloride-sub000/pkg/arerr"
	"github.com/Open-Argon/Chloride-sub000/pkg/bytecode"
)

func compileOK(t *testing.T, src string) *bytecode.Translated {
	t.Helper()
	unit, err := Compile("test.ar", []byte(src))
	if err != nil {
		t.Fatalf("Compile(%q): %v", src, err)
	}
	return unit
}

func decode(t *testing.T, code []byte) []bytecode.Instruction {
	t.Helper()
	ins, err := bytecode.Instructions(code)
	if err != nil {
		t.Fatalf("Instructions: %v", err)
	}
	return ins
}

func find(ins []bytecode.Instruction, op bytecode.Opcode) []bytecode.Instruction {
	var out []bytecode.Instruction
	for _, in := range ins {
		if in.Op == op {
			out = append(out, in)
		}
	}
	return out
}

func jumpsTo(ins []bytecode.Instruction, target uint64) int {
	n := 0
	for _, in := range find(ins, bytecode.OpJump) {
		if in.Operands[0] == target {
			n++
		}
	}
	return n
}

func TestBreaksPatchedToLoopExit(t *testing.T) {
	unit := compileOK(t, "for (x in range(5)) do\n  if (x == 2) break\n  if (x == 3) break\n  if (x == 4) break\nend")
	ins := decode(t, unit.Bytecode)

	next := find(ins, bytecode.OpIterNext)
	if len(next) != 1 {
		t.Fatalf("ITER_NEXT count = %d", len(next))
	}
	exit, _ := next[0].Target()
	exitIn, err := bytecode.Decode(unit.Bytecode, int(exit))
	if err != nil || exitIn.Op != bytecode.OpPopScope {
		t.Fatalf("loop exit is %v (%v), want POP_SCOPE", exitIn.Op, err)
	}
	after := exit + 1
	if got := jumpsTo(ins, after); got != 3 {
		t.Errorf("%d jumps target the loop exit %d, want 3", got, after)
	}
}

func TestContinueTargetsGuard(t *testing.T) {
	unit := compileOK(t, "while (x < 10) do\n  x = x + 1\n  if (x == 5) continue\nend")
	ins := decode(t, unit.Bytecode)
	if ins[0].Op != bytecode.OpNewScope {
		t.Fatalf("first op = %v", ins[0].Op)
	}
	guard := uint64(ins[1].Offset)
	// The loop back-edge and the continue.
	if got := jumpsTo(ins, guard); got != 2 {
		t.Errorf("%d jumps target the guard %d, want 2", got, guard)
	}
}

func TestWhileLayout(t *testing.T) {
	unit := compileOK(t, "while (true) null")
	ins := decode(t, unit.Bytecode)
	want := []bytecode.Opcode{
		bytecode.OpNewScope,
		bytecode.OpLoadBool,
		bytecode.OpJumpIfFalse,
		bytecode.OpLoadNull,
		bytecode.OpEmptyScope,
		bytecode.OpJump,
		bytecode.OpPopScope,
	}
	if len(ins) != len(want) {
		t.Fatalf("got %d instructions, want %d", len(ins), len(want))
	}
	for i, op := range want {
		if ins[i].Op != op {
			t.Errorf("ins[%d] = %v, want %v", i, ins[i].Op, op)
		}
	}
	if target, _ := ins[2].Target(); target != uint64(ins[6].Offset) {
		t.Errorf("exit target = %d, want %d", target, ins[6].Offset)
	}
}

func TestBreakPopsNestedScopes(t *testing.T) {
	unit := compileOK(t, "while (true) do\n  do\n    break\n  end\nend")
	ins := decode(t, unit.Bytecode)
	// loop scope + block scope + inner block scope
	pops := 0
	for i, in := range ins {
		if in.Op == bytecode.OpJump && i > 0 {
			for j := i - 1; j >= 0 && ins[j].Op == bytecode.OpPopScope; j-- {
				pops++
			}
			break
		}
	}
	if pops != 3 {
		t.Errorf("break pops %d scopes, want 3", pops)
	}
}

func TestStructuralSyntaxErrors(t *testing.T) {
	tests := []struct {
		src string
		msg string
	}{
		{"break", "break outside of a loop"},
		{"continue", "continue outside of a loop"},
		{"return 1", "return outside of a function"},
		{"1 = 2", "cannot assign to this expression"},
		{"f() = 3", "cannot assign to this expression"},
		{"let f() = do\n  break\nend", "break outside of a loop"},
	}
	for _, tc := range tests {
		_, err := Compile("bad.ar", []byte(tc.src))
		e, ok := arerr.As(err)
		if !ok || e.Kind != arerr.Syntax {
			t.Errorf("Compile(%q) err = %v, want syntax error", tc.src, err)
			continue
		}
		if e.Message != tc.msg {
			t.Errorf("Compile(%q) message = %q, want %q", tc.src, e.Message, tc.msg)
		}
		if !e.HasLocation() {
			t.Errorf("Compile(%q) error has no location", tc.src)
		}
	}
}

func TestRegisterHighWaterMark(t *testing.T) {
	tests := []struct {
		src  string
		want uint8
	}{
		{"1", 1},
		{"1 + 2", 2},
		{"1 + (2 + (3 + 4))", 4},
		{"((1 + 2) + 3) + 4", 2},
		{"f(1, 2, 3)", 2},
	}
	for _, tc := range tests {
		if got := compileOK(t, tc.src).RegisterCount; got != tc.want {
			t.Errorf("%q: RegisterCount = %d, want %d", tc.src, got, tc.want)
		}
	}
}

func TestFunctionBodyLivesInArena(t *testing.T) {
	unit := compileOK(t, "let f(a) = a")
	ins := decode(t, unit.Bytecode)
	fn := find(ins, bytecode.OpLoadFunction)
	if len(fn) != 1 {
		t.Fatalf("LOAD_FUNCTION count = %d", len(fn))
	}
	o := fn[0].Operands
	if name := unit.String(o[1], o[2]); name != "f" {
		t.Errorf("name = %q", name)
	}
	params, err := bytecode.DecodeParams(unit.Constants.Get(o[4], o[3]))
	if err != nil || len(params) != 1 || params[0].Name != "a" {
		t.Errorf("params = %v, %v", params, err)
	}
	if o[5] < 1 {
		t.Errorf("body register count = %d", o[5])
	}

	body := decode(t, unit.Constants.Get(o[7], o[6]))
	if len(body) != 1 || body[0].Op != bytecode.OpIdentifier || body[0].Operands[0] != 0 {
		t.Fatalf("body = %v", body)
	}
	if body[0].Operands[3] != bytecode.HashName("a") {
		t.Errorf("identifier hash not translator-keyed")
	}
}

func TestReturnPatchedToBodyEnd(t *testing.T) {
	unit := compileOK(t, "let f() = do\n  while (true) do\n    return 1\n  end\nend")
	fn := find(decode(t, unit.Bytecode), bytecode.OpLoadFunction)[0]
	code := unit.Constants.Get(fn.Operands[7], fn.Operands[6])
	body := decode(t, code)

	found := false
	for i, in := range body {
		if in.Op != bytecode.OpJump || in.Operands[0] != uint64(len(code)) {
			continue
		}
		found = true
		pops := 0
		for j := i - 1; j >= 0 && body[j].Op == bytecode.OpPopScope; j-- {
			pops++
		}
		// do-block, loop scope, loop body block
		if pops != 3 {
			t.Errorf("return pops %d scopes, want 3", pops)
		}
	}
	if !found {
		t.Error("no return jump targets the end of the body")
	}
}

func TestClassReturnTargetsBodyEnd(t *testing.T) {
	unit := compileOK(t, "class A do\n  let x = 1\n  return\n  let y = 2\nend")
	ins := decode(t, unit.Bytecode)
	enter := find(ins, bytecode.OpEnterClass)
	if len(enter) != 1 {
		t.Fatalf("ENTER_CLASS count = %d", len(enter))
	}
	last := ins[len(ins)-1]
	if last.Op != bytecode.OpPopScope || ins[len(ins)-2].Op != bytecode.OpPopScope {
		t.Fatalf("class does not end with two POP_SCOPEs")
	}
	if got := jumpsTo(ins, uint64(ins[len(ins)-2].Offset)); got != 1 {
		t.Errorf("return jumps to class end = %d, want 1", got)
	}
}

func TestConstantsDeduplicated(t *testing.T) {
	unit := compileOK(t, "let x = 'v'\nx = 'v'\nx")
	ids := find(decode(t, unit.Bytecode), bytecode.OpIdentifier)
	decl := find(decode(t, unit.Bytecode), bytecode.OpDeclare)
	if ids[0].Operands[2] != decl[0].Operands[2] {
		t.Errorf("identifier x stored twice")
	}
	consts := find(decode(t, unit.Bytecode), bytecode.OpLoadConst)
	if consts[0].Operands[3] != consts[1].Operands[3] {
		t.Errorf("string constant stored twice")
	}
}

func TestSuperAccessIsNonBinding(t *testing.T) {
	unit := compileOK(t, "super.x\nthis.x")
	acc := find(decode(t, unit.Bytecode), bytecode.OpLoadAccess)
	if acc[0].Operands[5] != 0 || acc[1].Operands[5] != 1 {
		t.Errorf("bind flags = %d, %d; want 0, 1", acc[0].Operands[5], acc[1].Operands[5])
	}
}

func TestTranslateReturnsFirstOffset(t *testing.T) {
	unit := bytecode.NewTranslated("t.ar")
	tr := NewTranslator(unit)
	if _, err := tr.Translate(&NullLiteral{}); err != nil {
		t.Fatal(err)
	}
	first, err := tr.Translate(&BoolLiteral{Value: true})
	if err != nil {
		t.Fatal(err)
	}
	if first != bytecode.OpLoadNull.InstructionLen() {
		t.Errorf("first = %d, want %d", first, bytecode.OpLoadNull.InstructionLen())
	}
}
