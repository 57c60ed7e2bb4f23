package compiler

import (
	"strings"
	"testing"

	"github.com/Open-Argon/Chloride-sub000/pkg/arerr"
)

func parseOne(t *testing.T, src string) Node {
	t.Helper()
	prog, err := Parse("test.ar", src)
	if err != nil {
		t.Fatalf("Parse(%q): %v", src, err)
	}
	if len(prog.Body) != 1 {
		t.Fatalf("Parse(%q): %d statements, want 1", src, len(prog.Body))
	}
	return prog.Body[0]
}

func TestParserLiterals(t *testing.T) {
	tests := []struct {
		input string
		check func(Node) bool
		desc  string
	}{
		{"42", func(n Node) bool { return n.(*NumberLiteral).Text == "42" }, "number"},
		{"'hi'", func(n Node) bool { return n.(*StringLiteral).Value == "hi" }, "string"},
		{"true", func(n Node) bool { return n.(*BoolLiteral).Value }, "true"},
		{"null", func(n Node) bool { _, ok := n.(*NullLiteral); return ok }, "null"},
		{"[1, 2,\n 3]", func(n Node) bool { return len(n.(*ListLiteral).Elements) == 3 }, "list"},
		{"[]", func(n Node) bool { return len(n.(*ListLiteral).Elements) == 0 }, "empty list"},
	}
	for _, tc := range tests {
		if !tc.check(parseOne(t, tc.input)) {
			t.Errorf("%s: check failed for %q", tc.desc, tc.input)
		}
	}
}

func TestParserPrecedence(t *testing.T) {
	n := parseOne(t, "1 + 2 * 3 == 7 and not false")
	and, ok := n.(*LogicalOp)
	if !ok || !and.And {
		t.Fatalf("top = %T, want and", n)
	}
	eq := and.Left.(*BinaryOp)
	if eq.Op != TokenEq {
		t.Errorf("left op = %v, want ==", eq.Op)
	}
	add := eq.Left.(*BinaryOp)
	if add.Op != TokenPlus {
		t.Errorf("add op = %v", add.Op)
	}
	if mul := add.Right.(*BinaryOp); mul.Op != TokenStar {
		t.Errorf("mul op = %v", mul.Op)
	}
	if _, ok := and.Right.(*Not); !ok {
		t.Errorf("right = %T, want not", and.Right)
	}
}

func TestParserPowerIsRightAssociative(t *testing.T) {
	n := parseOne(t, "2 ^ 3 ^ 2").(*BinaryOp)
	if _, ok := n.Right.(*BinaryOp); !ok {
		t.Errorf("right = %T, want nested power", n.Right)
	}
	neg := parseOne(t, "-2 ^ 2")
	if _, ok := neg.(*Negate); !ok {
		t.Errorf("-2 ^ 2 = %T, want negate of power", neg)
	}
}

func TestParserPostfix(t *testing.T) {
	n := parseOne(t, "a.b(1)[2].c")
	access := n.(*Access)
	if access.Name != "c" {
		t.Fatalf("outer name = %q", access.Name)
	}
	index := access.Object.(*Index)
	call := index.Object.(*Call)
	if len(call.Args) != 1 {
		t.Errorf("args = %d", len(call.Args))
	}
	if inner := call.Callee.(*Access); inner.Name != "b" {
		t.Errorf("callee name = %q", inner.Name)
	}
}

func TestParserDeclarations(t *testing.T) {
	d := parseOne(t, "let x = 1").(*Declaration)
	if d.Name != "x" || d.Value.(*NumberLiteral).Text != "1" {
		t.Errorf("decl = %+v", d)
	}

	bare := parseOne(t, "let y").(*Declaration)
	if bare.Value != nil {
		t.Errorf("bare let value = %v", bare.Value)
	}

	fn := parseOne(t, "let add(a, b) = a + b").(*Declaration)
	f := fn.Value.(*Function)
	if f.Name != "add" || strings.Join(f.Params, ",") != "a,b" {
		t.Errorf("function = %+v", f)
	}

	lambda := parseOne(t, "let inc = (x) -> x + 1").(*Declaration)
	if lf := lambda.Value.(*Function); lf.Name != "inc" || len(lf.Params) != 1 {
		t.Errorf("lambda = %+v", lf)
	}
}

func TestParserGroupingIsNotLambda(t *testing.T) {
	n := parseOne(t, "(a)")
	if _, ok := n.(*Identifier); !ok {
		t.Errorf("(a) = %T", n)
	}
	if _, ok := parseOne(t, "() -> 1").(*Function); !ok {
		t.Error("() -> 1 is not a function")
	}
}

func TestParserDoBlockEndsAtEnd(t *testing.T) {
	src := "let x = 1\nwhile (x < 3) do\n  x = x + 1\nend\nx"
	prog, err := Parse("t.ar", src)
	if err != nil {
		t.Fatal(err)
	}
	if len(prog.Body) != 3 {
		t.Fatalf("statements = %d, want 3", len(prog.Body))
	}
	w := prog.Body[1].(*While)
	if body := w.Body.(*Block); len(body.Body) != 1 {
		t.Errorf("while body has %d statements", len(body.Body))
	}
}

func TestParserDoBlockEndsAtDedent(t *testing.T) {
	src := "if (a) do\n  if (b) do\n    c\n  d\nelse do\n  e\nf"
	prog, err := Parse("t.ar", src)
	if err != nil {
		t.Fatal(err)
	}
	if len(prog.Body) != 2 {
		t.Fatalf("statements = %d, want 2", len(prog.Body))
	}
	outer := prog.Body[0].(*If)
	if outer.Else == nil {
		t.Fatal("else attached to the wrong if")
	}
	then := outer.Branches[0].Body.(*Block)
	if len(then.Body) != 2 {
		t.Errorf("then block has %d statements, want 2", len(then.Body))
	}
	if inner := then.Body[0].(*If); inner.Else != nil {
		t.Error("inner if took the outer else")
	}
}

func TestParserElseIfChain(t *testing.T) {
	n := parseOne(t, "if (a) 1\nelse if (b) 2\nelse 3").(*If)
	if len(n.Branches) != 2 || n.Else == nil {
		t.Errorf("branches = %d, else = %v", len(n.Branches), n.Else)
	}
}

func TestParserForAndClass(t *testing.T) {
	f := parseOne(t, "for (i in range(5)) print(i)").(*For)
	if f.Key != "i" {
		t.Errorf("key = %q", f.Key)
	}
	c := parseOne(t, "class Dog(Animal) do\n  let bark(self) = 'woof'\nend").(*Class)
	if c.Name != "Dog" || c.Parent.(*Identifier).Name != "Animal" {
		t.Errorf("class = %+v", c)
	}
}

func TestParserImports(t *testing.T) {
	tests := []struct {
		input     string
		as        string
		expose    []string
		exposeAll bool
	}{
		{`import "lib/math.ar"`, "math", nil, false},
		{`import "pkg/init.ar"`, "pkg", nil, false},
		{`import "util" as u`, "u", nil, false},
		{`import "util" expose a, b as c`, "", []string{"a:a", "b:c"}, false},
		{`import "util" expose *`, "", nil, true},
	}
	for _, tc := range tests {
		n := parseOne(t, tc.input).(*Import)
		if n.As != tc.as || n.ExposeAll != tc.exposeAll {
			t.Errorf("%s: as=%q all=%v", tc.input, n.As, n.ExposeAll)
		}
		var got []string
		for _, e := range n.Expose {
			got = append(got, e.Name+":"+e.Alias)
		}
		if strings.Join(got, ",") != strings.Join(tc.expose, ",") {
			t.Errorf("%s: expose = %v, want %v", tc.input, got, tc.expose)
		}
	}
}

func TestParserErrors(t *testing.T) {
	tests := []struct {
		input string
		line  int
		col   int
	}{
		{"let = 1", 1, 5},
		{"1 +", 1, 4},
		{"x\nend", 2, 1},
		{"import 'a-b'", 1, 8},
		{"let f(a, a) = 1", 1, 10},
		{"foo(1 2)", 1, 7},
	}
	for _, tc := range tests {
		_, err := Parse("bad.ar", tc.input)
		e, ok := arerr.As(err)
		if !ok {
			t.Errorf("Parse(%q) err = %v, want syntax error", tc.input, err)
			continue
		}
		if e.Kind != arerr.Syntax || e.Line != tc.line || e.Column != tc.col {
			t.Errorf("Parse(%q) = %v, want %d:%d", tc.input, e, tc.line, tc.col)
		}
	}
}
