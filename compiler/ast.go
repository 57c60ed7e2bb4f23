package compiler

// ---------------------------------------------------------------------------
// AST: syntax tree consumed by the translator
// ---------------------------------------------------------------------------

// Position represents a source location.
type Position struct {
	Offset int // byte offset
	Line   int // 1-based line number
	Column int // 1-based column number
}

// Span represents a range in source code.
type Span struct {
	Start Position
	End   Position
}

// Length returns the span's width in bytes. Spans crossing lines return 1.
func (s Span) Length() int {
	if s.End.Line != s.Start.Line || s.End.Offset <= s.Start.Offset {
		return 1
	}
	return s.End.Offset - s.Start.Offset
}

// Node is the interface implemented by all AST nodes.
type Node interface {
	Span() Span
	node() // marker method
}

type base struct {
	SpanVal Span
}

func (b *base) Span() Span { return b.SpanVal }
func (b *base) node()      {}

// ---------------------------------------------------------------------------
// Literals
// ---------------------------------------------------------------------------

// NumberLiteral is a decimal number. Text is the literal as written and
// is parsed into a rational at run time.
type NumberLiteral struct {
	base
	Text string
}

// StringLiteral is a string with escapes already resolved.
type StringLiteral struct {
	base
	Value string
}

// BoolLiteral is true or false.
type BoolLiteral struct {
	base
	Value bool
}

// NullLiteral is null.
type NullLiteral struct {
	base
}

// ListLiteral is [a, b, c].
type ListLiteral struct {
	base
	Elements []Node
}

// ---------------------------------------------------------------------------
// Names and access
// ---------------------------------------------------------------------------

// Identifier is a variable reference.
type Identifier struct {
	base
	Name string
}

// Access is obj.name.
type Access struct {
	base
	Object Node
	Name   string
	// NameSpan locates the attribute name for diagnostics.
	NameSpan Span
}

// Index is obj[index].
type Index struct {
	base
	Object Node
	Index  Node
}

// Call is callee(args...).
type Call struct {
	base
	Callee Node
	Args   []Node
}

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

// BinaryOp is left op right for arithmetic and comparison operators.
type BinaryOp struct {
	base
	Op    TokenType
	Left  Node
	Right Node
}

// LogicalOp is a short-circuiting and/or.
type LogicalOp struct {
	base
	And   bool
	Left  Node
	Right Node
}

// Not is not operand.
type Not struct {
	base
	Operand Node
}

// Negate is -operand.
type Negate struct {
	base
	Operand Node
}

// ---------------------------------------------------------------------------
// Bindings
// ---------------------------------------------------------------------------

// Declaration is let name = value. Value is nil for a bare let.
type Declaration struct {
	base
	Name     string
	NameSpan Span
	Value    Node
}

// Assign is target = value. The parser accepts any expression as the
// target; the translator rejects the ones that cannot be assigned.
type Assign struct {
	base
	Target Node
	Value  Node
}

// Function is a function literal. Name is empty for anonymous functions.
type Function struct {
	base
	Name   string
	Params []string
	Body   Node
}

// ---------------------------------------------------------------------------
// Control flow
// ---------------------------------------------------------------------------

// Block is a do-block: a sequence of statements in a new scope.
type Block struct {
	base
	Body []Node
}

// IfBranch is one guarded branch of an If.
type IfBranch struct {
	Cond Node
	Body Node
}

// If is if/else if/else. Else is nil when absent.
type If struct {
	base
	Branches []IfBranch
	Else     Node
}

// While is while (cond) body.
type While struct {
	base
	Cond Node
	Body Node
}

// For is for (key in iterable) body.
type For struct {
	base
	Key      string
	KeySpan  Span
	Iterable Node
	Body     Node
}

// Return is return [value].
type Return struct {
	base
	Value Node
}

// Break is break.
type Break struct {
	base
}

// Continue is continue.
type Continue struct {
	base
}

// ---------------------------------------------------------------------------
// Classes and modules
// ---------------------------------------------------------------------------

// Class is class Name(Parent) body. Parent is nil when omitted.
type Class struct {
	base
	Name   string
	Parent Node
	Body   Node
}

// Exposed is one name pulled out of an imported module.
type Exposed struct {
	Name  string
	Alias string
	Span  Span
}

// Import is import "path" [as name | expose a, b as c | expose *].
type Import struct {
	base
	Path string
	// As is the binding for the module object. It is empty when the
	// import exposes names instead.
	As        string
	Expose    []Exposed
	ExposeAll bool
}

// Program is the root of a parsed file.
type Program struct {
	base
	Body []Node
}
