package compiler

import (
	"path"
	"strings"

	"github.com/Open-Argon/Chloride-sub000/pkg/arerr"
)

// ---------------------------------------------------------------------------
// Parser: Recursive descent parser for Argon syntax
// ---------------------------------------------------------------------------

// Parser parses Argon source code into an AST.
//
// Statements end at a newline. A do-block starts with "do" followed by a
// newline; its statements share the indentation of the first one, and the
// block ends at the first line indented less than that or at an "end"
// keyword, which is consumed.
type Parser struct {
	path    string
	tokens  []Token
	pos     int
	prevEnd Position
	indent  int // indentation column of the innermost block
}

// bailout carries the first syntax error out of the recursive descent.
type bailout struct {
	err *arerr.Error
}

// NewParser creates a new parser for the given input.
func NewParser(path, input string) *Parser {
	return &Parser{
		path:   path,
		tokens: Tokenize(input),
		indent: 1,
	}
}

// Parse parses a whole file.
func Parse(path, input string) (*Program, error) {
	return NewParser(path, input).Parse()
}

// Parse parses the token stream as a program. It stops at the first
// syntax error.
func (p *Parser) Parse() (prog *Program, err error) {
	defer func() {
		if r := recover(); r != nil {
			b, ok := r.(bailout)
			if !ok {
				panic(r)
			}
			prog, err = nil, b.err
		}
	}()

	start := p.cur().Pos
	prog = &Program{}
	p.skipNewlines()
	for !p.at(TokenEOF) {
		prog.Body = append(prog.Body, p.parseStatement())
		switch p.cur().Type {
		case TokenNewline:
			p.advance()
		case TokenEOF:
		default:
			p.fail(p.cur(), "unexpected %s", describe(p.cur()))
		}
	}
	prog.SpanVal = Span{Start: start, End: p.prevEnd}
	return prog, nil
}

// ---------------------------------------------------------------------------
// Token helpers
// ---------------------------------------------------------------------------

func (p *Parser) cur() Token {
	return p.tokens[p.pos]
}

func (p *Parser) peek(n int) Token {
	if p.pos+n >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos+n]
}

func (p *Parser) at(t TokenType) bool {
	return p.cur().Type == t
}

func (p *Parser) advance() Token {
	tok := p.cur()
	if tok.Type != TokenEOF {
		p.pos++
	}
	p.prevEnd = Position{
		Offset: tok.Pos.Offset + tok.Len,
		Line:   tok.Pos.Line,
		Column: tok.Pos.Column + tok.Len,
	}
	return tok
}

func (p *Parser) expect(t TokenType) Token {
	if !p.at(t) {
		p.fail(p.cur(), "expected %s, got %s", t, describe(p.cur()))
	}
	return p.advance()
}

func (p *Parser) skipNewlines() {
	for p.at(TokenNewline) {
		p.advance()
	}
}

func (p *Parser) fail(tok Token, format string, args ...any) {
	length := tok.Len
	if length < 1 {
		length = 1
	}
	panic(bailout{arerr.At(arerr.Syntax, p.path, tok.Pos.Line, tok.Pos.Column, length, format, args...)})
}

func (p *Parser) span(start Position) Span {
	return Span{Start: start, End: p.prevEnd}
}

func describe(tok Token) string {
	switch tok.Type {
	case TokenError:
		return tok.Literal
	case TokenNewline:
		return "end of line"
	case TokenEOF:
		return "end of file"
	case TokenIdentifier, TokenNumber:
		return tok.Literal
	case TokenString:
		return "string"
	}
	return "'" + tok.Type.String() + "'"
}

func endsStatement(t TokenType) bool {
	return t == TokenNewline || t == TokenEOF || t == TokenEnd
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (p *Parser) parseStatement() Node {
	switch p.cur().Type {
	case TokenLet:
		return p.parseDeclaration()
	case TokenIf:
		return p.parseIf()
	case TokenWhile:
		return p.parseWhile()
	case TokenFor:
		return p.parseFor()
	case TokenClass:
		return p.parseClass()
	case TokenImport:
		return p.parseImport()
	case TokenReturn:
		start := p.advance().Pos
		ret := &Return{}
		if !endsStatement(p.cur().Type) {
			ret.Value = p.parseValue()
		}
		ret.SpanVal = p.span(start)
		return ret
	case TokenBreak:
		tok := p.advance()
		return &Break{base{p.span(tok.Pos)}}
	case TokenContinue:
		tok := p.advance()
		return &Continue{base{p.span(tok.Pos)}}
	case TokenEnd:
		p.fail(p.cur(), "'end' without a matching 'do'")
	}

	start := p.cur().Pos
	expr := p.parseExpression()
	if p.at(TokenAssign) {
		p.advance()
		value := p.parseValue()
		return &Assign{base: base{p.span(start)}, Target: expr, Value: value}
	}
	return expr
}

// parseValue parses the right-hand side of a binding: an expression or
// a do-block.
func (p *Parser) parseValue() Node {
	if p.at(TokenDo) {
		return p.parseBlock()
	}
	return p.parseExpression()
}

// parseBody parses the body of a control structure or function: a
// do-block or a single statement on the same line.
func (p *Parser) parseBody() Node {
	if p.at(TokenDo) {
		return p.parseBlock()
	}
	if endsStatement(p.cur().Type) {
		p.fail(p.cur(), "expected a body, got %s", describe(p.cur()))
	}
	return p.parseStatement()
}

func (p *Parser) parseBlock() Node {
	start := p.expect(TokenDo).Pos
	block := &Block{}
	if p.at(TokenEOF) {
		block.SpanVal = p.span(start)
		return block
	}
	p.expect(TokenNewline)

	indent := p.cur().Pos.Column
	saved := p.indent
	p.indent = indent
	defer func() { p.indent = saved }()

	for {
		tok := p.cur()
		if tok.Type == TokenEOF {
			break
		}
		if tok.Type == TokenEnd {
			p.advance()
			break
		}
		if tok.Pos.Column < indent {
			break
		}
		block.Body = append(block.Body, p.parseStatement())

		switch p.cur().Type {
		case TokenNewline:
			next := p.peek(1)
			if next.Type != TokenEnd && (next.Type == TokenEOF || next.Pos.Column < indent) {
				// Leave the newline for the enclosing statement.
				block.SpanVal = p.span(start)
				return block
			}
			p.advance()
		case TokenEOF, TokenEnd:
		default:
			p.fail(p.cur(), "unexpected %s", describe(p.cur()))
		}
	}
	block.SpanVal = p.span(start)
	return block
}

func (p *Parser) parseDeclaration() Node {
	start := p.expect(TokenLet).Pos
	nameTok := p.expect(TokenIdentifier)
	decl := &Declaration{
		Name:     nameTok.Literal,
		NameSpan: Span{Start: nameTok.Pos, End: p.prevEnd},
	}

	if p.at(TokenLParen) {
		fnStart := p.cur().Pos
		params := p.parseParams()
		p.expect(TokenAssign)
		body := p.parseBody()
		decl.Value = &Function{
			base:   base{p.span(fnStart)},
			Name:   nameTok.Literal,
			Params: params,
			Body:   body,
		}
	} else if p.at(TokenAssign) {
		p.advance()
		decl.Value = p.parseValue()
		if fn, ok := decl.Value.(*Function); ok && fn.Name == "" {
			fn.Name = nameTok.Literal
		}
	}
	decl.SpanVal = p.span(start)
	return decl
}

func (p *Parser) parseParams() []string {
	p.expect(TokenLParen)
	p.skipNewlines()
	var params []string
	seen := make(map[string]bool)
	for !p.at(TokenRParen) {
		tok := p.expect(TokenIdentifier)
		if seen[tok.Literal] {
			p.fail(tok, "duplicate parameter '%s'", tok.Literal)
		}
		seen[tok.Literal] = true
		params = append(params, tok.Literal)
		p.skipNewlines()
		if !p.at(TokenComma) {
			break
		}
		p.advance()
		p.skipNewlines()
	}
	p.expect(TokenRParen)
	return params
}

func (p *Parser) parseGuard() Node {
	p.expect(TokenLParen)
	p.skipNewlines()
	cond := p.parseExpression()
	p.skipNewlines()
	p.expect(TokenRParen)
	return cond
}

// elseFollows reports whether the next else belongs to the if being parsed.
// An else on a later line must not sit left of the current block.
func (p *Parser) elseFollows() bool {
	if p.at(TokenElse) {
		return true
	}
	i := 0
	for p.peek(i).Type == TokenNewline {
		i++
	}
	tok := p.peek(i)
	if i > 0 && tok.Type == TokenElse && tok.Pos.Column >= p.indent {
		p.pos += i
		return true
	}
	return false
}

func (p *Parser) parseIf() Node {
	start := p.expect(TokenIf).Pos
	n := &If{}
	cond := p.parseGuard()
	n.Branches = append(n.Branches, IfBranch{Cond: cond, Body: p.parseBody()})

	for p.elseFollows() {
		p.expect(TokenElse)
		if p.at(TokenIf) {
			p.advance()
			cond := p.parseGuard()
			n.Branches = append(n.Branches, IfBranch{Cond: cond, Body: p.parseBody()})
			continue
		}
		n.Else = p.parseBody()
		break
	}
	n.SpanVal = p.span(start)
	return n
}

func (p *Parser) parseWhile() Node {
	start := p.expect(TokenWhile).Pos
	cond := p.parseGuard()
	body := p.parseBody()
	return &While{base: base{p.span(start)}, Cond: cond, Body: body}
}

func (p *Parser) parseFor() Node {
	start := p.expect(TokenFor).Pos
	p.expect(TokenLParen)
	keyTok := p.expect(TokenIdentifier)
	keySpan := Span{Start: keyTok.Pos, End: p.prevEnd}
	p.expect(TokenIn)
	iterable := p.parseExpression()
	p.expect(TokenRParen)
	body := p.parseBody()
	return &For{
		base:     base{p.span(start)},
		Key:      keyTok.Literal,
		KeySpan:  keySpan,
		Iterable: iterable,
		Body:     body,
	}
}

func (p *Parser) parseClass() Node {
	start := p.expect(TokenClass).Pos
	name := p.expect(TokenIdentifier).Literal
	n := &Class{Name: name}
	if p.at(TokenLParen) {
		n.Parent = p.parseGuard()
	}
	n.Body = p.parseBody()
	n.SpanVal = p.span(start)
	return n
}

func (p *Parser) parseImport() Node {
	start := p.expect(TokenImport).Pos
	pathTok := p.expect(TokenString)
	n := &Import{Path: pathTok.Literal}

	switch p.cur().Type {
	case TokenAs:
		p.advance()
		n.As = p.expect(TokenIdentifier).Literal
	case TokenExpose:
		p.advance()
		if p.at(TokenStar) {
			p.advance()
			n.ExposeAll = true
			break
		}
		for {
			tok := p.expect(TokenIdentifier)
			e := Exposed{Name: tok.Literal, Alias: tok.Literal}
			if p.at(TokenAs) {
				p.advance()
				e.Alias = p.expect(TokenIdentifier).Literal
			}
			e.Span = Span{Start: tok.Pos, End: p.prevEnd}
			n.Expose = append(n.Expose, e)
			if !p.at(TokenComma) {
				break
			}
			p.advance()
		}
	default:
		n.As = defaultImportName(pathTok.Literal)
		if n.As == "" {
			p.fail(pathTok, "cannot derive a name from %q, use 'as'", pathTok.Literal)
		}
	}
	n.SpanVal = p.span(start)
	return n
}

// defaultImportName returns the identifier an import binds when no
// alias is given: the file or directory name without its extension.
func defaultImportName(p string) string {
	p = strings.TrimSuffix(p, "/")
	base := path.Base(p)
	if base == "init.ar" {
		base = path.Base(path.Dir(p))
	}
	base = strings.TrimSuffix(base, path.Ext(base))
	if base == "" || base == "." || base == "/" {
		return ""
	}
	for i, r := range base {
		if !(isLetter(r) || r == '_' || (i > 0 && isDigit(r))) {
			return ""
		}
	}
	if _, reserved := keywords[base]; reserved {
		return ""
	}
	return base
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// parseExpression parses a single expression.
func (p *Parser) parseExpression() Node {
	return p.parseOr()
}

func (p *Parser) parseOr() Node {
	left := p.parseAnd()
	for p.at(TokenOr) {
		p.advance()
		right := p.parseAnd()
		left = &LogicalOp{base: base{Span{left.Span().Start, right.Span().End}}, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseAnd() Node {
	left := p.parseNot()
	for p.at(TokenAnd) {
		p.advance()
		right := p.parseNot()
		left = &LogicalOp{base: base{Span{left.Span().Start, right.Span().End}}, And: true, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parseNot() Node {
	if p.at(TokenNot) {
		start := p.advance().Pos
		operand := p.parseNot()
		return &Not{base: base{p.span(start)}, Operand: operand}
	}
	return p.parseComparison()
}

func (p *Parser) binaryLevel(next func() Node, ops ...TokenType) Node {
	left := next()
	for {
		op := p.cur().Type
		matched := false
		for _, t := range ops {
			if op == t {
				matched = true
				break
			}
		}
		if !matched {
			return left
		}
		p.advance()
		right := next()
		left = &BinaryOp{base: base{Span{left.Span().Start, right.Span().End}}, Op: op, Left: left, Right: right}
	}
}

func (p *Parser) parseComparison() Node {
	return p.binaryLevel(p.parseAdditive, TokenEq, TokenNe, TokenLt, TokenLe, TokenGt, TokenGe)
}

func (p *Parser) parseAdditive() Node {
	return p.binaryLevel(p.parseMultiplicative, TokenPlus, TokenMinus)
}

func (p *Parser) parseMultiplicative() Node {
	return p.binaryLevel(p.parseUnary, TokenStar, TokenSlash, TokenFloorDiv, TokenPercent)
}

func (p *Parser) parseUnary() Node {
	if p.at(TokenMinus) {
		start := p.advance().Pos
		operand := p.parseUnary()
		return &Negate{base: base{p.span(start)}, Operand: operand}
	}
	return p.parsePower()
}

func (p *Parser) parsePower() Node {
	left := p.parsePostfix()
	if p.at(TokenCaret) {
		p.advance()
		right := p.parseUnary()
		return &BinaryOp{base: base{Span{left.Span().Start, right.Span().End}}, Op: TokenCaret, Left: left, Right: right}
	}
	return left
}

func (p *Parser) parsePostfix() Node {
	start := p.cur().Pos
	expr := p.parsePrimary()
	for {
		switch p.cur().Type {
		case TokenLParen:
			args := p.parseArgs()
			expr = &Call{base: base{p.span(start)}, Callee: expr, Args: args}
		case TokenDot:
			p.advance()
			nameTok := p.expect(TokenIdentifier)
			expr = &Access{
				base:     base{p.span(start)},
				Object:   expr,
				Name:     nameTok.Literal,
				NameSpan: Span{Start: nameTok.Pos, End: p.prevEnd},
			}
		case TokenLBracket:
			p.advance()
			p.skipNewlines()
			index := p.parseExpression()
			p.skipNewlines()
			p.expect(TokenRBracket)
			expr = &Index{base: base{p.span(start)}, Object: expr, Index: index}
		default:
			return expr
		}
	}
}

func (p *Parser) parseArgs() []Node {
	p.expect(TokenLParen)
	p.skipNewlines()
	var args []Node
	for !p.at(TokenRParen) {
		args = append(args, p.parseExpression())
		p.skipNewlines()
		if !p.at(TokenComma) {
			break
		}
		p.advance()
		p.skipNewlines()
	}
	p.expect(TokenRParen)
	return args
}

// isLambda reports whether the tokens at the cursor form "(a, b) ->".
func (p *Parser) isLambda() bool {
	i := 1
	skip := func() {
		for p.peek(i).Type == TokenNewline {
			i++
		}
	}
	skip()
	if p.peek(i).Type != TokenRParen {
		for {
			if p.peek(i).Type != TokenIdentifier {
				return false
			}
			i++
			skip()
			if p.peek(i).Type != TokenComma {
				break
			}
			i++
			skip()
		}
		if p.peek(i).Type != TokenRParen {
			return false
		}
	}
	return p.peek(i+1).Type == TokenArrow
}

func (p *Parser) parsePrimary() Node {
	tok := p.cur()
	switch tok.Type {
	case TokenNumber:
		p.advance()
		return &NumberLiteral{base: base{p.span(tok.Pos)}, Text: tok.Literal}
	case TokenString:
		p.advance()
		return &StringLiteral{base: base{p.span(tok.Pos)}, Value: tok.Literal}
	case TokenTrue, TokenFalse:
		p.advance()
		return &BoolLiteral{base: base{p.span(tok.Pos)}, Value: tok.Type == TokenTrue}
	case TokenNull:
		p.advance()
		return &NullLiteral{base{p.span(tok.Pos)}}
	case TokenIdentifier:
		p.advance()
		return &Identifier{base: base{p.span(tok.Pos)}, Name: tok.Literal}
	case TokenLBracket:
		return p.parseList()
	case TokenDo:
		return p.parseBlock()
	case TokenLParen:
		if p.isLambda() {
			params := p.parseParams()
			p.expect(TokenArrow)
			body := p.parseBody()
			return &Function{base: base{p.span(tok.Pos)}, Params: params, Body: body}
		}
		p.advance()
		p.skipNewlines()
		expr := p.parseExpression()
		p.skipNewlines()
		p.expect(TokenRParen)
		return expr
	}
	p.fail(tok, "unexpected %s", describe(tok))
	return nil
}

func (p *Parser) parseList() Node {
	start := p.expect(TokenLBracket).Pos
	p.skipNewlines()
	list := &ListLiteral{}
	for !p.at(TokenRBracket) {
		list.Elements = append(list.Elements, p.parseExpression())
		p.skipNewlines()
		if !p.at(TokenComma) {
			break
		}
		p.advance()
		p.skipNewlines()
	}
	p.expect(TokenRBracket)
	list.SpanVal = p.span(start)
	return list
}
