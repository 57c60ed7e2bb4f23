package compiler

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Lexer: Tokenizer for Argon syntax
// ---------------------------------------------------------------------------

// Lexer tokenizes Argon source code. Newlines are significant and are
// emitted as TokenNewline; runs of blank lines collapse into one.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      rune // current character
	line    int  // current line (1-based)
	col     int  // column of ch (1-based)
	nextCol int
}

// NewLexer creates a new lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{
		input:   input,
		line:    1,
		nextCol: 1,
	}
	l.readChar()
	return l
}

// readChar reads the next character.
func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.nextCol = 1
	}
	if l.readPos >= len(l.input) {
		l.ch = 0
		l.pos = l.readPos
		l.col = l.nextCol
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPos:])
	l.ch = r
	l.pos = l.readPos
	l.readPos += size
	l.col = l.nextCol
	l.nextCol++
}

// peekChar returns the next character without consuming it.
func (l *Lexer) peekChar() rune {
	if l.readPos >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPos:])
	return r
}

func (l *Lexer) position() Position {
	return Position{Offset: l.pos, Line: l.line, Column: l.col}
}

func (l *Lexer) token(t TokenType, lit string, pos Position) Token {
	return Token{Type: t, Literal: lit, Pos: pos, Len: l.pos - pos.Offset}
}

// single consumes one character and returns a token of type t.
func (l *Lexer) single(t TokenType, pos Position) Token {
	lit := string(l.ch)
	l.readChar()
	return l.token(t, lit, pos)
}

// pair consumes one character, plus next if it follows, choosing the token type.
func (l *Lexer) pair(next rune, one, two TokenType, pos Position) Token {
	l.readChar()
	if l.ch == next {
		l.readChar()
		return l.token(two, l.input[pos.Offset:l.pos], pos)
	}
	return l.token(one, l.input[pos.Offset:l.pos], pos)
}

// NextToken returns the next token.
func (l *Lexer) NextToken() Token {
	l.skipSpaceAndComments()

	pos := l.position()

	switch {
	case l.ch == 0:
		return Token{Type: TokenEOF, Pos: pos}

	case l.ch == '\n':
		for l.ch == '\n' {
			l.readChar()
			l.skipSpaceAndComments()
		}
		return Token{Type: TokenNewline, Literal: "\n", Pos: pos, Len: 1}

	case l.ch == '(':
		return l.single(TokenLParen, pos)
	case l.ch == ')':
		return l.single(TokenRParen, pos)
	case l.ch == '[':
		return l.single(TokenLBracket, pos)
	case l.ch == ']':
		return l.single(TokenRBracket, pos)
	case l.ch == ',':
		return l.single(TokenComma, pos)
	case l.ch == '+':
		return l.single(TokenPlus, pos)
	case l.ch == '*':
		return l.single(TokenStar, pos)
	case l.ch == '%':
		return l.single(TokenPercent, pos)
	case l.ch == '^':
		return l.single(TokenCaret, pos)

	case l.ch == '-':
		return l.pair('>', TokenMinus, TokenArrow, pos)
	case l.ch == '/':
		return l.pair('/', TokenSlash, TokenFloorDiv, pos)
	case l.ch == '=':
		return l.pair('=', TokenAssign, TokenEq, pos)
	case l.ch == '<':
		return l.pair('=', TokenLt, TokenLe, pos)
	case l.ch == '>':
		return l.pair('=', TokenGt, TokenGe, pos)
	case l.ch == '!':
		if l.peekChar() == '=' {
			return l.pair('=', TokenError, TokenNe, pos)
		}
		l.readChar()
		return l.token(TokenError, "unexpected character: !", pos)

	case l.ch == '.':
		if isDigit(l.peekChar()) {
			return l.readNumber(pos)
		}
		return l.single(TokenDot, pos)

	case l.ch == '"' || l.ch == '\'':
		return l.readString(pos)

	case isDigit(l.ch):
		return l.readNumber(pos)

	case isLetter(l.ch) || l.ch == '_':
		return l.readIdentifier(pos)

	default:
		ch := l.ch
		l.readChar()
		return l.token(TokenError, fmt.Sprintf("unexpected character: %c", ch), pos)
	}
}

// skipSpaceAndComments skips spaces, tabs, carriage returns, line
// continuations and # comments. Newlines are left in place.
func (l *Lexer) skipSpaceAndComments() {
	for {
		switch {
		case l.ch == ' ' || l.ch == '\t' || l.ch == '\r':
			l.readChar()
		case l.ch == '\\' && l.peekChar() == '\n':
			l.readChar()
			l.readChar()
		case l.ch == '#':
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
		default:
			return
		}
	}
}

var escapes = map[rune]rune{
	'n':  '\n',
	't':  '\t',
	'r':  '\r',
	'0':  0,
	'\\': '\\',
	'"':  '"',
	'\'': '\'',
}

// readString reads a string delimited by ' or ".
func (l *Lexer) readString(pos Position) Token {
	quote := l.ch
	l.readChar()
	var sb strings.Builder
	for l.ch != quote {
		if l.ch == 0 || l.ch == '\n' {
			return l.token(TokenError, "unterminated string", pos)
		}
		if l.ch == '\\' {
			l.readChar()
			if r, ok := escapes[l.ch]; ok {
				sb.WriteRune(r)
			} else {
				sb.WriteRune('\\')
				sb.WriteRune(l.ch)
			}
			l.readChar()
			continue
		}
		sb.WriteRune(l.ch)
		l.readChar()
	}
	l.readChar()
	return l.token(TokenString, sb.String(), pos)
}

// readNumber reads a decimal literal with optional fraction and exponent.
func (l *Lexer) readNumber(pos Position) Token {
	for isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	if l.ch == 'e' || l.ch == 'E' {
		save := *l
		l.readChar()
		if l.ch == '+' || l.ch == '-' {
			l.readChar()
		}
		if !isDigit(l.ch) {
			*l = save
		} else {
			for isDigit(l.ch) {
				l.readChar()
			}
		}
	}
	lit := strings.ReplaceAll(l.input[pos.Offset:l.pos], "_", "")
	if strings.HasPrefix(lit, ".") {
		lit = "0" + lit
	}
	return l.token(TokenNumber, lit, pos)
}

// readIdentifier reads an identifier or keyword.
func (l *Lexer) readIdentifier(pos Position) Token {
	for isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' {
		l.readChar()
	}
	lit := l.input[pos.Offset:l.pos]
	if t, ok := keywords[lit]; ok {
		return l.token(t, lit, pos)
	}
	return l.token(TokenIdentifier, lit, pos)
}

func isLetter(r rune) bool {
	return unicode.IsLetter(r)
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// Tokenize returns all tokens from input, ending with TokenEOF.
func Tokenize(input string) []Token {
	l := NewLexer(input)
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			return tokens
		}
	}
}
