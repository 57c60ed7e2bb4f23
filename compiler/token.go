package compiler

import (
	"fmt"
	"sort"
)

// ---------------------------------------------------------------------------
// Token types for the Argon lexer
// ---------------------------------------------------------------------------

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError
	TokenNewline

	// Literals
	TokenNumber     // 42, 3.14, 1e10
	TokenString     // "hello", 'hello'
	TokenIdentifier // foo, Bar

	// Delimiters
	TokenLParen   // (
	TokenRParen   // )
	TokenLBracket // [
	TokenRBracket // ]
	TokenComma    // ,
	TokenDot      // .
	TokenAssign   // =
	TokenArrow    // ->

	// Operators
	TokenPlus     // +
	TokenMinus    // -
	TokenStar     // *
	TokenSlash    // /
	TokenFloorDiv // //
	TokenPercent  // %
	TokenCaret    // ^
	TokenEq       // ==
	TokenNe       // !=
	TokenLt       // <
	TokenLe       // <=
	TokenGt       // >
	TokenGe       // >=

	// Keywords
	TokenLet
	TokenIf
	TokenElse
	TokenWhile
	TokenFor
	TokenIn
	TokenDo
	TokenEnd
	TokenClass
	TokenImport
	TokenAs
	TokenExpose
	TokenReturn
	TokenBreak
	TokenContinue
	TokenAnd
	TokenOr
	TokenNot
	TokenTrue
	TokenFalse
	TokenNull
)

var tokenNames = map[TokenType]string{
	TokenEOF:        "EOF",
	TokenError:      "ERROR",
	TokenNewline:    "NEWLINE",
	TokenNumber:     "NUMBER",
	TokenString:     "STRING",
	TokenIdentifier: "IDENTIFIER",
	TokenLParen:     "(",
	TokenRParen:     ")",
	TokenLBracket:   "[",
	TokenRBracket:   "]",
	TokenComma:      ",",
	TokenDot:        ".",
	TokenAssign:     "=",
	TokenArrow:      "->",
	TokenPlus:       "+",
	TokenMinus:      "-",
	TokenStar:       "*",
	TokenSlash:      "/",
	TokenFloorDiv:   "//",
	TokenPercent:    "%",
	TokenCaret:      "^",
	TokenEq:         "==",
	TokenNe:         "!=",
	TokenLt:         "<",
	TokenLe:         "<=",
	TokenGt:         ">",
	TokenGe:         ">=",
	TokenLet:        "let",
	TokenIf:         "if",
	TokenElse:       "else",
	TokenWhile:      "while",
	TokenFor:        "for",
	TokenIn:         "in",
	TokenDo:         "do",
	TokenEnd:        "end",
	TokenClass:      "class",
	TokenImport:     "import",
	TokenAs:         "as",
	TokenExpose:     "expose",
	TokenReturn:     "return",
	TokenBreak:      "break",
	TokenContinue:   "continue",
	TokenAnd:        "and",
	TokenOr:         "or",
	TokenNot:        "not",
	TokenTrue:       "true",
	TokenFalse:      "false",
	TokenNull:       "null",
}

// keywords maps reserved words to their token types.
var keywords = map[string]TokenType{
	"let":      TokenLet,
	"if":       TokenIf,
	"else":     TokenElse,
	"while":    TokenWhile,
	"for":      TokenFor,
	"in":       TokenIn,
	"do":       TokenDo,
	"end":      TokenEnd,
	"class":    TokenClass,
	"import":   TokenImport,
	"as":       TokenAs,
	"expose":   TokenExpose,
	"return":   TokenReturn,
	"break":    TokenBreak,
	"continue": TokenContinue,
	"and":      TokenAnd,
	"or":       TokenOr,
	"not":      TokenNot,
	"true":     TokenTrue,
	"false":    TokenFalse,
	"null":     TokenNull,
}

// String returns the name of the token type.
func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TokenType(%d)", t)
}

// Token is a lexical token with its source position.
type Token struct {
	Type    TokenType
	Literal string
	Pos     Position
	// Len is the token's length in bytes of source text.
	Len int
}

func (t Token) String() string {
	if t.Type == TokenIdentifier || t.Type == TokenNumber || t.Type == TokenString || t.Type == TokenError {
		return fmt.Sprintf("%s(%q)", t.Type, t.Literal)
	}
	return t.Type.String()
}

// Keywords returns the reserved words in sorted order.
func Keywords() []string {
	words := make([]string, 0, len(keywords))
	for w := range keywords {
		words = append(words, w)
	}
	sort.Strings(words)
	return words
}
