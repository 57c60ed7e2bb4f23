// Package arerr defines the error value shared by the compiler, the
// runtime and the module loader.
package arerr

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// Kind classifies an error.
type Kind string

const (
	Syntax    Kind = "Syntax Error"
	Name      Kind = "Name Error"
	Runtime   Kind = "Runtime Error"
	Import    Kind = "Import Error"
	File      Kind = "File Error"
	Attribute Kind = "Attribute Error"
	Index     Kind = "Index Error"
)

// Error is a source-located error. Line and Column are 1-based; a zero
// Line means the error has no location.
type Error struct {
	Kind    Kind
	Message string
	Path    string
	Line    int
	Column  int
	Length  int
}

// New returns an unlocated error.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// At returns an error located at the given span.
func At(kind Kind, path string, line, column, length int, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Path:    path,
		Line:    line,
		Column:  column,
		Length:  length,
	}
}

func (e *Error) Error() string {
	var sb strings.Builder
	if e.Path != "" {
		sb.WriteString(e.Path)
		sb.WriteString(":")
	}
	if e.Line > 0 {
		fmt.Fprintf(&sb, "%d:%d:", e.Line, e.Column)
	}
	if sb.Len() > 0 {
		sb.WriteString(" ")
	}
	sb.WriteString(string(e.Kind))
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	return sb.String()
}

// HasLocation reports whether the error points into a source file.
func (e *Error) HasLocation() bool {
	return e.Line > 0
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err carries an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}

const (
	ansiRed   = "\x1b[31;1m"
	ansiBold  = "\x1b[1m"
	ansiReset = "\x1b[0m"
)

// Pretty writes err followed by the offending source line and a caret
// span under the failing token. src may be nil, in which case only the
// message is written.
func Pretty(w io.Writer, err error, src []byte, color bool) {
	paint := func(code, s string) string {
		if !color {
			return s
		}
		return code + s + ansiReset
	}

	e, ok := As(err)
	if !ok {
		fmt.Fprintln(w, paint(ansiRed, err.Error()))
		return
	}

	header := string(e.Kind) + ": " + e.Message
	if e.Path != "" && e.HasLocation() {
		fmt.Fprintf(w, "%s %s\n", paint(ansiBold, fmt.Sprintf("%s:%d:%d:", e.Path, e.Line, e.Column)), paint(ansiRed, header))
	} else if e.Path != "" {
		fmt.Fprintf(w, "%s %s\n", paint(ansiBold, e.Path+":"), paint(ansiRed, header))
	} else {
		fmt.Fprintln(w, paint(ansiRed, header))
	}

	line, ok := sourceLine(src, e.Line)
	if !ok {
		return
	}
	gutter := fmt.Sprintf("%4d | ", e.Line)
	fmt.Fprintf(w, "%s%s\n", gutter, line)

	col := e.Column - 1
	if col < 0 {
		col = 0
	}
	if col > len(line) {
		col = len(line)
	}
	length := e.Length
	if length < 1 {
		length = 1
	}
	pad := strings.Repeat(" ", len(gutter)-2) + "| "
	// Keep tabs so the caret lines up under tab-indented source.
	var indent strings.Builder
	for _, r := range line[:col] {
		if r == '\t' {
			indent.WriteByte('\t')
		} else {
			indent.WriteByte(' ')
		}
	}
	fmt.Fprintf(w, "%s%s%s\n", pad, indent.String(), paint(ansiRed, strings.Repeat("^", length)))
}

func sourceLine(src []byte, n int) (string, bool) {
	if src == nil || n < 1 {
		return "", false
	}
	lines := strings.Split(string(src), "\n")
	if n > len(lines) {
		return "", false
	}
	return strings.TrimRight(lines[n-1], "\r"), true
}
