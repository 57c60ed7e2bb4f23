// Package server implements the Argon language server.
package server

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"github.com/Open-Argon/Chloride-sub000/compiler"
	"github.com/Open-Argon/Chloride-sub000/pkg/arerr"
	"github.com/Open-Argon/Chloride-sub000/pkg/bytecode"
	"github.com/Open-Argon/Chloride-sub000/vm"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "argon-lsp"

// LspServer publishes compile diagnostics for open Argon documents and
// answers completion, hover and navigation requests from their tokens
// and the interpreter's global scope.
type LspServer struct {
	it  *vm.Interpreter
	log commonlog.Logger

	mu   sync.Mutex
	docs map[string]string // URI → full document content

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// NewLSP creates a new LSP server. Builtin names come from it.
func NewLSP(it *vm.Interpreter, version string) *LspServer {
	s := &LspServer{
		it:      it,
		log:     commonlog.GetLogger("argon.lsp"),
		docs:    make(map[string]string),
		version: version,
	}

	s.handler = protocol.Handler{
		Initialize:  s.initialize,
		Initialized: s.initialized,
		Shutdown:    s.shutdown,
		SetTrace:    s.setTrace,

		TextDocumentDidOpen:   s.textDocumentDidOpen,
		TextDocumentDidChange: s.textDocumentDidChange,
		TextDocumentDidClose:  s.textDocumentDidClose,

		TextDocumentCompletion: s.textDocumentCompletion,
		TextDocumentHover:      s.textDocumentHover,
		TextDocumentDefinition: s.textDocumentDefinition,
		TextDocumentReferences: s.textDocumentReferences,
	}

	s.server = glspserver.NewServer(&s.handler, lspName, false)
	return s
}

// Run starts the LSP server on stdio. Blocks until the client disconnects.
func (s *LspServer) Run() error {
	return s.server.RunStdio()
}

// --- LSP lifecycle handlers ---

func (s *LspServer) initialize(ctx *glsp.Context, params *protocol.InitializeParams) (any, error) {
	s.log.Info("argon LSP initializing")

	capabilities := s.handler.CreateServerCapabilities()

	syncKind := protocol.TextDocumentSyncKindFull
	capabilities.TextDocumentSync = &protocol.TextDocumentSyncOptions{
		OpenClose: boolPtr(true),
		Change:    &syncKind,
	}
	capabilities.CompletionProvider = &protocol.CompletionOptions{
		TriggerCharacters: []string{"."},
	}
	capabilities.HoverProvider = true
	capabilities.DefinitionProvider = true
	capabilities.ReferencesProvider = true

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	uri := params.TextDocument.URI
	s.setDoc(uri, params.TextDocument.Text)
	s.publishDiagnostics(ctx, uri, params.TextDocument.Text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := params.TextDocument.URI

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.setDoc(uri, whole.Text)
			s.publishDiagnostics(ctx, uri, whole.Text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := params.TextDocument.URI

	s.mu.Lock()
	delete(s.docs, string(uri))
	s.mu.Unlock()

	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: []protocol.Diagnostic{},
	})
	return nil
}

func (s *LspServer) setDoc(uri protocol.DocumentUri, text string) {
	s.mu.Lock()
	s.docs[string(uri)] = text
	s.mu.Unlock()
}

func (s *LspServer) doc(uri protocol.DocumentUri) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.docs[string(uri)]
	return text, ok
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	text, ok := s.doc(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	prefix := extractPrefix(text, params.Position)
	if prefix == "" {
		return nil, nil
	}
	return s.complete(text, prefix), nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	text, ok := s.doc(params.TextDocument.URI)
	if !ok {
		return nil, nil
	}
	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}
	return s.hover(text, word), nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	uri := params.TextDocument.URI
	text, ok := s.doc(uri)
	if !ok {
		return nil, nil
	}
	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}
	return definition(uri, text, word), nil
}

func (s *LspServer) textDocumentReferences(ctx *glsp.Context, params *protocol.ReferenceParams) ([]protocol.Location, error) {
	uri := params.TextDocument.URI
	text, ok := s.doc(uri)
	if !ok {
		return nil, nil
	}
	word := extractWord(text, params.Position)
	if word == "" {
		return nil, nil
	}
	return references(uri, text, word), nil
}

// complete returns keywords, globals and names used in text that start with prefix.
func (s *LspServer) complete(text, prefix string) []protocol.CompletionItem {
	seen := make(map[string]bool)
	var items []protocol.CompletionItem
	add := func(label string, kind protocol.CompletionItemKind, detail string) {
		if seen[label] || !strings.HasPrefix(label, prefix) || label == prefix {
			return
		}
		seen[label] = true
		items = append(items, protocol.CompletionItem{
			Label:  label,
			Kind:   &kind,
			Detail: &detail,
		})
	}

	for _, kw := range compiler.Keywords() {
		add(kw, protocol.CompletionItemKindKeyword, "keyword")
	}
	for _, e := range s.it.Global.Store.Entries() {
		kind := protocol.CompletionItemKindVariable
		switch v := e.Value.(type) {
		case *vm.Object:
			if v.Kind == vm.KindClass {
				kind = protocol.CompletionItemKindClass
			}
		case *vm.NativeFunction, *vm.Function:
			kind = protocol.CompletionItemKindFunction
		}
		add(e.Key, kind, "builtin "+e.Value.TypeName())
	}
	for _, tok := range compiler.Tokenize(text) {
		if tok.Type == compiler.TokenIdentifier {
			add(tok.Literal, protocol.CompletionItemKindVariable, "")
		}
	}

	sort.Slice(items, func(i, j int) bool { return items[i].Label < items[j].Label })
	return items
}

// hover describes word as a keyword, a builtin, or by its declaring line in text.
func (s *LspServer) hover(text, word string) *protocol.Hover {
	var value string
	switch {
	case isKeyword(word):
		value = fmt.Sprintf("**%s** keyword", word)
	default:
		if v, ok := s.it.Global.Lookup(bytecode.HashName(word)); ok {
			value = fmt.Sprintf("**%s**: builtin %s", word, v.TypeName())
			if cls, ok := v.(*vm.Object); ok && cls.Kind == vm.KindClass {
				if base := cls.Base(); base != nil {
					value += fmt.Sprintf(", inherits from %s", base.Name())
				}
			}
			break
		}
		tok, ok := declaringToken(text, word)
		if !ok {
			return nil
		}
		line := strings.TrimSpace(strings.Split(text, "\n")[tok.Pos.Line-1])
		value = fmt.Sprintf("```argon\n%s\n```\n\ndeclared on line %d", line, tok.Pos.Line)
	}
	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: value,
		},
	}
}

// definition returns where word is declared in text by `let`, `class` or `for`.
func definition(uri protocol.DocumentUri, text, word string) []protocol.Location {
	tok, ok := declaringToken(text, word)
	if !ok {
		return nil
	}
	return []protocol.Location{{URI: uri, Range: tokenRange(tok)}}
}

// references returns every use of the identifier word in text.
func references(uri protocol.DocumentUri, text, word string) []protocol.Location {
	var locations []protocol.Location
	for _, tok := range compiler.Tokenize(text) {
		if tok.Type == compiler.TokenIdentifier && tok.Literal == word {
			locations = append(locations, protocol.Location{URI: uri, Range: tokenRange(tok)})
		}
	}
	return locations
}

func declaringToken(text, word string) (compiler.Token, bool) {
	toks := compiler.Tokenize(text)
	for i := 1; i < len(toks); i++ {
		tok := toks[i]
		if tok.Type != compiler.TokenIdentifier || tok.Literal != word {
			continue
		}
		switch toks[i-1].Type {
		case compiler.TokenLet, compiler.TokenClass, compiler.TokenFor:
			return tok, true
		}
	}
	return compiler.Token{}, false
}

func isKeyword(word string) bool {
	for _, kw := range compiler.Keywords() {
		if kw == word {
			return true
		}
	}
	return false
}

// --- Diagnostics ---

func (s *LspServer) publishDiagnostics(ctx *glsp.Context, uri protocol.DocumentUri, text string) {
	diagnostics := diagnose(uri, text)
	if len(diagnostics) > 0 {
		s.log.Debugf("%s: %s", uri, diagnostics[0].Message)
	}
	go ctx.Notify(protocol.ServerTextDocumentPublishDiagnostics, protocol.PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: diagnostics,
	})
}

// diagnose compiles text and reports the first error, if any.
func diagnose(uri protocol.DocumentUri, text string) []protocol.Diagnostic {
	_, err := compiler.Compile(uriPath(uri), []byte(text))
	if err == nil {
		return []protocol.Diagnostic{}
	}

	severity := protocol.DiagnosticSeverityError
	source := lspName
	d := protocol.Diagnostic{
		Severity: &severity,
		Source:   &source,
		Message:  err.Error(),
	}
	if e, ok := arerr.As(err); ok {
		d.Message = fmt.Sprintf("%s: %s", e.Kind, e.Message)
		if e.HasLocation() {
			length := e.Length
			if length < 1 {
				length = 1
			}
			start := protocol.Position{Line: protocol.UInteger(e.Line - 1), Character: protocol.UInteger(e.Column - 1)}
			end := start
			end.Character += protocol.UInteger(length)
			d.Range = protocol.Range{Start: start, End: end}
		}
	}
	return []protocol.Diagnostic{d}
}

func tokenRange(tok compiler.Token) protocol.Range {
	start := protocol.Position{
		Line:      protocol.UInteger(tok.Pos.Line - 1),
		Character: protocol.UInteger(tok.Pos.Column - 1),
	}
	end := start
	end.Character += protocol.UInteger(utf8.RuneCountInString(tok.Literal))
	return protocol.Range{Start: start, End: end}
}

func uriPath(uri protocol.DocumentUri) string {
	u, err := url.Parse(string(uri))
	if err != nil || u.Scheme != "file" {
		return string(uri)
	}
	return u.Path
}

// --- Text extraction helpers ---

func isIdentRune(ch rune) bool {
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_'
}

func lineAt(text string, pos protocol.Position) (string, int, bool) {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return "", 0, false
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}
	return line, col, true
}

// extractPrefix returns the identifier fragment before the cursor for completion.
func extractPrefix(text string, pos protocol.Position) string {
	line, col, ok := lineAt(text, pos)
	if !ok {
		return ""
	}
	start := col
	for start > 0 && isIdentRune(rune(line[start-1])) {
		start--
	}
	return line[start:col]
}

// extractWord returns the full identifier under the cursor.
func extractWord(text string, pos protocol.Position) string {
	line, col, ok := lineAt(text, pos)
	if !ok {
		return ""
	}
	start := col
	for start > 0 && isIdentRune(rune(line[start-1])) {
		start--
	}
	end := col
	for end < len(line) && isIdentRune(rune(line[end])) {
		end++
	}
	return line[start:end]
}

func boolPtr(b bool) *bool {
	return &b
}
