// Package server bridges the script engine to editors over the Language
// Server Protocol. It hosts document synchronization, completion, hover,
// definition and workspace symbols, and exposes the decode/edit/encode
// workflow through workspace commands.
package server

import (
	"fmt"
	"strings"
	"sync"

	"github.com/tliron/commonlog"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"flint/apidb"
	"flint/document"
	"flint/project"
	"flint/session"

	_ "github.com/tliron/commonlog/simple"
)

const lspName = "flint-lsp"

var log = commonlog.GetLogger("flint.server")

// LspServer serves editor features for Flint project documents.
type LspServer struct {
	docs     *document.Store
	sessions *session.Registry
	api      *apidb.DB
	keys     []string

	mu        sync.Mutex
	index     *project.Index
	rootPath  string
	cachePath string

	handler protocol.Handler
	server  *glspserver.Server
	version string
}

// Config carries the pieces the LSP server is assembled from.
type Config struct {
	API       *apidb.DB
	Keys      []string // script-key allow-list; nil means the default list
	Index     *project.Index
	CachePath string // where to persist the project index, "" to skip
	Version   string
}

// NewLSP creates an LSP server.
func NewLSP(cfg Config) *LspServer {
	docs := document.NewStore()
	s := &LspServer{
		docs:      docs,
		sessions:  session.NewRegistry(docs),
		api:       cfg.API,
		keys:      cfg.Keys,
		index:     cfg.Index,
		cachePath: cfg.CachePath,
		version:   cfg.Version,
	}
	if s.version == "" {
		s.version = "0.1.0"
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

		WorkspaceSymbol:         s.workspaceSymbol,
		WorkspaceExecuteCommand: s.workspaceExecuteCommand,
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
	log.Infof("initializing %s %s", lspName, s.version)

	if params.RootURI != nil {
		s.rootPath = uriToPath(string(*params.RootURI))
	} else if params.RootPath != nil {
		s.rootPath = *params.RootPath
	}

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
	capabilities.WorkspaceSymbolProvider = true
	capabilities.ExecuteCommandProvider = &protocol.ExecuteCommandOptions{
		Commands: commandNames,
	}

	return protocol.InitializeResult{
		Capabilities: capabilities,
		ServerInfo: &protocol.InitializeResultServerInfo{
			Name:    lspName,
			Version: &s.version,
		},
	}, nil
}

func (s *LspServer) initialized(ctx *glsp.Context, params *protocol.InitializedParams) error {
	if s.rootPath == "" {
		return nil
	}

	// A cached index from a previous run answers requests immediately; the
	// fresh scan replaces it when it completes.
	if s.indexSnapshot() == nil && s.cachePath != "" {
		if cached, ok := project.LoadCache(s.cachePath); ok && cached.RootPath == s.rootPath {
			s.setIndex(cached)
			log.Infof("loaded cached index: %d scripts", cached.ScriptCount())
		}
	}

	scanner := project.NewScanner(s.rootPath, s.keys)
	if !scanner.IsProject() {
		log.Infof("%s is not a Flint project, indexing skipped", s.rootPath)
		return nil
	}

	go func() {
		index := scanner.Scan()
		s.setIndex(index)
		if s.cachePath != "" {
			if err := project.SaveCache(index, s.cachePath); err != nil {
				log.Warningf("could not persist index cache: %s", err.Error())
			}
		}
	}()
	return nil
}

func (s *LspServer) shutdown(ctx *glsp.Context) error {
	return nil
}

func (s *LspServer) setTrace(ctx *glsp.Context, params *protocol.SetTraceParams) error {
	return nil
}

func (s *LspServer) indexSnapshot() *project.Index {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

func (s *LspServer) setIndex(index *project.Index) {
	s.mu.Lock()
	s.index = index
	s.mu.Unlock()
}

// --- Document synchronization ---

func (s *LspServer) textDocumentDidOpen(ctx *glsp.Context, params *protocol.DidOpenTextDocumentParams) error {
	s.docs.Open(string(params.TextDocument.URI), params.TextDocument.Text)
	return nil
}

func (s *LspServer) textDocumentDidChange(ctx *glsp.Context, params *protocol.DidChangeTextDocumentParams) error {
	uri := string(params.TextDocument.URI)

	// With Full sync, the last change event contains the full text
	if len(params.ContentChanges) > 0 {
		last := params.ContentChanges[len(params.ContentChanges)-1]
		if whole, ok := last.(protocol.TextDocumentContentChangeEventWhole); ok {
			s.docs.Update(uri, whole.Text)
		}
	}
	return nil
}

func (s *LspServer) textDocumentDidClose(ctx *glsp.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := string(params.TextDocument.URI)
	s.sessions.CloseDocument(uri)
	s.docs.Close(uri)
	return nil
}

// --- Language features ---

func (s *LspServer) textDocumentCompletion(ctx *glsp.Context, params *protocol.CompletionParams) (any, error) {
	doc, ok := s.docs.Get(string(params.TextDocument.URI))
	if !ok {
		return nil, nil
	}

	prefix := extractDottedPrefix(doc.Text(), params.Position)
	if prefix == "" {
		return nil, nil
	}

	return s.complete(prefix), nil
}

func (s *LspServer) textDocumentHover(ctx *glsp.Context, params *protocol.HoverParams) (*protocol.Hover, error) {
	doc, ok := s.docs.Get(string(params.TextDocument.URI))
	if !ok {
		return nil, nil
	}

	word := extractDottedWord(doc.Text(), params.Position)
	if word == "" {
		return nil, nil
	}

	return s.hover(word), nil
}

func (s *LspServer) textDocumentDefinition(ctx *glsp.Context, params *protocol.DefinitionParams) (any, error) {
	doc, ok := s.docs.Get(string(params.TextDocument.URI))
	if !ok {
		return nil, nil
	}

	word := extractDottedWord(doc.Text(), params.Position)
	if word == "" {
		return nil, nil
	}

	locations := s.definition(word)
	if locations == nil {
		return nil, nil
	}
	return locations, nil
}

func (s *LspServer) workspaceSymbol(ctx *glsp.Context, params *protocol.WorkspaceSymbolParams) ([]protocol.SymbolInformation, error) {
	return s.symbols(params.Query), nil
}

// --- Feature logic ---

const maxCompletionItems = 100

func (s *LspServer) complete(prefix string) []protocol.CompletionItem {
	var items []protocol.CompletionItem

	// API functions
	if s.api != nil {
		for _, fn := range s.api.Complete(prefix) {
			kind := protocol.CompletionItemKindFunction
			detail := fn.Signature
			snippet := fn.CompletionSnippet()
			format := protocol.InsertTextFormatSnippet
			item := protocol.CompletionItem{
				Label:            fn.FullName,
				Kind:             &kind,
				Detail:           &detail,
				InsertText:       &snippet,
				InsertTextFormat: &format,
			}
			if fn.Description != "" {
				item.Documentation = fn.Description
			}
			items = append(items, item)
		}
	}

	// Project module paths
	if index := s.indexSnapshot(); index != nil {
		seen := map[string]bool{}
		for _, loc := range index.SearchModulePaths(prefix) {
			if loc.ModulePath == "" || seen[loc.ModulePath] {
				continue
			}
			seen[loc.ModulePath] = true
			kind := protocol.CompletionItemKindModule
			detail := loc.ResourceType
			path := loc.ModulePath
			items = append(items, protocol.CompletionItem{
				Label:      path,
				Kind:       &kind,
				Detail:     &detail,
				InsertText: &path,
			})
		}
	}

	if len(items) > maxCompletionItems {
		items = items[:maxCompletionItems]
	}
	return items
}

func (s *LspServer) hover(word string) *protocol.Hover {
	if s.api == nil {
		return nil
	}
	fn, ok := s.api.Lookup(word)
	if !ok {
		return nil
	}

	return &protocol.Hover{
		Contents: protocol.MarkupContent{
			Kind:  protocol.MarkupKindMarkdown,
			Value: fn.MarkdownDoc(),
		},
	}
}

func (s *LspServer) definition(word string) []protocol.Location {
	index := s.indexSnapshot()
	if index == nil {
		return nil
	}
	loc, ok := index.FindModulePath(word)
	if !ok {
		return nil
	}

	line := protocol.UInteger(loc.Line - 1)
	return []protocol.Location{{
		URI: protocol.DocumentUri("file://" + loc.FilePath),
		Range: protocol.Range{
			Start: protocol.Position{Line: line, Character: 0},
			End:   protocol.Position{Line: line, Character: 0},
		},
	}}
}

func (s *LspServer) symbols(query string) []protocol.SymbolInformation {
	index := s.indexSnapshot()
	if index == nil {
		return nil
	}

	lowerQuery := strings.ToLower(query)
	var out []protocol.SymbolInformation
	for _, loc := range index.Scripts {
		name := symbolName(loc)
		if lowerQuery != "" && !strings.Contains(strings.ToLower(name), lowerQuery) {
			continue
		}
		line := protocol.UInteger(loc.Line - 1)
		container := loc.ResourceType
		out = append(out, protocol.SymbolInformation{
			Name:          name,
			Kind:          protocol.SymbolKindFunction,
			ContainerName: &container,
			Location: protocol.Location{
				URI: protocol.DocumentUri("file://" + loc.FilePath),
				Range: protocol.Range{
					Start: protocol.Position{Line: line, Character: 0},
					End:   protocol.Position{Line: line, Character: 0},
				},
			},
		})
	}
	return out
}

// symbolName renders an index entry for symbol search: the module path for
// library files, otherwise context and key.
func symbolName(loc project.Location) string {
	if loc.ModulePath != "" && loc.ContextName == "" {
		return loc.ModulePath
	}
	if loc.ContextName != "" {
		return fmt.Sprintf("%s.%s", loc.ContextName, loc.Key)
	}
	return loc.Key
}

// --- Text extraction helpers ---

func isIdentChar(ch byte) bool {
	return ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch >= '0' && ch <= '9' || ch == '_'
}

// extractDottedPrefix returns the dotted identifier fragment before the
// cursor, for completion. Dots are part of the fragment, so a cursor after
// "system.ta" yields the whole thing.
func extractDottedPrefix(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	start := col
	for start > 0 && (isIdentChar(line[start-1]) || line[start-1] == '.') {
		start--
	}

	if start == col {
		return ""
	}
	return line[start:col]
}

// extractDottedWord returns the full dotted identifier under the cursor.
func extractDottedWord(text string, pos protocol.Position) string {
	lines := strings.Split(text, "\n")
	if int(pos.Line) >= len(lines) {
		return ""
	}
	line := lines[pos.Line]
	col := int(pos.Character)
	if col > len(line) {
		col = len(line)
	}

	start := col
	for start > 0 && (isIdentChar(line[start-1]) || line[start-1] == '.') {
		start--
	}
	end := col
	for end < len(line) && (isIdentChar(line[end]) || line[end] == '.') {
		end++
	}

	if start == end {
		return ""
	}
	return strings.Trim(line[start:end], ".")
}

func uriToPath(uri string) string {
	return strings.TrimPrefix(uri, "file://")
}

func boolPtr(b bool) *bool {
	return &b
}
