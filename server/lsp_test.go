package server

import (
	"testing"
	"time"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"flint/apidb"
	"flint/project"
)

func newTestServer(t *testing.T) *LspServer {
	t.Helper()

	api, err := apidb.Load("8.1")
	if err != nil {
		t.Fatalf("loading API definitions: %v", err)
	}

	index := &project.Index{
		RootPath: "/proj",
		Scripts: []project.Location{
			{
				FilePath:     "/proj/script-library/site-library/utils/code.py",
				Key:          "__file__",
				Line:         1,
				ModulePath:   "site.library.utils",
				ResourceType: "script-library",
			},
			{
				FilePath:     "/proj/views/MainView/view.json",
				Key:          "onActionPerformed",
				Line:         5,
				ResourceType: "view",
				ContextName:  "Button_1",
			},
		},
		LastUpdated: time.Now(),
	}

	return NewLSP(Config{API: api, Index: index})
}

// ---------------------------------------------------------------------------
// Text extraction helpers
// ---------------------------------------------------------------------------

func TestExtractDottedPrefix_SimpleWord(t *testing.T) {
	text := "value = system"
	pos := protocol.Position{Line: 0, Character: 14}
	prefix := extractDottedPrefix(text, pos)
	if prefix != "system" {
		t.Errorf("extractDottedPrefix = %q, want %q", prefix, "system")
	}
}

func TestExtractDottedPrefix_DottedPath(t *testing.T) {
	text := "\tsystem.tag.readB"
	pos := protocol.Position{Line: 0, Character: 17}
	prefix := extractDottedPrefix(text, pos)
	if prefix != "system.tag.readB" {
		t.Errorf("extractDottedPrefix = %q, want %q", prefix, "system.tag.readB")
	}
}

func TestExtractDottedPrefix_AfterTriggerDot(t *testing.T) {
	text := "system.tag."
	pos := protocol.Position{Line: 0, Character: 11}
	prefix := extractDottedPrefix(text, pos)
	if prefix != "system.tag." {
		t.Errorf("extractDottedPrefix = %q, want %q", prefix, "system.tag.")
	}
}

func TestExtractDottedPrefix_MultiLine(t *testing.T) {
	text := "first line\nsecond line\nsite.lib"
	pos := protocol.Position{Line: 2, Character: 8}
	prefix := extractDottedPrefix(text, pos)
	if prefix != "site.lib" {
		t.Errorf("extractDottedPrefix = %q, want %q", prefix, "site.lib")
	}
}

func TestExtractDottedPrefix_CursorAtBeginning(t *testing.T) {
	text := "hello"
	pos := protocol.Position{Line: 0, Character: 0}
	prefix := extractDottedPrefix(text, pos)
	if prefix != "" {
		t.Errorf("extractDottedPrefix at position 0 = %q, want empty string", prefix)
	}
}

func TestExtractDottedPrefix_LineBeyondDocument(t *testing.T) {
	text := "single line"
	pos := protocol.Position{Line: 5, Character: 0}
	prefix := extractDottedPrefix(text, pos)
	if prefix != "" {
		t.Errorf("extractDottedPrefix beyond doc = %q, want empty string", prefix)
	}
}

func TestExtractDottedWord_MiddleOfPath(t *testing.T) {
	text := "result = system.tag.readBlocking(paths)"
	pos := protocol.Position{Line: 0, Character: 18}
	word := extractDottedWord(text, pos)
	if word != "system.tag.readBlocking" {
		t.Errorf("extractDottedWord = %q, want %q", word, "system.tag.readBlocking")
	}
}

func TestExtractDottedWord_SimpleWord(t *testing.T) {
	text := "hello world"
	pos := protocol.Position{Line: 0, Character: 3}
	word := extractDottedWord(text, pos)
	if word != "hello" {
		t.Errorf("extractDottedWord = %q, want %q", word, "hello")
	}
}

func TestExtractDottedWord_TrailingDotTrimmed(t *testing.T) {
	text := "system.tag."
	pos := protocol.Position{Line: 0, Character: 8}
	word := extractDottedWord(text, pos)
	if word != "system.tag" {
		t.Errorf("extractDottedWord = %q, want %q", word, "system.tag")
	}
}

func TestExtractDottedWord_EmptyLine(t *testing.T) {
	word := extractDottedWord("", protocol.Position{Line: 0, Character: 0})
	if word != "" {
		t.Errorf("extractDottedWord = %q, want empty string", word)
	}
}

func TestExtractDottedWord_LineBeyondDocument(t *testing.T) {
	word := extractDottedWord("single line", protocol.Position{Line: 5, Character: 0})
	if word != "" {
		t.Errorf("extractDottedWord beyond doc = %q, want empty string", word)
	}
}

func TestUriToPath(t *testing.T) {
	if got := uriToPath("file:///proj/view.json"); got != "/proj/view.json" {
		t.Errorf("uriToPath = %q, want %q", got, "/proj/view.json")
	}
	if got := uriToPath("/proj/view.json"); got != "/proj/view.json" {
		t.Errorf("uriToPath on bare path = %q, want %q", got, "/proj/view.json")
	}
}

func TestBoolPtr(t *testing.T) {
	p := boolPtr(true)
	if p == nil {
		t.Fatal("boolPtr should not return nil")
	}
	if !*p {
		t.Errorf("boolPtr(true) = %v, want true", *p)
	}
}

// ---------------------------------------------------------------------------
// Feature logic (complete, hover, definition, symbols)
// These test the internal methods directly.
// ---------------------------------------------------------------------------

func TestLSP_Complete_APIFunction(t *testing.T) {
	s := newTestServer(t)

	items := s.complete("system.tag.readB")
	if len(items) == 0 {
		t.Fatal("complete for 'system.tag.readB' should return at least one item")
	}

	found := false
	for _, item := range items {
		if item.Label == "system.tag.readBlocking" {
			found = true
			if item.Kind == nil || *item.Kind != protocol.CompletionItemKindFunction {
				t.Error("API completion should have Kind=Function")
			}
			if item.InsertTextFormat == nil || *item.InsertTextFormat != protocol.InsertTextFormatSnippet {
				t.Error("API completion should use snippet insert format")
			}
		}
	}
	if !found {
		t.Error("complete for 'system.tag.readB' should include 'system.tag.readBlocking'")
	}
}

func TestLSP_Complete_ModulePath(t *testing.T) {
	s := newTestServer(t)

	items := s.complete("site.lib")
	found := false
	for _, item := range items {
		if item.Label == "site.library.utils" {
			found = true
			if item.Kind == nil || *item.Kind != protocol.CompletionItemKindModule {
				t.Error("module path completion should have Kind=Module")
			}
		}
	}
	if !found {
		t.Error("complete for 'site.lib' should include 'site.library.utils'")
	}
}

func TestLSP_Complete_NoMatch(t *testing.T) {
	s := newTestServer(t)

	items := s.complete("zzz.nothing.here")
	if len(items) != 0 {
		t.Errorf("complete for unknown prefix should return nothing, got %d items", len(items))
	}
}

func TestLSP_Hover_APIFunction(t *testing.T) {
	s := newTestServer(t)

	hover := s.hover("system.tag.readBlocking")
	if hover == nil {
		t.Fatal("hover for 'system.tag.readBlocking' should return a result")
	}
	mc, ok := hover.Contents.(protocol.MarkupContent)
	if !ok {
		t.Fatal("hover contents should be MarkupContent")
	}
	if mc.Kind != protocol.MarkupKindMarkdown {
		t.Errorf("hover markup kind = %q, want %q", mc.Kind, protocol.MarkupKindMarkdown)
	}
	if mc.Value == "" {
		t.Error("hover content should not be empty")
	}
}

func TestLSP_Hover_UnknownWord(t *testing.T) {
	s := newTestServer(t)

	if hover := s.hover("no.such.function99"); hover != nil {
		t.Error("hover for unknown word should return nil")
	}
}

func TestLSP_Definition_ModulePath(t *testing.T) {
	s := newTestServer(t)

	locations := s.definition("site.library.utils")
	if len(locations) != 1 {
		t.Fatalf("definition should return 1 location, got %d", len(locations))
	}
	want := "file:///proj/script-library/site-library/utils/code.py"
	if string(locations[0].URI) != want {
		t.Errorf("definition URI = %q, want %q", locations[0].URI, want)
	}
	if locations[0].Range.Start.Line != 0 {
		t.Errorf("definition line = %d, want 0", locations[0].Range.Start.Line)
	}
}

func TestLSP_Definition_Unknown(t *testing.T) {
	s := newTestServer(t)

	if locations := s.definition("no.such.module"); locations != nil {
		t.Errorf("definition for unknown module should return nil, got %d locations", len(locations))
	}
}

func TestLSP_Definition_NoIndex(t *testing.T) {
	api, err := apidb.Load("8.1")
	if err != nil {
		t.Fatalf("loading API definitions: %v", err)
	}
	s := NewLSP(Config{API: api})

	if locations := s.definition("site.library.utils"); locations != nil {
		t.Error("definition without an index should return nil")
	}
}

func TestLSP_Symbols_All(t *testing.T) {
	s := newTestServer(t)

	symbols := s.symbols("")
	if len(symbols) != 2 {
		t.Fatalf("symbols(\"\") should return 2 entries, got %d", len(symbols))
	}
}

func TestLSP_Symbols_Query(t *testing.T) {
	s := newTestServer(t)

	symbols := s.symbols("button")
	if len(symbols) != 1 {
		t.Fatalf("symbols(\"button\") should return 1 entry, got %d", len(symbols))
	}
	if symbols[0].Name != "Button_1.onActionPerformed" {
		t.Errorf("symbol name = %q, want %q", symbols[0].Name, "Button_1.onActionPerformed")
	}
}

func TestSymbolName(t *testing.T) {
	lib := project.Location{ModulePath: "site.library.utils", Key: "__file__"}
	if got := symbolName(lib); got != "site.library.utils" {
		t.Errorf("symbolName(library) = %q, want %q", got, "site.library.utils")
	}

	view := project.Location{Key: "onChange", ContextName: "Slider_3"}
	if got := symbolName(view); got != "Slider_3.onChange" {
		t.Errorf("symbolName(view) = %q, want %q", got, "Slider_3.onChange")
	}

	bare := project.Location{Key: "transform"}
	if got := symbolName(bare); got != "transform" {
		t.Errorf("symbolName(bare) = %q, want %q", got, "transform")
	}
}

// ---------------------------------------------------------------------------
// Document synchronization state
// ---------------------------------------------------------------------------

func TestLSP_DocumentLifecycle(t *testing.T) {
	s := newTestServer(t)

	s.docs.Open("file:///test.json", "{\"script\": \"x\"}")
	doc, ok := s.docs.Get("file:///test.json")
	if !ok {
		t.Fatal("document should be stored after open")
	}
	if doc.Text() != "{\"script\": \"x\"}" {
		t.Errorf("document text = %q, want %q", doc.Text(), "{\"script\": \"x\"}")
	}

	s.docs.Close("file:///test.json")
	if _, ok := s.docs.Get("file:///test.json"); ok {
		t.Error("document should be removed after close")
	}
}
