package server

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"flint/session"
)

const viewJSON = `{
  "meta": {"name": "Button_1"},
  "events": {
    "onActionPerformed": {
      "script": "\tif x \u003c 10:\n\t\tprint(\"low\")"
    }
  }
}`

func execCommand(t *testing.T, s *LspServer, command string, args map[string]any) any {
	t.Helper()
	result, err := s.workspaceExecuteCommand(nil, &protocol.ExecuteCommandParams{
		Command:   command,
		Arguments: []any{args},
	})
	if err != nil {
		t.Fatalf("%s returned error: %v", command, err)
	}
	return result
}

func TestCommand_Scripts(t *testing.T) {
	s := newTestServer(t)
	s.docs.Open("file:///view.json", viewJSON)

	result := execCommand(t, s, cmdScripts, map[string]any{"uri": "file:///view.json"})
	refs, ok := result.([]map[string]any)
	if !ok {
		t.Fatalf("scripts result type = %T, want []map[string]any", result)
	}
	if len(refs) != 1 {
		t.Fatalf("scripts should find 1 entry, got %d", len(refs))
	}
	if refs[0]["key"] != "script" {
		t.Errorf("key = %v, want %q", refs[0]["key"], "script")
	}
	if refs[0]["line"] != 5 {
		t.Errorf("line = %v, want 5", refs[0]["line"])
	}
}

func TestCommand_Scripts_MarksOpenSessions(t *testing.T) {
	s := newTestServer(t)
	s.docs.Open("file:///view.json", viewJSON)

	decoded := execCommand(t, s, cmdDecode, map[string]any{
		"uri": "file:///view.json",
		"key": "script",
	}).(map[string]any)

	refs := execCommand(t, s, cmdScripts, map[string]any{"uri": "file:///view.json"}).([]map[string]any)
	if len(refs) != 1 {
		t.Fatalf("scripts should find 1 entry, got %d", len(refs))
	}
	if refs[0]["sessionId"] != decoded["sessionId"] {
		t.Errorf("scripts sessionId = %v, want %v", refs[0]["sessionId"], decoded["sessionId"])
	}
}

func TestCommand_Scripts_DocumentNotOpen(t *testing.T) {
	s := newTestServer(t)

	_, err := s.workspaceExecuteCommand(nil, &protocol.ExecuteCommandParams{
		Command:   cmdScripts,
		Arguments: []any{map[string]any{"uri": "file:///nope.json"}},
	})
	if err == nil {
		t.Fatal("scripts on an unopened document should fail")
	}
}

func TestCommand_Decode(t *testing.T) {
	s := newTestServer(t)
	s.docs.Open("file:///view.json", viewJSON)

	result := execCommand(t, s, cmdDecode, map[string]any{
		"uri": "file:///view.json",
		"key": "script",
	})
	out := result.(map[string]any)

	want := "\tif x < 10:\n\t\tprint(\"low\")"
	if out["content"] != want {
		t.Errorf("decoded content = %q, want %q", out["content"], want)
	}
	if out["line"] != 5 {
		t.Errorf("line = %v, want 5", out["line"])
	}
	id, _ := out["sessionId"].(string)
	if !strings.HasPrefix(id, "s-") {
		t.Errorf("sessionId = %q, want s- prefix", id)
	}
}

func TestCommand_Decode_WithExplicitLine(t *testing.T) {
	s := newTestServer(t)
	s.docs.Open("file:///view.json", viewJSON)

	result := execCommand(t, s, cmdDecode, map[string]any{
		"uri":  "file:///view.json",
		"key":  "script",
		"line": float64(5),
	})
	out := result.(map[string]any)
	if out["line"] != 5 {
		t.Errorf("line = %v, want 5", out["line"])
	}
}

func TestCommand_Decode_MissingKey(t *testing.T) {
	s := newTestServer(t)
	s.docs.Open("file:///view.json", viewJSON)

	_, err := s.workspaceExecuteCommand(nil, &protocol.ExecuteCommandParams{
		Command:   cmdDecode,
		Arguments: []any{map[string]any{"uri": "file:///view.json", "key": "onChange"}},
	})
	if err == nil {
		t.Fatal("decode for an absent key should fail")
	}
}

func TestCommand_SaveRoundTrip(t *testing.T) {
	s := newTestServer(t)
	s.docs.Open("file:///view.json", viewJSON)

	decoded := execCommand(t, s, cmdDecode, map[string]any{
		"uri": "file:///view.json",
		"key": "script",
	}).(map[string]any)
	id := decoded["sessionId"].(string)

	saved := execCommand(t, s, cmdSave, map[string]any{
		"sessionId": id,
		"content":   "x = 1 < 2",
	}).(map[string]any)

	text, _ := saved["text"].(string)
	if !strings.Contains(text, `"script": "x \u003d 1 \u003c 2"`) {
		t.Errorf("saved line = %q, want encoded assignment", text)
	}

	// A second decode on the same target reuses the session and sees the
	// new content.
	again := execCommand(t, s, cmdDecode, map[string]any{
		"uri": "file:///view.json",
		"key": "script",
	}).(map[string]any)
	if again["sessionId"] != id {
		t.Errorf("second decode sessionId = %v, want %v", again["sessionId"], id)
	}
	if again["content"] != "x = 1 < 2" {
		t.Errorf("content after save = %q, want %q", again["content"], "x = 1 < 2")
	}
}

func TestCommand_Save_WritesFileBackedDocument(t *testing.T) {
	s := newTestServer(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "view.json")
	if err := os.WriteFile(path, []byte(viewJSON), 0o644); err != nil {
		t.Fatal(err)
	}

	uri := "file://" + path
	s.docs.Open(uri, viewJSON)

	decoded := execCommand(t, s, cmdDecode, map[string]any{"uri": uri, "key": "script"}).(map[string]any)
	execCommand(t, s, cmdSave, map[string]any{
		"sessionId": decoded["sessionId"],
		"content":   "pass",
	})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"script": "pass"`) {
		t.Errorf("file content = %q, want saved script", string(data))
	}
}

func TestCommand_Save_SourceGone(t *testing.T) {
	s := newTestServer(t)
	s.docs.Open("file:///view.json", viewJSON)

	decoded := execCommand(t, s, cmdDecode, map[string]any{
		"uri": "file:///view.json",
		"key": "script",
	}).(map[string]any)

	s.docs.Close("file:///view.json")

	_, err := s.workspaceExecuteCommand(nil, &protocol.ExecuteCommandParams{
		Command: cmdSave,
		Arguments: []any{map[string]any{
			"sessionId": decoded["sessionId"],
			"content":   "pass",
		}},
	})
	if !errors.Is(err, session.ErrSourceUnavailable) {
		t.Errorf("save after close = %v, want ErrSourceUnavailable", err)
	}
}

func TestCommand_Close(t *testing.T) {
	s := newTestServer(t)
	s.docs.Open("file:///view.json", viewJSON)

	decoded := execCommand(t, s, cmdDecode, map[string]any{
		"uri": "file:///view.json",
		"key": "script",
	}).(map[string]any)
	id := decoded["sessionId"].(string)

	execCommand(t, s, cmdClose, map[string]any{"sessionId": id})

	if s.sessions.Count() != 0 {
		t.Errorf("session count after close = %d, want 0", s.sessions.Count())
	}

	// The document is untouched.
	doc, _ := s.docs.Get("file:///view.json")
	if doc.Text() != viewJSON {
		t.Error("close should not modify the document")
	}
}

func TestCommand_Close_Unknown(t *testing.T) {
	s := newTestServer(t)

	_, err := s.workspaceExecuteCommand(nil, &protocol.ExecuteCommandParams{
		Command:   cmdClose,
		Arguments: []any{map[string]any{"sessionId": "s-999"}},
	})
	if !errors.Is(err, session.ErrUnknownSession) {
		t.Errorf("close of unknown session = %v, want ErrUnknownSession", err)
	}
}

func TestCommand_Unknown(t *testing.T) {
	s := newTestServer(t)

	_, err := s.workspaceExecuteCommand(nil, &protocol.ExecuteCommandParams{
		Command: "flint.bogus",
	})
	if err == nil {
		t.Fatal("unknown command should fail")
	}
}

func TestCommandArgs_Malformed(t *testing.T) {
	_, err := commandArgs([]any{"not an object"})
	if err == nil {
		t.Fatal("non-object arguments should fail")
	}
}

func TestStringArg(t *testing.T) {
	args := map[string]any{"uri": "file:///x", "line": float64(3)}

	if v, err := stringArg(args, "uri"); err != nil || v != "file:///x" {
		t.Errorf("stringArg(uri) = %q, %v", v, err)
	}
	if _, err := stringArg(args, "missing"); err == nil {
		t.Error("missing argument should fail")
	}
	if _, err := stringArg(args, "line"); err == nil {
		t.Error("non-string argument should fail")
	}
}
