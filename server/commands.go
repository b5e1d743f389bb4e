package server

import (
	"errors"
	"fmt"
	"os"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"flint/script"
	"flint/session"
)

// Workspace commands. Editors drive the decode/edit/encode workflow through
// these instead of a bespoke protocol.
const (
	cmdScripts = "flint.scripts"
	cmdDecode  = "flint.decode"
	cmdSave    = "flint.save"
	cmdClose   = "flint.close"
)

var commandNames = []string{cmdScripts, cmdDecode, cmdSave, cmdClose}

func (s *LspServer) workspaceExecuteCommand(ctx *glsp.Context, params *protocol.ExecuteCommandParams) (any, error) {
	args, err := commandArgs(params.Arguments)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", params.Command, err)
	}

	switch params.Command {
	case cmdScripts:
		return s.cmdScripts(args)
	case cmdDecode:
		return s.cmdDecode(args)
	case cmdSave:
		return s.cmdSave(args)
	case cmdClose:
		return s.cmdClose(args)
	default:
		return nil, fmt.Errorf("unknown command: %s", params.Command)
	}
}

func commandArgs(raw []any) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	args, ok := raw[0].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected an arguments object, got %T", raw[0])
	}
	return args, nil
}

func stringArg(args map[string]any, name string) (string, error) {
	v, ok := args[name]
	if !ok {
		return "", fmt.Errorf("missing argument %q", name)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string, got %T", name, v)
	}
	return s, nil
}

// cmdScripts lists the script-bearing lines of an open document.
func (s *LspServer) cmdScripts(args map[string]any) (any, error) {
	uri, err := stringArg(args, "uri")
	if err != nil {
		return nil, err
	}

	doc, ok := s.docs.Get(uri)
	if !ok {
		return nil, fmt.Errorf("document not open: %s", uri)
	}

	open := map[string]string{}
	for _, sess := range s.sessions.ForDocument(uri) {
		open[sess.Key] = sess.ID
	}

	refs := script.Scan(doc.Lines(), s.keys)
	out := make([]map[string]any, 0, len(refs))
	for _, ref := range refs {
		entry := map[string]any{
			"key":  ref.Key,
			"line": ref.Line,
		}
		if id, ok := open[ref.Key]; ok {
			entry["sessionId"] = id
		}
		out = append(out, entry)
	}
	return out, nil
}

// cmdDecode opens (or reuses) an edit session for a script value.
func (s *LspServer) cmdDecode(args map[string]any) (any, error) {
	uri, err := stringArg(args, "uri")
	if err != nil {
		return nil, err
	}
	key, err := stringArg(args, "key")
	if err != nil {
		return nil, err
	}

	doc, ok := s.docs.Get(uri)
	if !ok {
		return nil, fmt.Errorf("document not open: %s", uri)
	}

	lineArg, ok := args["line"]
	var refs []script.Ref
	if ok {
		// JSON numbers arrive as float64
		lineNum, ok := lineArg.(float64)
		if !ok {
			return nil, fmt.Errorf("argument \"line\" must be a number, got %T", lineArg)
		}
		line, ok := doc.Line(int(lineNum))
		if !ok {
			return nil, fmt.Errorf("line %d out of range", int(lineNum))
		}
		refs = script.Scan([]string{line}, []string{key})
		for i := range refs {
			refs[i].Line = int(lineNum)
		}
	} else {
		for _, ref := range script.Scan(doc.Lines(), []string{key}) {
			refs = append(refs, ref)
		}
	}

	if len(refs) == 0 {
		return nil, fmt.Errorf("no script found for key %q in %s", key, uri)
	}

	sess, err := s.sessions.Open(uri, refs[0])
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"sessionId": sess.ID,
		"key":       sess.Key,
		"line":      sess.Line,
		"content":   sess.Decoded,
	}, nil
}

// cmdSave encodes the edited content back into its source line. For
// file-backed documents the updated text is also written to disk.
func (s *LspServer) cmdSave(args map[string]any) (any, error) {
	id, err := stringArg(args, "sessionId")
	if err != nil {
		return nil, err
	}
	content, err := stringArg(args, "content")
	if err != nil {
		return nil, err
	}

	if err := s.sessions.Save(id, content); err != nil {
		if errors.Is(err, session.ErrSourceUnavailable) {
			return nil, fmt.Errorf("source changed or closed, reopen the script: %w", err)
		}
		return nil, err
	}

	sess, ok := s.sessions.Get(id)
	if !ok {
		return nil, fmt.Errorf("save %s: %w", id, session.ErrUnknownSession)
	}

	doc, ok := s.docs.Get(sess.DocumentID)
	if !ok {
		return nil, fmt.Errorf("save %s: %w", id, session.ErrSourceUnavailable)
	}
	// Only documents that already exist on disk are persisted; buffers the
	// editor has not saved yet stay in memory.
	if path := doc.Path(); path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := os.WriteFile(path, []byte(doc.Text()), 0o644); err != nil {
				log.Warningf("could not write %s: %s", path, err.Error())
			}
		}
	}

	line, _ := doc.Line(sess.Line)
	return map[string]any{
		"sessionId": sess.ID,
		"line":      sess.Line,
		"text":      line,
	}, nil
}

// cmdClose abandons a session without touching the document.
func (s *LspServer) cmdClose(args map[string]any) (any, error) {
	id, err := stringArg(args, "sessionId")
	if err != nil {
		return nil, err
	}
	if _, ok := s.sessions.Get(id); !ok {
		return nil, fmt.Errorf("close %s: %w", id, session.ErrUnknownSession)
	}
	s.sessions.Close(id)
	return map[string]any{"closed": id}, nil
}
