// Package document is the line-oriented text-buffer layer shared by the
// session registry and the LSP server. Documents are keyed by URI and held
// whole in memory; the store never touches disk on its own.
package document

import (
	"os"
	"strings"
	"sync"
)

// Document is one open text buffer, split into lines. The line split
// preserves content exactly: Text reassembles the original byte-for-byte.
type Document struct {
	URI     string
	Version int

	mu    sync.Mutex
	lines []string
	valid bool
}

// Lines returns a copy of the document's lines.
func (d *Document) Lines() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.lines))
	copy(out, d.lines)
	return out
}

// Line returns the 1-based line n. It reports false when the document has
// been invalidated or n is out of range.
func (d *Document) Line(n int) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.valid || n < 1 || n > len(d.lines) {
		return "", false
	}
	return d.lines[n-1], true
}

// SetLine replaces the 1-based line n. It reports false under the same
// conditions Line does; this is the only write path into a document.
func (d *Document) SetLine(n int, text string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.valid || n < 1 || n > len(d.lines) {
		return false
	}
	d.lines[n-1] = text
	d.Version++
	return true
}

// LineCount returns the number of lines.
func (d *Document) LineCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.lines)
}

// Text reassembles the full document text.
func (d *Document) Text() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return strings.Join(d.lines, "\n")
}

// Valid reports whether the document is still open.
func (d *Document) Valid() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.valid
}

// Path returns the filesystem path for file:// URIs, or "" for documents
// that have no file backing.
func (d *Document) Path() string {
	if strings.HasPrefix(d.URI, "file://") {
		return strings.TrimPrefix(d.URI, "file://")
	}
	return ""
}

// Store manages open documents by URI.
type Store struct {
	mu   sync.Mutex
	docs map[string]*Document
}

// NewStore creates an empty document store.
func NewStore() *Store {
	return &Store{docs: make(map[string]*Document)}
}

// Open registers a document under uri with the given full text, replacing
// any previous document at that URI.
func (s *Store) Open(uri, text string) *Document {
	doc := &Document{
		URI:     uri,
		Version: 1,
		lines:   strings.Split(text, "\n"),
		valid:   true,
	}

	s.mu.Lock()
	if old, ok := s.docs[uri]; ok {
		old.invalidate()
	}
	s.docs[uri] = doc
	s.mu.Unlock()

	return doc
}

// OpenFile reads path from disk and opens it under a file:// URI.
func (s *Store) OpenFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return s.Open("file://"+path, string(data)), nil
}

// Update replaces the full text of an open document (full-sync semantics).
// Unknown URIs are opened fresh.
func (s *Store) Update(uri, text string) *Document {
	s.mu.Lock()
	doc, ok := s.docs[uri]
	s.mu.Unlock()

	if !ok {
		return s.Open(uri, text)
	}

	doc.mu.Lock()
	doc.lines = strings.Split(text, "\n")
	doc.Version++
	doc.mu.Unlock()
	return doc
}

// Get retrieves an open document.
func (s *Store) Get(uri string) (*Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[uri]
	return doc, ok
}

// Close removes a document and invalidates it, so any session still holding
// it fails its next save.
func (s *Store) Close(uri string) {
	s.mu.Lock()
	doc, ok := s.docs[uri]
	delete(s.docs, uri)
	s.mu.Unlock()

	if ok {
		doc.invalidate()
	}
}

func (d *Document) invalidate() {
	d.mu.Lock()
	d.valid = false
	d.mu.Unlock()
}
