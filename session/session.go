// Package session turns decode/edit/encode into a safe workflow. A session
// binds the decoded content of one embedded script to its exact source
// location for later write-back; the registry guarantees at most one live
// session per (document, key) pair and revalidates the target line before
// every write.
package session

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"flint/codec"
	"flint/document"
	"flint/script"
)

// ErrSourceUnavailable reports that the backing document or the session's
// recorded line is gone at save time. It is the only session error that is
// escalated to the user: silently dropping an edit would break the
// round-trip promise the whole system exists to uphold.
var ErrSourceUnavailable = errors.New("script source is no longer available")

// ErrUnknownSession reports a session ID the registry does not know.
var ErrUnknownSession = errors.New("unknown session")

// State tracks the session lifecycle. There is no dirty state inside the
// registry; content mutation lives with the editing surface, which calls
// Save when it wants to persist.
type State int

const (
	StateCreated State = iota
	StateSaved
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateSaved:
		return "saved"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Session is an open editing context for one embedded script.
type Session struct {
	ID           string
	DocumentID   string
	Key          string
	Line         int
	OriginalLine string
	Decoded      string
	State        State

	// doc is the exact buffer the session was opened against. Reopening a
	// URI creates a new buffer; the session stays bound to the old one and
	// dies with it.
	doc *document.Document
}

type target struct {
	documentID string
	key        string
}

// Registry owns all live sessions. Sessions live only as long as the
// process; nothing is persisted, and scripts are rediscoverable by
// rescanning on demand.
type Registry struct {
	docs *document.Store

	mu       sync.Mutex
	sessions map[string]*Session
	byTarget map[target]string
	nextID   atomic.Uint64
}

// NewRegistry creates a registry over the given document store.
func NewRegistry(docs *document.Store) *Registry {
	return &Registry{
		docs:     docs,
		sessions: make(map[string]*Session),
		byTarget: make(map[target]string),
	}
}

// Open starts (or resumes) a session for the script ref found in the given
// document. When a session already exists for (documentID, ref.Key) and the
// buffer it was opened against is still valid, the existing session is
// returned unchanged, so a second decode request cannot spawn a duplicate
// view of the same script. The check is against the session's own buffer,
// not the store's current one: closing and reopening a URI replaces the
// buffer, and a session holding content decoded from the dead buffer must
// not be resumed.
func (r *Registry) Open(documentID string, ref script.Ref) (*Session, error) {
	tgt := target{documentID, ref.Key}

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byTarget[tgt]; ok {
		existing := r.sessions[id]
		if existing.doc.Valid() {
			return existing, nil
		}
		// Backing buffer went away; discard the stale session.
		r.removeLocked(existing)
	}

	doc, ok := r.docs.Get(documentID)
	if !ok || !doc.Valid() {
		return nil, fmt.Errorf("open %s[%s]: %w", documentID, ref.Key, ErrSourceUnavailable)
	}

	sess := &Session{
		ID:           fmt.Sprintf("s-%d", r.nextID.Add(1)),
		DocumentID:   documentID,
		Key:          ref.Key,
		Line:         ref.Line,
		OriginalLine: ref.Snapshot,
		Decoded:      codec.Decode(ref.Encoded),
		State:        StateCreated,
		doc:          doc,
	}
	r.sessions[sess.ID] = sess
	r.byTarget[tgt] = sess.ID
	return sess, nil
}

// Get retrieves a session by ID.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	return sess, ok
}

// Save encodes newDecoded and splices it into the session's line. The
// current line text is re-read from the buffer first: the buffer may have
// been edited elsewhere since the session was opened (by the user, or by a
// save of a sibling script), and writing against the cached snapshot would
// silently discard those edits. The write goes to the session's own buffer;
// a buffer installed by reopening the URI is a different document and never
// receives a stale session's content.
func (r *Registry) Save(id, newDecoded string) error {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("save %s: %w", id, ErrUnknownSession)
	}

	doc := sess.doc
	if !doc.Valid() {
		return fmt.Errorf("save %s[%s]: document gone: %w", sess.DocumentID, sess.Key, ErrSourceUnavailable)
	}
	current, ok := doc.Line(sess.Line)
	if !ok {
		return fmt.Errorf("save %s[%s]: line %d gone: %w", sess.DocumentID, sess.Key, sess.Line, ErrSourceUnavailable)
	}

	encoded := codec.Encode(newDecoded)
	updated := script.Replace(current, sess.Key, encoded)
	if !doc.SetLine(sess.Line, updated) {
		return fmt.Errorf("save %s[%s]: line %d gone: %w", sess.DocumentID, sess.Key, sess.Line, ErrSourceUnavailable)
	}

	r.mu.Lock()
	sess.Decoded = newDecoded
	sess.State = StateSaved
	r.mu.Unlock()
	return nil
}

// Close removes a session. There are no document side effects: closing
// before a save simply abandons the edits.
func (r *Registry) Close(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[id]; ok {
		r.removeLocked(sess)
	}
}

// ForDocument returns all live sessions against a document, supporting the
// host's bulk decode-all and close-all operations.
func (r *Registry) ForDocument(documentID string) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Session
	for _, sess := range r.sessions {
		if sess.DocumentID == documentID {
			out = append(out, sess)
		}
	}
	return out
}

// CloseDocument closes every session against a document, used on document
// teardown.
func (r *Registry) CloseDocument(documentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, sess := range r.sessions {
		if sess.DocumentID == documentID {
			r.removeLocked(sess)
		}
	}
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) removeLocked(sess *Session) {
	sess.State = StateClosed
	delete(r.sessions, sess.ID)
	delete(r.byTarget, target{sess.DocumentID, sess.Key})
}
