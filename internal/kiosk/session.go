package kiosk

import (
	"sync"

	"github.com/danmuck/labdeck/internal/protocol"
	"github.com/danmuck/labdeck/internal/protocol/state"
)

// Session holds the document being edited. Each Update runs one State
// Manager transition under the lock and stores the result wholesale.
type Session struct {
	mu  sync.Mutex
	mgr *state.Manager
	doc protocol.Document
}

func NewSession(mgr *state.Manager, initial protocol.Document) *Session {
	if mgr == nil {
		mgr = state.NewManager()
	}
	return &Session{mgr: mgr, doc: initial}
}

// Snapshot returns the current document. Callers must not mutate it.
func (s *Session) Snapshot() protocol.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc
}

// Update applies fn to the current document. A non-nil error leaves the
// session unchanged.
func (s *Session) Update(fn func(m *state.Manager, doc protocol.Document) (protocol.Document, error)) (protocol.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := fn(s.mgr, s.doc)
	if err != nil {
		return s.doc, err
	}
	s.doc = next
	return next, nil
}
