package session

import (
	"errors"
	"sort"
	"sync"

	"github.com/haasonsaas/easel/internal/history"
	"github.com/haasonsaas/easel/pkg/models"
)

var (
	// ErrAlreadyOpen is returned when opening a document that already has a
	// live session.
	ErrAlreadyOpen = errors.New("session: document already open")
	// ErrNotOpen is returned when looking up a document with no live session.
	ErrNotOpen = errors.New("session: document not open")
)

// Registry owns one DocumentSession per open document, making the
// open/close lifecycle explicit. Cross-document operations copy state
// rather than alias it.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*DocumentSession
	opts     []Option
}

// NewRegistry creates an empty registry. The options are applied to every
// session it opens.
func NewRegistry(opts ...Option) *Registry {
	return &Registry{
		sessions: make(map[string]*DocumentSession),
		opts:     opts,
	}
}

// Open creates a session for the document. The stack may be nil for a
// fresh document.
func (r *Registry) Open(doc *models.Document, stack *history.Stack) (*DocumentSession, error) {
	if doc == nil || doc.ID == "" {
		return nil, errors.New("session: document with id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[doc.ID]; ok {
		return nil, ErrAlreadyOpen
	}
	sess := New(doc, stack, r.opts...)
	r.sessions[doc.ID] = sess
	return sess, nil
}

// Get returns the live session for a document id.
func (r *Registry) Get(id string) (*DocumentSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.sessions[id]
	return sess, ok
}

// Close discards the session and its history stack.
func (r *Registry) Close(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return ErrNotOpen
	}
	delete(r.sessions, id)
	return nil
}

// IDs returns the ids of all open documents, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
