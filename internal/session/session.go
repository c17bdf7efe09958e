// Package session owns the live, in-memory runtime state for open
// documents: one DocumentSession per open document, looked up through an
// explicit Registry rather than ad hoc per-document maps.
package session

import (
	"sync"
	"time"

	"github.com/haasonsaas/easel/internal/history"
	"github.com/haasonsaas/easel/pkg/models"
)

// DocumentSession wraps one document's live state: the current item
// snapshot, the selection set, and the undo/redo stack. It exists from
// document open to document close and is never persisted itself; only the
// derived Document and serialized stack are.
type DocumentSession struct {
	mu        sync.Mutex
	doc       *models.Document
	selection []string
	stack     *history.Stack

	now      func() time.Time
	onChange func(docID string)
}

// Option configures a DocumentSession.
type Option func(*DocumentSession)

// WithNow overrides the time source used to bump the document's
// modification time on edits.
func WithNow(now func() time.Time) Option {
	return func(s *DocumentSession) { s.now = now }
}

// New creates a session around a document and its history stack. A nil
// stack starts the session with a fresh empty one.
func New(doc *models.Document, stack *history.Stack, opts ...Option) *DocumentSession {
	if stack == nil {
		stack = history.NewStack()
	}
	s := &DocumentSession{
		doc:   doc.Clone(),
		stack: stack,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetOnChange registers a callback fired after every mutating operation.
// The sync controller uses it to observe dirty state.
func (s *DocumentSession) SetOnChange(fn func(docID string)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// ID returns the document id.
func (s *DocumentSession) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.ID
}

// Document returns a copy of the live document.
func (s *DocumentSession) Document() *models.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Clone()
}

// Items returns a copy of the live item snapshot.
func (s *DocumentSession) Items() []models.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.CloneItems(s.doc.Items)
}

// Selection returns a copy of the selected id set.
func (s *DocumentSession) Selection() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.selection...)
}

// Stack returns a clone of the history stack; the live stack is owned
// solely by the session.
func (s *DocumentSession) Stack() *history.Stack {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stack.Clone()
}

// CanUndo reports whether an undo would apply.
func (s *DocumentSession) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stack.CanUndo()
}

// CanRedo reports whether a redo would apply.
func (s *DocumentSession) CanRedo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stack.CanRedo()
}

// PushChange validates the change, pushes it onto a fresh stack clone, and
// recomputes the live snapshot by applying the change forward.
func (s *DocumentSession) PushChange(c history.Change) error {
	if err := history.Validate(c); err != nil {
		return err
	}
	s.mu.Lock()
	stack := s.stack.Clone()
	stack.Push(c)
	next := history.Forward(c, s.stateLocked())
	s.stack = stack
	s.applyStateLocked(next, history.TouchesItems(c))
	fn, id := s.onChange, s.doc.ID
	s.mu.Unlock()

	if fn != nil {
		fn(id)
	}
	return nil
}

// Undo reverses the most recent change, replacing the live snapshot and
// selection with the returned state. Reports false on an exhausted stack.
func (s *DocumentSession) Undo() bool {
	s.mu.Lock()
	stack := s.stack.Clone()
	next, ok := stack.Undo(s.stateLocked())
	if !ok {
		s.mu.Unlock()
		return false
	}
	s.stack = stack
	s.applyStateLocked(next, true)
	fn, id := s.onChange, s.doc.ID
	s.mu.Unlock()

	if fn != nil {
		fn(id)
	}
	return true
}

// Redo re-applies the change after the cursor. Reports false when there is
// no redo tail.
func (s *DocumentSession) Redo() bool {
	s.mu.Lock()
	stack := s.stack.Clone()
	next, ok := stack.Redo(s.stateLocked())
	if !ok {
		s.mu.Unlock()
		return false
	}
	s.stack = stack
	s.applyStateLocked(next, true)
	fn, id := s.onChange, s.doc.ID
	s.mu.Unlock()

	if fn != nil {
		fn(id)
	}
	return true
}

// SetSelection pushes a selection change only when ids differ from the
// current selection as a set, keeping no-op selection events out of the
// history.
func (s *DocumentSession) SetSelection(ids []string) error {
	s.mu.Lock()
	if models.SameIDSet(s.selection, ids) {
		s.mu.Unlock()
		return nil
	}
	old := append([]string(nil), s.selection...)
	s.mu.Unlock()

	return s.PushChange(history.Selection{OldIDs: old, NewIDs: models.NormalizeIDs(ids)})
}

// HistoryState returns the snapshot the change engine operates over.
func (s *DocumentSession) HistoryState() models.HistoryState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked().Clone()
}

// Replace swaps in a new document and stack, used when conflict resolution
// adopts the remote copy. The selection is reset.
func (s *DocumentSession) Replace(doc *models.Document, stack *history.Stack) {
	s.mu.Lock()
	if stack == nil {
		stack = history.NewStack()
	}
	s.doc = doc.Clone()
	s.stack = stack
	s.selection = nil
	s.mu.Unlock()
}

func (s *DocumentSession) stateLocked() models.HistoryState {
	return models.HistoryState{Items: s.doc.Items, SelectedIDs: s.selection}
}

// applyStateLocked installs a new history state. Changes that touch items
// bump the document's modification time; selection-only changes do not.
func (s *DocumentSession) applyStateLocked(state models.HistoryState, itemsTouched bool) {
	s.doc.Items = state.Items
	s.selection = state.SelectedIDs
	if itemsTouched {
		s.doc.ModifiedAt = s.now()
	}
}
