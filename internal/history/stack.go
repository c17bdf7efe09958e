package history

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/haasonsaas/easel/pkg/models"
)

// DefaultMaxDepth bounds the change log per document. Long editing sessions
// would otherwise grow the log without limit; when the cap is exceeded the
// oldest records are dropped.
const DefaultMaxDepth = 1000

// Stack is the cursor-addressed undo/redo log for one document.
//
// records[0..current] is the done prefix; records[current+1..] is the redo
// tail, present only after one or more undos and discarded by the next push.
// Stacks are cloned before mutation by callers that hand out references to
// prior instances, so two stacks never share mutation.
type Stack struct {
	records  []Change
	current  int
	maxDepth int
}

// NewStack creates an empty stack with the default depth cap.
func NewStack() *Stack {
	return &Stack{current: -1, maxDepth: DefaultMaxDepth}
}

// SetMaxDepth overrides the depth cap. Zero or negative disables it.
func (s *Stack) SetMaxDepth(n int) {
	s.maxDepth = n
}

// Len returns the number of records, done prefix and redo tail included.
func (s *Stack) Len() int { return len(s.records) }

// Index returns the cursor: the index of the last applied record, -1 when
// nothing has been applied.
func (s *Stack) Index() int { return s.current }

// Push discards any redo tail, appends the change, and moves the cursor to
// it. When the depth cap is exceeded the oldest records are dropped and the
// cursor shifts accordingly.
func (s *Stack) Push(c Change) {
	if s.current < len(s.records)-1 {
		s.records = s.records[:s.current+1]
	}
	s.records = append(s.records, c)
	s.current = len(s.records) - 1

	if s.maxDepth > 0 && len(s.records) > s.maxDepth {
		drop := len(s.records) - s.maxDepth
		s.records = append([]Change(nil), s.records[drop:]...)
		s.current -= drop
	}
}

// CanUndo reports whether an undo would apply a record.
func (s *Stack) CanUndo() bool { return s.current >= 0 }

// CanRedo reports whether a redo would apply a record.
func (s *Stack) CanRedo() bool { return s.current < len(s.records)-1 }

// Undo reverses the record at the cursor and steps the cursor back. On an
// exhausted stack it reports false and returns the state unchanged; that is
// a no-op, never an error.
func (s *Stack) Undo(state models.HistoryState) (models.HistoryState, bool) {
	if !s.CanUndo() {
		return state, false
	}
	next := Backward(s.records[s.current], state)
	s.current--
	return next, true
}

// Redo re-applies the record after the cursor and steps the cursor forward.
func (s *Stack) Redo(state models.HistoryState) (models.HistoryState, bool) {
	if !s.CanRedo() {
		return state, false
	}
	next := Forward(s.records[s.current+1], state)
	s.current++
	return next, true
}

// Clone copies the record slice (entries are immutable and shared) and the
// cursor, so the clone and the receiver never share mutation.
func (s *Stack) Clone() *Stack {
	return &Stack{
		records:  append([]Change(nil), s.records...),
		current:  s.current,
		maxDepth: s.maxDepth,
	}
}

type stackWire struct {
	Records      []json.RawMessage `json:"records"`
	CurrentIndex int               `json:"currentIndex"`
}

// MarshalJSON encodes the stack as {records, currentIndex} with each record
// in the flat type-discriminated envelope.
func (s *Stack) MarshalJSON() ([]byte, error) {
	wire := stackWire{
		Records:      make([]json.RawMessage, 0, len(s.records)),
		CurrentIndex: s.current,
	}
	for _, c := range s.records {
		enc, err := MarshalChange(c)
		if err != nil {
			return nil, err
		}
		wire.Records = append(wire.Records, enc)
	}
	return json.Marshal(wire)
}

// UnmarshalJSON decodes the wire form, validating the cursor bounds.
func (s *Stack) UnmarshalJSON(data []byte) error {
	var wire stackWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidChange, err)
	}
	if wire.CurrentIndex < -1 || wire.CurrentIndex >= len(wire.Records) {
		return fmt.Errorf("%w: currentIndex %d out of range for %d records", ErrInvalidChange, wire.CurrentIndex, len(wire.Records))
	}
	records := make([]Change, 0, len(wire.Records))
	for _, raw := range wire.Records {
		c, err := UnmarshalChange(raw)
		if err != nil {
			return err
		}
		records = append(records, c)
	}
	s.records = records
	s.current = wire.CurrentIndex
	if s.maxDepth == 0 {
		s.maxDepth = DefaultMaxDepth
	}
	return nil
}

// DecodeStack parses a serialized stack, returning ErrInvalidChange-wrapped
// errors on corrupt input so callers can fall back to a fresh stack.
func DecodeStack(data []byte) (*Stack, error) {
	s := NewStack()
	if err := json.Unmarshal(data, s); err != nil {
		if errors.Is(err, ErrInvalidChange) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidChange, err)
	}
	return s, nil
}
