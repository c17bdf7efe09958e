// Package history implements the reversible change-log engine: a closed set
// of edit descriptions, pure forward/backward application over a state
// snapshot, and the cursor-addressed undo/redo stack.
package history

import (
	"errors"
	"fmt"

	"github.com/haasonsaas/easel/pkg/models"
)

// ErrInvalidChange marks a malformed change payload, rejected before it can
// enter a history stack.
var ErrInvalidChange = errors.New("history: invalid change")

// Change is a reversible description of one edit. The set of variants is
// closed; Forward and Backward dispatch exhaustively over it.
type Change interface {
	isChange()
}

// AddObject inserts an item. The item is embedded as an immutable copy
// taken at creation time.
type AddObject struct {
	Item models.Item `json:"item"`
}

// DeleteObject removes an item. The full item snapshot is embedded so the
// delete reverses without a second fetch.
type DeleteObject struct {
	Item models.Item `json:"item"`
}

// TransformObject replaces the transform-relevant fields of one item.
type TransformObject struct {
	ID  string           `json:"id"`
	Old models.Transform `json:"oldTransform"`
	New models.Transform `json:"newTransform"`
}

// TransformEntry is one item's before/after transform within a batch.
type TransformEntry struct {
	ID  string           `json:"id"`
	Old models.Transform `json:"oldTransform"`
	New models.Transform `json:"newTransform"`
}

// TransformObjects applies a synchronized batch transform, e.g. a
// multi-select drag.
type TransformObjects struct {
	Entries []TransformEntry `json:"entries"`
}

// UpdateText replaces an item's text.
type UpdateText struct {
	ID      string `json:"id"`
	OldText string `json:"oldText"`
	NewText string `json:"newText"`
}

// UpdatePrompt replaces a prompt item's label and text together.
type UpdatePrompt struct {
	ID       string `json:"id"`
	OldLabel string `json:"oldLabel"`
	OldText  string `json:"oldText"`
	NewLabel string `json:"newLabel"`
	NewText  string `json:"newText"`
}

// UpdateModel replaces a prompt item's model identifier.
type UpdateModel struct {
	ID       string `json:"id"`
	OldModel string `json:"oldModel"`
	NewModel string `json:"newModel"`
}

// UpdateName replaces an item's display name.
type UpdateName struct {
	ID      string `json:"id"`
	OldName string `json:"oldName"`
	NewName string `json:"newName"`
}

// ToggleMinimized flips an item's minimized flag.
type ToggleMinimized struct {
	ID           string `json:"id"`
	OldMinimized bool   `json:"oldFlag"`
	NewMinimized bool   `json:"newFlag"`
}

// Selection replaces the selected id set. It never touches items.
type Selection struct {
	OldIDs []string `json:"oldIds"`
	NewIDs []string `json:"newIds"`
}

// MultiStep is an atomic composite: forward applies sub-changes in listed
// order, backward in reverse listed order. The reverse ordering matters
// whenever sub-changes have data dependencies, e.g. delete-then-add during
// a combine operation.
type MultiStep struct {
	Changes []Change `json:"subChanges"`
}

func (AddObject) isChange()        {}
func (DeleteObject) isChange()     {}
func (TransformObject) isChange()  {}
func (TransformObjects) isChange() {}
func (UpdateText) isChange()       {}
func (UpdatePrompt) isChange()     {}
func (UpdateModel) isChange()      {}
func (UpdateName) isChange()       {}
func (ToggleMinimized) isChange()  {}
func (Selection) isChange()        {}
func (MultiStep) isChange()        {}

// Forward applies the change to the state and returns the new state. It is
// pure: the input state is not mutated, and nothing outside the state and
// the change's own payload is read or written.
func Forward(c Change, s models.HistoryState) models.HistoryState {
	switch c := c.(type) {
	case AddObject:
		out := s.Clone()
		out.Items = append(out.Items, c.Item.Clone())
		return out
	case DeleteObject:
		out := s.Clone()
		out.Items = removeItem(out.Items, c.Item.ID)
		return out
	case TransformObject:
		out := s.Clone()
		updateItem(out.Items, c.ID, func(item *models.Item) {
			item.ApplyTransform(c.New)
		})
		return out
	case TransformObjects:
		out := s.Clone()
		for _, e := range c.Entries {
			t := e.New
			updateItem(out.Items, e.ID, func(item *models.Item) {
				item.ApplyTransform(t)
			})
		}
		return out
	case UpdateText:
		out := s.Clone()
		updateItem(out.Items, c.ID, func(item *models.Item) {
			item.Text = c.NewText
		})
		return out
	case UpdatePrompt:
		out := s.Clone()
		updateItem(out.Items, c.ID, func(item *models.Item) {
			item.Label = c.NewLabel
			item.Text = c.NewText
		})
		return out
	case UpdateModel:
		out := s.Clone()
		updateItem(out.Items, c.ID, func(item *models.Item) {
			item.Model = c.NewModel
		})
		return out
	case UpdateName:
		out := s.Clone()
		updateItem(out.Items, c.ID, func(item *models.Item) {
			item.Name = c.NewName
		})
		return out
	case ToggleMinimized:
		out := s.Clone()
		updateItem(out.Items, c.ID, func(item *models.Item) {
			item.Minimized = c.NewMinimized
		})
		return out
	case Selection:
		out := s.Clone()
		out.SelectedIDs = models.NormalizeIDs(c.NewIDs)
		return out
	case MultiStep:
		out := s
		for _, sub := range c.Changes {
			out = Forward(sub, out)
		}
		return out
	}
	return s
}

// Backward reverses the change: applying Backward to the state produced by
// Forward yields the original state.
func Backward(c Change, s models.HistoryState) models.HistoryState {
	switch c := c.(type) {
	case AddObject:
		// Idempotent removal: a no-op when the id is already absent.
		out := s.Clone()
		out.Items = removeItem(out.Items, c.Item.ID)
		return out
	case DeleteObject:
		// Re-insertion appends. Original sequence position is not restored;
		// z-order is explicit per item, never implied by position.
		out := s.Clone()
		out.Items = append(out.Items, c.Item.Clone())
		return out
	case TransformObject:
		out := s.Clone()
		updateItem(out.Items, c.ID, func(item *models.Item) {
			item.ApplyTransform(c.Old)
		})
		return out
	case TransformObjects:
		out := s.Clone()
		for _, e := range c.Entries {
			t := e.Old
			updateItem(out.Items, e.ID, func(item *models.Item) {
				item.ApplyTransform(t)
			})
		}
		return out
	case UpdateText:
		out := s.Clone()
		updateItem(out.Items, c.ID, func(item *models.Item) {
			item.Text = c.OldText
		})
		return out
	case UpdatePrompt:
		out := s.Clone()
		updateItem(out.Items, c.ID, func(item *models.Item) {
			item.Label = c.OldLabel
			item.Text = c.OldText
		})
		return out
	case UpdateModel:
		out := s.Clone()
		updateItem(out.Items, c.ID, func(item *models.Item) {
			item.Model = c.OldModel
		})
		return out
	case UpdateName:
		out := s.Clone()
		updateItem(out.Items, c.ID, func(item *models.Item) {
			item.Name = c.OldName
		})
		return out
	case ToggleMinimized:
		out := s.Clone()
		updateItem(out.Items, c.ID, func(item *models.Item) {
			item.Minimized = c.OldMinimized
		})
		return out
	case Selection:
		out := s.Clone()
		out.SelectedIDs = models.NormalizeIDs(c.OldIDs)
		return out
	case MultiStep:
		out := s
		for i := len(c.Changes) - 1; i >= 0; i-- {
			out = Backward(c.Changes[i], out)
		}
		return out
	}
	return s
}

// TouchesItems reports whether applying the change can alter the item
// sequence, as opposed to only the selection.
func TouchesItems(c Change) bool {
	switch c := c.(type) {
	case Selection:
		return false
	case MultiStep:
		for _, sub := range c.Changes {
			if TouchesItems(sub) {
				return true
			}
		}
		return false
	default:
		return true
	}
}

// Validate rejects malformed changes before they can enter a stack.
func Validate(c Change) error {
	switch c := c.(type) {
	case nil:
		return fmt.Errorf("%w: nil change", ErrInvalidChange)
	case AddObject:
		if c.Item.ID == "" {
			return fmt.Errorf("%w: add requires an item id", ErrInvalidChange)
		}
	case DeleteObject:
		if c.Item.ID == "" {
			return fmt.Errorf("%w: delete requires an item id", ErrInvalidChange)
		}
	case TransformObject:
		if c.ID == "" {
			return fmt.Errorf("%w: transform requires an item id", ErrInvalidChange)
		}
	case TransformObjects:
		if len(c.Entries) == 0 {
			return fmt.Errorf("%w: batch transform requires entries", ErrInvalidChange)
		}
		for _, e := range c.Entries {
			if e.ID == "" {
				return fmt.Errorf("%w: batch transform entry requires an item id", ErrInvalidChange)
			}
		}
	case UpdateText:
		if c.ID == "" {
			return fmt.Errorf("%w: text update requires an item id", ErrInvalidChange)
		}
	case UpdatePrompt:
		if c.ID == "" {
			return fmt.Errorf("%w: prompt update requires an item id", ErrInvalidChange)
		}
	case UpdateModel:
		if c.ID == "" {
			return fmt.Errorf("%w: model update requires an item id", ErrInvalidChange)
		}
	case UpdateName:
		if c.ID == "" {
			return fmt.Errorf("%w: name update requires an item id", ErrInvalidChange)
		}
	case ToggleMinimized:
		if c.ID == "" {
			return fmt.Errorf("%w: minimize toggle requires an item id", ErrInvalidChange)
		}
	case MultiStep:
		if len(c.Changes) == 0 {
			return fmt.Errorf("%w: multi-step requires sub-changes", ErrInvalidChange)
		}
		for _, sub := range c.Changes {
			if err := Validate(sub); err != nil {
				return err
			}
		}
	}
	return nil
}

func removeItem(items []models.Item, id string) []models.Item {
	for i, item := range items {
		if item.ID == id {
			return append(items[:i], items[i+1:]...)
		}
	}
	return items
}

func updateItem(items []models.Item, id string, apply func(*models.Item)) {
	for i := range items {
		if items[i].ID == id {
			apply(&items[i])
			return
		}
	}
}
