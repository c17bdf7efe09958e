// Package models defines the shared data model for easel documents: the
// persisted Document, the typed canvas Item, and the HistoryState snapshot
// the change-log engine operates over.
package models

import (
	"sort"
	"time"
)

// ItemKind discriminates the polymorphic canvas item types.
type ItemKind string

const (
	ItemText   ItemKind = "text"
	ItemImage  ItemKind = "image"
	ItemVideo  ItemKind = "video"
	ItemPrompt ItemKind = "prompt"
)

// Item is one placed object on the canvas. Common fields apply to every
// kind; the remaining fields are kind-specific and omitted from the wire
// form when empty.
type Item struct {
	ID     string   `json:"id"`
	Kind   ItemKind `json:"kind"`
	X      float64  `json:"x"`
	Y      float64  `json:"y"`
	Width  float64  `json:"width"`
	Height float64  `json:"height"`

	FontSize  *float64 `json:"fontSize,omitempty"`
	Text      string   `json:"text,omitempty"`
	Src       string   `json:"src,omitempty"`
	Label     string   `json:"label,omitempty"`
	Model     string   `json:"model,omitempty"`
	Name      string   `json:"name,omitempty"`
	Minimized bool     `json:"minimized,omitempty"`
}

// Clone returns a copy that shares no mutable state with the receiver.
func (i Item) Clone() Item {
	clone := i
	if i.FontSize != nil {
		v := *i.FontSize
		clone.FontSize = &v
	}
	return clone
}

// Transform holds the geometry fields a transform change replaces on an
// item. FontSize is optional so text items can scale with a resize.
type Transform struct {
	X        float64  `json:"x"`
	Y        float64  `json:"y"`
	Width    float64  `json:"width"`
	Height   float64  `json:"height"`
	FontSize *float64 `json:"fontSize,omitempty"`
}

// Clone returns a copy with its own FontSize cell.
func (t Transform) Clone() Transform {
	clone := t
	if t.FontSize != nil {
		v := *t.FontSize
		clone.FontSize = &v
	}
	return clone
}

// TransformOf extracts the transform-relevant fields of an item.
func (i Item) TransformOf() Transform {
	t := Transform{X: i.X, Y: i.Y, Width: i.Width, Height: i.Height}
	if i.FontSize != nil {
		v := *i.FontSize
		t.FontSize = &v
	}
	return t
}

// ApplyTransform replaces only the transform-relevant fields on the item.
// FontSize is assigned unconditionally so a backward transform restores an
// item that had none.
func (i *Item) ApplyTransform(t Transform) {
	i.X = t.X
	i.Y = t.Y
	i.Width = t.Width
	i.Height = t.Height
	if t.FontSize != nil {
		v := *t.FontSize
		i.FontSize = &v
	} else {
		i.FontSize = nil
	}
}

// Document is the persisted unit of editable content. Item ids are unique
// within a document; sequence position does not imply z-order.
type Document struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Items      []Item    `json:"items"`
	CreatedAt  time.Time `json:"createdAt"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	clone := *d
	clone.Items = CloneItems(d.Items)
	return &clone
}

// DocumentInfo is the compact listing form returned by the store.
type DocumentInfo struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// HistoryState is the minimal snapshot a change record operates over:
// the item sequence plus the current selection.
type HistoryState struct {
	Items       []Item   `json:"items"`
	SelectedIDs []string `json:"selectedIds"`
}

// Clone returns a deep copy of the state.
func (s HistoryState) Clone() HistoryState {
	return HistoryState{
		Items:       CloneItems(s.Items),
		SelectedIDs: append([]string(nil), s.SelectedIDs...),
	}
}

// CloneItems deep-copies an item slice.
func CloneItems(items []Item) []Item {
	if items == nil {
		return nil
	}
	out := make([]Item, len(items))
	for i, item := range items {
		out[i] = item.Clone()
	}
	return out
}

// NormalizeIDs sorts and de-duplicates an id list, dropping empties, so
// selections have one canonical wire form per id set.
func NormalizeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// SameIDSet reports whether two id lists denote the same set.
func SameIDSet(a, b []string) bool {
	na, nb := NormalizeIDs(a), NormalizeIDs(b)
	if len(na) != len(nb) {
		return false
	}
	for i := range na {
		if na[i] != nb[i] {
			return false
		}
	}
	return true
}
