package history

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/haasonsaas/easel/pkg/models"
)

func TestMarshalChangeWireShape(t *testing.T) {
	enc, err := MarshalChange(TransformObject{
		ID:  "a",
		Old: models.Transform{X: 1, Y: 2, Width: 3, Height: 4},
		New: models.Transform{X: 5, Y: 6, Width: 7, Height: 8},
	})
	if err != nil {
		t.Fatalf("MarshalChange: %v", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(enc, &fields); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if string(fields["type"]) != `"transform"` {
		t.Fatalf("expected type \"transform\", got %s", fields["type"])
	}
	if string(fields["id"]) != `"a"` {
		t.Fatalf("expected id \"a\", got %s", fields["id"])
	}
	for _, key := range []string{"oldTransform", "newTransform"} {
		if _, ok := fields[key]; !ok {
			t.Fatalf("missing %s in %s", key, enc)
		}
	}
}

func TestToggleMinimizedWireKeys(t *testing.T) {
	enc, err := MarshalChange(ToggleMinimized{ID: "a", OldMinimized: false, NewMinimized: true})
	if err != nil {
		t.Fatalf("MarshalChange: %v", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(enc, &fields); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if string(fields["type"]) != `"toggleMinimized"` {
		t.Fatalf("expected type \"toggleMinimized\", got %s", fields["type"])
	}
	if string(fields["oldFlag"]) != `false` || string(fields["newFlag"]) != `true` {
		t.Fatalf("expected oldFlag/newFlag keys, got %s", enc)
	}
	for _, key := range []string{"oldMinimized", "newMinimized"} {
		if _, ok := fields[key]; ok {
			t.Fatalf("unexpected %s key in %s", key, enc)
		}
	}
}

func TestMultiStepWireKeys(t *testing.T) {
	enc, err := MarshalChange(MultiStep{Changes: []Change{
		AddObject{Item: textItem("a", "hello")},
	}})
	if err != nil {
		t.Fatalf("MarshalChange: %v", err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(enc, &fields); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if string(fields["type"]) != `"multi"` {
		t.Fatalf("expected type \"multi\", got %s", fields["type"])
	}
	var subs []json.RawMessage
	if err := json.Unmarshal(fields["subChanges"], &subs); err != nil {
		t.Fatalf("expected subChanges array, got %s", enc)
	}
	if len(subs) != 1 {
		t.Fatalf("expected one sub-change, got %d", len(subs))
	}
	if _, ok := fields["changes"]; ok {
		t.Fatalf("unexpected changes key in %s", enc)
	}
}

func TestChangeCodecRoundTrip(t *testing.T) {
	changes := []Change{
		AddObject{Item: textItem("a", "hello")},
		DeleteObject{Item: promptItem("b")},
		TransformObject{ID: "a", Old: models.Transform{X: 1}, New: models.Transform{X: 2, FontSize: floatPtr(18)}},
		TransformObjects{Entries: []TransformEntry{{ID: "a", New: models.Transform{X: 9}}}},
		UpdateText{ID: "a", OldText: "x", NewText: "y"},
		UpdatePrompt{ID: "b", OldLabel: "l1", OldText: "t1", NewLabel: "l2", NewText: "t2"},
		UpdateModel{ID: "b", OldModel: "m1", NewModel: "m2"},
		UpdateName{ID: "b", OldName: "n1", NewName: "n2"},
		ToggleMinimized{ID: "b", NewMinimized: true},
		Selection{OldIDs: []string{"a"}, NewIDs: []string{"a", "b"}},
	}
	for _, c := range changes {
		enc, err := MarshalChange(c)
		if err != nil {
			t.Fatalf("marshal %T: %v", c, err)
		}
		dec, err := UnmarshalChange(enc)
		if err != nil {
			t.Fatalf("unmarshal %T: %v", c, err)
		}
		if !reflect.DeepEqual(dec, c) {
			t.Fatalf("round trip %T:\n in=%+v\n out=%+v", c, c, dec)
		}
	}
}

func TestNestedMultiStepRoundTrip(t *testing.T) {
	c := MultiStep{Changes: []Change{
		DeleteObject{Item: textItem("a", "hello")},
		MultiStep{Changes: []Change{
			AddObject{Item: textItem("c", "inner")},
			Selection{NewIDs: []string{"c"}},
		}},
	}}
	enc, err := MarshalChange(c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	dec, err := UnmarshalChange(enc)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(dec, Change(c)) {
		t.Fatalf("nested round trip:\n in=%+v\n out=%+v", c, dec)
	}
}

func TestUnmarshalChangeRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"unknown type", `{"type":"teleport","id":"a"}`},
		{"missing type", `{"id":"a"}`},
		{"not an object", `[1,2,3]`},
		{"truncated", `{"type":"add","item":`},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := UnmarshalChange([]byte(tt.data)); !errors.Is(err, ErrInvalidChange) {
				t.Fatalf("expected ErrInvalidChange, got %v", err)
			}
		})
	}
}

func TestStackJSONRoundTrip(t *testing.T) {
	stack := NewStack()
	stack.Push(AddObject{Item: textItem("a", "v1")})
	stack.Push(UpdateText{ID: "a", OldText: "v1", NewText: "v2"})
	state := models.HistoryState{Items: []models.Item{textItem("a", "v2")}}
	if _, ok := stack.Undo(state); !ok {
		t.Fatalf("setup undo failed")
	}

	enc, err := json.Marshal(stack)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var wire struct {
		Records      []json.RawMessage `json:"records"`
		CurrentIndex int               `json:"currentIndex"`
	}
	if err := json.Unmarshal(enc, &wire); err != nil {
		t.Fatalf("decode wire: %v", err)
	}
	if len(wire.Records) != 2 || wire.CurrentIndex != 0 {
		t.Fatalf("unexpected wire shape: records=%d currentIndex=%d", len(wire.Records), wire.CurrentIndex)
	}

	dec, err := DecodeStack(enc)
	if err != nil {
		t.Fatalf("DecodeStack: %v", err)
	}
	if dec.Len() != 2 || dec.Index() != 0 {
		t.Fatalf("decoded stack shape: len=%d index=%d", dec.Len(), dec.Index())
	}
	if !dec.CanUndo() || !dec.CanRedo() {
		t.Fatalf("expected decoded stack to allow both undo and redo")
	}
}

func TestDecodeStackRejectsCorruptInput(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"not json", `garbage`},
		{"cursor past end", `{"records":[{"type":"selection","oldIds":[],"newIds":[]}],"currentIndex":5}`},
		{"cursor below -1", `{"records":[],"currentIndex":-2}`},
		{"bad record", `{"records":[{"type":"warp"}],"currentIndex":0}`},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeStack([]byte(tt.data)); !errors.Is(err, ErrInvalidChange) {
				t.Fatalf("expected ErrInvalidChange, got %v", err)
			}
		})
	}

	empty, err := DecodeStack([]byte(`{"records":[],"currentIndex":-1}`))
	if err != nil {
		t.Fatalf("expected empty stack to decode, got %v", err)
	}
	if empty.Len() != 0 || empty.CanUndo() {
		t.Fatalf("unexpected empty stack shape")
	}
}
