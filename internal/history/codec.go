package history

import (
	"encoding/json"
	"fmt"
)

// ChangeType is the wire discriminant carried in each serialized record.
type ChangeType string

const (
	TypeAdd             ChangeType = "add"
	TypeDelete          ChangeType = "delete"
	TypeTransform       ChangeType = "transform"
	TypeTransformBatch  ChangeType = "transformBatch"
	TypeUpdateText      ChangeType = "updateText"
	TypeUpdatePrompt    ChangeType = "updatePrompt"
	TypeUpdateModel     ChangeType = "updateModel"
	TypeUpdateName      ChangeType = "updateName"
	TypeToggleMinimized ChangeType = "toggleMinimized"
	TypeSelection       ChangeType = "selection"
	TypeMulti           ChangeType = "multi"
)

// TypeOf returns the wire discriminant for a change.
func TypeOf(c Change) ChangeType {
	switch c.(type) {
	case AddObject:
		return TypeAdd
	case DeleteObject:
		return TypeDelete
	case TransformObject:
		return TypeTransform
	case TransformObjects:
		return TypeTransformBatch
	case UpdateText:
		return TypeUpdateText
	case UpdatePrompt:
		return TypeUpdatePrompt
	case UpdateModel:
		return TypeUpdateModel
	case UpdateName:
		return TypeUpdateName
	case ToggleMinimized:
		return TypeToggleMinimized
	case Selection:
		return TypeSelection
	case MultiStep:
		return TypeMulti
	}
	return ""
}

type multiStepWire struct {
	Changes []json.RawMessage `json:"subChanges"`
}

// MarshalChange encodes a change as a flat JSON object with a "type"
// discriminant alongside the variant's payload fields.
func MarshalChange(c Change) ([]byte, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: nil change", ErrInvalidChange)
	}

	var payload []byte
	var err error
	if multi, ok := c.(MultiStep); ok {
		wire := multiStepWire{Changes: make([]json.RawMessage, 0, len(multi.Changes))}
		for _, sub := range multi.Changes {
			enc, err := MarshalChange(sub)
			if err != nil {
				return nil, err
			}
			wire.Changes = append(wire.Changes, enc)
		}
		payload, err = json.Marshal(wire)
	} else {
		payload, err = json.Marshal(c)
	}
	if err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, err
	}
	kind, err := json.Marshal(TypeOf(c))
	if err != nil {
		return nil, err
	}
	fields["type"] = kind
	return json.Marshal(fields)
}

// UnmarshalChange decodes the flat envelope produced by MarshalChange.
func UnmarshalChange(data []byte) (Change, error) {
	var head struct {
		Type ChangeType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidChange, err)
	}

	switch head.Type {
	case TypeAdd:
		var c AddObject
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidChange, err)
		}
		return c, nil
	case TypeDelete:
		var c DeleteObject
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidChange, err)
		}
		return c, nil
	case TypeTransform:
		var c TransformObject
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidChange, err)
		}
		return c, nil
	case TypeTransformBatch:
		var c TransformObjects
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidChange, err)
		}
		return c, nil
	case TypeUpdateText:
		var c UpdateText
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidChange, err)
		}
		return c, nil
	case TypeUpdatePrompt:
		var c UpdatePrompt
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidChange, err)
		}
		return c, nil
	case TypeUpdateModel:
		var c UpdateModel
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidChange, err)
		}
		return c, nil
	case TypeUpdateName:
		var c UpdateName
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidChange, err)
		}
		return c, nil
	case TypeToggleMinimized:
		var c ToggleMinimized
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidChange, err)
		}
		return c, nil
	case TypeSelection:
		var c Selection
		if err := json.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidChange, err)
		}
		return c, nil
	case TypeMulti:
		var wire multiStepWire
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidChange, err)
		}
		multi := MultiStep{Changes: make([]Change, 0, len(wire.Changes))}
		for _, raw := range wire.Changes {
			sub, err := UnmarshalChange(raw)
			if err != nil {
				return nil, err
			}
			multi.Changes = append(multi.Changes, sub)
		}
		return multi, nil
	}
	return nil, fmt.Errorf("%w: unknown change type %q", ErrInvalidChange, head.Type)
}
