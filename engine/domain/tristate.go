package domain

import (
	"encoding/json"
	"fmt"
)

// TriState is a boolean inferred from free text that may also be unknown:
// "explicitly unfurnished" and "furnishing not mentioned" are different.
type TriState int8

const (
	Unknown TriState = iota
	True
	False
)

// Of converts a plain bool.
func Of(b bool) TriState {
	if b {
		return True
	}
	return False
}

// Known reports whether the value is true or false.
func (t TriState) Known() bool { return t == True || t == False }

// Bool returns the value and whether it is known.
func (t TriState) Bool() (value, known bool) {
	return t == True, t.Known()
}

func (t TriState) String() string {
	switch t {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "unknown"
	}
}

// Cell renders the value for the output file: True, False or empty.
func (t TriState) Cell() string {
	switch t {
	case True:
		return "True"
	case False:
		return "False"
	default:
		return ""
	}
}

// MarshalJSON encodes Unknown as null.
func (t TriState) MarshalJSON() ([]byte, error) {
	switch t {
	case True:
		return []byte("true"), nil
	case False:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

func (t *TriState) UnmarshalJSON(b []byte) error {
	var v *bool
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("tristate: %w", err)
	}
	if v == nil {
		*t = Unknown
	} else {
		*t = Of(*v)
	}
	return nil
}
