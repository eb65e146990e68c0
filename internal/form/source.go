// Package form adapts the two ways a document can be edited, a structured
// schema-driven form or a raw JSON editor, to one capability set.
package form

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformed is returned when raw editor text is not a JSON object.
	ErrMalformed = errors.New("form: raw data is not valid JSON")
	// ErrNoSource is returned by the zero Source.
	ErrNoSource = errors.New("form: no source attached")
)

// StructuredForm is a form library handle.
type StructuredForm interface {
	// Values returns the current field values.
	Values() (map[string]any, error)
	// Validate refreshes inline validation state and reports validity.
	Validate() bool
	// SetField writes a value into a named input.
	SetField(name string, value any)
}

// RawEditor is a raw JSON text editor handle.
type RawEditor interface {
	Text() string
}

// Kind tags the variant held by a Source.
type Kind int

const (
	KindNone Kind = iota
	KindStructured
	KindRawText
)

func (k Kind) String() string {
	switch k {
	case KindStructured:
		return "structured"
	case KindRawText:
		return "raw"
	default:
		return "none"
	}
}

// Source is either Structured or RawText.
type Source struct {
	kind   Kind
	form   StructuredForm
	editor RawEditor
}

func Structured(f StructuredForm) Source {
	return Source{kind: KindStructured, form: f}
}

func RawText(e RawEditor) Source {
	return Source{kind: KindRawText, editor: e}
}

func (s Source) Kind() Kind {
	return s.kind
}

// Value returns the current values. Raw text that does not parse yields
// ErrMalformed.
func (s Source) Value() (map[string]any, error) {
	switch s.kind {
	case KindStructured:
		return s.form.Values()
	case KindRawText:
		return parseRaw(s.editor.Text())
	default:
		return nil, ErrNoSource
	}
}

// Validate reports whether the current values may be pushed. For the
// structured form this is schema validation; for raw text it is whether the
// text parses.
func (s Source) Validate() bool {
	switch s.kind {
	case KindStructured:
		return s.form.Validate()
	case KindRawText:
		_, err := parseRaw(s.editor.Text())
		return err == nil
	default:
		return false
	}
}

// SetField writes into a named input. The raw editor has no inputs.
func (s Source) SetField(name string, value any) {
	if s.kind == KindStructured {
		s.form.SetField(name, value)
	}
}

func parseRaw(text string) (map[string]any, error) {
	var values map[string]any
	if err := json.Unmarshal([]byte(text), &values); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if values == nil {
		return nil, ErrMalformed
	}
	return values, nil
}

// StaticText is a RawEditor over a fixed string.
type StaticText string

func (t StaticText) Text() string {
	return string(t)
}
