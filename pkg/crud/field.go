package crud

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Kind names the HTML input a field renders as.
type Kind string

const (
	KindText     Kind = "text"
	KindNumber   Kind = "number"
	KindEmail    Kind = "email"
	KindPassword Kind = "password"
	KindSelect   Kind = "select"
	KindTextArea Kind = "textarea"
	KindDate     Kind = "date"
)

// Spec is what every field variant shares.
type Spec struct {
	Name     string
	Label    string
	Required bool
}

// Field is a form field descriptor. The set of variants is closed: Text, Number,
// Email, Password, Select, TextArea and Date.
type Field interface {
	spec() Spec
	Kind() Kind
	// parse turns the submitted string into the payload value. present is false
	// when the user left the field empty.
	parse(raw string) (value any, present bool, err error)
	options(selected string) []OptionView
}

var validate = validator.New(validator.WithRequiredStructEnabled())

type Text struct{ Spec }

func (f Text) spec() Spec                { return f.Spec }
func (Text) Kind() Kind                  { return KindText }
func (Text) options(string) []OptionView { return nil }
func (Text) parse(raw string) (any, bool, error) {
	raw = strings.TrimSpace(raw)
	return raw, raw != "", nil
}

type TextArea struct{ Spec }

func (f TextArea) spec() Spec                { return f.Spec }
func (TextArea) Kind() Kind                  { return KindTextArea }
func (TextArea) options(string) []OptionView { return nil }
func (TextArea) parse(raw string) (any, bool, error) {
	raw = strings.TrimSpace(raw)
	return raw, raw != "", nil
}

type Email struct{ Spec }

func (f Email) spec() Spec                { return f.Spec }
func (Email) Kind() Kind                  { return KindEmail }
func (Email) options(string) []OptionView { return nil }
func (f Email) parse(raw string) (any, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw, false, nil
	}
	if err := validate.Var(raw, "email"); err != nil {
		return nil, true, fmt.Errorf("%s must be a valid email address", f.Label)
	}
	return raw, true, nil
}

// Password is never trimmed and never echoed back into the form.
type Password struct{ Spec }

func (f Password) spec() Spec                { return f.Spec }
func (Password) Kind() Kind                  { return KindPassword }
func (Password) options(string) []OptionView { return nil }
func (Password) parse(raw string) (any, bool, error) {
	return raw, raw != "", nil
}

type Number struct{ Spec }

func (f Number) spec() Spec                { return f.Spec }
func (Number) Kind() Kind                  { return KindNumber }
func (Number) options(string) []OptionView { return nil }
func (f Number) parse(raw string) (any, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, true, fmt.Errorf("%s must be a whole number", f.Label)
	}
	return n, true, nil
}

// Date accepts YYYY-MM-DD, the value format of HTML date inputs.
type Date struct{ Spec }

func (f Date) spec() Spec                { return f.Spec }
func (Date) Kind() Kind                  { return KindDate }
func (Date) options(string) []OptionView { return nil }
func (f Date) parse(raw string) (any, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false, nil
	}
	if _, err := time.Parse(time.DateOnly, raw); err != nil {
		return nil, true, fmt.Errorf("%s must be a date (YYYY-MM-DD)", f.Label)
	}
	return raw, true, nil
}

// OptionValue constrains select values to string- or integer-backed types.
type OptionValue interface {
	~string | ~int64
}

type Option[V OptionValue] struct {
	Label string
	Value V
}

// Select only accepts one of its options; the payload carries the typed value.
type Select[V OptionValue] struct {
	Spec
	Options []Option[V]
}

func (f Select[V]) spec() Spec { return f.Spec }
func (Select[V]) Kind() Kind   { return KindSelect }

func (f Select[V]) options(selected string) []OptionView {
	out := make([]OptionView, 0, len(f.Options))
	for _, opt := range f.Options {
		value := fmt.Sprint(opt.Value)
		out = append(out, OptionView{Label: opt.Label, Value: value, Selected: value == selected})
	}
	return out
}

func (f Select[V]) parse(raw string) (any, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false, nil
	}
	for _, opt := range f.Options {
		if fmt.Sprint(opt.Value) == raw {
			return opt.Value, true, nil
		}
	}
	return nil, true, fmt.Errorf("%s has an unknown option %q", f.Label, raw)
}

// Values is a raw form submission keyed by field name.
type Values map[string]string

// Payload is the typed request body sent to create and update.
type Payload map[string]any

// stringKinds are sent as "" when left empty and optional; other kinds are omitted.
func stringKind(k Kind) bool {
	switch k {
	case KindText, KindTextArea, KindEmail, KindPassword:
		return true
	}
	return false
}

// BuildPayload validates values against fields and converts them to a payload.
// The first problem is returned as a user-facing error.
func BuildPayload(fields []Field, values Values) (Payload, error) {
	payload := make(Payload, len(fields))
	for _, f := range fields {
		s := f.spec()
		value, present, err := f.parse(values[s.Name])
		if err != nil {
			return nil, err
		}
		if !present {
			if s.Required {
				return nil, fmt.Errorf("%s is required", s.Label)
			}
			if stringKind(f.Kind()) {
				payload[s.Name] = ""
			}
			continue
		}
		payload[s.Name] = value
	}
	return payload, nil
}
