package ir

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FieldType names the input kind of a form field.
// Unknown values from the provider are preserved verbatim.
type FieldType string

const (
	FieldTypeData   FieldType = "Data"
	FieldTypeSelect FieldType = "Select"
	FieldTypeText   FieldType = "Text"
	FieldTypeInt    FieldType = "Int"
	FieldTypeLink   FieldType = "Link"
	FieldTypeCheck  FieldType = "Check"
)

// FieldDefinition describes one input of a form schema.
type FieldDefinition struct {
	Fieldname string          `json:"fieldname"`
	Label     string          `json:"label,omitempty"`
	Fieldtype FieldType       `json:"fieldtype"`
	Options   string          `json:"options,omitempty"` // newline-delimited choices for Select
	Default   json.RawMessage `json:"default,omitempty"` // any JSON literal
}

// Choices splits Options into its newline-delimited entries.
// Returns nil for non-Select fields.
func (f FieldDefinition) Choices() []string {
	if f.Fieldtype != FieldTypeSelect || f.Options == "" {
		return nil
	}
	var out []string
	for _, line := range strings.Split(f.Options, "\n") {
		if s := strings.TrimSpace(line); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// DocTypeSchema is a named, ordered collection of field definitions.
//
// Meta holds every other top-level key the provider sent, so a cache round
// trip never drops provider metadata. It is flattened back into the top
// level on marshal.
type DocTypeSchema struct {
	Name   string
	Fields []FieldDefinition
	Meta   map[string]json.RawMessage
}

// Fingerprint returns the schema fingerprint of s.Fields.
func (s *DocTypeSchema) Fingerprint() string {
	return Fingerprint(s.Fields)
}

// Field returns the definition with the given fieldname.
func (s *DocTypeSchema) Field(name string) (FieldDefinition, bool) {
	for _, f := range s.Fields {
		if f.Fieldname == name {
			return f, true
		}
	}
	return FieldDefinition{}, false
}

// MarshalJSON flattens Meta into the top-level object.
// encoding/json sorts map keys, so output is deterministic.
func (s DocTypeSchema) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(s.Meta)+2)
	for k, v := range s.Meta {
		obj[k] = v
	}
	fields := s.Fields
	if fields == nil {
		fields = []FieldDefinition{}
	}
	obj["name"] = s.Name
	obj["fields"] = fields
	return json.Marshal(obj)
}

// UnmarshalJSON splits name and fields from the remaining provider metadata.
func (s *DocTypeSchema) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("doctype: expected object, got null")
	}

	var out DocTypeSchema
	if v, ok := raw["name"]; ok {
		if err := json.Unmarshal(v, &out.Name); err != nil {
			return fmt.Errorf("doctype: name: %w", err)
		}
		delete(raw, "name")
	}
	if v, ok := raw["fields"]; ok {
		if err := json.Unmarshal(v, &out.Fields); err != nil {
			return fmt.Errorf("doctype: fields: %w", err)
		}
		delete(raw, "fields")
	}
	if len(raw) > 0 {
		out.Meta = raw
	}
	*s = out
	return nil
}

// SubmissionStatus is the lifecycle state of a queued submission.
type SubmissionStatus string

const (
	StatusPending   SubmissionStatus = "pending"
	StatusSubmitted SubmissionStatus = "submitted"
	StatusFailed    SubmissionStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s SubmissionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusSubmitted, StatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether an item may move from s to next.
//
//	pending   -> submitted | failed
//	failed    -> pending
//	submitted -> (terminal)
//
// Staying in the same state is always allowed.
func (s SubmissionStatus) CanTransition(next SubmissionStatus) bool {
	if !next.Valid() {
		return false
	}
	if s == next {
		return true
	}
	switch s {
	case StatusPending:
		return next == StatusSubmitted || next == StatusFailed
	case StatusFailed:
		return next == StatusPending
	}
	return false
}

// SubmissionItem is one queued form instance.
type SubmissionItem struct {
	ID         string           `json:"id"`                   // sole identity key, never changes
	FormName   string           `json:"form_name"`            // soft reference to a DocTypeSchema
	Data       map[string]any   `json:"data"`                 // fieldname -> user value
	SchemaHash string           `json:"schema_hash"`          // fingerprint frozen at enqueue
	Status     SubmissionStatus `json:"status"`
	LastError  string           `json:"last_error,omitempty"` // set when Status is failed
	CreatedAt  int64            `json:"created_at"`           // unix millis
}

// DraftData is the field-value mapping held by the draft slot.
type DraftData map[string]any
