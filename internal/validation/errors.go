// Package validation enforces field-level rules on user and registered organization records
// before they are persisted. Every rule runs on every call; failures accumulate into an
// ordered Errors bag keyed by field so callers can show the complete list at once.
package validation

import (
	"encoding/json"
	"strings"
)

// Base is the field key for errors that belong to the record rather than one attribute.
const Base = "base"

// Errors is an ordered mapping of field name to failure messages.
// The zero value is an empty, usable bag.
type Errors struct {
	order    []string
	messages map[string][]string
}

// Add records a failure message against a field.
func (e *Errors) Add(field, message string) {
	if e.messages == nil {
		e.messages = make(map[string][]string)
	}
	if _, seen := e.messages[field]; !seen {
		e.order = append(e.order, field)
	}
	e.messages[field] = append(e.messages[field], message)
}

// Merge appends every failure from other, preserving its field order.
func (e *Errors) Merge(other *Errors) {
	if other == nil {
		return
	}
	for _, field := range other.order {
		for _, msg := range other.messages[field] {
			e.Add(field, msg)
		}
	}
}

// Empty reports whether no failures have been recorded.
func (e *Errors) Empty() bool {
	return e == nil || len(e.order) == 0
}

// Len returns the total number of failure messages.
func (e *Errors) Len() int {
	if e == nil {
		return 0
	}
	n := 0
	for _, msgs := range e.messages {
		n += len(msgs)
	}
	return n
}

// Fields returns the failing fields in the order they first failed.
func (e *Errors) Fields() []string {
	if e == nil {
		return nil
	}
	return append([]string(nil), e.order...)
}

// On returns the messages recorded for one field.
func (e *Errors) On(field string) []string {
	if e == nil {
		return nil
	}
	return e.messages[field]
}

// FullMessages returns each failure prefixed with its humanized field name,
// e.g. "First name can't be blank". Base errors are returned as-is.
func (e *Errors) FullMessages() []string {
	if e == nil {
		return nil
	}
	var out []string
	for _, field := range e.order {
		for _, msg := range e.messages[field] {
			if field == Base {
				out = append(out, msg)
				continue
			}
			out = append(out, Humanize(field)+" "+msg)
		}
	}
	return out
}

// Error joins the full messages with ", " so an Errors value reads the same in logs
// and in flash messages.
func (e *Errors) Error() string {
	return strings.Join(e.FullMessages(), ", ")
}

// MarshalJSON encodes the bag as {"field": ["message", ...]}.
func (e *Errors) MarshalJSON() ([]byte, error) {
	if e == nil || e.messages == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(e.messages)
}

// Humanize turns an attribute key into a label: "address_1" becomes "Address 1",
// "organization_id" becomes "Organization" and "fhir_endpoint.uri" becomes
// "Fhir endpoint uri".
func Humanize(field string) string {
	s := strings.TrimSuffix(field, "_id")
	s = strings.NewReplacer("_", " ", ".", " ").Replace(s)
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// blank mirrors the usual presence check: empty or whitespace only.
func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
