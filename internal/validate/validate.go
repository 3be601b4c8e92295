// Package validate carries the field-level validation error shared by the
// entity services. Mutating operations report every missing or malformed
// field at once, not just the first.
package validate

import (
	"sort"
	"strings"
)

// Error maps field name to a human-readable message. It satisfies error so
// services can return it through the normal error path; the transport layer
// unwraps it with errors.As and renders the full map.
type Error struct {
	Fields map[string]string
}

func NewError() *Error {
	return &Error{Fields: map[string]string{}}
}

// Add records a failure for a field. The first message for a field wins.
func (e *Error) Add(field, message string) {
	if _, ok := e.Fields[field]; ok {
		return
	}
	e.Fields[field] = message
}

// OrNil returns the error if any field failed, nil otherwise.
func (e *Error) OrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	fields := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}
