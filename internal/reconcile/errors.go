package reconcile

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels for errors.Is checks at the API and CLI boundaries
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrEmptyLog   = errors.New("nothing to undo")
)

// ValidationError is returned when a curation operation is missing a required
// detail field or is given an empty name list
type ValidationError struct {
	Fields  []string
	Message string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("missing required field(s): %s", strings.Join(e.Fields, ", "))
	}
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NotFoundError is returned when an operation references a group id or
// finding name that is not present in the current state
type NotFoundError struct {
	Kind string // "group" or "finding"
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Key)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// EmptyLogError is returned by Undo when there is nothing to reverse
type EmptyLogError struct{}

func (e *EmptyLogError) Error() string {
	return ErrEmptyLog.Error()
}

func (e *EmptyLogError) Unwrap() error {
	return ErrEmptyLog
}

func groupNotFound(id int) error {
	return &NotFoundError{Kind: "group", Key: fmt.Sprintf("%d", id)}
}

func findingNotFound(name string) error {
	return &NotFoundError{Kind: "finding", Key: name}
}
