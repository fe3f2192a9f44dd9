package models

import (
	"errors"
	"sort"
	"strings"

	"go.uber.org/multierr"
)

var (
	// ErrUnauthenticated is returned when the caller has no resolvable identity.
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrStoreUnavailable wraps transport or provider failures of the record store.
	ErrStoreUnavailable = errors.New("record store unavailable")
	// ErrUserNotFound is returned when the identity provider has no such user.
	ErrUserNotFound = errors.New("user not found")
	// ErrMalformedBlob is returned when a stored record list cannot be decoded.
	ErrMalformedBlob = errors.New("malformed record metadata")
	// ErrValidationRejected is matched by every *ValidationError.
	ErrValidationRejected = errors.New("validation rejected")
	// ErrNotImplemented is returned for user intents that are accepted but not executed.
	ErrNotImplemented = errors.New("not implemented")
)

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationError aggregates the field errors of one submission.
type ValidationError struct {
	err error
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields()))
	for _, f := range e.Fields() {
		parts = append(parts, f.Error())
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Is makes errors.Is(err, ErrValidationRejected) hold.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationRejected
}

// Fields returns the individual field errors in the order they were found.
func (e *ValidationError) Fields() []*FieldError {
	var out []*FieldError
	for _, err := range multierr.Errors(e.err) {
		var fe *FieldError
		if errors.As(err, &fe) {
			out = append(out, fe)
		}
	}
	return out
}

// FieldMessages returns field name to message, first message per field wins.
func (e *ValidationError) FieldMessages() map[string]string {
	out := make(map[string]string)
	for _, f := range e.Fields() {
		if _, ok := out[f.Field]; !ok {
			out[f.Field] = f.Message
		}
	}
	return out
}

// FieldNames returns the sorted names of the rejected fields.
func (e *ValidationError) FieldNames() []string {
	msgs := e.FieldMessages()
	names := make([]string, 0, len(msgs))
	for name := range msgs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type fieldErrors struct {
	err error
}

func (fe *fieldErrors) add(field, message string) {
	fe.err = multierr.Append(fe.err, &FieldError{Field: field, Message: message})
}

func (fe *fieldErrors) result() error {
	if fe.err == nil {
		return nil
	}
	return &ValidationError{err: fe.err}
}
