// Package common defines shared constants and sentinel errors used across
// the inference service, the web front end and the operator tool. Callers
// should use errors.Is to match these values.
package common

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")
	ErrorConflict = errors.New("already exists")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("invalid username or password")
	ErrorForbidden    = errors.New("forbidden")

	// Validation errors (malformed input: empty fields, mismatched
	// confirmation, wrong pixel count).
	ErrorValidation = errors.New("validation error")

	// Remote inference backend is unreachable, timed out or answered
	// with a non-200 status.
	ErrBackendUnavailable = errors.New("inference backend unavailable")
)

// FieldErrors maps a form field name to a human readable message.
// It unwraps to ErrorValidation.
type FieldErrors map[string]string

func (f FieldErrors) Error() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, f[k]))
	}
	return fmt.Sprintf("%s: %s", ErrorValidation, strings.Join(parts, "; "))
}

func (f FieldErrors) Unwrap() error {
	return ErrorValidation
}
