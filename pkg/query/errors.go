package query

import (
	"errors"
	"fmt"
)

// ErrMethodNotAllowed rejects non-read request methods.
var ErrMethodNotAllowed = errors.New("method not allowed")

// FilterSyntaxError signals a malformed filter or sort parameter: unbalanced
// brackets, a dangling relation name, or a misplaced "-Id" shorthand.
type FilterSyntaxError struct {
	Param  string
	Reason string
}

func (e *FilterSyntaxError) Error() string {
	return fmt.Sprintf("invalid filter %q: %s", e.Param, e.Reason)
}

// AccessDeniedError signals that the caller's scopes do not cover a field
// resolved during validation.
type AccessDeniedError struct {
	Field  string
	Scopes string
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied to field %s with %s", e.Field, e.Scopes)
}
