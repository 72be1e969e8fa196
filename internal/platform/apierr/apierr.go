// Package apierr attaches an HTTP status and a machine-readable code to
// errors whose meaning the domain sentinels cannot express. Handlers check
// for it with errors.As before falling back to the sentinel mapping.
package apierr

import (
	"fmt"
	"net/http"
)

// Error decorates a cause with its transport mapping. Unwrap keeps
// errors.Is working against wrapped sentinels.
type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	return fmt.Sprintf("api error (%d)", e.Status)
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// Conflict marks a well-formed request refused by policy.
func Conflict(code, format string, args ...any) *Error {
	return &Error{Status: http.StatusConflict, Code: code, Err: fmt.Errorf(format, args...)}
}
