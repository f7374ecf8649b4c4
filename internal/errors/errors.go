package errors

import (
	"errors"
	"fmt"
)

// Session sequencing errors.
var (
	ErrNotLoggedIn       = errors.New("not logged in")
	ErrAppNotInitialized = errors.New("application is not initialized")
	ErrAppNotAuthorized  = errors.New("application is not authorized")
)

// Input errors.
var (
	ErrRulesNotSeen    = errors.New("instance rules have not been shown to the user")
	ErrEmptyStatus     = errors.New("status text is empty")
	ErrStatusTooLong   = errors.New("status text is too long")
	ErrInvalidDuration = errors.New("invalid delay duration")
	ErrInvalidLocale   = errors.New("invalid locale")
	ErrEmptyUsername   = errors.New("username is empty")
	ErrEmptyQuery      = errors.New("search query is empty")
)

// StateError reports an operation attempted out of the required sequence.
type StateError struct {
	Op  string
	Err error
}

func (e *StateError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *StateError) Unwrap() error { return e.Err }

// ValidationError reports caller input that violates a local contract.
// It is always raised before any network call.
type ValidationError struct {
	Field  string
	Detail string
	Err    error
}

func (e *ValidationError) Error() string {
	msg := e.Err.Error()
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}

	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}

	return msg
}

func (e *ValidationError) Unwrap() error { return e.Err }

// RemoteFailure reports a gateway call that did not succeed. StatusCode is
// zero when the failure happened below HTTP (DNS, connection refused).
type RemoteFailure struct {
	Op         string
	Result     string
	StatusCode int
	Err        error
}

func (e *RemoteFailure) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s<%s> failed with status %d: %v", e.Op, e.Result, e.StatusCode, e.Err)
	}

	return fmt.Sprintf("%s<%s> failed: %v", e.Op, e.Result, e.Err)
}

func (e *RemoteFailure) Unwrap() error { return e.Err }

// StatusCoder is implemented by transport errors that carry an HTTP status.
type StatusCoder interface {
	HTTPStatus() int
}

// StatusCode returns the HTTP status carried anywhere in err's chain, or 0.
func StatusCode(err error) int {
	var rf *RemoteFailure
	if errors.As(err, &rf) && rf.StatusCode != 0 {
		return rf.StatusCode
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.HTTPStatus()
	}

	return 0
}

// IsState reports whether err is a StateError.
func IsState(err error) bool {
	var se *StateError
	return errors.As(err, &se)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsRemote reports whether err is a RemoteFailure.
func IsRemote(err error) bool {
	var rf *RemoteFailure
	return errors.As(err, &rf)
}
