package host

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// ErrStopped is returned by Call once the host has stopped.
var ErrStopped = errors.New("host stopped")

// ErrorCode categorizes a failed call.
type ErrorCode string

const (
	// ErrCodeUnknownReducer: no reducer with that name is declared.
	ErrCodeUnknownReducer ErrorCode = "UNKNOWN_REDUCER"

	// ErrCodeInvalidArgs: args are missing, unexpected, or of the wrong type.
	ErrCodeInvalidArgs ErrorCode = "INVALID_ARGS"

	// ErrCodeReducerFailed: the reducer returned an error or panicked.
	ErrCodeReducerFailed ErrorCode = "REDUCER_FAILED"

	// ErrCodeCapacityExceeded: the store refused a write for lack of room.
	ErrCodeCapacityExceeded ErrorCode = "CAPACITY_EXCEEDED"

	// ErrCodeStorage: the host could not log, begin or commit the call.
	ErrCodeStorage ErrorCode = "STORAGE_FAILED"
)

// CallError describes why a call did not commit.
type CallError struct {
	Code    ErrorCode
	Reducer string
	Message string
	Err     error
}

func (e *CallError) Error() string {
	if e.Reducer != "" {
		return fmt.Sprintf("%s: %s (reducer=%s)", e.Code, e.Message, e.Reducer)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of the CallError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

func IsUnknownReducer(err error) bool {
	return CodeOf(err) == ErrCodeUnknownReducer
}

func IsInvalidArgs(err error) bool {
	return CodeOf(err) == ErrCodeInvalidArgs
}

// IsCapacityError reports whether a call failed because storage was full.
func IsCapacityError(err error) bool {
	return CodeOf(err) == ErrCodeCapacityExceeded
}
