// Package fault classifies relay failures into the categories callers branch on.
package fault

import (
	"errors"
	"fmt"
)

// Kind is the coarse-grained category callers branch on
type Kind string

const (
	Validation        Kind = "validation_error"
	Estimation        Kind = "estimation_error"
	InsufficientFunds Kind = "insufficient_funds"
	Revert            Kind = "revert"
	Connectivity      Kind = "connectivity"
	Broadcast         Kind = "broadcast_error"
	Read              Kind = "read_error"
	PartialFetch      Kind = "partial_fetch"
	Internal          Kind = "internal"
)

// Retryable reports whether a caller may resubmit without first changing
// its input. Validation and estimation failures are retryable only after
// the data is corrected, so they report false here.
func (k Kind) Retryable() bool {
	switch k {
	case Connectivity, Read, PartialFetch:
		return true
	}
	return false
}

// Error is a classified failure. Op names the step that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message returns the underlying diagnostic without the category prefix
func (e *Error) Message() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

// New builds a classified error from a plain message
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Err: errors.New(msg)}
}

// Newf is New with formatting
func Newf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap attaches a kind to err. An err that is already classified keeps
// its original kind.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first classified error in err's chain,
// or Internal when there is none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
