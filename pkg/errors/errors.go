// Package errors adds stack traces to errors raised by storage and setup code.
// Errors that reach callers of the client are *apperr.AppError instead.
package errors

import (
	stdErrors "errors"
	"fmt"
	"runtime"
	"strings"
)

// Error wraps an error with a message and stack trace.
type Error struct {
	msg   string
	err   error
	stack string
}

func (e *Error) Error() string {
	if e.err == nil {
		return e.msg
	}
	return e.msg + ": " + e.err.Error()
}

func (e *Error) Unwrap() error {
	return e.err
}

func (e *Error) StackTrace() string {
	return e.stack
}

// Wrap wraps err with msg and stack trace. A nil err stays nil.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{msg: msg, err: err, stack: callers()}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{msg: fmt.Sprintf(format, args...), err: err, stack: callers()}
}

// New creates a new error with stack trace.
func New(msg string) error {
	return &Error{msg: msg, stack: callers()}
}

// StackOf returns the innermost recorded stack in err's chain, or "".
func StackOf(err error) string {
	var stack string
	for err != nil {
		if e, ok := err.(*Error); ok {
			stack = e.stack
		}
		err = stdErrors.Unwrap(err)
	}
	return stack
}

func Is(err, target error) bool { return stdErrors.Is(err, target) }

func As(err error, target any) bool { return stdErrors.As(err, target) }

// callers returns a formatted stack trace, skipping the errors package frames.
func callers() string {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	var b strings.Builder
	for {
		frame, more := frames.Next()
		fmt.Fprintf(&b, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
		if !more {
			break
		}
	}
	return b.String()
}
