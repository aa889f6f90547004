// Package apperr defines the client error model: a closed set of kinds, canonical codes with
// their HTTP status, and the normalisation of backend error bodies and transport failures.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
)

// Suggestion is a per-field hint, produced by local validation and by backend field errors.
type Suggestion struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// AppError is the single error shape surfaced by every client operation.
type AppError struct {
	Kind           Kind                `json:"kind"`
	Code           string              `json:"code"`
	Message        string              `json:"message"`
	Status         int                 `json:"status,omitempty"`
	Method         string              `json:"method,omitempty"`
	URL            string              `json:"url,omitempty"`
	Detail         string              `json:"detail,omitempty"`
	BackendCode    string              `json:"backend_code,omitempty"`
	NonFieldErrors []string            `json:"non_field_errors,omitempty"`
	Fields         map[string][]string `json:"fields,omitempty"`
	Suggestions    []Suggestion        `json:"suggestions,omitempty"`
	cause          error
	ec             *ErrorCode
}

// New creates a new AppError from an ErrorCode.
func New(ec *ErrorCode) *AppError {
	if ec == nil {
		ec = ErrorCodeInternal
	}
	return &AppError{
		Kind:    ec.Kind(),
		Code:    ec.Code(),
		Message: ec.Message(),
		Status:  ec.HTTPStatus(),
		ec:      ec,
	}
}

// Newf creates AppError with formatted message.
func Newf(ec *ErrorCode, format string, args ...any) *AppError {
	a := New(ec)
	a.Message = fmt.Sprintf(format, args...)
	return a
}

// FromTransport classifies an error returned before any response arrived.
// upload selects the upload wording for timeouts.
func FromTransport(err error, method, url string, upload bool) *AppError {
	if err == nil {
		return nil
	}
	var existing *AppError
	if errors.As(err, &existing) {
		return existing
	}

	var ec *ErrorCode
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		ec = ErrorCodeCanceled
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		ec = ErrorCodeTimeout
		if upload {
			ec = ErrorCodeUploadTimeout
		}
	default:
		ec = ErrorCodeNetwork
	}
	a := New(ec).WithRequest(method, url).Wrap(err)
	a.Status = 0
	return a
}

// Wrap sets the underlying cause and returns the same AppError.
func (a *AppError) Wrap(err error) *AppError {
	if a == nil {
		a = New(ErrorCodeInternal)
	}
	a.cause = err
	return a
}

// WithRequest records the method and URL of the failed call.
func (a *AppError) WithRequest(method, url string) *AppError {
	a.Method = method
	a.URL = url
	return a
}

// WithMessage overrides the message and returns the same AppError for chaining.
func (a *AppError) WithMessage(msg string) *AppError {
	if a == nil {
		return New(ErrorCodeInternal).WithMessage(msg)
	}
	a.Message = msg
	return a
}

// WithCode replaces the underlying ErrorCode (kind/code/message) and keeps request details.
func (a *AppError) WithCode(ec *ErrorCode) *AppError {
	if ec == nil {
		ec = ErrorCodeInternal
	}
	if a == nil {
		return New(ec)
	}
	a.ec = ec
	a.Kind = ec.Kind()
	a.Code = ec.Code()
	a.Message = ec.Message()
	return a
}

// Summarize returns an error of the same kind and status whose only user-facing text is msg.
// The detailed backend error stays reachable through Unwrap.
func (a *AppError) Summarize(msg string) *AppError {
	if a == nil {
		return New(ErrorCodeInternal).WithMessage(msg)
	}
	return &AppError{
		Kind:        a.Kind,
		Code:        a.Code,
		Message:     msg,
		Status:      a.Status,
		Method:      a.Method,
		URL:         a.URL,
		BackendCode: a.BackendCode,
		cause:       a,
		ec:          a.ec,
	}
}

// AddSuggestion appends a field suggestion (fluent)
func (a *AppError) AddSuggestion(field, message string) *AppError {
	if a == nil {
		a = New(ErrorCodeValidationFail)
	}
	a.Suggestions = append(a.Suggestions, Suggestion{Field: field, Message: message})
	return a
}

// ErrorCode returns the catalogue entry the error was built from.
func (a *AppError) ErrorCode() *ErrorCode { return a.ec }

func (a *AppError) Error() string {
	if a == nil {
		return "<nil>"
	}
	return a.Describe()
}

// Unwrap returns the underlying cause, allowing errors.Unwrap/Is/As to work.
func (a *AppError) Unwrap() error { return a.cause }

// Is matches another AppError carrying the same code, so sentinels built with New work with errors.Is.
func (a *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t != nil && a != nil && t.Code == a.Code
}

// BackendMessage returns the most specific message the backend sent: detail, then
// non_field_errors, then the named fields in order. ok is false when the body had none of them.
func (a *AppError) BackendMessage(fields ...string) (msg string, ok bool) {
	if a == nil {
		return "", false
	}
	if a.Detail != "" {
		return a.Detail, true
	}
	if len(a.NonFieldErrors) > 0 {
		return a.NonFieldErrors[0], true
	}
	for _, f := range fields {
		if v := a.Fields[f]; len(v) > 0 {
			return v[0], true
		}
	}
	return "", false
}

// Describe is BackendMessage falling back to the first remaining field error, then Message.
func (a *AppError) Describe(fields ...string) string {
	if msg, ok := a.BackendMessage(fields...); ok {
		return msg
	}
	if len(a.Fields) > 0 {
		names := make([]string, 0, len(a.Fields))
		for k := range a.Fields {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, n := range names {
			if v := a.Fields[n]; len(v) > 0 {
				return fmt.Sprintf("%s: %s", n, v[0])
			}
		}
	}
	if len(a.Suggestions) > 0 {
		return a.Suggestions[0].Message
	}
	return a.Message
}

// LogFields returns key/value pairs for LogManager.With.
func (a *AppError) LogFields() []any {
	fields := []any{"kind", string(a.Kind), "code", a.Code}
	if a.Status != 0 {
		fields = append(fields, "status", a.Status)
	}
	if a.Method != "" {
		fields = append(fields, "method", a.Method, "url", a.URL)
	}
	if a.cause != nil {
		fields = append(fields, "cause", a.cause.Error())
	}
	return fields
}

// As extracts the AppError in err's chain.
func As(err error) (*AppError, bool) {
	var a *AppError
	if errors.As(err, &a) {
		return a, true
	}
	return nil, false
}

// KindOf returns the kind of err, or empty when err is not an AppError.
func KindOf(err error) Kind {
	if a, ok := As(err); ok {
		return a.Kind
	}
	return ""
}

// IsKind reports whether err is an AppError of kind k.
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}

// IsCode reports whether err carries the code of ec.
func IsCode(err error, ec *ErrorCode) bool {
	a, ok := As(err)
	return ok && ec != nil && a.Code == ec.Code()
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	if a, ok := As(err); ok {
		return a.Status
	}
	return 0
}

// UserMessage is the text a front end should show for err.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if a, ok := As(err); ok {
		return a.Describe()
	}
	return err.Error()
}

// HasError returns true if the error is not nil and is not an empty AppError
func HasError(err error) bool {
	if err == nil {
		return false
	}
	if a, ok := err.(*AppError); ok {
		return a != nil && (a.Code != "" || a.Message != "")
	}
	return true
}
