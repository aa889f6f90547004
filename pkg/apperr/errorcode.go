package apperr

import "net/http"

// Kind is the closed taxonomy every client error falls into.
type Kind string

const (
	KindValidation Kind = "validation"
	KindAuth       Kind = "auth"
	KindNetwork    Kind = "network"
	KindUpload     Kind = "upload"
	KindNotFound   Kind = "not_found"
	KindServer     Kind = "server"
)

// Predefined error codes. Value orders codes by severity within the catalogue.
var (
	ErrorCodeInvalidRequest     = NewErrorCode("invalid_request", "Invalid request. Please check your input.", KindValidation, 10, http.StatusBadRequest)
	ErrorCodeValidationFail     = NewErrorCode("validation_failed", "Validation failed", KindValidation, 20, http.StatusUnprocessableEntity)
	ErrorCodeUnauthorized       = NewErrorCode("unauthorized", "Your session has expired. Please log in again.", KindAuth, 40, http.StatusUnauthorized)
	ErrorCodeForbidden          = NewErrorCode("forbidden", "You do not have permission to do that.", KindAuth, 50, http.StatusForbidden)
	ErrorCodeNotFound           = NewErrorCode("not_found", "Not found", KindNotFound, 60, http.StatusNotFound)
	ErrorCodeFileTooLarge       = NewErrorCode("file_too_large", "File is too large.", KindUpload, 70, http.StatusRequestEntityTooLarge)
	ErrorCodeUnsupportedFormat  = NewErrorCode("unsupported_format", "Unsupported file format. Please upload an image or video.", KindUpload, 71, http.StatusUnsupportedMediaType)
	ErrorCodeUploadTimeout      = NewErrorCode("upload_timeout", "Upload timed out. Try a smaller file or check your connection.", KindUpload, 72, 0)
	ErrorCodeFileUnreadable     = NewErrorCode("file_unreadable", "Could not read the selected file.", KindUpload, 73, 0)
	ErrorCodeTimeout            = NewErrorCode("request_timeout", "Request timed out. Please try again.", KindNetwork, 80, http.StatusRequestTimeout)
	ErrorCodeNetwork            = NewErrorCode("network_unreachable", "Cannot connect to server. Please check your connection.", KindNetwork, 81, 0)
	ErrorCodeCanceled           = NewErrorCode("request_canceled", "Request was canceled.", KindNetwork, 82, 0)
	ErrorCodeRateLimited        = NewErrorCode("rate_limited", "Too many requests. Please slow down.", KindServer, 90, http.StatusTooManyRequests)
	ErrorCodeServiceUnavailable = NewErrorCode("service_unavailable", "Service temporarily unavailable. Please try again later.", KindServer, 91, http.StatusServiceUnavailable)
	ErrorCodeInvalidResponse    = NewErrorCode("invalid_response", "Unexpected response from server.", KindServer, 95, 0)
	ErrorCodeInternal           = NewErrorCode("server_error", "Server error. Please try again later.", KindServer, 100, http.StatusInternalServerError)
)

// ErrorCode describes a canonical application error code.
// It carries a kind, a numeric severity (Value) and the HTTP status it corresponds to.
type ErrorCode struct {
	code       string
	message    string
	kind       Kind
	value      int
	httpStatus int
}

func NewErrorCode(code, message string, kind Kind, value, httpStatus int) *ErrorCode {
	return &ErrorCode{code: code, message: message, kind: kind, value: value, httpStatus: httpStatus}
}

func (ec *ErrorCode) Code() string    { return ec.code }
func (ec *ErrorCode) Message() string { return ec.message }
func (ec *ErrorCode) Kind() Kind      { return ec.kind }
func (ec *ErrorCode) Value() int      { return ec.value }
func (ec *ErrorCode) HTTPStatus() int { return ec.httpStatus }

// CodeForStatus maps a non-2xx response status onto the catalogue.
func CodeForStatus(status int) *ErrorCode {
	switch {
	case status == http.StatusBadRequest:
		return ErrorCodeInvalidRequest
	case status == http.StatusUnprocessableEntity:
		return ErrorCodeValidationFail
	case status == http.StatusUnauthorized:
		return ErrorCodeUnauthorized
	case status == http.StatusForbidden:
		return ErrorCodeForbidden
	case status == http.StatusNotFound:
		return ErrorCodeNotFound
	case status == http.StatusRequestEntityTooLarge:
		return ErrorCodeFileTooLarge
	case status == http.StatusUnsupportedMediaType:
		return ErrorCodeUnsupportedFormat
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return ErrorCodeTimeout
	case status == http.StatusTooManyRequests:
		return ErrorCodeRateLimited
	case status == http.StatusServiceUnavailable:
		return ErrorCodeServiceUnavailable
	case status >= 500:
		return ErrorCodeInternal
	default:
		return ErrorCodeInvalidRequest
	}
}
