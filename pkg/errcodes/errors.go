package errcodes

import (
	"fmt"
	"net/http"
	"sort"
)

type Error struct {
	HTTPCode int
	Message  string
	Code     string
	// Fields holds per-field messages, keyed by the JSON field name.
	Fields map[string][]string
}

func (err *Error) Error() string {
	return err.Message
}

func (err *Error) As(target interface{}) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	te.HTTPCode = err.HTTPCode
	te.Message = err.Message
	te.Code = err.Code
	te.Fields = err.Fields
	return true
}

func (err *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return te.HTTPCode == err.HTTPCode &&
		te.Message == err.Message &&
		te.Code == err.Code
}

// Unauthorized returns a 401 error with the given message.
func Unauthorized(msg string) error {
	return &Error{
		HTTPCode: http.StatusUnauthorized,
		Message:  msg,
		Code:     "unauthorized",
	}
}

// NotFound returns a 404 error with a message indicating the given resource.
func NotFound(resource string) error {
	return &Error{
		HTTPCode: http.StatusNotFound,
		Message:  resource + " not found.",
		Code:     "not_found",
	}
}

func UnsupportedMediaType() error {
	return &Error{
		HTTPCode: http.StatusUnsupportedMediaType,
		Message:  "Unsupported Media Type",
		Code:     "unsupported_media_type",
	}
}

func UnknownParameter(param string) error {
	return &Error{
		HTTPCode: http.StatusBadRequest,
		Message:  fmt.Sprintf("Unknown Parameter %q", param),
		Code:     "unknown_parameter",
	}
}

func ValidationTypeError(msg string) error {
	return &Error{
		HTTPCode: http.StatusBadRequest,
		Message:  msg,
		Code:     "validation_type_error",
	}
}

func ValidationError(msg string) error {
	return &Error{
		HTTPCode: http.StatusBadRequest,
		Message:  msg,
		Code:     "validation_error",
	}
}

// FieldErrors returns a 400 validation error that carries every failing
// field. The top-level message is the first message of the alphabetically
// first field so that the output is stable.
func FieldErrors(fields map[string][]string) error {
	return &Error{
		HTTPCode: http.StatusBadRequest,
		Message:  firstMessage(fields),
		Code:     "validation_error",
		Fields:   fields,
	}
}

// Conflict returns a 400 error for a value that collides with an existing
// record, e.g. a duplicate unique column.
func Conflict(field, msg string) error {
	return &Error{
		HTTPCode: http.StatusBadRequest,
		Message:  msg,
		Code:     "conflict",
		Fields:   map[string][]string{field: {msg}},
	}
}

func MalformedPayload() error {
	return &Error{
		HTTPCode: http.StatusBadRequest,
		Message:  "Malformed Payload",
		Code:     "malformed_payload",
	}
}

func EmptyRequestBody() error {
	return &Error{
		HTTPCode: http.StatusBadRequest,
		Message:  "Request body can't be empty.",
		Code:     "empty_request_body",
	}
}

func TooManyRequests() error {
	return &Error{
		HTTPCode: http.StatusTooManyRequests,
		Message:  "Too many requests, slow down.",
		Code:     "too_many_requests",
	}
}

func firstMessage(fields map[string][]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if len(fields[k]) > 0 {
			return fields[k][0]
		}
	}
	return "Invalid input."
}
