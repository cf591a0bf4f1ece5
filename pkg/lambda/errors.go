package lambda

import (
	"errors"
	"fmt"
)

// Classified failures understood by the invocation shim
var (
	ErrRouteNotFound        = errors.New("no route matched")
	ErrMethodNotAllowed     = errors.New("method not allowed for this route")
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	ErrUnknownEvent         = errors.New("unrecognized invocation event")
	ErrKindMismatch         = errors.New("event kind does not match handler")
)

// MalformedBodyError is returned when a body declared as base64 fails to decode
type MalformedBodyError struct {
	Err error
}

func (e *MalformedBodyError) Error() string {
	return fmt.Sprintf("malformed base64 request body: %v", e.Err)
}

func (e *MalformedBodyError) Unwrap() error {
	return e.Err
}

// RouteError reports a request path outside the configured base path
type RouteError struct {
	Path     string
	BasePath string
}

func (e *RouteError) Error() string {
	return fmt.Sprintf("path '%s' is outside base path '%s'", e.Path, e.BasePath)
}

// Is makes errors.Is(err, ErrRouteNotFound) hold for base path mismatches
func (e *RouteError) Is(target error) bool {
	return target == ErrRouteNotFound
}

// NotImplementedError maps a business failure to 501. Body is returned
// verbatim; nil means the literal "null".
type NotImplementedError struct {
	Body []byte
	Err  error
}

func (e *NotImplementedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("not implemented: %v", e.Err)
	}
	return "not implemented"
}

func (e *NotImplementedError) Unwrap() error {
	return e.Err
}

// IsRouteNotFound returns true if err means no route matched
func IsRouteNotFound(err error) bool {
	return errors.Is(err, ErrRouteNotFound)
}

// IsMalformedBody returns true if err is a body decoding failure
func IsMalformedBody(err error) bool {
	var mb *MalformedBodyError
	return errors.As(err, &mb)
}

// IsClassified returns true if err maps to a status other than 500
func IsClassified(err error) bool {
	var ni *NotImplementedError
	return IsRouteNotFound(err) ||
		IsMalformedBody(err) ||
		errors.Is(err, ErrMethodNotAllowed) ||
		errors.Is(err, ErrUnsupportedMediaType) ||
		errors.As(err, &ni)
}
