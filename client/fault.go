package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Fault codes set by the client itself. Server-supplied codes are passed
// through unchanged.
const (
	CodeTimeout            = "timeout"
	CodeNetwork            = "network_error"
	CodeInvalidRequest     = "invalid_request"
	CodeRequestInterceptor = "request_interceptor"
)

// Fault is the error returned for every failed call: non-2xx responses,
// network failures, timeouts and requests that could not be sent.
//
// Status is the HTTP status, 408 for timeouts and 0 when no response was
// received.
type Fault struct {
	Message string
	Status  int
	Code    string
	Kind    Kind
	Header  http.Header
	Body    []byte

	Method string
	Path   string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements error.
func (f *Fault) Error() string {
	if f.Status > 0 {
		return fmt.Sprintf("client: %s %s: %d %s", f.Method, f.Path, f.Status, f.Message)
	}
	return fmt.Sprintf("client: %s %s: %s", f.Method, f.Path, f.Message)
}

// Unwrap returns the underlying cause.
func (f *Fault) Unwrap() error {
	return f.Err
}

// Transient reports whether repeating the request might succeed.
func (f *Fault) Transient() bool {
	return f.Kind.Transient()
}

// Is matches the sentinel errors for each fault kind, so callers can write
// errors.Is(err, client.ErrServer).
func (f *Fault) Is(target error) bool {
	switch target {
	case ErrTimeout:
		return f.Kind == KindTimeout
	case ErrNetwork:
		return f.Kind == KindNetworkError
	case ErrServer:
		return f.Kind == KindServerError
	case ErrUnauthorized:
		return f.Status == http.StatusUnauthorized
	case ErrNotFound:
		return f.Status == http.StatusNotFound
	default:
		return false
	}
}

// DecodeBody unmarshals the error body into v.
func (f *Fault) DecodeBody(v any) error {
	if len(f.Body) == 0 {
		return ErrEmptyBody
	}
	return json.Unmarshal(f.Body, v)
}

// AsFault returns the Fault in err's chain, if any.
func AsFault(err error) (*Fault, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	if f, ok := AsFault(err); ok {
		return f.Status
	}
	return 0
}
