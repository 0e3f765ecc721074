package client

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Kind classifies the result of a single attempt.
type Kind int

const (
	// KindSuccess is a 2xx response.
	KindSuccess Kind = iota
	// KindClientError is a 4xx response, or a status outside 2xx-5xx, or a
	// request that could not be built.
	KindClientError
	// KindServerError is a 5xx response.
	KindServerError
	// KindNetworkError means no response was received.
	KindNetworkError
	// KindTimeout means the attempt's deadline expired.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindClientError:
		return "client_error"
	case KindServerError:
		return "server_error"
	case KindNetworkError:
		return "network_error"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Transient reports whether an attempt of this kind is worth repeating.
func (k Kind) Transient() bool {
	switch k {
	case KindServerError, KindNetworkError, KindTimeout:
		return true
	default:
		return false
	}
}

// KindForStatus maps an HTTP status to an outcome kind. Informational and
// redirect statuses that reach the caller are treated as client errors.
func KindForStatus(status int) Kind {
	switch {
	case status >= 200 && status < 300:
		return KindSuccess
	case status >= 500 && status < 600:
		return KindServerError
	default:
		return KindClientError
	}
}

// Outcome is the classified result of one attempt.
type Outcome struct {
	Kind   Kind
	Status int
	Header http.Header
	Body   []byte

	// Err is the transport or encoding error behind a network, timeout or
	// request-building failure.
	Err error
}

// fault converts a failed outcome into the caller-facing error.
func (o Outcome) fault(req Request) *Fault {
	f := &Fault{
		Kind:   o.Kind,
		Status: o.Status,
		Header: o.Header,
		Body:   o.Body,
		Method: req.Method,
		Path:   req.Path,
		Err:    o.Err,
	}

	switch o.Kind {
	case KindTimeout:
		f.Status = http.StatusRequestTimeout
		f.Code = CodeTimeout
		f.Message = "request timed out"
	case KindNetworkError:
		f.Status = 0
		f.Code = CodeNetwork
		f.Message = "network error"
		if o.Err != nil {
			f.Message = "network error: " + o.Err.Error()
		}
	default:
		if o.Status == 0 {
			f.Code = CodeInvalidRequest
			f.Message = "invalid request"
			if o.Err != nil {
				f.Message = "invalid request: " + o.Err.Error()
			}
			break
		}
		f.Message, f.Code = describeBody(o.Body)
		if f.Message == "" {
			f.Message = http.StatusText(o.Status)
		}
		if f.Message == "" {
			f.Message = "unexpected status"
		}
	}
	return f
}

// describeBody pulls a human-readable message and a machine code out of a
// JSON error body. APIs disagree on the field names, so the common ones are
// all tried.
func describeBody(body []byte) (message, code string) {
	if len(body) == 0 {
		return "", ""
	}
	var payload struct {
		Message          string          `json:"message"`
		Error            json.RawMessage `json:"error"`
		ErrorDescription string          `json:"error_description"`
		Detail           string          `json:"detail"`
		Code             json.RawMessage `json:"code"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", ""
	}

	var errText string
	if len(payload.Error) > 0 {
		if err := json.Unmarshal(payload.Error, &errText); err != nil {
			var nested struct {
				Message string `json:"message"`
				Code    string `json:"code"`
			}
			if json.Unmarshal(payload.Error, &nested) == nil {
				errText = nested.Message
				if code == "" {
					code = nested.Code
				}
			}
		}
	}

	for _, candidate := range []string{payload.Message, payload.ErrorDescription, payload.Detail, errText} {
		if candidate != "" {
			message = candidate
			break
		}
	}

	if len(payload.Code) > 0 {
		code = strings.Trim(string(payload.Code), `"`)
	}
	return message, code
}
