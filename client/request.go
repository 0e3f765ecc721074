package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"mime/multipart"
	"slices"
	"strings"
	"time"
)

// DefaultRetries marks a Request whose retry budget comes from the retry
// policy's per-verb default.
const DefaultRetries = -1

// Request describes one API call. It is a value: interceptors receive a copy
// and return a new one, and the helpers below never modify the receiver's
// header map in place.
type Request struct {
	Method  string
	Path    string
	Headers map[string]string
	Body    Body

	// Timeout bounds each attempt. Zero uses the client default.
	Timeout time.Duration

	// MaxRetries is the retry budget. DefaultRetries uses the verb default;
	// zero disables retries.
	MaxRetries int

	// RetryBaseDelay is the delay before the first retry. Zero uses the
	// policy default.
	RetryBaseDelay time.Duration
}

// NewRequest returns a request with the default retry budget.
func NewRequest(method, path string, body Body) Request {
	return Request{
		Method:     strings.ToUpper(method),
		Path:       path,
		Body:       body,
		MaxRetries: DefaultRetries,
	}
}

// WithHeader returns a copy of r with header key set to value. An existing
// header with the same name in any letter case is replaced.
func (r Request) WithHeader(key, value string) Request {
	out := r.WithoutHeader(key)
	out.Headers[key] = value
	return out
}

// WithoutHeader returns a copy of r with header key removed, matched
// case-insensitively.
func (r Request) WithoutHeader(key string) Request {
	headers := make(map[string]string, len(r.Headers)+1)
	for k, v := range r.Headers {
		if !strings.EqualFold(k, key) {
			headers[k] = v
		}
	}
	r.Headers = headers
	return r
}

// Header returns the value of header key, matched case-insensitively.
func (r Request) Header(key string) (string, bool) {
	for k, v := range r.Headers {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

func (r Request) clone() Request {
	r.Method = strings.ToUpper(r.Method)
	r.Headers = maps.Clone(r.Headers)
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	return r
}

// BodyKind identifies how a request body is serialized.
type BodyKind int

const (
	BodyNone BodyKind = iota
	BodyJSON
	BodyRaw
	BodyMultipart
)

func (k BodyKind) String() string {
	switch k {
	case BodyNone:
		return "none"
	case BodyJSON:
		return "json"
	case BodyRaw:
		return "raw"
	case BodyMultipart:
		return "multipart"
	default:
		return "unknown"
	}
}

// Body is a request payload. Bodies are re-encoded for every attempt, so a
// retried request never sends a drained reader.
type Body struct {
	kind        BodyKind
	value       any
	raw         []byte
	contentType string
	fields      map[string]string
	files       []File
}

// File is one file part of a multipart body.
type File struct {
	Field    string
	Filename string
	Content  []byte
}

// NoBody is the empty body.
var NoBody = Body{}

// JSON returns a body that is marshaled with encoding/json and sent with
// Content-Type: application/json.
func JSON(v any) Body {
	return Body{kind: BodyJSON, value: v}
}

// Raw returns a binary body. An empty contentType leaves the header to the
// caller's request headers, or unset.
func Raw(data []byte, contentType string) Body {
	return Body{kind: BodyRaw, raw: data, contentType: contentType}
}

// Multipart returns a multipart/form-data body. The content type, including
// its boundary, is always chosen by the encoder; a caller-supplied
// Content-Type header is dropped.
func Multipart(fields map[string]string, files ...File) Body {
	return Body{kind: BodyMultipart, fields: maps.Clone(fields), files: files}
}

// Kind reports how the body is serialized.
func (b Body) Kind() BodyKind {
	return b.kind
}

// encode returns a fresh reader over the serialized body and the content
// type it requires. An empty content type means "do not set".
func (b Body) encode() (io.Reader, string, error) {
	switch b.kind {
	case BodyNone:
		return nil, "", nil

	case BodyJSON:
		data, err := json.Marshal(b.value)
		if err != nil {
			return nil, "", fmt.Errorf("encode json body: %w", err)
		}
		return bytes.NewReader(data), "application/json", nil

	case BodyRaw:
		return bytes.NewReader(b.raw), b.contentType, nil

	case BodyMultipart:
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		for _, k := range sortedKeys(b.fields) {
			if err := w.WriteField(k, b.fields[k]); err != nil {
				return nil, "", fmt.Errorf("encode multipart field %q: %w", k, err)
			}
		}
		for _, f := range b.files {
			part, err := w.CreateFormFile(f.Field, f.Filename)
			if err != nil {
				return nil, "", fmt.Errorf("encode multipart file %q: %w", f.Field, err)
			}
			if _, err := part.Write(f.Content); err != nil {
				return nil, "", fmt.Errorf("encode multipart file %q: %w", f.Field, err)
			}
		}
		if err := w.Close(); err != nil {
			return nil, "", fmt.Errorf("encode multipart body: %w", err)
		}
		return &buf, w.FormDataContentType(), nil

	default:
		return nil, "", fmt.Errorf("unknown body kind %d", b.kind)
	}
}

// sortedKeys fixes the order of form fields across attempts.
func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}
