package client

import "errors"

// Sentinels matched by (*Fault).Is.
var (
	ErrTimeout      = errors.New("client: request timed out")
	ErrNetwork      = errors.New("client: network error")
	ErrServer       = errors.New("client: server error")
	ErrUnauthorized = errors.New("client: unauthorized")
	ErrNotFound     = errors.New("client: not found")
)

// Configuration and decoding errors.
var (
	ErrNoBaseURL   = errors.New("client: base URL is required")
	ErrInvalidURL  = errors.New("client: invalid base URL")
	ErrEmptyBody   = errors.New("client: empty body")
	ErrNilResponse = errors.New("client: nil response")
)
