package client

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RequestInterceptor transforms an outgoing request before the first
// attempt. Returning an error aborts the call with a Fault whose Code is
// CodeRequestInterceptor.
type RequestInterceptor func(ctx context.Context, req Request) (Request, error)

// ResponseInterceptor transforms a successful response. Returning nil keeps
// the response it was given.
type ResponseInterceptor func(ctx context.Context, resp *Response, req Request) *Response

// ErrorInterceptor observes or replaces a fault. Returning nil keeps the
// fault it was given; a fault can be replaced but never swallowed.
type ErrorInterceptor func(ctx context.Context, fault *Fault, req Request) *Fault

// Pipeline holds interceptors in registration order. Registration is safe
// while calls are in flight; each call sees a snapshot.
type Pipeline struct {
	mu        sync.RWMutex
	requests  []RequestInterceptor
	responses []ResponseInterceptor
	errors    []ErrorInterceptor
}

// UseRequest appends request interceptors.
func (p *Pipeline) UseRequest(fns ...RequestInterceptor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, fn := range fns {
		if fn != nil {
			p.requests = append(p.requests, fn)
		}
	}
}

// UseResponse appends response interceptors.
func (p *Pipeline) UseResponse(fns ...ResponseInterceptor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, fn := range fns {
		if fn != nil {
			p.responses = append(p.responses, fn)
		}
	}
}

// UseError appends error interceptors.
func (p *Pipeline) UseError(fns ...ErrorInterceptor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, fn := range fns {
		if fn != nil {
			p.errors = append(p.errors, fn)
		}
	}
}

func (p *Pipeline) snapshot() ([]RequestInterceptor, []ResponseInterceptor, []ErrorInterceptor) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.requests[:len(p.requests):len(p.requests)],
		p.responses[:len(p.responses):len(p.responses)],
		p.errors[:len(p.errors):len(p.errors)]
}

func (p *Pipeline) applyRequest(ctx context.Context, req Request) (Request, error) {
	reqs, _, _ := p.snapshot()
	for _, fn := range reqs {
		next, err := fn(ctx, req.clone())
		if err != nil {
			return req, err
		}
		req = next.clone()
	}
	return req, nil
}

func (p *Pipeline) applyResponse(ctx context.Context, resp *Response, req Request) *Response {
	_, resps, _ := p.snapshot()
	for _, fn := range resps {
		if next := fn(ctx, resp, req); next != nil {
			resp = next
		}
	}
	return resp
}

func (p *Pipeline) applyError(ctx context.Context, fault *Fault, req Request) *Fault {
	_, _, errs := p.snapshot()
	for _, fn := range errs {
		if next := fn(ctx, fault, req); next != nil {
			fault = next
		}
	}
	return fault
}

// Header names set by the built-in interceptors.
const (
	HeaderRequestID        = "X-Request-Id"
	HeaderRequestTimestamp = "X-Request-Timestamp"
	HeaderUserAgent        = "User-Agent"
)

// RequestID sets X-Request-Id to a random UUID unless the caller set one.
// The same ID is sent on every attempt of a call.
func RequestID() RequestInterceptor {
	return func(_ context.Context, req Request) (Request, error) {
		if _, ok := req.Header(HeaderRequestID); ok {
			return req, nil
		}
		return req.WithHeader(HeaderRequestID, uuid.NewString()), nil
	}
}

// Timestamp records when the call was issued, in Unix milliseconds.
func Timestamp(now func() time.Time) RequestInterceptor {
	if now == nil {
		now = time.Now
	}
	return func(_ context.Context, req Request) (Request, error) {
		return req.WithHeader(HeaderRequestTimestamp, strconv.FormatInt(now().UnixMilli(), 10)), nil
	}
}

// UserAgent sets the User-Agent header unless the caller set one.
func UserAgent(ua string) RequestInterceptor {
	return func(_ context.Context, req Request) (Request, error) {
		if ua == "" {
			return req, nil
		}
		if _, ok := req.Header(HeaderUserAgent); ok {
			return req, nil
		}
		return req.WithHeader(HeaderUserAgent, ua), nil
	}
}
