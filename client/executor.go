package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jonwraymond/apisession/resilience"
)

// DefaultMaxResponseBytes caps how much of a response body is read.
const DefaultMaxResponseBytes = 32 << 20

// Executor performs exactly one HTTP attempt and classifies its result. It
// never returns an error: every failure is folded into the Outcome.
type Executor struct {
	http     *http.Client
	base     *url.URL
	timeout  time.Duration
	maxBytes int64
}

// NewExecutor creates an executor that resolves request paths against
// baseURL. A nil httpClient uses a client with no overall timeout; deadlines
// come from the per-attempt timeout instead.
func NewExecutor(httpClient *http.Client, baseURL string, timeout time.Duration) (*Executor, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, ErrNoBaseURL
	}
	base, err := url.Parse(baseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, baseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if timeout <= 0 {
		timeout = resilience.DefaultTimeout
	}
	return &Executor{
		http:     httpClient,
		base:     base,
		timeout:  timeout,
		maxBytes: DefaultMaxResponseBytes,
	}, nil
}

// BaseURL returns the URL request paths are resolved against.
func (e *Executor) BaseURL() *url.URL {
	u := *e.base
	return &u
}

// Resolve turns a request path into an absolute URL. Absolute URLs are used
// as given; relative paths are joined to the base URL, keeping its path
// prefix.
func (e *Executor) Resolve(path string) (*url.URL, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("parse path %q: %w", path, err)
	}
	if ref.IsAbs() {
		return ref, nil
	}
	ref.Path = strings.TrimPrefix(ref.Path, "/")
	return e.base.ResolveReference(ref), nil
}

// Execute sends req once, bounded by req.Timeout or the executor default.
func (e *Executor) Execute(ctx context.Context, req Request) Outcome {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.timeout
	}

	var out Outcome
	err := resilience.ExecuteWithTimeout(ctx, timeout, func(ctx context.Context) error {
		var err error
		out, err = e.send(ctx, req)
		return err
	})
	if err == nil {
		return out
	}

	switch {
	case out.Kind == KindClientError && out.Status == 0:
		// Request building failed; nothing was sent.
		return out
	case resilience.IsTimeout(err):
		return Outcome{Kind: KindTimeout, Err: err}
	default:
		return Outcome{Kind: KindNetworkError, Err: err}
	}
}

// send returns a non-nil error only when no response was obtained.
func (e *Executor) send(ctx context.Context, req Request) (Outcome, error) {
	target, err := e.Resolve(req.Path)
	if err != nil {
		return Outcome{Kind: KindClientError, Err: err}, err
	}

	body, contentType, err := req.Body.encode()
	if err != nil {
		return Outcome{Kind: KindClientError, Err: err}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
	if err != nil {
		return Outcome{Kind: KindClientError, Err: err}, err
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}

	resp, err := e.http.Do(httpReq)
	if err != nil {
		return Outcome{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, e.maxBytes))
	if err != nil {
		return Outcome{}, fmt.Errorf("read response body: %w", err)
	}

	return Outcome{
		Kind:   KindForStatus(resp.StatusCode),
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   data,
	}, nil
}
