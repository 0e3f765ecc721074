package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/jonwraymond/apisession/observe"
	"github.com/jonwraymond/apisession/resilience"
)

// Response is a successful (2xx) response.
type Response struct {
	Status   int
	Header   http.Header
	Body     []byte
	Attempts int
}

// JSON unmarshals the response body into v.
func (r *Response) JSON(v any) error {
	if r == nil {
		return ErrNilResponse
	}
	if len(r.Body) == 0 {
		return ErrEmptyBody
	}
	return json.Unmarshal(r.Body, v)
}

// DecodeJSON decodes the body of a call's response. It accepts a call's
// return values directly:
//
//	item, err := client.DecodeJSON[Item](c.Get(ctx, "/items/42"))
func DecodeJSON[T any](resp *Response, err error) (T, error) {
	var v T
	if err != nil {
		return v, err
	}
	if err := resp.JSON(&v); err != nil {
		return v, fmt.Errorf("client: decode response: %w", err)
	}
	return v, nil
}

// Client is the resilient API client. Every call runs the request
// interceptors, then the executor under the retry policy, then either the
// response or the error interceptors.
//
// Contract:
//   - Concurrency: safe for concurrent use; calls share nothing but the
//     interceptor list and what interceptors themselves read.
//   - Errors: every failed call returns a non-nil *Fault.
//   - Context: cancelling ctx aborts the current attempt and any pending
//     retry wait.
type Client struct {
	exec       *Executor
	policy     *resilience.RetryPolicy
	pipeline   *Pipeline
	middleware *observe.Middleware
	logger     observe.Logger
}

type options struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	policy     *resilience.RetryPolicy
	logger     observe.Logger
	observer   observe.Observer
	middleware *observe.Middleware
	userAgent  string
	requestID  bool
	requests   []RequestInterceptor
	errors     []ErrorInterceptor
}

// Option configures a Client.
type Option func(*options)

// WithBaseURL sets the URL request paths are resolved against. Required.
func WithBaseURL(u string) Option {
	return func(o *options) { o.baseURL = u }
}

// WithHTTPClient sets the transport client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithDefaultTimeout sets the per-attempt timeout for calls that set none.
func WithDefaultTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p *resilience.RetryPolicy) Option {
	return func(o *options) { o.policy = p }
}

// WithLogger sets the logger used for call and retry logging.
func WithLogger(l observe.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithObserver traces, measures and logs every call through obs.
func WithObserver(obs observe.Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithMiddleware wraps every call with mw. It takes precedence over
// WithObserver.
func WithMiddleware(mw *observe.Middleware) Option {
	return func(o *options) { o.middleware = mw }
}

// WithUserAgent sets the User-Agent sent on every call.
func WithUserAgent(ua string) Option {
	return func(o *options) { o.userAgent = ua }
}

// WithoutRequestID disables the X-Request-Id interceptor.
func WithoutRequestID() Option {
	return func(o *options) { o.requestID = false }
}

// WithRequestInterceptors registers request interceptors at construction.
func WithRequestInterceptors(fns ...RequestInterceptor) Option {
	return func(o *options) { o.requests = append(o.requests, fns...) }
}

// WithErrorInterceptors registers error interceptors at construction.
func WithErrorInterceptors(fns ...ErrorInterceptor) Option {
	return func(o *options) { o.errors = append(o.errors, fns...) }
}

// New creates a Client. A base URL is required.
func New(opts ...Option) (*Client, error) {
	o := options{requestID: true}
	for _, opt := range opts {
		opt(&o)
	}

	exec, err := NewExecutor(o.httpClient, o.baseURL, o.timeout)
	if err != nil {
		return nil, err
	}

	if o.policy == nil {
		o.policy = resilience.NewRetryPolicy(resilience.RetryConfig{})
	}
	if o.logger == nil {
		o.logger = observe.NopLogger()
		if o.observer != nil {
			o.logger = o.observer.Logger()
		}
	}
	if o.middleware == nil && o.observer != nil {
		mw, err := observe.MiddlewareFromObserver(o.observer)
		if err != nil {
			return nil, fmt.Errorf("client: observer middleware: %w", err)
		}
		o.middleware = mw
	}

	c := &Client{
		exec:       exec,
		policy:     o.policy,
		pipeline:   &Pipeline{},
		middleware: o.middleware,
		logger:     o.logger,
	}
	if o.requestID {
		c.pipeline.UseRequest(RequestID())
	}
	if o.userAgent != "" {
		c.pipeline.UseRequest(UserAgent(o.userAgent))
	}
	c.pipeline.UseRequest(o.requests...)
	c.pipeline.UseError(o.errors...)
	return c, nil
}

// UseRequest appends request interceptors.
func (c *Client) UseRequest(fns ...RequestInterceptor) { c.pipeline.UseRequest(fns...) }

// UseResponse appends response interceptors.
func (c *Client) UseResponse(fns ...ResponseInterceptor) { c.pipeline.UseResponse(fns...) }

// UseError appends error interceptors.
func (c *Client) UseError(fns ...ErrorInterceptor) { c.pipeline.UseError(fns...) }

// BaseURL returns the URL request paths are resolved against.
func (c *Client) BaseURL() *url.URL { return c.exec.BaseURL() }

// CallOption adjusts a single call.
type CallOption func(*Request)

// WithHeaders adds headers to one call.
func WithHeaders(h map[string]string) CallOption {
	return func(r *Request) {
		for k, v := range h {
			*r = r.WithHeader(k, v)
		}
	}
}

// WithRetries overrides the retry budget for one call. Zero disables
// retries. GET and HEAD never retry more than the policy's read budget.
func WithRetries(n int) CallOption {
	return func(r *Request) { r.MaxRetries = max(n, 0) }
}

// WithRetryDelay overrides the base retry delay for one call.
func WithRetryDelay(d time.Duration) CallOption {
	return func(r *Request) { r.RetryBaseDelay = d }
}

// WithTimeout overrides the per-attempt timeout for one call.
func WithTimeout(d time.Duration) CallOption {
	return func(r *Request) { r.Timeout = d }
}

// Get sends a GET request.
func (c *Client) Get(ctx context.Context, path string, opts ...CallOption) (*Response, error) {
	return c.call(ctx, http.MethodGet, path, NoBody, opts)
}

// Post sends a POST request.
func (c *Client) Post(ctx context.Context, path string, body Body, opts ...CallOption) (*Response, error) {
	return c.call(ctx, http.MethodPost, path, body, opts)
}

// Put sends a PUT request.
func (c *Client) Put(ctx context.Context, path string, body Body, opts ...CallOption) (*Response, error) {
	return c.call(ctx, http.MethodPut, path, body, opts)
}

// Patch sends a PATCH request.
func (c *Client) Patch(ctx context.Context, path string, body Body, opts ...CallOption) (*Response, error) {
	return c.call(ctx, http.MethodPatch, path, body, opts)
}

// Delete sends a DELETE request.
func (c *Client) Delete(ctx context.Context, path string, opts ...CallOption) (*Response, error) {
	return c.call(ctx, http.MethodDelete, path, NoBody, opts)
}

func (c *Client) call(ctx context.Context, method, path string, body Body, opts []CallOption) (*Response, error) {
	req := NewRequest(method, path, body).clone()
	for _, opt := range opts {
		opt(&req)
	}
	return c.Do(ctx, req)
}

// Do sends req. A zero MaxRetries means no retries; use NewRequest or
// DefaultRetries for the verb default.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	req = req.clone()
	meta := observe.RequestMeta{
		Method: req.Method,
		Path:   pathOnly(req.Path),
		Host:   c.exec.base.Host,
	}

	var resp *Response
	call := func(ctx context.Context, _ observe.RequestMeta) (observe.Result, error) {
		r, res, fault := c.do(ctx, req)
		if fault != nil {
			return res, fault
		}
		resp = r
		return res, nil
	}
	if c.middleware != nil {
		call = c.middleware.Wrap(call)
	}

	if _, err := call(ctx, meta); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, req Request) (*Response, observe.Result, *Fault) {
	req, err := c.pipeline.applyRequest(ctx, req)
	if err != nil {
		f := &Fault{
			Message: "request interceptor: " + err.Error(),
			Code:    CodeRequestInterceptor,
			Kind:    KindClientError,
			Method:  req.Method,
			Path:    req.Path,
			Err:     err,
		}
		return nil, observe.Result{}, c.pipeline.applyError(ctx, f, req)
	}

	budget := c.policy.Limit(req.Method, req.MaxRetries)

	var (
		last     Outcome
		attempts int
	)
	err = c.policy.Do(ctx, budget, req.RetryBaseDelay, func(ctx context.Context, attempt int) error {
		if attempt > 0 {
			c.logger.Debug(ctx, "retrying api call",
				observe.F("method", req.Method),
				observe.F("path", req.Path),
				observe.F("attempt", attempt+1),
				observe.F("previous", last.Kind.String()),
			)
		}
		attempts++
		last = c.exec.Execute(ctx, req)
		if last.Kind == KindSuccess {
			return nil
		}
		return last.fault(req)
	})

	res := observe.Result{Status: last.Status, Attempts: attempts}
	if err != nil {
		f, ok := AsFault(err)
		if !ok {
			f = last.fault(req)
		}
		res.Status = f.Status
		return nil, res, c.pipeline.applyError(ctx, f, req)
	}

	resp := &Response{
		Status:   last.Status,
		Header:   last.Header,
		Body:     last.Body,
		Attempts: attempts,
	}
	return c.pipeline.applyResponse(ctx, resp, req), res, nil
}

// pathOnly strips the query string so span names and metric attributes do
// not carry parameters.
func pathOnly(p string) string {
	u, err := url.Parse(p)
	if err != nil {
		return p
	}
	return u.Path
}
