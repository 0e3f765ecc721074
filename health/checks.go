package health

import (
	"context"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/jonwraymond/apisession/client"
	"github.com/jonwraymond/apisession/session"
)

// RedisChecker pings the Redis server that holds the session snapshot.
type RedisChecker struct {
	rdb redis.UniversalClient
}

// NewRedisChecker creates a Redis checker.
func NewRedisChecker(rdb redis.UniversalClient) *RedisChecker {
	return &RedisChecker{rdb: rdb}
}

// Name returns "redis".
func (c *RedisChecker) Name() string { return "redis" }

// Check sends PING.
func (c *RedisChecker) Check(ctx context.Context) Result {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return Unhealthy("redis unreachable", err)
	}
	return Healthy("redis reachable")
}

// EndpointChecker issues one GET through the API client without retries.
// Any answer below 500 proves the endpoint is reachable; 401 and 403 are
// degraded because calls will be refused.
type EndpointChecker struct {
	name   string
	client *client.Client
	path   string
}

// NewEndpointChecker creates a checker for path on c.
func NewEndpointChecker(name string, c *client.Client, path string) *EndpointChecker {
	return &EndpointChecker{name: name, client: c, path: path}
}

// Name returns the configured name.
func (c *EndpointChecker) Name() string { return c.name }

// Check performs the request.
func (c *EndpointChecker) Check(ctx context.Context) Result {
	resp, err := c.client.Get(ctx, c.path, client.WithRetries(0))
	if err == nil {
		return Healthy("reachable").WithDetails(map[string]any{"status": resp.Status})
	}

	f, ok := client.AsFault(err)
	if !ok {
		return Unhealthy("request failed", err)
	}
	details := map[string]any{"status": f.Status, "kind": f.Kind.String()}
	switch {
	case f.Status == http.StatusUnauthorized || f.Status == http.StatusForbidden:
		return Degraded("reachable, access refused").WithDetails(details)
	case f.Kind == client.KindClientError:
		return Healthy("reachable").WithDetails(details)
	default:
		return Unhealthy(f.Message, err).WithDetails(details)
	}
}

// SessionSource is the part of session.Manager a SessionChecker reads.
type SessionSource interface {
	State() session.State
	LastError() error
}

// SessionChecker reports the session state. Signed-out and expired
// sessions are degraded; the client still works for anonymous calls.
type SessionChecker struct {
	src SessionSource
}

// NewSessionChecker creates a session checker.
func NewSessionChecker(src SessionSource) *SessionChecker {
	return &SessionChecker{src: src}
}

// Name returns "session".
func (c *SessionChecker) Name() string { return "session" }

// Check reads the current state.
func (c *SessionChecker) Check(context.Context) Result {
	state := c.src.State()
	details := map[string]any{"state": state.String()}
	if err := c.src.LastError(); err != nil {
		details["last_error"] = err.Error()
	}

	switch state {
	case session.StateAuthenticated, session.StateRefreshing:
		return Healthy("signed in").WithDetails(details)
	case session.StateUninitialized, session.StateInitializing:
		return Degraded("not initialized").WithDetails(details)
	case session.StateExpired:
		return Degraded("session expired").WithDetails(details)
	default:
		return Degraded("signed out").WithDetails(details)
	}
}

var (
	_ Checker       = (*RedisChecker)(nil)
	_ Checker       = (*EndpointChecker)(nil)
	_ Checker       = (*SessionChecker)(nil)
	_ SessionSource = (*session.Manager)(nil)
)
