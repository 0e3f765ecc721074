// Package client is a resilient JSON-over-HTTP API client.
//
// A call flows through three stages:
//
//  1. Request interceptors, in registration order, each receiving and
//     returning a Request value.
//  2. The Executor, which sends one attempt and classifies the result as
//     an Outcome, repeated under a resilience.RetryPolicy. Server errors,
//     network errors and timeouts are retried; client errors never are.
//  3. Response interceptors on success, error interceptors on failure.
//
// Every failed call returns a *Fault. Its Status is the HTTP status, 408
// for timeouts, and 0 when no response was received:
//
//	resp, err := c.Post(ctx, "/items", client.JSON(item), client.WithRetries(2))
//	if f, ok := client.AsFault(err); ok && f.Status == 409 {
//		...
//	}
//
// Retry budgets default to 2 retries for GET and HEAD and 1 for other
// verbs; WithRetries overrides the budget for a single call. The delay
// before retry n (zero-based) is base * 2^n.
//
// The client holds no global state. Build one at startup and pass it by
// reference; the session package attaches its token and 401 interceptors to
// it.
package client
