// Package resilience provides the retry and timeout rules used by the API
// client.
//
// Retry decisions are plain data: an error either reports itself as
// Transient (server errors, network failures, timeouts) or it does not, and
// a RetryPolicy turns that, the attempt number and a budget into a yes/no
// answer and a delay. Nothing here knows about HTTP responses, so the policy
// can be tested on its own.
//
// # Retry
//
// Delays grow exponentially from a base delay: base * 2^attempt, where the
// first send is attempt 0. Budgets differ by verb: reads (GET, HEAD) default
// to 2 retries and mutations to 1.
//
//	policy := resilience.NewRetryPolicy(resilience.RetryConfig{
//	    BaseDelay: 200 * time.Millisecond,
//	    MaxDelay:  5 * time.Second,
//	})
//
//	err := policy.Do(ctx, policy.Budget(http.MethodGet), 0,
//	    func(ctx context.Context, attempt int) error {
//	        return callBackend(ctx)
//	    })
//
// # Timeout
//
// Timeout gives each operation its own deadline. Expiry cancels the
// operation's context only; other operations are unaffected.
//
//	err := resilience.ExecuteWithTimeout(ctx, 2*time.Minute, generate)
//	if errors.Is(err, resilience.ErrTimeout) {
//	    // the deadline expired
//	}
package resilience
