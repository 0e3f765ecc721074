package health

import (
	"context"
	"sync"
	"time"
)

// DefaultTimeout bounds a full CheckAll run.
const DefaultTimeout = 10 * time.Second

// Aggregator runs a set of checkers.
type Aggregator struct {
	timeout time.Duration

	mu       sync.RWMutex
	checkers []Checker
}

// NewAggregator creates an aggregator. A non-positive timeout uses
// DefaultTimeout.
func NewAggregator(timeout ...time.Duration) *Aggregator {
	a := &Aggregator{timeout: DefaultTimeout}
	if len(timeout) > 0 && timeout[0] > 0 {
		a.timeout = timeout[0]
	}
	return a
}

// Register adds a checker, replacing one with the same name in place.
func (a *Aggregator) Register(c Checker) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, existing := range a.checkers {
		if existing.Name() == c.Name() {
			a.checkers[i] = c
			return
		}
	}
	a.checkers = append(a.checkers, c)
}

// Names returns checker names in registration order.
func (a *Aggregator) Names() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, len(a.checkers))
	for i, c := range a.checkers {
		names[i] = c.Name()
	}
	return names
}

// Check runs a single named check.
func (a *Aggregator) Check(ctx context.Context, name string) (Result, error) {
	a.mu.RLock()
	var found Checker
	for _, c := range a.checkers {
		if c.Name() == name {
			found = c
			break
		}
	}
	a.mu.RUnlock()

	if found == nil {
		return Result{}, ErrCheckerNotFound
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	return run(ctx, found), nil
}

// CheckAll runs every registered check concurrently and returns results
// keyed by checker name.
func (a *Aggregator) CheckAll(ctx context.Context) map[string]Result {
	a.mu.RLock()
	checkers := append([]Checker(nil), a.checkers...)
	a.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[string]Result, len(checkers))
	)
	for _, c := range checkers {
		wg.Go(func() {
			r := run(ctx, c)
			mu.Lock()
			results[c.Name()] = r
			mu.Unlock()
		})
	}
	wg.Wait()
	return results
}

// OverallStatus is the worst status among results; no results is healthy.
func OverallStatus(results map[string]Result) Status {
	overall := StatusHealthy
	for _, r := range results {
		overall = max(overall, r.Status)
	}
	return overall
}

// run executes one check, reporting a timeout if ctx ends first. A check
// that ignores ctx is abandoned, not waited for.
func run(ctx context.Context, c Checker) Result {
	start := time.Now()
	done := make(chan Result, 1)
	go func() {
		done <- c.Check(ctx)
	}()

	var r Result
	select {
	case r = <-done:
	case <-ctx.Done():
		r = Unhealthy("check timed out", ErrCheckTimeout)
	}
	r.Duration = time.Since(start)
	return r
}
