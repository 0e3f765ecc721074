// Package health runs diagnostic checks against the services an API
// session depends on.
//
// A Checker reports one component as Healthy, Degraded or Unhealthy. An
// Aggregator runs a set of checkers concurrently under one deadline and
// folds their results into an overall status:
//
//	agg := health.NewAggregator()
//	agg.Register(health.NewRedisChecker(rdb))
//	agg.Register(health.NewEndpointChecker("api", c, "/health"))
//	agg.Register(health.NewSessionChecker(m))
//
//	results := agg.CheckAll(ctx)
//	overall := health.OverallStatus(results)
package health
