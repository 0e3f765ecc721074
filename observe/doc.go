// Package observe provides logging, tracing and metrics for the API client
// and the session manager.
//
// It is a pure instrumentation library: no transport and no I/O beyond
// exporter setup. The client wraps every logical call (all retry attempts)
// in a Middleware span; the session manager records lifecycle operations
// through SessionMetrics and logs through Logger.
//
// The structured Logger never writes the values of sensitive keys such as
// token, refresh_token or authorization; see RedactedFields.
package observe
