// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Session count, reconnect and authorization failure rates
//   - Event receive, delivery and drop rates per topic pattern
//   - Delivery buffer depth
//   - Sink failure counts
package metrics
