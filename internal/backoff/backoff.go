// Package backoff computes reconnect delays.
//
// The policy is plain exponential doubling with a ceiling: the delay for
// attempt n is Initial * 2^n, capped at Max. No jitter is applied, so the
// sequence is deterministic and testable. Attempt counting lives with the
// caller; the policy itself is stateless.
package backoff

import "time"

// Default delays match the subscribe endpoint's documented client behavior.
const (
	DefaultInitial = 1 * time.Second
	DefaultMax     = 30 * time.Second
)

// Policy computes the delay before each reconnect attempt.
type Policy struct {
	// Initial is the delay before the first retry (attempt 0).
	Initial time.Duration

	// Max caps the delay regardless of attempt count.
	Max time.Duration
}

// DefaultPolicy returns a policy with the standard 1s-doubling-to-30s delays.
func DefaultPolicy() Policy {
	return Policy{Initial: DefaultInitial, Max: DefaultMax}
}

// Next returns the delay before reconnect attempt n. Attempt 0 is the first
// retry after a failure; negative attempts are treated as 0. Large attempt
// counts saturate at Max instead of overflowing.
func (p Policy) Next(attempt int) time.Duration {
	d := p.Initial
	if d <= 0 {
		return 0
	}
	for i := 0; i < attempt; i++ {
		if d > p.Max/2 {
			return p.Max
		}
		d *= 2
	}
	if d > p.Max {
		return p.Max
	}
	return d
}
