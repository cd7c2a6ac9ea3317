package state

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy is a bounded retry policy shared by every marker write and
// removal. An operation is attempted at most MaxAttempts times with an
// increasing delay between attempts.
type RetryPolicy struct {
	MaxAttempts     int           // Total attempts including the first. Defaults to 3.
	InitialInterval time.Duration // Delay after the first failure. Defaults to 200ms.
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 200 * time.Millisecond,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = def.InitialInterval
	}
	return p
}

// Run executes op under the policy, returning the last error if every
// attempt fails.
func (p RetryPolicy) Run(op func() error) error {
	p = p.normalized()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.InitialInterval
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxElapsedTime = 0 // Bounded by attempt count, not wall time.
	bo.Reset()

	return backoff.Retry(op, backoff.WithMaxRetries(bo, uint64(p.MaxAttempts-1)))
}
