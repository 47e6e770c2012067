package pipeline

import (
	"math/rand/v2"
	"time"
)

// RetryPolicy bounds how lookups reporting transient failures are
// retried. One policy applies uniformly to every adapter call site.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts including the first.
	MaxAttempts int
	// BaseDelay is the sleep before the first retry.
	BaseDelay time.Duration
	// MaxDelay caps exponential backoff.
	MaxDelay time.Duration
	// JitterFrac applies +/- jitter to backoff sleeps (0.2 = +/-20%).
	JitterFrac float64
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 200 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 2 * time.Second
	}
	return p
}

// backoff returns the sleep before retry number attempt (0-based).
func (p RetryPolicy) backoff(attempt int) time.Duration {
	sleep := p.BaseDelay
	for i := 0; i < attempt && sleep < p.MaxDelay; i++ {
		sleep *= 2
		if sleep > p.MaxDelay {
			sleep = p.MaxDelay
			break
		}
	}
	if p.JitterFrac <= 0 {
		return sleep
	}
	j := 1 + (rand.Float64()*2-1)*p.JitterFrac
	return time.Duration(float64(sleep) * j)
}
