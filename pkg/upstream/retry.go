package upstream

import (
	"math/rand/v2"
	"time"

	"mercator-hq/callisto/pkg/proxyerr"
)

// RetryPolicy controls backoff for transient upstream failures.
type RetryPolicy struct {
	// MaxRetries is the number of retry attempts after the initial one.
	MaxRetries int

	// InitialDelay is the delay before the first retry. Each subsequent
	// delay doubles until MaxDelay.
	InitialDelay time.Duration

	// MaxDelay caps the exponential growth.
	MaxDelay time.Duration

	// JitterMax is the upper bound of the uniform random jitter added to
	// every delay. Zero disables jitter.
	JitterMax time.Duration
}

// Delay returns the backoff before retry number attempt (zero-based):
// min(MaxDelay, InitialDelay * 2^attempt) plus uniform jitter.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	delay := p.MaxDelay
	// Guard the shift; past 62 doublings the cap applies regardless.
	if attempt < 62 {
		if d := p.InitialDelay << uint(attempt); d > 0 && d < p.MaxDelay {
			delay = d
		}
	}
	if p.JitterMax > 0 {
		delay += rand.N(p.JitterMax)
	}
	return delay
}

// Retryable reports whether an error is a transient upstream failure.
// Connection failures, timeouts, and upstream 5xx replies qualify.
// Client-side faults, translation failures, and an open circuit never
// do.
func Retryable(err error) bool {
	switch proxyerr.KindOf(err) {
	case proxyerr.KindUpstreamTimeout, proxyerr.KindUpstreamConnection:
		return true
	default:
		return false
	}
}
