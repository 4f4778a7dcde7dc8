package upstream

import (
	"sync"
	"time"

	"mercator-hq/callisto/pkg/proxyerr"
)

// BreakerState is the circuit breaker state.
type BreakerState int

const (
	// BreakerClosed admits all requests.
	BreakerClosed BreakerState = iota

	// BreakerOpen rejects all requests until the recovery timeout elapses.
	BreakerOpen

	// BreakerHalfOpen admits a limited number of probe requests.
	BreakerHalfOpen
)

// String returns the state name used in logs and metrics labels.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Breaker is a circuit breaker over the upstream endpoint.
//
// Consecutive transient failures open the circuit; while open, requests
// are rejected immediately without an upstream attempt. After the
// recovery timeout a limited number of probes is admitted. A probe
// success closes the circuit, a probe failure reopens it and restarts
// the recovery clock.
//
// All methods are safe for concurrent use.
type Breaker struct {
	failureThreshold int
	recoveryTimeout  time.Duration
	halfOpenProbes   int

	// now is replaceable in tests.
	now func() time.Time

	// onChange, if set, observes every state transition. It is called
	// with the mutex held and must not call back into the breaker.
	onChange func(BreakerState)

	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	probes   int
}

// NewBreaker creates a closed breaker. The circuit opens after
// failureThreshold consecutive failures and admits halfOpenProbes trial
// requests once recoveryTimeout has elapsed.
func NewBreaker(failureThreshold int, recoveryTimeout time.Duration, halfOpenProbes int) *Breaker {
	return &Breaker{
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		halfOpenProbes:   halfOpenProbes,
		now:              time.Now,
		state:            BreakerClosed,
	}
}

// OnStateChange registers an observer for state transitions. It must be
// called before the breaker is shared.
func (b *Breaker) OnStateChange(fn func(BreakerState)) {
	b.onChange = fn
}

// State returns the current state, applying the open-to-half-open
// transition if the recovery timeout has elapsed.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeRecover()
	return b.state
}

// Allow reports whether a request may proceed. It returns nil to admit
// the request and a circuit-open error to reject it. Every admitted
// request must be followed by exactly one RecordSuccess, RecordFailure,
// or RecordNeutral call.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.maybeRecover()

	switch b.state {
	case BreakerClosed:
		return nil
	case BreakerHalfOpen:
		if b.probes < b.halfOpenProbes {
			b.probes++
			return nil
		}
		return proxyerr.New(proxyerr.KindCircuitOpen, "upstream circuit is recovering, try again shortly")
	default:
		return proxyerr.New(proxyerr.KindCircuitOpen, "upstream circuit is open")
	}
}

// RecordSuccess records a successful upstream attempt.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerHalfOpen:
		b.transition(BreakerClosed)
		b.failures = 0
	case BreakerClosed:
		b.failures = 0
	}
}

// RecordFailure records a failed upstream attempt. Only failures the
// caller considers transient should reach here; client-side faults say
// nothing about upstream health.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		b.failures++
		if b.failures >= b.failureThreshold {
			b.open()
		}
	case BreakerHalfOpen:
		// The probe failed, restart the recovery clock.
		b.open()
	}
}

// RecordNeutral records completion of an admitted attempt that failed
// for a reason that says nothing about upstream health, such as a
// client-side fault. In the closed state it neither counts toward the
// failure threshold nor resets the streak. A half-open probe still
// reopens the circuit and restarts the recovery clock: the probe ended
// without proving the upstream healthy, and an unreported probe would
// leak its slot and wedge the circuit.
func (b *Breaker) RecordNeutral() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerHalfOpen {
		b.open()
	}
}

// maybeRecover moves an open breaker to half-open once the recovery
// timeout has elapsed. Caller holds the mutex.
func (b *Breaker) maybeRecover() {
	if b.state == BreakerOpen && b.now().Sub(b.openedAt) >= b.recoveryTimeout {
		b.transition(BreakerHalfOpen)
		b.probes = 0
	}
}

func (b *Breaker) open() {
	b.transition(BreakerOpen)
	b.openedAt = b.now()
	b.failures = 0
}

func (b *Breaker) transition(next BreakerState) {
	if b.state == next {
		return
	}
	b.state = next
	if b.onChange != nil {
		b.onChange(next)
	}
}
