package apiclient

import (
	"sync"
	"time"
)

// circuitState mirrors the teacher's scheduler.CircuitState, adapted from
// queue-depth/saturation admission control to consecutive-upstream-failure
// admission control: the quantity being protected here is the orchestrator
// itself, not a local work queue.
type circuitState int

const (
	circuitClosed circuitState = iota
	circuitHalfOpen
	circuitOpen
)

// circuitBreaker fails outbound requests fast once the orchestrator looks
// unhealthy, instead of letting every concurrent ControlLoop's Request call
// block out to its own timeout during an outage. This never changes the
// error taxonomy a caller observes (still TransportError); it only changes
// how quickly that error surfaces.
type circuitBreaker struct {
	mu sync.Mutex

	state     circuitState
	failures  int
	threshold int
	cooldown  time.Duration
	openedAt  time.Time
	halfOpenN int
}

func newCircuitBreaker(threshold int, cooldown time.Duration) *circuitBreaker {
	if threshold < 1 {
		threshold = 1
	}
	return &circuitBreaker{threshold: threshold, cooldown: cooldown}
}

// allow reports whether a new request should be attempted.
func (cb *circuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == circuitOpen {
		if time.Since(cb.openedAt) >= cb.cooldown {
			cb.state = circuitHalfOpen
			cb.halfOpenN = 0
		} else {
			return false
		}
	}

	if cb.state == circuitHalfOpen {
		// Allow a single probe request at a time in half-open state.
		if cb.halfOpenN > 0 {
			return false
		}
		cb.halfOpenN++
	}
	return true
}

func (cb *circuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.state = circuitClosed
}

func (cb *circuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == circuitHalfOpen {
		cb.state = circuitOpen
		cb.openedAt = time.Now()
		return
	}

	cb.failures++
	if cb.failures >= cb.threshold {
		cb.state = circuitOpen
		cb.openedAt = time.Now()
	}
}

func (cb *circuitBreaker) String() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case circuitOpen:
		return "open"
	case circuitHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}
