// Package circuitbreaker implements a three-state (closed/open/half-open)
// circuit breaker guarding calls to an unreliable backend, used by the LLM
// Client to stop hammering a failing provider.
package circuitbreaker

import (
	"sync"
	"time"

	"github.com/swarmhive/swarmd/pkg/swarm"
)

// Breaker is safe for concurrent use.
type Breaker struct {
	mu sync.Mutex

	state            swarm.CircuitState
	failureCount     int
	successCount     int
	failureThreshold int
	successThreshold int
	cooldown         time.Duration
	lastFailureTime  time.Time
	probeInFlight    bool // HalfOpen admits exactly one concurrent caller as its probe
}

// New creates a Breaker. failureThreshold consecutive failures while Closed
// trip it Open; after cooldown elapses it moves to HalfOpen and admits a
// single probe call; successThreshold consecutive successes while HalfOpen
// close it again. A failure while HalfOpen reopens it immediately.
func New(failureThreshold int, successThreshold int, cooldown time.Duration) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if successThreshold <= 0 {
		successThreshold = 1
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		state:            swarm.CircuitClosed,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		cooldown:         cooldown,
	}
}

// Allow reports whether a call may proceed, transitioning Open->HalfOpen
// when the cooldown has elapsed. HalfOpen admits exactly one in-flight
// probe call: every other concurrent caller is refused until that probe
// reports its outcome via RecordSuccess or RecordFailure.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case swarm.CircuitClosed:
		return true
	case swarm.CircuitOpen:
		if time.Since(b.lastFailureTime) >= b.cooldown {
			b.state = swarm.CircuitHalfOpen
			b.successCount = 0
			b.probeInFlight = true
			return true
		}
		return false
	case swarm.CircuitHalfOpen:
		if b.probeInFlight {
			return false
		}
		b.probeInFlight = true
		return true
	default:
		return true
	}
}

// RecordSuccess reports a successful call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case swarm.CircuitHalfOpen:
		b.probeInFlight = false
		b.successCount++
		if b.successCount >= b.successThreshold {
			b.state = swarm.CircuitClosed
			b.failureCount = 0
			b.successCount = 0
		}
	case swarm.CircuitClosed:
		b.failureCount = 0
	}
}

// RecordFailure reports a failed call.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailureTime = time.Now()

	switch b.state {
	case swarm.CircuitHalfOpen:
		b.state = swarm.CircuitOpen
		b.successCount = 0
		b.probeInFlight = false
	case swarm.CircuitClosed:
		b.failureCount++
		if b.failureCount >= b.failureThreshold {
			b.state = swarm.CircuitOpen
		}
	}
}

// State returns the current state.
func (b *Breaker) State() swarm.CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
