package jirapo

import (
	"sync/atomic"
	"time"
)

// BreakerState is the circuit breaker state.
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds circuit breaker thresholds. Zero fields take the
// defaults in NewBreaker.
type BreakerConfig struct {
	// FailureThreshold consecutive failures open the circuit.
	FailureThreshold int
	// RecoveryTimeout is how long the circuit stays open before probing.
	RecoveryTimeout time.Duration
	// SuccessThreshold successes in half-open close the circuit again.
	SuccessThreshold int
}

// Breaker is a lock-free circuit breaker. When enabled on a Client it
// rejects requests outright while the backend is melting down instead of
// feeding it more retries.
type Breaker struct {
	config      BreakerConfig
	state       int64
	failures    int64
	successes   int64
	lastFailure int64
}

// NewBreaker creates a breaker in the closed state.
func NewBreaker(config BreakerConfig) *Breaker {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}
	if config.RecoveryTimeout == 0 {
		config.RecoveryTimeout = 60 * time.Second
	}
	if config.SuccessThreshold == 0 {
		config.SuccessThreshold = 2
	}
	return &Breaker{
		config: config,
		state:  int64(StateClosed),
	}
}

// Allow reports whether a request may proceed, transitioning open circuits
// to half-open once the recovery timeout has elapsed.
func (b *Breaker) Allow() bool {
	switch BreakerState(atomic.LoadInt64(&b.state)) {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		last := atomic.LoadInt64(&b.lastFailure)
		if time.Now().UnixNano()-last >= int64(b.config.RecoveryTimeout) {
			if atomic.CompareAndSwapInt64(&b.state, int64(StateOpen), int64(StateHalfOpen)) {
				atomic.StoreInt64(&b.successes, 0)
			}
			return true
		}
		return false
	default:
		return false
	}
}

// RecordFailure counts a failed attempt, opening the circuit at the
// threshold. A failure while half-open reopens immediately.
func (b *Breaker) RecordFailure() {
	atomic.StoreInt64(&b.lastFailure, time.Now().UnixNano())

	switch BreakerState(atomic.LoadInt64(&b.state)) {
	case StateClosed:
		if atomic.AddInt64(&b.failures, 1) >= int64(b.config.FailureThreshold) {
			atomic.StoreInt64(&b.state, int64(StateOpen))
		}
	case StateHalfOpen:
		atomic.StoreInt64(&b.state, int64(StateOpen))
		atomic.StoreInt64(&b.successes, 0)
	}
}

// RecordSuccess counts a successful attempt, closing a half-open circuit
// after enough successes and resetting the failure count when closed.
func (b *Breaker) RecordSuccess() {
	switch BreakerState(atomic.LoadInt64(&b.state)) {
	case StateClosed:
		atomic.StoreInt64(&b.failures, 0)
	case StateHalfOpen:
		if atomic.AddInt64(&b.successes, 1) >= int64(b.config.SuccessThreshold) {
			atomic.StoreInt64(&b.state, int64(StateClosed))
			atomic.StoreInt64(&b.failures, 0)
		}
	}
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	return BreakerState(atomic.LoadInt64(&b.state))
}
