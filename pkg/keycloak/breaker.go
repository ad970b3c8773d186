package keycloak

import (
	"context"
	"sync"
	"time"

	sserr "github.com/StricklySoft/stricklysoft-auth/pkg/errors"
)

// BreakerState is the circuit breaker state machine position.
type BreakerState string

const (
	// BreakerClosed is the normal state; calls pass through.
	BreakerClosed BreakerState = "closed"

	// BreakerOpen means calls fail fast without a network attempt.
	BreakerOpen BreakerState = "open"

	// BreakerHalfOpen permits exactly one trial call after the recovery
	// window has elapsed.
	BreakerHalfOpen BreakerState = "half_open"
)

// CircuitBreaker guards calls to the identity provider. After
// FailureThreshold consecutive failures the circuit opens and calls fail
// fast with [sserr.CodeUnavailableCircuitOpen]; after RecoveryTimeout a
// single trial call is let through, and its outcome closes or re-opens
// the circuit.
//
// Provider calls are a single point of failure for every request on the
// hot path. Failing fast protects upstream latency budgets and prevents
// retry storms against a struggling provider.
//
// A CircuitBreaker is safe for concurrent use.
type CircuitBreaker struct {
	failureThreshold int
	recoveryTimeout  time.Duration

	mu                  sync.Mutex
	state               BreakerState
	consecutiveFailures int
	openedAt            time.Time
	trialInFlight       bool

	totalCalls  uint64
	successes   uint64
	failures    uint64
	rejections  uint64
	openEvents  uint64
	lastSuccess time.Time
	lastFailure time.Time
}

// BreakerMetrics is a read-only snapshot of circuit breaker state and
// counters. It contains only bounded numeric and enum fields; nothing in
// it identifies hosts, libraries, or call internals, so it is safe to
// expose on health endpoints.
type BreakerMetrics struct {
	// State is the current state machine position.
	State BreakerState `json:"state"`

	// TotalCalls counts calls that were permitted to run (rejections
	// excluded).
	TotalCalls uint64 `json:"total_calls"`

	// Successes counts permitted calls that returned nil.
	Successes uint64 `json:"successes"`

	// Failures counts permitted calls that returned an error.
	Failures uint64 `json:"failures"`

	// Rejections counts calls failed fast while the circuit was open.
	Rejections uint64 `json:"rejections"`

	// SuccessRate is Successes / TotalCalls, 0 when no calls ran.
	SuccessRate float64 `json:"success_rate"`

	// ConsecutiveFailures is the current run of failures.
	ConsecutiveFailures int `json:"consecutive_failures"`

	// OpenEvents counts Closed-to-Open (and HalfOpen-to-Open)
	// transitions.
	OpenEvents uint64 `json:"open_events"`

	// LastSuccessAt is the time of the most recent success; zero when
	// none has occurred.
	LastSuccessAt time.Time `json:"last_success_at"`

	// LastFailureAt is the time of the most recent failure; zero when
	// none has occurred.
	LastFailureAt time.Time `json:"last_failure_at"`
}

// NewCircuitBreaker creates a closed breaker. Non-positive arguments fall
// back to [DefaultFailureThreshold] and [DefaultRecoveryTimeout].
func NewCircuitBreaker(failureThreshold int, recoveryTimeout time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = DefaultFailureThreshold
	}
	if recoveryTimeout <= 0 {
		recoveryTimeout = DefaultRecoveryTimeout
	}
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		state:            BreakerClosed,
	}
}

// Execute runs fn under the breaker. While the circuit is open, Execute
// returns a [sserr.CodeUnavailableCircuitOpen] error without invoking fn.
// The operation name appears in the returned error for diagnostics; it
// must be a static identifier, not request data.
func (cb *CircuitBreaker) Execute(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	if err := cb.allow(operation); err != nil {
		return err
	}

	err := fn(ctx)
	cb.record(err == nil)
	return err
}

// allow decides whether a call may proceed, performing Open-to-HalfOpen
// transitions as the recovery window elapses.
func (cb *CircuitBreaker) allow(operation string) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerClosed:
		cb.totalCalls++
		return nil

	case BreakerOpen:
		if time.Since(cb.openedAt) < cb.recoveryTimeout {
			cb.rejections++
			return sserr.CircuitOpen("keycloak: circuit open, rejecting " + operation)
		}
		// Recovery window elapsed: permit one trial call.
		cb.state = BreakerHalfOpen
		cb.trialInFlight = true
		cb.totalCalls++
		return nil

	case BreakerHalfOpen:
		if cb.trialInFlight {
			cb.rejections++
			return sserr.CircuitOpen("keycloak: circuit open, rejecting " + operation)
		}
		cb.trialInFlight = true
		cb.totalCalls++
		return nil

	default:
		cb.totalCalls++
		return nil
	}
}

// record applies a call outcome to the state machine.
func (cb *CircuitBreaker) record(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	if success {
		cb.successes++
		cb.lastSuccess = now
		cb.consecutiveFailures = 0
		if cb.state == BreakerHalfOpen {
			cb.state = BreakerClosed
		}
		cb.trialInFlight = false
		return
	}

	cb.failures++
	cb.lastFailure = now
	cb.consecutiveFailures++
	cb.trialInFlight = false

	switch cb.state {
	case BreakerHalfOpen:
		// Failed trial: re-open and restart the recovery window.
		cb.state = BreakerOpen
		cb.openedAt = now
		cb.openEvents++
	case BreakerClosed:
		if cb.consecutiveFailures >= cb.failureThreshold {
			cb.state = BreakerOpen
			cb.openedAt = now
			cb.openEvents++
		}
	}
}

// State returns the current state machine position.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Metrics returns a snapshot of the breaker counters. The snapshot is a
// copy; mutating it has no effect on the breaker.
func (cb *CircuitBreaker) Metrics() BreakerMetrics {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	m := BreakerMetrics{
		State:               cb.state,
		TotalCalls:          cb.totalCalls,
		Successes:           cb.successes,
		Failures:            cb.failures,
		Rejections:          cb.rejections,
		ConsecutiveFailures: cb.consecutiveFailures,
		OpenEvents:          cb.openEvents,
		LastSuccessAt:       cb.lastSuccess,
		LastFailureAt:       cb.lastFailure,
	}
	if cb.totalCalls > 0 {
		m.SuccessRate = float64(cb.successes) / float64(cb.totalCalls)
	}
	return m
}

// Reset returns the breaker to the closed state and zeroes the counters.
// Intended for maintenance endpoints and tests.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = BreakerClosed
	cb.consecutiveFailures = 0
	cb.trialInFlight = false
	cb.totalCalls = 0
	cb.successes = 0
	cb.failures = 0
	cb.rejections = 0
	cb.openEvents = 0
	cb.lastSuccess = time.Time{}
	cb.lastFailure = time.Time{}
}
