package delivery

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hookrelay/hookrelay/internal/config"
	"github.com/hookrelay/hookrelay/internal/metrics"
)

// failureLedger is the slice of storage the breaker consults. The rolling
// ledger query is the authoritative open/close signal; the in-memory counter
// below is diagnostic only.
type failureLedger interface {
	CountEndpointFailuresSince(ctx context.Context, endpointID string, since time.Time) (int, error)
}

type circuitState struct {
	openUntil     time.Time
	failures      int
	counterExpiry time.Time
}

// CircuitBreaker tracks per-endpoint failure rates and short-circuits
// delivery to persistently failing destinations. State is partitioned by
// endpoint id, safe to lose, and recomputable from the attempt ledger.
type CircuitBreaker struct {
	cfg    config.CircuitConfig
	ledger failureLedger
	log    zerolog.Logger

	mu     sync.Mutex
	states map[string]*circuitState
	now    func() time.Time
}

func NewCircuitBreaker(cfg config.CircuitConfig, ledger failureLedger, log zerolog.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		cfg:    cfg,
		ledger: ledger,
		log:    log,
		states: make(map[string]*circuitState),
		now:    time.Now,
	}
}

// IsOpen reports whether delivery to the endpoint is currently blocked, and
// if so when the cooldown expires. When the trailing-window failure count
// exceeds the threshold, the circuit opens for the cooldown as a side effect
// of this check. Returning the expiry together with the flag keeps callers
// from re-reading state that may have lapsed in between.
func (cb *CircuitBreaker) IsOpen(ctx context.Context, endpointID string) (bool, time.Time) {
	cb.mu.Lock()
	st := cb.state(endpointID)
	now := cb.now()
	if now.Before(st.openUntil) {
		until := st.openUntil
		cb.mu.Unlock()
		return true, until
	}
	cb.mu.Unlock()

	// Ledger query outside the lock: it is the slow path and touches storage.
	n, err := cb.ledger.CountEndpointFailuresSince(ctx, endpointID, now.Add(-cb.cfg.FailureWindow))
	if err != nil {
		cb.log.Error().Err(err).Str("endpoint_id", endpointID).Msg("failed to query failure window")
		return false, time.Time{}
	}
	if n <= cb.cfg.FailureThreshold {
		return false, time.Time{}
	}

	cb.mu.Lock()
	st = cb.state(endpointID)
	if now.After(st.openUntil) {
		st.openUntil = now.Add(cb.cfg.Cooldown)
		metrics.CircuitOpened.Inc()
		cb.log.Warn().
			Str("endpoint_id", endpointID).
			Int("recent_failures", n).
			Time("open_until", st.openUntil).
			Msg("circuit opened")
	}
	until := st.openUntil
	cb.mu.Unlock()
	return true, until
}

// OpenUntil returns the cooldown expiry for an open circuit, or the zero time
// when the circuit is closed.
func (cb *CircuitBreaker) OpenUntil(endpointID string) time.Time {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	st := cb.state(endpointID)
	if cb.now().Before(st.openUntil) {
		return st.openUntil
	}
	return time.Time{}
}

// RecordSuccess clears the failure streak. It does not close an already-open
// circuit before its cooldown expires.
func (cb *CircuitBreaker) RecordSuccess(endpointID string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state(endpointID).failures = 0
}

// RecordFailure bumps the TTL-bounded diagnostic counter.
func (cb *CircuitBreaker) RecordFailure(endpointID string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	st := cb.state(endpointID)
	now := cb.now()
	if now.After(st.counterExpiry) {
		st.failures = 0
		st.counterExpiry = now.Add(cb.cfg.CounterTTL)
	}
	st.failures++
}

// FailureStreak exposes the diagnostic counter for health reporting.
func (cb *CircuitBreaker) FailureStreak(endpointID string) int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	st := cb.state(endpointID)
	if cb.now().After(st.counterExpiry) {
		return 0
	}
	return st.failures
}

// state returns the entry for endpointID; callers hold cb.mu.
func (cb *CircuitBreaker) state(endpointID string) *circuitState {
	st, ok := cb.states[endpointID]
	if !ok {
		st = &circuitState{}
		cb.states[endpointID] = st
	}
	return st
}
