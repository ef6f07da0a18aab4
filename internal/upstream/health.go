package upstream

import (
	"sync"
	"time"
)

// Health tracks this proxy's single upstream's recent success/failure
// record for the health endpoint. Grounded on the teacher's
// circuitbreaker.EndpointHealth (circuitbreaker/health.go), trimmed down
// to one endpoint: there is no failover target to switch to when this
// proxy's one upstream is unhealthy, so the circuit-opening/backoff
// machinery around the teacher's struct has nothing to select between and
// is not carried over — only the observation itself survives.
type Health struct {
	mu              sync.RWMutex
	successCount    int
	failureCount    int
	lastFailure     time.Time
	lastSuccess     time.Time
	lastFailureText string
}

// NewHealth returns a zero-valued tracker.
func NewHealth() *Health {
	return &Health{}
}

// RecordSuccess marks one successful upstream round trip.
func (h *Health) RecordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.successCount++
	h.lastSuccess = time.Now()
}

// RecordFailure marks one failed upstream round trip, keeping the failing
// error's text for diagnostics.
func (h *Health) RecordFailure(reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failureCount++
	h.lastFailure = time.Now()
	h.lastFailureText = reason
}

// Snapshot is a point-in-time, JSON-serializable view of Health for the
// health endpoint.
type Snapshot struct {
	SuccessCount int       `json:"success_count"`
	FailureCount int       `json:"failure_count"`
	LastSuccess  time.Time `json:"last_success,omitempty"`
	LastFailure  time.Time `json:"last_failure,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
}

// Snapshot returns the current counts without holding the lock open for
// the caller.
func (h *Health) Snapshot() Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Snapshot{
		SuccessCount: h.successCount,
		FailureCount: h.failureCount,
		LastSuccess:  h.lastSuccess,
		LastFailure:  h.lastFailure,
		LastError:    h.lastFailureText,
	}
}
