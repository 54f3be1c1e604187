package source

import (
	"errors"
	"sync"
	"time"
)

// DefaultMaxSuccessAge is how long a source stays healthy without a
// successful request.
const DefaultMaxSuccessAge = 300 * time.Second

// HealthTracker records request outcomes and derives a health signal from
// consecutive failures and the recency of the last success.
type HealthTracker struct {
	mu                  sync.Mutex
	maxFailures         int
	maxSuccessAge       time.Duration
	now                 func() time.Time
	consecutiveFailures int
	lastSuccess         time.Time
	authFailed          bool
	lastErr             error
}

// NewHealthTracker returns a tracker that turns unhealthy after maxFailures
// consecutive failures. A nil clock defaults to time.Now.
func NewHealthTracker(maxFailures int, maxSuccessAge time.Duration, now func() time.Time) *HealthTracker {
	if maxFailures <= 0 {
		maxFailures = 1
	}
	if maxSuccessAge <= 0 {
		maxSuccessAge = DefaultMaxSuccessAge
	}
	if now == nil {
		now = time.Now
	}
	return &HealthTracker{
		maxFailures:   maxFailures,
		maxSuccessAge: maxSuccessAge,
		now:           now,
	}
}

// Success records a successful request.
func (h *HealthTracker) Success() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consecutiveFailures = 0
	h.lastSuccess = h.now()
	h.authFailed = false
	h.lastErr = nil
}

// Failure records a failed request. Authentication failures mark the source
// unhealthy until the next success regardless of the failure count.
func (h *HealthTracker) Failure(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.consecutiveFailures++
	h.lastErr = err
	if errors.Is(err, ErrUnauthorized) {
		h.authFailed = true
	}
}

// Healthy reports whether the failure budget is intact and a success
// happened recently.
func (h *HealthTracker) Healthy() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.authFailed || h.consecutiveFailures >= h.maxFailures {
		return false
	}
	if h.lastSuccess.IsZero() {
		return false
	}
	return h.now().Sub(h.lastSuccess) <= h.maxSuccessAge
}

// HealthState is a point-in-time copy of the tracker.
type HealthState struct {
	Healthy             bool      `json:"healthy"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastSuccess         time.Time `json:"last_success,omitzero"`
	AuthFailed          bool      `json:"auth_failed"`
	LastError           string    `json:"last_error,omitempty"`
}

// State returns the current tracker state.
func (h *HealthTracker) State() HealthState {
	healthy := h.Healthy()
	h.mu.Lock()
	defer h.mu.Unlock()
	st := HealthState{
		Healthy:             healthy,
		ConsecutiveFailures: h.consecutiveFailures,
		LastSuccess:         h.lastSuccess,
		AuthFailed:          h.authFailed,
	}
	if h.lastErr != nil {
		st.LastError = h.lastErr.Error()
	}
	return st
}
