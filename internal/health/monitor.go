// Package health aggregates component health checks and watches them on an
// interval.
package health

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mancow2001/ntx-custom-monitor/internal/config"
	"github.com/mancow2001/ntx-custom-monitor/internal/plugin"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin  = (*Monitor)(nil)
	_ plugin.Enabler = (*Monitor)(nil)
)

// Status is the result of one round of checks.
type Status struct {
	Healthy    bool                           `json:"healthy"`
	Components map[string]plugin.HealthStatus `json:"components"`
	CheckedAt  time.Time                      `json:"checked_at"`
}

type namedCheck struct {
	name    string
	checker plugin.HealthChecker
}

// Monitor runs registered checks on demand and, once started, on a fixed
// interval, logging transitions to unhealthy.
type Monitor struct {
	now    func() time.Time
	logger *zap.Logger

	enabled  bool
	alert    bool
	interval time.Duration

	mu     sync.RWMutex
	checks []namedCheck
	last   atomic.Pointer[Status]

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor creates a monitor. A nil clock defaults to time.Now.
func NewMonitor(now func() time.Time) *Monitor {
	if now == nil {
		now = time.Now
	}
	return &Monitor{now: now, logger: zap.NewNop(), enabled: true, alert: true}
}

func (m *Monitor) Name() string { return "health" }

func (m *Monitor) Init(cfg *config.Config, logger *zap.Logger) error {
	mc := cfg.Monitoring
	if mc.EnableHealthChecks && mc.HealthCheckInterval <= 0 {
		return fmt.Errorf("health check interval must be positive, got %v", mc.HealthCheckInterval)
	}
	m.logger = logger
	m.enabled = mc.EnableHealthChecks
	m.alert = mc.AlertOnConnectionFailure
	m.interval = mc.HealthCheckInterval
	return nil
}

// Enabled reports whether periodic checking is switched on. Check works
// either way.
func (m *Monitor) Enabled() bool { return m.enabled }

// AddCheck registers a named check. Checks run in registration order.
func (m *Monitor) AddCheck(name string, c plugin.HealthChecker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checks = append(m.checks, namedCheck{name: name, checker: c})
}

// Check runs every check once. Overall health is the AND of the components;
// a monitor without checks is healthy.
func (m *Monitor) Check(ctx context.Context) Status {
	m.mu.RLock()
	checks := append([]namedCheck(nil), m.checks...)
	m.mu.RUnlock()

	st := Status{
		Healthy:    true,
		Components: make(map[string]plugin.HealthStatus, len(checks)),
		CheckedAt:  m.now(),
	}
	for _, c := range checks {
		hs := m.run(ctx, c)
		st.Components[c.name] = hs
		st.Healthy = st.Healthy && hs.Healthy
		componentHealthy.WithLabelValues(c.name).Set(boolGauge(hs.Healthy))
	}
	overallHealthy.Set(boolGauge(st.Healthy))
	m.last.Store(&st)
	return st
}

func (m *Monitor) run(ctx context.Context, c namedCheck) (hs plugin.HealthStatus) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("health check panicked", zap.String("component", c.name), zap.Any("panic", r))
			hs = plugin.HealthStatus{Healthy: false, Detail: fmt.Sprintf("check panicked: %v", r)}
		}
	}()
	return c.checker.Health(ctx)
}

// Last returns the most recent result, if any check has run.
func (m *Monitor) Last() (Status, bool) {
	st := m.last.Load()
	if st == nil {
		return Status{}, false
	}
	return *st, true
}

// Start runs the periodic loop until Stop or ctx cancellation. The first
// round runs one interval after start.
func (m *Monitor) Start(ctx context.Context) error {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.done != nil {
		return errors.New("health monitor already running")
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	go m.loop(ctx, m.done)
	m.logger.Info("health monitor started", zap.Duration("interval", m.interval))
	return nil
}

func (m *Monitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	prevHealthy := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prevHealthy = m.tick(ctx, prevHealthy)
		}
	}
}

// tick runs one round and reports transitions. It returns the new overall
// health.
func (m *Monitor) tick(ctx context.Context, prevHealthy bool) (healthy bool) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("health round panicked", zap.Any("panic", r))
			healthy = prevHealthy
		}
	}()

	st := m.Check(ctx)
	switch {
	case prevHealthy && !st.Healthy:
		if m.alert {
			for name, hs := range st.Components {
				if !hs.Healthy {
					m.logger.Error("component unhealthy",
						zap.String("component", name),
						zap.String("detail", hs.Detail),
					)
				}
			}
		}
		m.logger.Warn("daemon unhealthy")
	case !prevHealthy && st.Healthy:
		m.logger.Info("daemon healthy again")
	default:
		m.logger.Debug("health check complete", zap.Bool("healthy", st.Healthy))
	}
	return st.Healthy
}

// Stop ends the loop and waits for it until ctx ends.
func (m *Monitor) Stop(ctx context.Context) error {
	m.runMu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.runMu.Unlock()
	if done == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
