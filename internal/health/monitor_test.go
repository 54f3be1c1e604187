package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mancow2001/ntx-custom-monitor/internal/config"
	"github.com/mancow2001/ntx-custom-monitor/internal/plugin"
	"github.com/mancow2001/ntx-custom-monitor/internal/source"
	"github.com/mancow2001/ntx-custom-monitor/internal/testutil"
)

func fixed(healthy bool, detail string) plugin.HealthChecker {
	return CheckerFunc(func(context.Context) plugin.HealthStatus {
		return plugin.HealthStatus{Healthy: healthy, Detail: detail}
	})
}

func newMonitor(t *testing.T, mutate func(*config.Monitoring)) (*Monitor, *observer.ObservedLogs) {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(&cfg.Monitoring)
	}
	core, logs := observer.New(zapcore.DebugLevel)
	m := NewMonitor(testutil.NewClock().Now)
	require.NoError(t, m.Init(cfg, zap.New(core)))
	return m, logs
}

func TestCheck_AggregatesComponents(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]bool
		want   bool
	}{
		{"no checks", nil, true},
		{"all healthy", map[string]bool{"source": true, "collector": true, "snmp": true}, true},
		{"one unhealthy", map[string]bool{"source": true, "collector": false, "snmp": true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newMonitor(t, nil)
			for name, ok := range tt.checks {
				m.AddCheck(name, fixed(ok, name))
			}
			st := m.Check(context.Background())
			assert.Equal(t, tt.want, st.Healthy)
			assert.Len(t, st.Components, len(tt.checks))
			for name, ok := range tt.checks {
				assert.Equal(t, ok, st.Components[name].Healthy)
			}

			last, found := m.Last()
			require.True(t, found)
			assert.Equal(t, st.Healthy, last.Healthy)
		})
	}
}

func TestCheck_PanickingCheckIsUnhealthy(t *testing.T) {
	m, logs := newMonitor(t, nil)
	m.AddCheck("ok", fixed(true, ""))
	m.AddCheck("boom", CheckerFunc(func(context.Context) plugin.HealthStatus { panic("nil map") }))

	st := m.Check(context.Background())

	assert.False(t, st.Healthy)
	assert.True(t, st.Components["ok"].Healthy)
	assert.Contains(t, st.Components["boom"].Detail, "nil map")
	assert.Equal(t, 1, logs.FilterMessage("health check panicked").Len())
}

func TestTick_LogsTransitions(t *testing.T) {
	m, logs := newMonitor(t, nil)
	healthy := false
	m.AddCheck("source", CheckerFunc(func(context.Context) plugin.HealthStatus {
		return plugin.HealthStatus{Healthy: healthy, Detail: "prism unreachable"}
	}))
	m.AddCheck("snmp", fixed(true, ""))

	prev := m.tick(context.Background(), true)
	assert.False(t, prev)
	alerts := logs.FilterMessage("component unhealthy").All()
	require.Len(t, alerts, 1)
	assert.Equal(t, "source", alerts[0].ContextMap()["component"])
	assert.Equal(t, "prism unreachable", alerts[0].ContextMap()["detail"])

	// Staying unhealthy does not alert again.
	prev = m.tick(context.Background(), prev)
	assert.Equal(t, 1, logs.FilterMessage("component unhealthy").Len())

	healthy = true
	prev = m.tick(context.Background(), prev)
	assert.True(t, prev)
	assert.Equal(t, 1, logs.FilterMessage("daemon healthy again").Len())
}

func TestTick_AlertingDisabled(t *testing.T) {
	m, logs := newMonitor(t, func(mc *config.Monitoring) { mc.AlertOnConnectionFailure = false })
	m.AddCheck("source", fixed(false, "down"))

	m.tick(context.Background(), true)

	assert.Zero(t, logs.FilterMessage("component unhealthy").Len())
	assert.Equal(t, 1, logs.FilterMessage("daemon unhealthy").Len())
}

func TestMonitor_LoopRunsAndStops(t *testing.T) {
	m, _ := newMonitor(t, func(mc *config.Monitoring) { mc.HealthCheckInterval = 10 * time.Millisecond })
	m.AddCheck("snmp", fixed(true, ""))

	_, found := m.Last()
	assert.False(t, found)

	require.NoError(t, m.Start(context.Background()))
	assert.Error(t, m.Start(context.Background()))
	require.Eventually(t, func() bool { _, ok := m.Last(); return ok }, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Stop(ctx))
	assert.NoError(t, m.Stop(context.Background()))
}

func TestMonitor_Init(t *testing.T) {
	cfg := config.Default()
	cfg.Monitoring.HealthCheckInterval = 0
	assert.Error(t, NewMonitor(nil).Init(cfg, zap.NewNop()))

	cfg.Monitoring.EnableHealthChecks = false
	m := NewMonitor(nil)
	require.NoError(t, m.Init(cfg, zap.NewNop()))
	assert.False(t, m.Enabled())
}

type trackedSource struct {
	*testutil.FakeSource
	state source.HealthState
}

func (s trackedSource) HealthState() source.HealthState { return s.state }

func TestSourceCheck(t *testing.T) {
	plain := testutil.NewFakeSource()
	plain.IsHealthy = false
	assert.Equal(t, plugin.HealthStatus{Healthy: false, Detail: "source unhealthy"}, SourceCheck(plain).Health(context.Background()))

	plain.IsHealthy = true
	assert.True(t, SourceCheck(plain).Health(context.Background()).Healthy)

	authFailed := trackedSource{FakeSource: testutil.NewFakeSource(), state: source.HealthState{AuthFailed: true}}
	authFailed.IsHealthy = false
	assert.Equal(t, "authentication failed", SourceCheck(authFailed).Health(context.Background()).Detail)

	failing := trackedSource{FakeSource: testutil.NewFakeSource(), state: source.HealthState{
		ConsecutiveFailures: 3,
		LastError:           errors.New("connection refused").Error(),
	}}
	assert.Equal(t, "3 consecutive failures: connection refused", SourceCheck(failing).Health(context.Background()).Detail)
}
