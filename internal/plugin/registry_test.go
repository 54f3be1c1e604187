package plugin

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mancow2001/ntx-custom-monitor/internal/config"
)

// testPlugin is a minimal plugin that records lifecycle calls.
type testPlugin struct {
	name     string
	initErr  error
	startErr error
	stopErr  error
	disabled bool
	stopWait time.Duration
	events   *eventLog
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func newTestPlugin(name string, log *eventLog) *testPlugin {
	return &testPlugin{name: name, events: log}
}

func (p *testPlugin) Name() string { return p.name }
func (p *testPlugin) Init(_ *config.Config, _ *zap.Logger) error {
	p.events.add("init:" + p.name)
	return p.initErr
}
func (p *testPlugin) Start(_ context.Context) error {
	p.events.add("start:" + p.name)
	return p.startErr
}
func (p *testPlugin) Stop(ctx context.Context) error {
	p.events.add("stop:" + p.name)
	if p.stopWait > 0 {
		select {
		case <-time.After(p.stopWait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return p.stopErr
}
func (p *testPlugin) Enabled() bool { return !p.disabled }

// testHTTPPlugin implements both Plugin and HTTPProvider.
type testHTTPPlugin struct {
	testPlugin
	routes []Route
}

func (p *testHTTPPlugin) Routes() []Route { return p.routes }

func (p *testHTTPPlugin) Health(context.Context) HealthStatus {
	return HealthStatus{Healthy: true}
}

func equalEvents(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
}

func TestRegister(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	log := &eventLog{}

	p := newTestPlugin("alpha", log)
	if err := reg.Register(p); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	// Duplicate registration should fail.
	if err := reg.Register(p); err == nil {
		t.Fatal("Register() expected error for duplicate, got nil")
	}
	if err := reg.Register(newTestPlugin("", log)); err == nil {
		t.Fatal("Register() expected error for empty name, got nil")
	}
	if got, ok := reg.Get("alpha"); !ok || got != p {
		t.Errorf("Get(alpha) = %v, %v", got, ok)
	}
}

func TestLifecycleOrder(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	log := &eventLog{}
	for _, name := range []string{"collector", "agent", "health"} {
		if err := reg.Register(newTestPlugin(name, log)); err != nil {
			t.Fatal(err)
		}
	}

	if err := reg.InitAll(&config.Config{}); err != nil {
		t.Fatalf("InitAll() error = %v", err)
	}
	if err := reg.StartAll(context.Background()); err != nil {
		t.Fatalf("StartAll() error = %v", err)
	}
	if err := reg.StopAll(context.Background()); err != nil {
		t.Fatalf("StopAll() error = %v", err)
	}

	equalEvents(t, log.all(), []string{
		"init:collector", "init:agent", "init:health",
		"start:collector", "start:agent", "start:health",
		"stop:health", "stop:agent", "stop:collector",
	})
}

func TestInitAllError(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	p := newTestPlugin("broken", &eventLog{})
	p.initErr = errors.New("bad config")
	reg.Register(p)

	if err := reg.InitAll(&config.Config{}); err == nil {
		t.Fatal("InitAll() expected error, got nil")
	}
}

func TestStartAll_SkipsDisabledAndUnwinds(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	log := &eventLog{}
	off := newTestPlugin("health", log)
	off.disabled = true
	failing := newTestPlugin("agent", log)
	failing.startErr = errors.New("bind: permission denied")

	reg.Register(newTestPlugin("collector", log))
	reg.Register(off)
	reg.Register(failing)

	if err := reg.StartAll(context.Background()); err == nil {
		t.Fatal("StartAll() expected error, got nil")
	}
	_ = reg.StopAll(context.Background())

	// The disabled plugin never starts and the failed one is not stopped.
	equalEvents(t, log.all(), []string{
		"start:collector", "start:agent",
		"stop:collector",
	})
}

func TestStopAll_DeadlineAndErrors(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	log := &eventLog{}
	slow := newTestPlugin("slow", log)
	slow.stopWait = time.Minute
	bad := newTestPlugin("bad", log)
	bad.stopErr = errors.New("boom")

	reg.Register(bad)
	reg.Register(slow)
	if err := reg.StartAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := reg.StopAll(ctx)
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("StopAll took %v, want bounded by deadline", elapsed)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("StopAll() error = %v, want DeadlineExceeded", err)
	}
	if err == nil || !containsEvent(log.all(), "stop:bad") {
		t.Error("plugins after a slow one must still be stopped")
	}
}

func containsEvent(events []string, want string) bool {
	for _, e := range events {
		if e == want {
			return true
		}
	}
	return false
}

func TestAllRoutesAndHealthCheckers(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	log := &eventLog{}
	web := &testHTTPPlugin{
		testPlugin: *newTestPlugin("collector", log),
		routes: []Route{{Method: http.MethodGet, Path: "/history", Handler: func(http.ResponseWriter, *http.Request) {}}},
	}
	hidden := &testHTTPPlugin{testPlugin: *newTestPlugin("health", log)}
	hidden.disabled = true
	reg.Register(web)
	reg.Register(hidden)
	reg.Register(newTestPlugin("plain", log))

	routes := reg.AllRoutes()
	if len(routes) != 1 || len(routes["collector"]) != 1 {
		t.Errorf("AllRoutes() = %v, want only collector's route", routes)
	}

	checkers := reg.HealthCheckers()
	if len(checkers) != 1 {
		t.Fatalf("HealthCheckers() returned %d, want 1", len(checkers))
	}
	if _, ok := checkers["collector"]; !ok {
		t.Error("HealthCheckers() missing collector")
	}
}
