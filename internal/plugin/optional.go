package plugin

import "context"

// HTTPProvider is implemented by plugins that expose status API routes.
type HTTPProvider interface {
	Routes() []Route
}

// HealthChecker is implemented by plugins that report their health status.
type HealthChecker interface {
	Health(ctx context.Context) HealthStatus
}

// Enabler is implemented by plugins that can be switched off by
// configuration. Disabled plugins are initialized but never started.
type Enabler interface {
	Enabled() bool
}

// HealthStatus is one component's health verdict.
type HealthStatus struct {
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}
