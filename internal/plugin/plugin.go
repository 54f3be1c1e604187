// Package plugin defines the lifecycle contract shared by the daemon's
// long-running workers and the registry that drives it.
package plugin

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/mancow2001/ntx-custom-monitor/internal/config"
)

// Route represents an HTTP route exposed by a plugin.
type Route struct {
	Method  string
	Path    string
	Handler http.HandlerFunc
}

// Plugin defines the interface that every worker must implement.
type Plugin interface {
	// Name returns the plugin's unique identifier (e.g., "collector", "snmp").
	Name() string

	// Init prepares the plugin from the loaded configuration.
	Init(cfg *config.Config, logger *zap.Logger) error

	// Start launches the plugin's background work and returns once it is
	// running. Work must stop when ctx is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop shuts the plugin down, waiting for its goroutines until ctx ends.
	Stop(ctx context.Context) error
}
