// Package source defines the telemetry source contract consumed by the
// collector and provides the Prism Central and simulated implementations.
package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/mancow2001/ntx-custom-monitor/pkg/models"
)

// Source lists entities and fetches their raw statistics from a control
// plane. A stats call may return (nil, nil) when the entity has no stats.
// Implementations must be safe for concurrent use.
type Source interface {
	ListClusters(ctx context.Context) ([]models.EntityRecord, error)
	ListHosts(ctx context.Context) ([]models.EntityRecord, error)
	ListVMs(ctx context.Context) ([]models.EntityRecord, error)

	ClusterStats(ctx context.Context, uuid string) (models.RawStats, error)
	HostStats(ctx context.Context, uuid string) (models.RawStats, error)
	VMStats(ctx context.Context, uuid string) (models.RawStats, error)

	// Healthy reports the coarse health of the upstream connection.
	Healthy() bool

	// APIVersion identifies the upstream API flavor, e.g. "v3".
	APIVersion() string
}

var (
	// ErrUnauthorized is returned when the control plane rejects the
	// configured credentials or the user lacks permission.
	ErrUnauthorized = errors.New("control plane rejected credentials")

	// ErrNotFound is returned when an entity or endpoint does not exist.
	ErrNotFound = errors.New("not found")
)

// APIError describes a non-success HTTP response from the control plane.
type APIError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: HTTP %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Unwrap maps authentication and lookup failures onto the package sentinels.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case 401, 403:
		return ErrUnauthorized
	case 404:
		return ErrNotFound
	default:
		return nil
	}
}

// List calls the listing method of src for kind.
func List(ctx context.Context, src Source, kind models.EntityKind) ([]models.EntityRecord, error) {
	switch kind {
	case models.KindCluster:
		return src.ListClusters(ctx)
	case models.KindHost:
		return src.ListHosts(ctx)
	case models.KindVM:
		return src.ListVMs(ctx)
	default:
		return nil, fmt.Errorf("unknown entity kind %d", int(kind))
	}
}

// Stats calls the stats method of src for kind.
func Stats(ctx context.Context, src Source, kind models.EntityKind, uuid string) (models.RawStats, error) {
	switch kind {
	case models.KindCluster:
		return src.ClusterStats(ctx, uuid)
	case models.KindHost:
		return src.HostStats(ctx, uuid)
	case models.KindVM:
		return src.VMStats(ctx, uuid)
	default:
		return nil, fmt.Errorf("unknown entity kind %d", int(kind))
	}
}
