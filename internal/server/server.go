// Package server exposes the local HTTP status surface: health, status,
// entity listings, Prometheus metrics and plugin routes.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mancow2001/ntx-custom-monitor/internal/agent"
	"github.com/mancow2001/ntx-custom-monitor/internal/collector"
	"github.com/mancow2001/ntx-custom-monitor/internal/health"
	"github.com/mancow2001/ntx-custom-monitor/internal/plugin"
	"github.com/mancow2001/ntx-custom-monitor/internal/snapshot"
	"github.com/mancow2001/ntx-custom-monitor/internal/stats"
	"github.com/mancow2001/ntx-custom-monitor/internal/version"
	"github.com/mancow2001/ntx-custom-monitor/pkg/models"
)

// PerfReporter provides collector performance stats.
type PerfReporter interface {
	PerfStats() collector.PerfStats
}

// RequestReporter provides SNMP request counters.
type RequestReporter interface {
	Stats() agent.Stats
}

// OIDCounter reports the number of OIDs currently served.
type OIDCounter interface {
	Len() int
}

// Options wires the server to the daemon's components. Registry, Monitor
// and Cache are required; the reporters may be nil.
type Options struct {
	Addr      string
	Registry  *plugin.Registry
	Monitor   *health.Monitor
	Cache     *snapshot.Cache
	Collector PerfReporter
	Requests  RequestReporter
	OIDs      OIDCounter
	Now       func() time.Time
}

// Server is the status HTTP server.
type Server struct {
	httpServer *http.Server
	opts       Options
	logger     *zap.Logger
	mux        *http.ServeMux
	started    time.Time
}

// New creates a Server and registers all routes.
func New(opts Options, logger *zap.Logger) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         opts.Addr,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		opts:    opts,
		logger:  logger,
		mux:     mux,
		started: opts.Now(),
	}

	s.registerCoreRoutes()
	s.mountPluginRoutes()
	s.httpServer.Handler = s.recoverer(mux)

	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// recoverer turns a panicking handler into a 500 problem response.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("handler panicked",
					zap.String("path", r.URL.Path),
					zap.Any("panic", rec),
				)
				InternalError(w, "internal error", r.URL.Path)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// registerCoreRoutes sets up routes that are always available.
func (s *Server) registerCoreRoutes() {
	s.mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/v1/entities/{kind}", s.handleEntities)
	s.mux.HandleFunc("GET /api/v1/plugins", s.handlePlugins)
	s.mux.Handle("GET /metrics", promhttp.Handler())
	s.mux.HandleFunc("/api/v1/", func(w http.ResponseWriter, r *http.Request) {
		NotFound(w, "no such endpoint", r.URL.Path)
	})
}

// mountPluginRoutes registers all plugin routes under /api/v1/{plugin}/.
func (s *Server) mountPluginRoutes() {
	for pluginName, routes := range s.opts.Registry.AllRoutes() {
		for _, route := range routes {
			pattern := fmt.Sprintf("%s /api/v1/%s%s", route.Method, pluginName, route.Path)
			s.mux.HandleFunc(pattern, route.Handler)
			s.logger.Debug("mounted route",
				zap.String("plugin", pluginName),
				zap.String("pattern", pattern),
			)
		}
	}
}

// Start begins serving HTTP requests. It blocks until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("starting HTTP server", zap.String("addr", ln.Addr().String()))
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Ntx-Snmpd-Version", version.Short())
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("write response", zap.Error(err))
	}
}

// handleHealth runs every check now and answers 503 when any fails.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.opts.Monitor.Check(r.Context())
	code := http.StatusOK
	if !st.Healthy {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, st)
}

type snapshotStatus struct {
	TakenAt           time.Time      `json:"taken_at"`
	AgeSeconds        float64        `json:"age_seconds"`
	CollectionSeconds float64        `json:"collection_seconds"`
	SourceHealthy     bool           `json:"source_healthy"`
	SourceVersion     string         `json:"source_version,omitempty"`
	Entities          map[string]int `json:"entities"`
}

type statusResponse struct {
	Service       string               `json:"service"`
	Version       version.Build        `json:"version"`
	UptimeSeconds float64              `json:"uptime_seconds"`
	Snapshot      *snapshotStatus      `json:"snapshot"`
	OIDs          int                  `json:"oids"`
	Health        health.Status        `json:"health"`
	Collector     *collector.PerfStats `json:"collector,omitempty"`
	SNMP          *agent.Stats         `json:"snmp,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	now := s.opts.Now()
	resp := statusResponse{
		Service:       "ntx-snmpd",
		Version:       version.Current(),
		UptimeSeconds: now.Sub(s.started).Seconds(),
	}
	if snap := s.opts.Cache.Current(); snap != nil {
		ss := &snapshotStatus{
			TakenAt:           snap.TakenAt,
			AgeSeconds:        snap.Age(now).Seconds(),
			CollectionSeconds: snap.CollectionDuration.Seconds(),
			SourceHealthy:     snap.SourceHealthy,
			SourceVersion:     snap.SourceVersion,
			Entities:          make(map[string]int, len(models.Kinds)),
		}
		for kind, n := range snap.Counts() {
			ss.Entities[kind.String()] = n
		}
		resp.Snapshot = ss
	}
	if s.opts.OIDs != nil {
		resp.OIDs = s.opts.OIDs.Len()
	}
	if st, ok := s.opts.Monitor.Last(); ok {
		resp.Health = st
	} else {
		resp.Health = s.opts.Monitor.Check(r.Context())
	}
	if s.opts.Collector != nil {
		ps := s.opts.Collector.PerfStats()
		resp.Collector = &ps
	}
	if s.opts.Requests != nil {
		st := s.opts.Requests.Stats()
		resp.SNMP = &st
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type entityResponse struct {
	Ordinal int           `json:"ordinal"`
	UUID    string        `json:"uuid"`
	Name    string        `json:"name"`
	Stats   stats.StatSet `json:"stats"`
}

// handleEntities lists one bucket of the current snapshot with the ordinals
// used in OIDs.
func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	kind, err := models.ParseEntityKind(r.PathValue("kind"))
	if err != nil {
		BadRequest(w, err.Error(), r.URL.Path)
		return
	}
	snap := s.opts.Cache.Current()
	if snap == nil {
		ServiceUnavailable(w, "no snapshot collected yet", r.URL.Path)
		return
	}
	bucket := snap.Bucket(kind)
	out := make([]entityResponse, 0, bucket.Len())
	for ord, e := range bucket.All() {
		out = append(out, entityResponse{Ordinal: ord, UUID: e.UUID, Name: e.Name, Stats: e.Stats})
	}
	s.writeJSON(w, http.StatusOK, out)
}

// handlePlugins returns the registered plugins and whether each is enabled.
func (s *Server) handlePlugins(w http.ResponseWriter, _ *http.Request) {
	type pluginResponse struct {
		Name    string `json:"name"`
		Enabled bool   `json:"enabled"`
	}
	plugins := s.opts.Registry.All()
	info := make([]pluginResponse, 0, len(plugins))
	for _, p := range plugins {
		enabled := true
		if e, ok := p.(plugin.Enabler); ok {
			enabled = e.Enabled()
		}
		info = append(info, pluginResponse{Name: p.Name(), Enabled: enabled})
	}
	s.writeJSON(w, http.StatusOK, info)
}
