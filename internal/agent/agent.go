package agent

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/mancow2001/ntx-custom-monitor/internal/config"
	"github.com/mancow2001/ntx-custom-monitor/internal/oid"
	"github.com/mancow2001/ntx-custom-monitor/internal/plugin"
	"github.com/mancow2001/ntx-custom-monitor/internal/snapshot"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin        = (*Worker)(nil)
	_ plugin.HTTPProvider  = (*Worker)(nil)
	_ plugin.HealthChecker = (*Worker)(nil)
)

// Worker owns the UDP listener and the SNMP server.
type Worker struct {
	cache   *snapshot.Cache
	version string
	logger  *zap.Logger

	addr     string
	testMode bool
	engineID []byte

	index     *oid.Index
	responder *Responder
	server    *Server

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWorker creates an agent serving snapshots from cache. version is
// reported under the system subtree.
func NewWorker(cache *snapshot.Cache, version string) *Worker {
	return &Worker{cache: cache, version: version}
}

func (w *Worker) Name() string { return "snmp" }

func (w *Worker) Init(cfg *config.Config, logger *zap.Logger) error {
	w.logger = logger
	base, err := oid.Parse(cfg.SNMP.BaseOID)
	if err != nil {
		return fmt.Errorf("base oid: %w", err)
	}
	w.engineID, err = EngineID(cfg.SNMP.EngineID)
	if err != nil {
		return err
	}
	allow := ParseAllowList(cfg.Security.AllowedSNMPClients, logger)

	w.index = oid.NewIndex(base, w.cache, w.version)
	w.responder = NewResponder(w.index, allow, nil)
	w.server, err = NewServer(USM{
		Username:     cfg.SNMP.Username,
		AuthKey:      cfg.SNMP.AuthKey,
		PrivKey:      cfg.SNMP.PrivKey,
		AuthProtocol: cfg.SNMP.AuthProtocol,
		PrivProtocol: cfg.SNMP.PrivProtocol,
		EngineID:     w.engineID,
	}, w.responder, logger)
	if err != nil {
		return err
	}
	w.addr = net.JoinHostPort(cfg.SNMP.BindIP, strconv.Itoa(cfg.SNMP.BindPort))
	w.testMode = cfg.Debug.TestMode

	logger.Info("snmp agent initialized",
		zap.String("addr", w.addr),
		zap.String("base_oid", base.String()),
		zap.String("engine_id", hex.EncodeToString(w.engineID)),
		zap.String("user", cfg.SNMP.Username),
		zap.Int("allowed_clients", allow.Len()),
	)
	return nil
}

// Index exposes the OID index.
func (w *Worker) Index() *oid.Index { return w.index }

// Responder exposes the request handler.
func (w *Worker) Responder() *Responder { return w.responder }

// Start binds the UDP socket and serves in the background. In test mode a
// bind failure is logged and the daemon keeps running without SNMP.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done != nil {
		return errors.New("agent already running")
	}

	conn, err := net.ListenPacket("udp", w.addr)
	if err != nil {
		if w.testMode {
			w.logger.Error("snmp listener unavailable, continuing in test mode", zap.String("addr", w.addr), zap.Error(err))
			return nil
		}
		return fmt.Errorf("listen %s: %w", w.addr, err)
	}
	w.logger.Info("snmp agent listening", zap.String("addr", conn.LocalAddr().String()))

	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		if err := w.server.Serve(ctx, conn); err != nil {
			w.logger.Error("snmp server stopped", zap.Error(err))
		}
	}(w.done)
	return nil
}

// Stop closes the listener and waits for the serve loop until ctx ends.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()
	if done == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		w.logger.Info("snmp agent stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) Health(context.Context) plugin.HealthStatus {
	if w.server == nil || !w.server.Running() {
		return plugin.HealthStatus{Healthy: false, Detail: "snmp listener not running"}
	}
	return plugin.HealthStatus{
		Healthy: true,
		Detail:  fmt.Sprintf("serving %d oids on %s", w.index.Len(), w.addr),
	}
}

func (w *Worker) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: http.MethodGet, Path: "/oids", Handler: w.handleOIDs},
		{Method: http.MethodGet, Path: "/stats", Handler: w.handleStats},
	}
}

type oidEntry struct {
	OID   string `json:"oid"`
	Type  string `json:"type"`
	Value any    `json:"value"`
}

func (w *Worker) handleOIDs(rw http.ResponseWriter, _ *http.Request) {
	entries := w.index.Entries()
	out := make([]oidEntry, len(entries))
	for i, e := range entries {
		out[i] = oidEntry{OID: e.OID.String(), Type: e.Value.Type.String()}
		if e.Value.Type == oid.OctetString {
			out[i].Value = e.Value.Str
		} else {
			out[i].Value = e.Value.Num
		}
	}
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(out)
}

type agentStats struct {
	Stats
	EngineID string `json:"engine_id"`
	OIDs     int    `json:"oids"`
	Running  bool   `json:"running"`
}

func (w *Worker) handleStats(rw http.ResponseWriter, _ *http.Request) {
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(agentStats{
		Stats:    w.responder.Stats(),
		EngineID: hex.EncodeToString(w.engineID),
		OIDs:     w.index.Len(),
		Running:  w.server.Running(),
	})
}
