package source

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mancow2001/ntx-custom-monitor/internal/config"
	"github.com/mancow2001/ntx-custom-monitor/internal/version"
	"github.com/mancow2001/ntx-custom-monitor/pkg/models"
)

const prismAPIVersion = "v3"

// Compile-time interface guard.
var _ Source = (*PrismClient)(nil)

// PrismClient talks to the Prism Central v3 REST API.
type PrismClient struct {
	baseURL    string
	username   string
	password   string
	pageSize   int
	retries    int
	retryDelay time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	health     *HealthTracker
	logger     *zap.Logger

	// attrs holds list-level attributes per kind and UUID from the most
	// recent listing; they are merged into that entity's stats.
	mu    sync.RWMutex
	attrs map[models.EntityKind]map[string]models.RawStats
}

// NewPrismClient builds a client from the prism configuration section.
func NewPrismClient(cfg config.Prism, logger *zap.Logger) (*PrismClient, error) {
	if cfg.Address == "" {
		return nil, errors.New("prism address is required")
	}
	baseURL := cfg.Address
	if !strings.Contains(baseURL, "://") {
		baseURL = "https://" + net.JoinHostPort(cfg.Address, strconv.Itoa(cfg.Port))
	}
	baseURL = strings.TrimRight(baseURL, "/") + "/api/nutanix/" + prismAPIVersion

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: !cfg.SSLVerify} //nolint:gosec // Prism ships self-signed certificates by default.
	transport.MaxIdleConnsPerHost = 8

	limit := rate.Inf
	if cfg.MaxRequestsPerMinute > 0 {
		limit = rate.Limit(float64(cfg.MaxRequestsPerMinute) / 60)
	}
	burst := cfg.MaxRequestsPerMinute / 10
	if burst < 1 {
		burst = 1
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 500
	}

	return &PrismClient{
		baseURL:    baseURL,
		username:   cfg.Username,
		password:   cfg.Password,
		pageSize:   pageSize,
		retries:    cfg.RetryCount,
		retryDelay: cfg.RetryDelay,
		httpClient: &http.Client{Timeout: cfg.Timeout, Transport: transport},
		limiter:    rate.NewLimiter(limit, burst),
		health:     NewHealthTracker(cfg.RetryCount, DefaultMaxSuccessAge, nil),
		logger:     logger,
		attrs:      make(map[models.EntityKind]map[string]models.RawStats),
	}, nil
}

func (c *PrismClient) APIVersion() string { return prismAPIVersion }

// Healthy implements Source.
func (c *PrismClient) Healthy() bool { return c.health.Healthy() }

// HealthState exposes the detailed health tracker state.
func (c *PrismClient) HealthState() HealthState { return c.health.State() }

// Ping performs a lightweight listing call to verify connectivity and
// credentials.
func (c *PrismClient) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodPost, "clusters/list", map[string]any{"kind": "cluster", "length": 1})
	return err
}

func (c *PrismClient) ListClusters(ctx context.Context) ([]models.EntityRecord, error) {
	return c.list(ctx, models.KindCluster)
}

func (c *PrismClient) ListHosts(ctx context.Context) ([]models.EntityRecord, error) {
	return c.list(ctx, models.KindHost)
}

func (c *PrismClient) ListVMs(ctx context.Context) ([]models.EntityRecord, error) {
	return c.list(ctx, models.KindVM)
}

func (c *PrismClient) ClusterStats(ctx context.Context, uuid string) (models.RawStats, error) {
	return c.stats(ctx, models.KindCluster, uuid)
}

func (c *PrismClient) HostStats(ctx context.Context, uuid string) (models.RawStats, error) {
	return c.stats(ctx, models.KindHost, uuid)
}

func (c *PrismClient) VMStats(ctx context.Context, uuid string) (models.RawStats, error) {
	return c.stats(ctx, models.KindVM, uuid)
}

// prismEntity is the subset of a v3 list entity we read.
type prismEntity struct {
	Metadata struct {
		UUID string `json:"uuid"`
	} `json:"metadata"`
	Spec struct {
		Name string `json:"name"`
	} `json:"spec"`
	Status struct {
		Name      string `json:"name"`
		State     string `json:"state"`
		Resources struct {
			PowerState string `json:"power_state"`
			Hypervisor struct {
				FullName string `json:"hypervisor_full_name"`
				Type     string `json:"hypervisor_type"`
			} `json:"hypervisor"`
		} `json:"resources"`
	} `json:"status"`
}

func (e prismEntity) name() string {
	switch {
	case e.Spec.Name != "":
		return e.Spec.Name
	case e.Status.Name != "":
		return e.Status.Name
	default:
		return "Unknown"
	}
}

// attributes extracts list-level fields that the stats endpoint omits.
func (e prismEntity) attributes(kind models.EntityKind) models.RawStats {
	out := models.RawStats{}
	switch kind {
	case models.KindHost:
		if t := e.Status.Resources.Hypervisor.Type; t != "" {
			out["hypervisor_type"] = t
		} else if n := e.Status.Resources.Hypervisor.FullName; n != "" {
			out["hypervisor_type"] = n
		}
		if e.Status.State != "" {
			out["state"] = e.Status.State
		}
	case models.KindVM:
		if e.Status.Resources.PowerState != "" {
			out["power_state"] = e.Status.Resources.PowerState
		}
		if e.Status.State != "" {
			out["state"] = e.Status.State
		}
	}
	return out
}

func (c *PrismClient) list(ctx context.Context, kind models.EntityKind) ([]models.EntityRecord, error) {
	endpoint := kind.String() + "s/list"
	body, err := c.do(ctx, http.MethodPost, endpoint, map[string]any{
		"kind":   kind.String(),
		"length": c.pageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("list %ss: %w", kind, err)
	}

	var resp struct {
		Entities []prismEntity `json:"entities"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode %s list: %w", kind, err)
	}

	records := make([]models.EntityRecord, 0, len(resp.Entities))
	attrs := make(map[string]models.RawStats, len(resp.Entities))
	for _, e := range resp.Entities {
		if e.Metadata.UUID == "" {
			c.logger.Warn("entity without uuid skipped",
				zap.String("kind", kind.String()),
				zap.String("name", e.name()),
			)
			continue
		}
		records = append(records, models.EntityRecord{UUID: e.Metadata.UUID, Name: e.name()})
		if a := e.attributes(kind); len(a) > 0 {
			attrs[e.Metadata.UUID] = a
		}
	}

	c.mu.Lock()
	c.attrs[kind] = attrs
	c.mu.Unlock()

	c.logger.Debug("listed entities", zap.String("kind", kind.String()), zap.Int("count", len(records)))
	return records, nil
}

func (c *PrismClient) stats(ctx context.Context, kind models.EntityKind, uuid string) (models.RawStats, error) {
	endpoint := fmt.Sprintf("%ss/%s/stats", kind, uuid)
	body, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s %s stats: %w", kind, uuid, err)
	}

	var doc map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode %s stats: %w", kind, err)
	}

	raw := models.RawStats{}
	if nested, ok := doc["stats"].(map[string]any); ok {
		doc = nested
	}
	for k, v := range doc {
		raw[k] = v
	}

	c.mu.RLock()
	for k, v := range c.attrs[kind][uuid] {
		if _, exists := raw[k]; !exists {
			raw[k] = v
		}
	}
	c.mu.RUnlock()
	return raw, nil
}

// do executes one API call with rate limiting and bounded retries. Auth and
// not-found responses are not retried.
func (c *PrismClient) do(ctx context.Context, method, endpoint string, payload any) ([]byte, error) {
	var encoded []byte
	if payload != nil {
		var err error
		if encoded, err = json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay * time.Duration(1<<(attempt-1))
			c.logger.Debug("retrying request",
				zap.String("endpoint", endpoint),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if err := sleepCtx(ctx, delay); err != nil {
				return nil, err
			}
		}

		body, err := c.once(ctx, method, endpoint, encoded)
		if err == nil {
			c.health.Success()
			return body, nil
		}
		lastErr = err

		if errors.Is(err, ErrNotFound) {
			// The API answered; a missing entity says nothing about upstream health.
			c.health.Success()
			return nil, err
		}
		if !retryable(ctx, err) {
			break
		}
	}
	c.health.Failure(lastErr)
	if errors.Is(lastErr, ErrUnauthorized) {
		apiAuthFailures.Inc()
		c.logger.Error("prism rejected credentials", zap.String("endpoint", endpoint), zap.Error(lastErr))
	}
	return nil, lastErr
}

func (c *PrismClient) once(ctx context.Context, method, endpoint string, payload []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		apiRequests.WithLabelValues(method, "error").Inc()
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	apiRequests.WithLabelValues(method, strconv.Itoa(resp.StatusCode)).Inc()
	apiRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", endpoint, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(data))
		if len(msg) > 256 {
			msg = msg[:256]
		}
		return nil, &APIError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: msg}
	}
	return data, nil
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, ErrUnauthorized) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
