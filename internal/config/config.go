// Package config loads the daemon configuration from YAML, environment
// variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/mancow2001/ntx-custom-monitor/internal/stats"
	"github.com/mancow2001/ntx-custom-monitor/pkg/models"
)

// EnvPrefix prefixes every environment override, e.g. NTX_SNMPD_PRISM_ADDRESS.
const EnvPrefix = "NTX_SNMPD"

// SearchPaths lists the files tried, in order, when no path is given.
var SearchPaths = []string{
	"/etc/ntx-snmpd/config.yaml",
	"/etc/ntx-snmpd.yaml",
	"./config.yaml",
	"~/.ntx-snmpd.yaml",
}

// Config is the complete daemon configuration.
type Config struct {
	Prism       Prism       `mapstructure:"prism"`
	SNMP        SNMP        `mapstructure:"snmp"`
	Daemon      Daemon      `mapstructure:"daemon"`
	Metrics     Metrics     `mapstructure:"metrics"`
	Performance Performance `mapstructure:"performance"`
	Monitoring  Monitoring  `mapstructure:"monitoring"`
	Security    Security    `mapstructure:"security"`
	Debug       Debug       `mapstructure:"debug"`

	// File is the configuration file that was read, empty when running on
	// defaults and environment only.
	File string `mapstructure:"-"`
}

// Prism configures the Prism Central connection.
type Prism struct {
	Address              string        `mapstructure:"address"`
	Port                 int           `mapstructure:"port"`
	Username             string        `mapstructure:"username"`
	Password             string        `mapstructure:"password"`
	SSLVerify            bool          `mapstructure:"ssl_verify"`
	Timeout              time.Duration `mapstructure:"timeout"`
	RetryCount           int           `mapstructure:"retry_count"`
	RetryDelay           time.Duration `mapstructure:"retry_delay"`
	MaxRequestsPerMinute int           `mapstructure:"max_requests_per_minute"`
	PageSize             int           `mapstructure:"page_size"`
}

// SNMP configures the SNMPv3 agent.
type SNMP struct {
	BindIP       string `mapstructure:"bind_ip"`
	BindPort     int    `mapstructure:"bind_port"`
	Username     string `mapstructure:"username"`
	AuthKey      string `mapstructure:"auth_key"`
	PrivKey      string `mapstructure:"priv_key"`
	AuthProtocol string `mapstructure:"auth_protocol"`
	PrivProtocol string `mapstructure:"priv_protocol"`
	BaseOID      string `mapstructure:"base_oid"`
	EngineID     string `mapstructure:"engine_id"`
}

// Daemon configures process-wide behavior.
type Daemon struct {
	CollectionInterval time.Duration `mapstructure:"collection_interval"`
	LogLevel           string        `mapstructure:"log_level"`
	LogFormat          string        `mapstructure:"log_format"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	StatusAddr         string        `mapstructure:"status_addr"`
}

// Metrics holds the per-kind metric gates. The vm section also carries the
// "enabled" switch for VM collection as a whole.
type Metrics struct {
	Cluster map[string]bool `mapstructure:"cluster"`
	Host    map[string]bool `mapstructure:"host"`
	VM      map[string]bool `mapstructure:"vm"`
}

// VMEnabled reports whether VM collection is switched on.
func (m Metrics) VMEnabled() bool { return m.VM["enabled"] }

// Gates returns the enabled metric gates for kind. Gates missing from the
// configuration default to enabled.
func (m Metrics) Gates(kind models.EntityKind) stats.Enabled {
	var section map[string]bool
	switch kind {
	case models.KindCluster:
		section = m.Cluster
	case models.KindHost:
		section = m.Host
	case models.KindVM:
		section = m.VM
	}
	out := stats.Enabled{}
	for _, gate := range stats.Gates(kind) {
		on, ok := section[gate]
		out[gate] = on || !ok
	}
	return out
}

// Performance tunes collection concurrency and snapshot reuse.
type Performance struct {
	MaxConcurrentRequests int           `mapstructure:"max_concurrent_requests"`
	CacheTimeout          time.Duration `mapstructure:"cache_timeout"`
	EnableMetricsCache    bool          `mapstructure:"enable_metrics_cache"`
}

// Monitoring configures the self health monitor.
type Monitoring struct {
	EnableHealthChecks       bool          `mapstructure:"enable_health_checks"`
	HealthCheckInterval      time.Duration `mapstructure:"health_check_interval"`
	AlertOnConnectionFailure bool          `mapstructure:"alert_on_connection_failure"`
}

// Security restricts who may query the agent.
type Security struct {
	AllowedSNMPClients []string `mapstructure:"allowed_snmp_clients"`
}

// Debug holds development switches.
type Debug struct {
	// TestMode serves simulated telemetry and keeps startup failures
	// non-fatal.
	TestMode bool `mapstructure:"test_mode"`
}

// Load reads the configuration from path, or from the first existing entry
// of SearchPaths when path is empty. A missing file is not an error when
// searching; defaults and environment overrides still apply.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetConfigType("yaml")

	if path == "" {
		path = findConfig()
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	cfg.File = v.ConfigFileUsed()
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		secondsToDurationHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// secondsToDurationHook lets durations be written as bare numbers of
// seconds, e.g. "collection_interval: 60".
func secondsToDurationHook() mapstructure.DecodeHookFuncType {
	durationType := reflect.TypeOf(time.Duration(0))
	return func(from, to reflect.Type, data any) (any, error) {
		if to != durationType {
			return data, nil
		}
		switch from.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return time.Duration(reflect.ValueOf(data).Int()) * time.Second, nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return time.Duration(reflect.ValueOf(data).Uint()) * time.Second, nil
		case reflect.Float32, reflect.Float64:
			return time.Duration(reflect.ValueOf(data).Float() * float64(time.Second)), nil
		case reflect.String:
			// Plain digits are seconds too; everything else goes to the
			// string duration parser.
			if n, err := strconv.ParseFloat(data.(string), 64); err == nil {
				return time.Duration(n * float64(time.Second)), nil
			}
		}
		return data, nil
	}
}

func findConfig() string {
	for _, p := range SearchPaths {
		if strings.HasPrefix(p, "~/") {
			home, err := os.UserHomeDir()
			if err != nil {
				continue
			}
			p = filepath.Join(home, p[2:])
		}
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p
		}
	}
	return ""
}

// Validate checks required fields and value ranges, reporting every problem
// at once. Prism credentials are optional in test mode.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if !c.Debug.TestMode {
		if c.Prism.Address == "" {
			bad("prism.address is required")
		}
		if c.Prism.Username == "" || c.Prism.Password == "" {
			bad("prism.username and prism.password are required")
		}
	}
	if c.Prism.Port < 1 || c.Prism.Port > 65535 {
		bad("prism.port %d out of range", c.Prism.Port)
	}
	if c.Prism.RetryCount < 0 {
		bad("prism.retry_count must not be negative")
	}

	if c.SNMP.Username == "" {
		bad("snmp.username is required")
	}
	if len(c.SNMP.AuthKey) < 8 {
		bad("snmp.auth_key must be at least 8 characters")
	}
	if len(c.SNMP.PrivKey) < 8 {
		bad("snmp.priv_key must be at least 8 characters")
	}
	switch strings.ToUpper(c.SNMP.AuthProtocol) {
	case "MD5", "SHA":
	default:
		bad("snmp.auth_protocol %q must be MD5 or SHA", c.SNMP.AuthProtocol)
	}
	switch strings.ToUpper(c.SNMP.PrivProtocol) {
	case "DES", "AES":
	default:
		bad("snmp.priv_protocol %q must be DES or AES", c.SNMP.PrivProtocol)
	}
	if c.SNMP.BindPort < 1 || c.SNMP.BindPort > 65535 {
		bad("snmp.bind_port %d out of range", c.SNMP.BindPort)
	}
	if !numericOID(c.SNMP.BaseOID) {
		bad("snmp.base_oid %q is not a dotted numeric OID", c.SNMP.BaseOID)
	}

	if c.Daemon.CollectionInterval <= 0 {
		bad("daemon.collection_interval must be positive")
	}
	switch c.Daemon.LogFormat {
	case "json", "console":
	default:
		bad("daemon.log_format %q must be json or console", c.Daemon.LogFormat)
	}
	if c.Performance.MaxConcurrentRequests < 1 {
		bad("performance.max_concurrent_requests must be at least 1")
	}
	if c.Monitoring.EnableHealthChecks && c.Monitoring.HealthCheckInterval <= 0 {
		bad("monitoring.health_check_interval must be positive")
	}

	return errors.Join(errs...)
}

func numericOID(s string) bool {
	s = strings.TrimPrefix(s, ".")
	if s == "" {
		return false
	}
	for _, arc := range strings.Split(s, ".") {
		if _, err := strconv.ParseUint(arc, 10, 32); err != nil {
			return false
		}
	}
	return true
}
