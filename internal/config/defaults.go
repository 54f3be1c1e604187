package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mancow2001/ntx-custom-monitor/internal/stats"
	"github.com/mancow2001/ntx-custom-monitor/pkg/models"
)

type setting struct {
	key   string
	value any
}

// defaults are listed in the order they appear in a generated file.
// Durations are strings so the generated YAML stays readable.
func defaults() []setting {
	s := []setting{
		{"prism.address", ""},
		{"prism.port", 9440},
		{"prism.username", ""},
		{"prism.password", ""},
		{"prism.ssl_verify", false},
		{"prism.timeout", "30s"},
		{"prism.retry_count", 3},
		{"prism.retry_delay", "5s"},
		{"prism.max_requests_per_minute", 300},
		{"prism.page_size", 500},

		{"snmp.bind_ip", "0.0.0.0"},
		{"snmp.bind_port", 161},
		{"snmp.username", ""},
		{"snmp.auth_key", ""},
		{"snmp.priv_key", ""},
		{"snmp.auth_protocol", "MD5"},
		{"snmp.priv_protocol", "DES"},
		{"snmp.base_oid", "1.3.6.1.4.1.99999.1"},
		{"snmp.engine_id", ""},

		{"daemon.collection_interval", "60s"},
		{"daemon.log_level", "info"},
		{"daemon.log_format", "json"},
		{"daemon.shutdown_timeout", "10s"},
		{"daemon.status_addr", "127.0.0.1:9161"},
	}

	for _, kind := range models.Kinds {
		section := "metrics." + kind.String() + "."
		if kind == models.KindVM {
			s = append(s, setting{section + "enabled", false})
		}
		for _, gate := range stats.Gates(kind) {
			s = append(s, setting{section + gate, true})
		}
	}

	return append(s,
		setting{"performance.max_concurrent_requests", 10},
		setting{"performance.cache_timeout", "30s"},
		setting{"performance.enable_metrics_cache", true},

		setting{"monitoring.enable_health_checks", true},
		setting{"monitoring.health_check_interval", "300s"},
		setting{"monitoring.alert_on_connection_failure", true},

		setting{"security.allowed_snmp_clients", []string{}},

		setting{"debug.test_mode", false},
	)
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	for _, s := range defaults() {
		v.SetDefault(s.key, s.value)
	}
}

// Default returns the configuration produced by defaults alone.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := decode(v)
	if err != nil {
		panic(fmt.Sprintf("config: defaults do not decode: %v", err))
	}
	return cfg
}

// WriteDefault writes a default configuration to path with
// placeholder credentials, creating parent directories as needed. Existing
// files are not overwritten.
func WriteDefault(path string) error {
	doc := defaultDocument()
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode default config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write config file: %w", err)
	}
	return f.Close()
}

var placeholders = map[string]any{
	"prism.address":  "10.1.1.100",
	"prism.username": "admin",
	"prism.password": "changeme",
	"snmp.username":  "nutanix_monitor",
	"snmp.auth_key":  "AuthenticationKey123!",
	"snmp.priv_key":  "PrivacyKey123!",
}

// defaultDocument builds an ordered YAML mapping from the defaults table.
func defaultDocument() *yaml.Node {
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, s := range defaults() {
		value := s.value
		if p, ok := placeholders[s.key]; ok {
			value = p
		}
		parts := strings.Split(s.key, ".")
		node := root
		for _, part := range parts[:len(parts)-1] {
			node = child(node, part)
		}
		var v yaml.Node
		if err := v.Encode(value); err != nil {
			panic(fmt.Sprintf("config: encode default %s: %v", s.key, err))
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: parts[len(parts)-1]},
			&v,
		)
	}
	return root
}

// child returns the mapping stored under key in node, adding it if absent.
func child(node *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	m := &yaml.Node{Kind: yaml.MappingNode}
	node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: key}, m)
	return m
}
