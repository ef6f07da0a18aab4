// Package config loads the proxy's configuration from a YAML file with
// environment-variable overrides, following the teacher's own layering
// order: defaults first, a YAML document on top, environment variables
// winning last.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ServerConfig controls the proxy's own listen address.
type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	MaxBodyBytes int64  `yaml:"max_body_bytes"`
}

// BackendConfig locates the upstream inference server.
type BackendConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// FixModuleConfig is one fix's enable flag plus its free-form options
// (e.g. remove_duplicate for dedup_tool_arguments).
type FixModuleConfig struct {
	Enabled bool           `yaml:"enabled"`
	Options map[string]any `yaml:"options"`
}

// FixesConfig is the global fix-registry toggle plus per-module overrides.
type FixesConfig struct {
	Enabled bool                       `yaml:"enabled"`
	Modules map[string]FixModuleConfig `yaml:"modules"`
}

// StatsConfig controls metrics formatting.
type StatsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Format  string `yaml:"format"`
}

// ExporterConfig is one exporter's enable flag plus opaque connection
// parameters the core never interprets.
type ExporterConfig struct {
	Enabled bool           `yaml:"enabled"`
	Params  map[string]any `yaml:",inline"`
}

// Config is the complete, merged proxy configuration.
type Config struct {
	Server    ServerConfig              `yaml:"server"`
	Backend   BackendConfig             `yaml:"backend"`
	Fixes     FixesConfig               `yaml:"fixes"`
	Stats     StatsConfig               `yaml:"stats"`
	Exporters map[string]ExporterConfig `yaml:"exporters"`
}

// Default returns the configuration used when neither a YAML file nor
// environment variables override a value.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Host: "0.0.0.0", Port: 8787, MaxBodyBytes: 10 << 20},
		Backend: BackendConfig{Host: "127.0.0.1", Port: 8080, TimeoutSeconds: 1800},
		Fixes: FixesConfig{
			Enabled: true,
			Modules: map[string]FixModuleConfig{
				"null_tool_index":       {Enabled: true},
				"argument_key_recovery": {Enabled: true},
				"dedup_tool_arguments":  {Enabled: true, Options: map[string]any{"remove_duplicate": true}},
			},
		},
		Stats: StatsConfig{Enabled: true, Format: "pretty"},
	}
}

// BaseURL returns the upstream inference server's base URL built from the
// backend host/port pair.
func (c *Config) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", c.Backend.Host, c.Backend.Port)
}

// Load builds a Config by starting from Default, layering path's YAML
// document on top when path is non-empty, then applying environment
// variable overrides last — the same precedence order the teacher
// documents for its own .env-over-defaults loading, generalized here to a
// three-tier defaults → YAML → env stack.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LLAMAPROXY_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v, ok := envInt("LLAMAPROXY_SERVER_PORT"); ok {
		cfg.Server.Port = v
	}
	if v, ok := envInt64("LLAMAPROXY_SERVER_MAX_BODY_BYTES"); ok {
		cfg.Server.MaxBodyBytes = v
	}
	if v := os.Getenv("LLAMAPROXY_BACKEND_HOST"); v != "" {
		cfg.Backend.Host = v
	}
	if v, ok := envInt("LLAMAPROXY_BACKEND_PORT"); ok {
		cfg.Backend.Port = v
	}
	if v, ok := envInt("LLAMAPROXY_BACKEND_TIMEOUT_SECONDS"); ok {
		cfg.Backend.TimeoutSeconds = v
	}
	if v, ok := envBool("LLAMAPROXY_FIXES_ENABLED"); ok {
		cfg.Fixes.Enabled = v
	}
	if v, ok := envBool("LLAMAPROXY_STATS_ENABLED"); ok {
		cfg.Stats.Enabled = v
	}
	if v := os.Getenv("LLAMAPROXY_STATS_FORMAT"); v != "" {
		cfg.Stats.Format = v
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envInt64(key string) (int64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, false
	}
	return b, true
}

// FixModule returns a fix's config, defaulting to enabled with no options
// when the name is absent from the loaded document entirely.
func (c *Config) FixModule(name string) FixModuleConfig {
	if mod, ok := c.Fixes.Modules[name]; ok {
		return mod
	}
	return FixModuleConfig{Enabled: true}
}
