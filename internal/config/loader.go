package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the gateway.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr         string `json:"addr" yaml:"addr" toml:"addr"`
	ModelsDB     string `json:"models_db" yaml:"models_db" toml:"models_db"`
	LogLevel     string `json:"log_level" yaml:"log_level" toml:"log_level"`
	MaxBodyBytes int64  `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`

	// StreamTimeoutSeconds bounds each wait on a ticket's streaming
	// queue (per iteration, not per request).
	StreamTimeoutSeconds int `json:"stream_timeout_seconds" yaml:"stream_timeout_seconds" toml:"stream_timeout_seconds"`
	// ChatDoneDelayMS is slept before the chat [DONE] sentinel; a
	// workaround for a plugin-side race, kept adjustable.
	ChatDoneDelayMS int `json:"chat_done_delay_ms" yaml:"chat_done_delay_ms" toml:"chat_done_delay_ms"`

	// LocalBackendURL is the local inference backend, e.g.
	// "http://127.0.0.1:8001".
	LocalBackendURL string `json:"local_backend_url" yaml:"local_backend_url" toml:"local_backend_url"`

	Cloud CloudConfig `json:"cloud" yaml:"cloud" toml:"cloud"`

	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
}

// CloudConfig configures the third-party completion provider used by
// the chat passthrough.
type CloudConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	BaseURL string `json:"base_url" yaml:"base_url" toml:"base_url"`
	// APIKeyEnv names the environment variable holding the key; the
	// key itself never lives in the config file.
	APIKeyEnv string   `json:"api_key_env" yaml:"api_key_env" toml:"api_key_env"`
	Models    []string `json:"models" yaml:"models" toml:"models"`
}

// APIKey resolves the provider key from the configured environment
// variable.
func (c CloudConfig) APIKey() string {
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
