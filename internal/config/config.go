package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FeeCapBps mirrors the escrow hard ceiling; config validation rejects
// anything above it before the engine ever sees it.
const FeeCapBps = 2000

// Config models flowescrow.yml.
type Config struct {
	Escrow struct {
		FeeBps       int64  `yaml:"fee_bps"`
		FeeRecipient string `yaml:"fee_recipient"`
		Admin        string `yaml:"admin"`
	} `yaml:"escrow"`
	Server struct {
		JWTSecret               string `yaml:"jwt_secret"`
		AllowLegacyCallerHeader bool   `yaml:"allow_legacy_caller_header"`
		DevAuth                 bool   `yaml:"dev_auth"`
	} `yaml:"server"`
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty"`
}

// WebhookConfig declares one event-stream consumer endpoint.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Secret         string   `yaml:"secret,omitempty"`
	Events         []string `yaml:"events,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Escrow.FeeBps < 0 || c.Escrow.FeeBps > FeeCapBps {
		return fmt.Errorf("escrow.fee_bps must be in [0,%d], got %d", FeeCapBps, c.Escrow.FeeBps)
	}
	if c.Escrow.FeeRecipient == "" {
		return fmt.Errorf("escrow.fee_recipient is required")
	}
	if c.Escrow.Admin == "" {
		return fmt.Errorf("escrow.admin is required")
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("webhooks[%d].url is required", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "flowescrow.yml")
}

// Load reads and validates config from workspace, falling back to defaults
// when no config file exists.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// GenerateDefault returns default config YAML for `flow config init`.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `escrow:
  # Platform fee in basis points (10000 = 100%), hard-capped at 2000.
  fee_bps: 500
  fee_recipient: platform-treasury
  # Account seeded into the admin set at first boot.
  admin: platform-admin

server:
  jwt_secret: ""
  allow_legacy_caller_header: true
  dev_auth: false
`
