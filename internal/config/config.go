// Package config loads agent configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	DataDir     string `envconfig:"DATA_DIR" default:"./data"`

	// Proposals
	ProposalTTL time.Duration `envconfig:"PROPOSAL_TTL" default:"1h"`

	// Content generator (optional — falls back to templates when unset)
	AnthropicAPIKey  string        `envconfig:"ANTHROPIC_API_KEY"`
	AnthropicModel   string        `envconfig:"ANTHROPIC_MODEL" default:"claude-sonnet-4-5"`
	GeneratorTimeout time.Duration `envconfig:"GENERATOR_TIMEOUT" default:"60s"`

	// Audit — full prompt/content text is only persisted when opted in;
	// hashes are always recorded.
	AuditLogContent bool `envconfig:"AUDIT_LOG_CONTENT" default:"false"`

	// Slack notifications (optional)
	SlackBotToken string `envconfig:"AGENT_SLACK_BOT_TOKEN"`
	SlackChannel  string `envconfig:"AGENT_SLACK_CHANNEL"`

	// Management API
	MgmtListenAddr  string `envconfig:"MGMT_LISTEN_ADDR" default:":8090"`
	MgmtAuthMode    string `envconfig:"MGMT_AUTH_MODE" default:"api-key"`
	MgmtAPIKey      string `envconfig:"MGMT_API_KEY"`
	MgmtJWTSecret   string `envconfig:"MGMT_JWT_SECRET"`
	MgmtCORSOrigins string `envconfig:"MGMT_CORS_ORIGINS"`
	MgmtTLSCert     string `envconfig:"MGMT_TLS_CERT"`
	MgmtTLSKey      string `envconfig:"MGMT_TLS_KEY"`

	MgmtRateLimitRPS   int `envconfig:"MGMT_RATE_LIMIT_RPS" default:"50"`
	MgmtRateLimitBurst int `envconfig:"MGMT_RATE_LIMIT_BURST" default:"100"`
}

// GeneratorEnabled returns true if an Anthropic API key is configured.
func (c *Config) GeneratorEnabled() bool {
	return c.AnthropicAPIKey != ""
}

// SlackEnabled returns true if Slack notifications are configured.
func (c *Config) SlackEnabled() bool {
	return c.SlackBotToken != "" && c.SlackChannel != ""
}

// Validate checks cross-field constraints that envconfig cannot express.
func (c *Config) Validate() error {
	switch c.MgmtAuthMode {
	case "none":
	case "api-key":
		if c.MgmtAPIKey == "" {
			return fmt.Errorf("MGMT_API_KEY is required when MGMT_AUTH_MODE=api-key")
		}
	case "jwt":
		if c.MgmtJWTSecret == "" {
			return fmt.Errorf("MGMT_JWT_SECRET is required when MGMT_AUTH_MODE=jwt")
		}
	default:
		return fmt.Errorf("unknown MGMT_AUTH_MODE %q (expected api-key, jwt or none)", c.MgmtAuthMode)
	}
	if c.ProposalTTL <= 0 {
		return fmt.Errorf("PROPOSAL_TTL must be positive")
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
