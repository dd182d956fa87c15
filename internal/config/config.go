// Package config loads and validates the server's configuration: a typed
// Config struct with defaults, optionally overridden by a file.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/limbodancer-labs/limbodancer-mcp/internal/ontology"
)

// Environment gates the dev-only tenant fallbacks of HTTP resolution:
// there the X-Tenant-Id header and the default tenant are honored only in
// development. Stdio resolution uses the default tenant in either
// environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

// TenancyConfig controls tenant scope resolution defaults.
type TenancyConfig struct {
	Environment      Environment `mapstructure:"environment"`
	DefaultTenantID  string      `mapstructure:"default_tenant_id"`
	DefaultPackageID string      `mapstructure:"default_package_id"`
	DefaultChannelID string      `mapstructure:"default_channel_id"`
}

// ResilienceConfig holds the resilience defaults shared by every tool. A
// tool's registration overrides only Timeout (and carries its own
// retryable flag); the other fields apply to all tools alike.
type ResilienceConfig struct {
	Timeout                     time.Duration `mapstructure:"timeout"`
	MaxRetries                  int           `mapstructure:"max_retries"`
	BaseBackoff                 time.Duration `mapstructure:"base_backoff"`
	MaxBackoff                  time.Duration `mapstructure:"max_backoff"`
	JitterFactor                float64       `mapstructure:"jitter_factor"`
	FailureThreshold            int           `mapstructure:"failure_threshold"`
	SamplingDuration            time.Duration `mapstructure:"sampling_duration"`
	BreakDuration                time.Duration `mapstructure:"break_duration"`
	MaxConcurrentToolExecutions int           `mapstructure:"max_concurrent_tool_executions"`
	PermitAcquireTimeout        time.Duration `mapstructure:"permit_acquire_timeout"`
}

// OrchestratorConfig controls chat session streaming.
type OrchestratorConfig struct {
	ChannelCapacity   int           `mapstructure:"channel_capacity"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
}

// GovernanceConfig holds the ontology auto-publish/auto-propose thresholds,
// as loaded from file/env. ToOntology converts it to the ontology
// package's own GovernanceConfig, which is what actually gates
// definitions at load/upsert time — kept separate so this struct can
// carry mapstructure tags without leaking a viper dependency into
// internal/ontology.
type GovernanceConfig struct {
	PublishMinConfidence float64 `mapstructure:"publish_min_confidence"`
	PublishMaxComplexity int     `mapstructure:"publish_max_complexity"`
	PublishMaxDepth      int     `mapstructure:"publish_max_depth"`
	ProposeMinConfidence float64 `mapstructure:"propose_min_confidence"`
	ProposeMaxComplexity int     `mapstructure:"propose_max_complexity"`
	ProposeMaxDepth      int     `mapstructure:"propose_max_depth"`
}

// ToOntology converts the loaded thresholds to an ontology.GovernanceConfig.
func (g GovernanceConfig) ToOntology() ontology.GovernanceConfig {
	return ontology.GovernanceConfig{
		PublishMinConfidence: g.PublishMinConfidence,
		PublishMaxComplexity: g.PublishMaxComplexity,
		PublishMaxDepth:      g.PublishMaxDepth,
		ProposeMinConfidence: g.ProposeMinConfidence,
		ProposeMaxComplexity: g.ProposeMaxComplexity,
		ProposeMaxDepth:      g.ProposeMaxDepth,
	}
}

// StoresConfig holds connection parameters for the reference store
// adapters. These are external collaborators; the server only needs a
// DSN/connection string for each.
type StoresConfig struct {
	HistoryDBPath  string `mapstructure:"history_db_path"`
	VectorDSN      string `mapstructure:"vector_dsn"`
	GraphURI       string `mapstructure:"graph_uri"`
	GraphUsername  string `mapstructure:"graph_username"`
	GraphPassword  string `mapstructure:"graph_password"`
	OntologyDBPath string `mapstructure:"ontology_db_path"`
	BleveIndexPath string `mapstructure:"bleve_index_path"`
}

// AuthConfig controls bearer JWT verification for the HTTP transport.
type AuthConfig struct {
	JWTSigningKey string `mapstructure:"jwt_signing_key"`
	JWTIssuer     string `mapstructure:"jwt_issuer"`
}

// HTTPConfig controls the HTTP+SSE transport.
type HTTPConfig struct {
	ListenAddr  string        `mapstructure:"listen_addr"`
	SSEHeartbeat time.Duration `mapstructure:"sse_heartbeat"`
}

// Config is the top-level server configuration.
type Config struct {
	Tenancy      TenancyConfig      `mapstructure:"tenancy"`
	Resilience   ResilienceConfig   `mapstructure:"resilience"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Governance   GovernanceConfig   `mapstructure:"governance"`
	Stores       StoresConfig       `mapstructure:"stores"`
	Auth         AuthConfig         `mapstructure:"auth"`
	HTTP         HTTPConfig         `mapstructure:"http"`
	LogLevel     string             `mapstructure:"log_level"`
	LogToFile    bool               `mapstructure:"log_to_file"`
}

// DefaultConfig returns the server's built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Tenancy: TenancyConfig{
			Environment: EnvProduction,
		},
		Resilience: ResilienceConfig{
			Timeout:                     10 * time.Second,
			MaxRetries:                  3,
			BaseBackoff:                 100 * time.Millisecond,
			MaxBackoff:                  5 * time.Second,
			JitterFactor:                0.2,
			FailureThreshold:            3,
			SamplingDuration:            10 * time.Second,
			BreakDuration:                500 * time.Millisecond,
			MaxConcurrentToolExecutions: 64,
			PermitAcquireTimeout:        250 * time.Millisecond,
		},
		Orchestrator: OrchestratorConfig{
			ChannelCapacity:   256,
			HeartbeatInterval: 15 * time.Second,
		},
		Governance: GovernanceConfig{
			PublishMinConfidence: 0.85,
			PublishMaxComplexity: 5,
			PublishMaxDepth:      4,
			ProposeMinConfidence: 0.5,
			ProposeMaxComplexity: 9,
			ProposeMaxDepth:      9,
		},
		Stores: StoresConfig{
			HistoryDBPath:  "limbodancer-history.db",
			OntologyDBPath: "limbodancer-ontology.db",
			BleveIndexPath: "limbodancer-memory.bleve",
		},
		HTTP: HTTPConfig{
			ListenAddr:   ":8844",
			SSEHeartbeat: 30 * time.Second,
		},
		LogLevel: "info",
	}
}

// Load reads configuration from the given file path (if non-empty) over
// the defaults, then validates the result. Only keys present in the file
// are decoded, and with an empty path the defaults are returned
// unchanged; no environment key replacer is set, so underscore-named
// LIMBODANCER_* variables do not override nested fields.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetEnvPrefix("LIMBODANCER")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants that would otherwise surface as confusing
// runtime errors.
func (c *Config) Validate() error {
	if c.Resilience.MaxConcurrentToolExecutions <= 0 {
		return fmt.Errorf("resilience.max_concurrent_tool_executions must be positive")
	}
	if c.Orchestrator.ChannelCapacity <= 0 {
		return fmt.Errorf("orchestrator.channel_capacity must be positive")
	}
	if c.Tenancy.Environment != EnvDevelopment && c.Tenancy.Environment != EnvProduction {
		return fmt.Errorf("tenancy.environment must be %q or %q", EnvDevelopment, EnvProduction)
	}
	return nil
}

// IsDevelopment reports whether dev-only tenant header fallback applies.
func (c *Config) IsDevelopment() bool {
	return c.Tenancy.Environment == EnvDevelopment
}

// DefaultTenantID returns the configured default tenant ID.
func (c *Config) DefaultTenantID() string {
	return c.Tenancy.DefaultTenantID
}

// DefaultPackageID returns the configured default package ID.
func (c *Config) DefaultPackageID() string {
	return c.Tenancy.DefaultPackageID
}

// DefaultChannelID returns the configured default channel ID.
func (c *Config) DefaultChannelID() string {
	return c.Tenancy.DefaultChannelID
}
