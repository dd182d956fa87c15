package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 256, cfg.Orchestrator.ChannelCapacity)
	assert.Equal(t, 15*time.Second, cfg.Orchestrator.HeartbeatInterval)
	assert.Equal(t, 3, cfg.Resilience.FailureThreshold)
	assert.Equal(t, 500*time.Millisecond, cfg.Resilience.BreakDuration)
	assert.Equal(t, 0.85, cfg.Governance.PublishMinConfidence)
	assert.False(t, cfg.IsDevelopment())
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero concurrency", func(c *Config) { c.Resilience.MaxConcurrentToolExecutions = 0 }},
		{"zero channel capacity", func(c *Config) { c.Orchestrator.ChannelCapacity = 0 }},
		{"bad environment", func(c *Config) { c.Tenancy.Environment = "staging" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_FileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tenancy:
  environment: development
  default_tenant_id: local-dev
resilience:
  failure_threshold: 5
orchestrator:
  channel_capacity: 64
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, "local-dev", cfg.Tenancy.DefaultTenantID)
	assert.Equal(t, 5, cfg.Resilience.FailureThreshold)
	assert.Equal(t, 64, cfg.Orchestrator.ChannelCapacity)
	// Untouched fields keep their defaults.
	assert.Equal(t, 256, DefaultConfig().Orchestrator.ChannelCapacity)
	assert.Equal(t, 64, cfg.Resilience.MaxConcurrentToolExecutions)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	assert.Error(t, err)
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().HTTP.ListenAddr, cfg.HTTP.ListenAddr)
}

func TestGovernanceConfig_ToOntology(t *testing.T) {
	cfg := DefaultConfig()
	g := cfg.Governance.ToOntology()
	assert.Equal(t, 0.85, g.PublishMinConfidence)
	assert.Equal(t, 9, g.ProposeMaxDepth)
}
