package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(Options{})
	require.NoError(t, err)

	want := domain.DefaultConfig()
	assert.Equal(t, want.Server, cfg.Server)
	assert.Equal(t, domain.TierCommunity, cfg.Tier)
	assert.Equal(t, domain.DefaultDecisionPolicy(), cfg.Decision)
	assert.Equal(t, "sqlite", cfg.Repository.Driver)
	assert.Equal(t, 30*time.Second, cfg.Snapshot.MaxStaleness)
	assert.True(t, cfg.Snapshot.SeedDefaults)
	assert.False(t, cfg.Worker.Enabled)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("KESTREL_SERVER_PORT", "9090")
	t.Setenv("KESTREL_DECISION_DBR", "blocking")
	t.Setenv("KESTREL_SNAPSHOT_MAX_STALENESS", "5s")
	t.Setenv("KESTREL_LOGGING_LEVEL", "debug")

	cfg, err := Load(Options{})
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, domain.DBRBlocking, cfg.Decision.DBR)
	assert.Equal(t, domain.RangeFirstMatch, cfg.Decision.Range)
	assert.Equal(t, 5*time.Second, cfg.Snapshot.MaxStaleness)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_ProTier(t *testing.T) {
	t.Setenv("KESTREL_TIER", "pro")
	t.Setenv("KESTREL_REPOSITORY_POSTGRES_HOST", "db.internal")

	cfg, err := Load(Options{})
	require.NoError(t, err)

	assert.Equal(t, domain.TierPro, cfg.Tier)
	assert.Equal(t, "postgres", cfg.Repository.Driver)
	assert.Equal(t, "db.internal", cfg.Repository.PostgresHost)
	assert.Equal(t, "redis", cfg.Cache.Type)
	assert.True(t, cfg.Cache.EnableTwoPhase)
	assert.Equal(t, "nats", cfg.EventBus.Type)
	assert.True(t, cfg.Worker.Enabled)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := writeFile(t, "kestrel.yaml", `
server:
  port: 7070
  allowed_origins:
    - https://dashboard.example.com
decision:
  offer: interpolated
  count: smallest-ceiling
cache:
  local_max_size: 250
`)
	t.Setenv("KESTREL_SERVER_PORT", "7171")

	cfg, err := Load(Options{ConfigFile: path})
	require.NoError(t, err)

	// environment wins over the file
	assert.Equal(t, 7171, cfg.Server.Port)
	assert.Equal(t, []string{"https://dashboard.example.com"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, domain.OfferInterpolated, cfg.Decision.Offer)
	assert.Equal(t, domain.CountSmallestCeiling, cfg.Decision.Count)
	assert.Equal(t, 250, cfg.Cache.LocalMaxSize)
	assert.Equal(t, "memory", cfg.Cache.Type)
}

func TestLoad_EnvFile(t *testing.T) {
	path := writeFile(t, ".env", "KESTREL_SERVER_HOST=127.0.0.1\n")
	t.Cleanup(func() { os.Unsetenv("KESTREL_SERVER_HOST") })

	cfg, err := Load(Options{EnvFile: path})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("MissingExplicitFile", func(t *testing.T) {
		_, err := Load(Options{ConfigFile: filepath.Join(t.TempDir(), "absent.yaml")})
		assert.Error(t, err)
	})

	t.Run("InvalidPolicy", func(t *testing.T) {
		t.Setenv("KESTREL_DECISION_DBR", "sometimes")
		_, err := Load(Options{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "decision.dbr")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*domain.Config)
		wantErr string
	}{
		{"Valid", func(*domain.Config) {}, ""},
		{"BadPort", func(c *domain.Config) { c.Server.Port = 0 }, "server.port"},
		{"UnknownTier", func(c *domain.Config) { c.Tier = "enterprise" }, "tier"},
		{"UnknownDriver", func(c *domain.Config) { c.Repository.Driver = "mysql" }, "repository driver"},
		{"RedisWithoutAddr", func(c *domain.Config) { c.Cache.Type = "redis" }, "redis_addr"},
		{"NATSWithoutURL", func(c *domain.Config) { c.EventBus.Type = "nats" }, "nats_url"},
		{"BadOffer", func(c *domain.Config) { c.Decision.Offer = "random" }, "decision.offer"},
		{"NegativeStaleness", func(c *domain.Config) { c.Snapshot.MaxStaleness = -time.Second }, "max_staleness"},
		{"BadLogLevel", func(c *domain.Config) { c.Logging.Level = "trace" }, "log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := domain.DefaultConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
