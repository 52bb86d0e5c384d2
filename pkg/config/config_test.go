package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"sendctl/pkg/fieldtrial"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Nil(t, cfg.FieldTrialString(), "no configured trials means absent, not empty")
}

func TestValidate_InvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name:   "server address required",
			mutate: func(c *Config) { c.Server.Address = "" },
		},
		{
			name:   "unknown backend",
			mutate: func(c *Config) { c.Engine.Backend = "gstreamer" },
		},
		{
			name:   "native backend needs library path",
			mutate: func(c *Config) { c.Engine.Backend = "native"; c.Engine.LibraryPath = "" },
		},
		{
			name: "field trial value containing delimiter",
			mutate: func(c *Config) {
				c.Engine.FieldTrials = fieldtrial.Set{{Key: "WebRTC-A", Value: "x/y"}}
			},
		},
		{
			name:   "min texture size must be > 0",
			mutate: func(c *Config) { c.Sender.MinTextureSize = 0 },
		},
		{
			name:   "max texture size below min",
			mutate: func(c *Config) { c.Sender.MaxTextureSize = 8 },
		},
		{
			name:   "poll interval required when adaptation enabled",
			mutate: func(c *Config) { c.Adaptation.PollInterval = 0 },
		},
		{
			name:   "jwt secret required when auth enabled",
			mutate: func(c *Config) { c.Auth.Enabled = true; c.Auth.JWTSecret = "" },
		},
		{
			name: "issuer key required when auth enabled",
			mutate: func(c *Config) {
				c.Auth.Enabled = true
				c.Auth.JWTSecret = "secret"
				c.Auth.IssuerKey = ""
			},
		},
		{
			name:   "redis channel required",
			mutate: func(c *Config) { c.Redis.Enabled = true; c.Redis.Channel = "" },
		},
		{
			name: "http rps must be > 0",
			mutate: func(c *Config) {
				c.RateLimiting.Enabled = true
				c.RateLimiting.HTTP.RequestsPerSecond = 0
			},
		},
		{
			name:   "sample rate out of range",
			mutate: func(c *Config) { c.Tracing.Enabled = true; c.Tracing.SampleRate = 2 },
		},
		{
			name:   "event client buffer",
			mutate: func(c *Config) { c.Events.ClientBuffer = 0 },
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_AdaptationDisabledAllowsZeroInterval(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Adaptation.Enabled = false
	cfg.Adaptation.PollInterval = 0
	assert.NoError(t, cfg.Validate())
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlData := `
server:
  address: ":9000"
engine:
  backend: pion
  field_trials:
    - key: WebRTC-Test1
      value: Enabled
    - key: WebRTC-Test2
      value: Disabled
sender:
  max_texture_size: 4096
adaptation:
  poll_interval: 250ms
`
	require.NoError(t, os.WriteFile(path, []byte(yamlData), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Address)
	assert.Equal(t, 4096, cfg.Sender.MaxTextureSize)
	assert.Equal(t, 16, cfg.Sender.MinTextureSize, "unset fields keep defaults")
	assert.Equal(t, 250*time.Millisecond, cfg.Adaptation.PollInterval)
	require.NotNil(t, cfg.FieldTrialString())
	assert.Equal(t, "WebRTC-Test1/Enabled/WebRTC-Test2/Disabled/", *cfg.FieldTrialString())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Server.Address, cfg.Server.Address)
}

func TestLoad_FieldTrialEnvOverride(t *testing.T) {
	t.Setenv("SENDCTL_FIELD_TRIALS", "WebRTC-Env/Enabled/")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	v, ok := cfg.Engine.FieldTrials.Lookup("WebRTC-Env")
	assert.True(t, ok)
	assert.Equal(t, "Enabled", v)

	t.Setenv("SENDCTL_FIELD_TRIALS", "WebRTC-Env/Enabled")
	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err, "malformed trials from the environment are rejected")
}
