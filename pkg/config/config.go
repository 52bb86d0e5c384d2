package config

import (
	"fmt"
	"os"
	"time"

	"sendctl/pkg/fieldtrial"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Engine struct {
		// Backend selects the boundary implementation: "pion" (in-process)
		// or "native" (shared library loaded at runtime).
		Backend       string         `yaml:"backend"`
		LibraryPath   string         `yaml:"library_path"`
		FieldTrials   fieldtrial.Set `yaml:"field_trials"`
		NativeLogging bool           `yaml:"native_logging"`
	} `yaml:"engine"`

	Sender struct {
		MinTextureSize int `yaml:"min_texture_size"`
		MaxTextureSize int `yaml:"max_texture_size"`
	} `yaml:"sender"`

	Adaptation struct {
		Enabled      bool          `yaml:"enabled"`
		PollInterval time.Duration `yaml:"poll_interval"`
	} `yaml:"adaptation"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
	} `yaml:"monitoring"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
		Channel  string `yaml:"channel"`
	} `yaml:"redis"`

	Auth struct {
		Enabled        bool          `yaml:"enabled"`
		JWTSecret      string        `yaml:"jwt_secret"`
		AccessTokenTTL time.Duration `yaml:"access_token_ttl"`
		// IssuerKey must be presented to mint operator tokens.
		IssuerKey string `yaml:"issuer_key"`
	} `yaml:"auth"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent"` // global concurrent HTTP requests
		} `yaml:"http"`
	} `yaml:"rate_limiting"`

	Events struct {
		PingInterval time.Duration `yaml:"ping_interval"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
		ClientBuffer int           `yaml:"client_buffer"`
	} `yaml:"events"`

	Tracing struct {
		Enabled    bool    `yaml:"enabled"`
		JaegerURL  string  `yaml:"jaeger_url"`
		SampleRate float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Server
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	// Engine
	switch c.Engine.Backend {
	case "pion":
	case "native":
		if c.Engine.LibraryPath == "" {
			return fmt.Errorf("engine.library_path must not be empty when engine.backend=native")
		}
	default:
		return fmt.Errorf("engine.backend must be one of pion, native (got %q)", c.Engine.Backend)
	}
	if !fieldtrial.ValidateString(c.Engine.FieldTrials.String()) {
		return fmt.Errorf("engine.field_trials does not encode to a valid field trial string")
	}

	// Sender
	if c.Sender.MinTextureSize <= 0 {
		return fmt.Errorf("sender.min_texture_size must be > 0")
	}
	if c.Sender.MaxTextureSize < c.Sender.MinTextureSize {
		return fmt.Errorf("sender.max_texture_size must be >= sender.min_texture_size")
	}

	// Adaptation
	if c.Adaptation.Enabled && c.Adaptation.PollInterval <= 0 {
		return fmt.Errorf("adaptation.poll_interval must be > 0 when adaptation.enabled=true")
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
		if c.Redis.Channel == "" {
			return fmt.Errorf("redis.channel must not be empty when redis.enabled=true")
		}
	}

	// Auth
	if c.Auth.Enabled {
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("auth.jwt_secret must not be empty when auth.enabled=true")
		}
		if c.Auth.AccessTokenTTL <= 0 {
			return fmt.Errorf("auth.access_token_ttl must be > 0 when auth.enabled=true")
		}
		if c.Auth.IssuerKey == "" {
			return fmt.Errorf("auth.issuer_key must not be empty when auth.enabled=true")
		}
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.http.max_concurrent must be >= 0 when rate limiting is enabled")
		}
	}

	// Events
	if c.Events.PingInterval <= 0 {
		return fmt.Errorf("events.ping_interval must be > 0")
	}
	if c.Events.WriteTimeout <= 0 {
		return fmt.Errorf("events.write_timeout must be > 0")
	}
	if c.Events.ClientBuffer <= 0 {
		return fmt.Errorf("events.client_buffer must be > 0")
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be within [0, 1]")
		}
	}

	return nil
}

// FieldTrialString returns the encoded field trials, or nil when none are
// configured so that the engine sees "absent" rather than an empty override.
func (c *Config) FieldTrialString() *string {
	if len(c.Engine.FieldTrials) == 0 {
		return nil
	}
	s := c.Engine.FieldTrials.String()
	return &s
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := cfg.applyEnvOverrides(); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second

	cfg.Engine.Backend = "pion"
	cfg.Engine.NativeLogging = false

	cfg.Sender.MinTextureSize = 16
	cfg.Sender.MaxTextureSize = 16384

	cfg.Adaptation.Enabled = true
	cfg.Adaptation.PollInterval = time.Second

	cfg.Monitoring.PrometheusEnabled = true

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10
	cfg.Redis.Channel = "sendctl:adaptation"

	cfg.Auth.Enabled = false
	cfg.Auth.AccessTokenTTL = 15 * time.Minute

	// Rate limiting defaults (disabled by default)
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 50
	cfg.RateLimiting.HTTP.Burst = 100
	cfg.RateLimiting.HTTP.MaxConcurrent = 0

	cfg.Events.PingInterval = 30 * time.Second
	cfg.Events.WriteTimeout = 10 * time.Second
	cfg.Events.ClientBuffer = 32

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.SampleRate = 1.0

	return cfg
}

func (c *Config) applyEnvOverrides() error {
	if addr := os.Getenv("SENDCTL_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if level := os.Getenv("SENDCTL_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if backend := os.Getenv("SENDCTL_ENGINE_BACKEND"); backend != "" {
		c.Engine.Backend = backend
	}
	if path := os.Getenv("SENDCTL_ENGINE_LIBRARY"); path != "" {
		c.Engine.LibraryPath = path
	}
	if secret := os.Getenv("SENDCTL_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if key := os.Getenv("SENDCTL_AUTH_ISSUER_KEY"); key != "" {
		c.Auth.IssuerKey = key
	}
	// Field trials from the environment use the wire format directly and
	// replace the configured list.
	if trials, ok := os.LookupEnv("SENDCTL_FIELD_TRIALS"); ok {
		set, err := fieldtrial.Parse(trials)
		if err != nil {
			return fmt.Errorf("SENDCTL_FIELD_TRIALS: %w", err)
		}
		c.Engine.FieldTrials = set
	}
	return nil
}
