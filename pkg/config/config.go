package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"workhub/pkg/validation"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Realtime struct {
		Address         string        `yaml:"address"`
		Path            string        `yaml:"path"`
		PingInterval    time.Duration `yaml:"ping_interval"`
		PongTimeout     time.Duration `yaml:"pong_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		SendBuffer      int           `yaml:"send_buffer"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		// MembershipCacheTTL of zero disables the handshake membership cache.
		MembershipCacheTTL time.Duration `yaml:"membership_cache_ttl"`
	} `yaml:"realtime"`

	Database struct {
		Driver          string        `yaml:"driver"` // memory | postgres
		DSN             string        `yaml:"dsn"`
		MaxOpenConns    int           `yaml:"max_open_conns"`
		ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
		AutoMigrate     bool          `yaml:"auto_migrate"`
	} `yaml:"database"`

	Events struct {
		Backend string `yaml:"backend"` // memory | redis
		Channel string `yaml:"channel"`
		Buffer  int    `yaml:"buffer"`
	} `yaml:"events"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	Auth struct {
		JWTSecret       string        `yaml:"jwt_secret"`
		TokenTTL        time.Duration `yaml:"token_ttl"`
		OneTimeTokenTTL time.Duration `yaml:"one_time_token_ttl"`
		BcryptCost      int           `yaml:"bcrypt_cost"`
		AllowedOrigins  []string      `yaml:"allowed_origins"`
	} `yaml:"auth"`

	Mail struct {
		Driver          string `yaml:"driver"` // log | smtp
		Host            string `yaml:"host"`
		Port            int    `yaml:"port"`
		Username        string `yaml:"username"`
		Password        string `yaml:"password"`
		From            string `yaml:"from"`
		FrontendBaseURL string `yaml:"frontend_base_url"`

		// SMTP delivery only.
		MaxRetries       int           `yaml:"max_retries"`
		BreakerThreshold int           `yaml:"breaker_threshold"`
		BreakerCooldown  time.Duration `yaml:"breaker_cooldown"`
	} `yaml:"mail"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent"` // global concurrent HTTP requests
		} `yaml:"http"`

		WebSocket struct {
			ConnectionsPerMinute int   `yaml:"connections_per_minute"`
			MaxMessageSizeBytes  int64 `yaml:"max_message_size_bytes"`
		} `yaml:"websocket"`
	} `yaml:"rate_limiting"`
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

	// Realtime
	if c.Realtime.Address == "" {
		return fmt.Errorf("realtime.address must not be empty")
	}
	if c.Realtime.Path == "" || c.Realtime.Path[0] != '/' {
		return fmt.Errorf("realtime.path must start with '/'")
	}
	if c.Realtime.PingInterval <= 0 {
		return fmt.Errorf("realtime.ping_interval must be > 0")
	}
	if c.Realtime.PongTimeout <= c.Realtime.PingInterval {
		return fmt.Errorf("realtime.pong_timeout must be > realtime.ping_interval")
	}
	if c.Realtime.WriteTimeout <= 0 {
		return fmt.Errorf("realtime.write_timeout must be > 0")
	}
	if c.Realtime.SendBuffer <= 0 {
		return fmt.Errorf("realtime.send_buffer must be > 0")
	}
	if c.Realtime.MembershipCacheTTL < 0 {
		return fmt.Errorf("realtime.membership_cache_ttl must be >= 0")
	}

	// Database
	switch c.Database.Driver {
	case "memory":
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn must not be empty when database.driver=postgres")
		}
	default:
		return fmt.Errorf("database.driver must be memory or postgres, got %q", c.Database.Driver)
	}

	// Events
	switch c.Events.Backend {
	case "memory":
	case "redis":
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when events.backend=redis")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when events.backend=redis")
		}
	default:
		return fmt.Errorf("events.backend must be memory or redis, got %q", c.Events.Backend)
	}
	if c.Events.Channel == "" {
		return fmt.Errorf("events.channel must not be empty")
	}
	if c.Events.Buffer <= 0 {
		return fmt.Errorf("events.buffer must be > 0")
	}

	// Auth
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must not be empty")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be > 0")
	}
	if c.Auth.OneTimeTokenTTL <= 0 {
		return fmt.Errorf("auth.one_time_token_ttl must be > 0")
	}

	// Mail
	switch c.Mail.Driver {
	case "log":
	case "smtp":
		if c.Mail.Host == "" || c.Mail.Port <= 0 {
			return fmt.Errorf("mail.host and mail.port must be set when mail.driver=smtp")
		}
		if c.Mail.From == "" {
			return fmt.Errorf("mail.from must not be empty when mail.driver=smtp")
		}
		if c.Mail.MaxRetries < 0 {
			return fmt.Errorf("mail.max_retries must be >= 0")
		}
		if c.Mail.BreakerThreshold <= 0 || c.Mail.BreakerCooldown <= 0 {
			return fmt.Errorf("mail.breaker_threshold and mail.breaker_cooldown must be > 0")
		}
	default:
		return fmt.Errorf("mail.driver must be log or smtp, got %q", c.Mail.Driver)
	}
	if err := validation.ValidateURL(c.Mail.FrontendBaseURL, "mail.frontend_base_url"); err != nil {
		return err
	}

	// Tracing
	if c.Tracing.Enabled && (c.Tracing.SampleRate <= 0 || c.Tracing.SampleRate > 1) {
		return fmt.Errorf("tracing.sample_rate must be in (0, 1] when tracing is enabled")
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
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
		if c.RateLimiting.WebSocket.ConnectionsPerMinute <= 0 {
			return fmt.Errorf("rate_limiting.websocket.connections_per_minute must be > 0 when rate limiting is enabled")
		}
	}
	if c.RateLimiting.WebSocket.MaxMessageSizeBytes < 0 {
		return fmt.Errorf("rate_limiting.websocket.max_message_size_bytes must be >= 0")
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
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

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFirst tries each path in order and returns the first config that loads.
func LoadFirst(paths ...string) (*Config, string, error) {
	var lastErr error
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		cfg, err := Load(path)
		if err == nil {
			return cfg, path, nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return nil, "", lastErr
	}
	cfg, err := Load("")
	return cfg, "", err
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":1337"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second

	cfg.Realtime.Address = ":1338"
	cfg.Realtime.Path = "/ws"
	cfg.Realtime.PingInterval = 25 * time.Second
	cfg.Realtime.PongTimeout = 60 * time.Second
	cfg.Realtime.WriteTimeout = 10 * time.Second
	cfg.Realtime.SendBuffer = 64
	cfg.Realtime.ShutdownTimeout = 10 * time.Second
	cfg.Realtime.MembershipCacheTTL = 15 * time.Second

	cfg.Database.Driver = "memory"
	cfg.Database.MaxOpenConns = 10
	cfg.Database.ConnMaxLifetime = 30 * time.Minute
	cfg.Database.AutoMigrate = true

	cfg.Events.Backend = "memory"
	cfg.Events.Channel = "workhub:events"
	cfg.Events.Buffer = 1024

	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10

	cfg.Auth.JWTSecret = "change-me-in-production"
	cfg.Auth.TokenTTL = 7 * 24 * time.Hour // 7 days
	cfg.Auth.OneTimeTokenTTL = 24 * time.Hour
	cfg.Auth.BcryptCost = 10
	cfg.Auth.AllowedOrigins = []string{"*"}

	cfg.Mail.Driver = "log"
	cfg.Mail.Port = 587
	cfg.Mail.From = "no-reply@workhub.local"
	cfg.Mail.FrontendBaseURL = "http://localhost:5173"
	cfg.Mail.MaxRetries = 3
	cfg.Mail.BreakerThreshold = 5
	cfg.Mail.BreakerCooldown = 30 * time.Second

	cfg.Monitoring.PrometheusEnabled = true

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	// Rate limiting defaults (disabled by default)
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 50
	cfg.RateLimiting.HTTP.Burst = 100
	cfg.RateLimiting.HTTP.MaxConcurrent = 0
	cfg.RateLimiting.WebSocket.ConnectionsPerMinute = 60
	cfg.RateLimiting.WebSocket.MaxMessageSizeBytes = 64 * 1024

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("WORKHUB_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if addr := os.Getenv("WORKHUB_REALTIME_ADDRESS"); addr != "" {
		c.Realtime.Address = addr
	}
	if level := os.Getenv("WORKHUB_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if secret := os.Getenv("WORKHUB_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		c.Database.Driver = "postgres"
		c.Database.DSN = dsn
	}
	if addr := os.Getenv("WORKHUB_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
		c.Events.Backend = "redis"
	}
	if host := os.Getenv("WORKHUB_SMTP_HOST"); host != "" {
		c.Mail.Driver = "smtp"
		c.Mail.Host = host
	}
	if port := os.Getenv("WORKHUB_SMTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Mail.Port = p
		}
	}
	if user := os.Getenv("WORKHUB_SMTP_USERNAME"); user != "" {
		c.Mail.Username = user
	}
	if pass := os.Getenv("WORKHUB_SMTP_PASSWORD"); pass != "" {
		c.Mail.Password = pass
	}
	if url := os.Getenv("WORKHUB_FRONTEND_BASE_URL"); url != "" {
		c.Mail.FrontendBaseURL = url
	}
}
