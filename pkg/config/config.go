package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// DefaultCaptureFilter selects RTMP and the HTTP(S) ports RTMP is commonly
// tunnelled through. It is handed to the capture backend verbatim.
const DefaultCaptureFilter = "tcp port 1935 or tcp port 443 or tcp port 80"

type Config struct {
	Capture struct {
		Interface   string        `yaml:"interface"`
		Filter      string        `yaml:"filter"`
		Ports       []uint16      `yaml:"ports"`
		SnapLen     int           `yaml:"snap_len"`
		Promiscuous bool          `yaml:"promiscuous"`
		ReadTimeout time.Duration `yaml:"read_timeout"`
		StopTimeout time.Duration `yaml:"stop_timeout"`
		AutoStart   bool          `yaml:"auto_start"`
	} `yaml:"capture"`

	OBS struct {
		Host            string        `yaml:"host"`
		Port            int           `yaml:"port"`
		Password        string        `yaml:"password"`
		RequestTimeout  time.Duration `yaml:"request_timeout"`
		ConnectAttempts int           `yaml:"connect_attempts"`
		PingInterval    time.Duration `yaml:"ping_interval"`
	} `yaml:"obs"`

	AutoApply struct {
		Enabled      bool          `yaml:"enabled"`
		ApplyTimeout time.Duration `yaml:"apply_timeout"`
	} `yaml:"auto_apply"`

	API struct {
		Enabled         bool          `yaml:"enabled"`
		Address         string        `yaml:"address"`
		AuthEnabled     bool          `yaml:"auth_enabled"`
		JWTSecret       string        `yaml:"jwt_secret"`
		TokenTTL        time.Duration `yaml:"token_ttl"`
		RateLimitRPS    float64       `yaml:"rate_limit_rps"`
		RateLimitBurst  int           `yaml:"rate_limit_burst"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"api"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

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
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Capture
	if c.Capture.Filter == "" {
		return fmt.Errorf("capture.filter must not be empty")
	}
	if len(c.Capture.Ports) == 0 {
		return fmt.Errorf("capture.ports must list at least one port")
	}
	if c.Capture.SnapLen <= 0 {
		return fmt.Errorf("capture.snap_len must be > 0")
	}
	if c.Capture.ReadTimeout <= 0 {
		return fmt.Errorf("capture.read_timeout must be > 0")
	}
	if c.Capture.StopTimeout <= 0 {
		return fmt.Errorf("capture.stop_timeout must be > 0")
	}

	// OBS
	if c.OBS.Host == "" {
		return fmt.Errorf("obs.host must not be empty")
	}
	if c.OBS.Port <= 0 || c.OBS.Port > 65535 {
		return fmt.Errorf("obs.port must be within 1..65535")
	}
	if c.OBS.RequestTimeout <= 0 {
		return fmt.Errorf("obs.request_timeout must be > 0")
	}
	if c.OBS.ConnectAttempts < 0 {
		return fmt.Errorf("obs.connect_attempts must be >= 0")
	}

	// Auto apply
	if c.AutoApply.ApplyTimeout <= 0 {
		return fmt.Errorf("auto_apply.apply_timeout must be > 0")
	}

	// API
	if c.API.Enabled {
		if c.API.Address == "" {
			return fmt.Errorf("api.address must not be empty when api.enabled=true")
		}
		if c.API.AuthEnabled && c.API.JWTSecret == "" {
			return fmt.Errorf("api.jwt_secret must not be empty when api.auth_enabled=true")
		}
		if c.API.RateLimitRPS < 0 {
			return fmt.Errorf("api.rate_limit_rps must be >= 0")
		}
		if c.API.RateLimitRPS > 0 && c.API.RateLimitBurst <= 0 {
			return fmt.Errorf("api.rate_limit_burst must be > 0 when rate limiting is enabled")
		}
		if c.API.ShutdownTimeout <= 0 {
			return fmt.Errorf("api.shutdown_timeout must be > 0")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be within 0..1")
		}
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	return nil
}

// OBSAddress is the websocket URL of the broadcasting application.
func (c *Config) OBSAddress() string {
	return fmt.Sprintf("ws://%s:%d", c.OBS.Host, c.OBS.Port)
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
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

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Capture.Interface = ""
	cfg.Capture.Filter = DefaultCaptureFilter
	cfg.Capture.Ports = []uint16{1935, 443, 80}
	cfg.Capture.SnapLen = 65535
	cfg.Capture.Promiscuous = true
	cfg.Capture.ReadTimeout = 500 * time.Millisecond
	cfg.Capture.StopTimeout = 2 * time.Second
	cfg.Capture.AutoStart = true

	cfg.OBS.Host = "localhost"
	cfg.OBS.Port = 4455
	cfg.OBS.RequestTimeout = 5 * time.Second
	cfg.OBS.ConnectAttempts = 3
	cfg.OBS.PingInterval = 30 * time.Second

	cfg.AutoApply.Enabled = true
	cfg.AutoApply.ApplyTimeout = 5 * time.Second

	cfg.API.Enabled = true
	cfg.API.Address = "127.0.0.1:8090"
	cfg.API.AuthEnabled = false
	cfg.API.TokenTTL = 24 * time.Hour
	cfg.API.RateLimitRPS = 20
	cfg.API.RateLimitBurst = 40
	cfg.API.ReadTimeout = 15 * time.Second
	cfg.API.WriteTimeout = 15 * time.Second
	cfg.API.ShutdownTimeout = 5 * time.Second

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 4

	cfg.Monitoring.PrometheusEnabled = true

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if iface := os.Getenv("RTMPSCOUT_INTERFACE"); iface != "" {
		c.Capture.Interface = iface
	}
	if filter := os.Getenv("RTMPSCOUT_FILTER"); filter != "" {
		c.Capture.Filter = filter
	}
	if host := os.Getenv("RTMPSCOUT_OBS_HOST"); host != "" {
		c.OBS.Host = host
	}
	if port := os.Getenv("RTMPSCOUT_OBS_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.OBS.Port = p
		}
	}
	if password := os.Getenv("RTMPSCOUT_OBS_PASSWORD"); password != "" {
		c.OBS.Password = password
	}
	if addr := os.Getenv("RTMPSCOUT_API_ADDRESS"); addr != "" {
		c.API.Address = addr
	}
	if secret := os.Getenv("RTMPSCOUT_JWT_SECRET"); secret != "" {
		c.API.JWTSecret = secret
	}
	if level := os.Getenv("RTMPSCOUT_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}
