// Package config loads application configuration from defaults, an optional
// YAML file and SUBMANAGE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment overrides. Nested keys are joined
// with a double underscore: SUBMANAGE_DATABASE__URL sets database.url.
const EnvPrefix = "SUBMANAGE_"

// PathEnv names the variable holding the optional YAML config file path.
const PathEnv = "CONFIG_PATH"

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Database      DatabaseConfig      `koanf:"database"`
	Log           LogConfig           `koanf:"log"`
	JWT           JWTConfig           `koanf:"jwt"`
	CORS          CORSConfig          `koanf:"cors"`
	RateLimit     RateLimitConfig     `koanf:"rate_limit"`
	Redis         RedisConfig         `koanf:"redis"`
	Bootstrap     BootstrapConfig     `koanf:"bootstrap"`
	Lifecycle     LifecycleConfig     `koanf:"lifecycle"`
	Notifications NotificationsConfig `koanf:"notifications"`
	Summarizer    SummarizerConfig    `koanf:"summarizer"`
}

// ServerConfig configures the HTTP listeners.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              string        `koanf:"port"`
	MetricsPort       string        `koanf:"metrics_port"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout"`
}

// DatabaseConfig configures the PostgreSQL pool.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	ConnectAttempts int           `koanf:"connect_attempts"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

// LogConfig configures slog.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// JWTConfig configures access tokens.
type JWTConfig struct {
	SecretKey           string        `koanf:"secret_key"`
	AccessTokenDuration time.Duration `koanf:"access_token_duration"`
}

// CORSConfig configures allowed browser origins.
type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
}

// RateLimitConfig limits login attempts per client address.
type RateLimitConfig struct {
	LoginRPS   float64 `koanf:"login_rps"`
	LoginBurst int     `koanf:"login_burst"`
}

// RedisConfig configures the session revocation store.
// Revocation is kept in memory when URL is empty.
type RedisConfig struct {
	URL string `koanf:"url"`
}

// BootstrapConfig creates the first Admin account on an empty staff table.
type BootstrapConfig struct {
	AdminEmail    string `koanf:"admin_email"`
	AdminPassword string `koanf:"admin_password"`
	AdminName     string `koanf:"admin_name"`
}

// LifecycleConfig configures expiry highlighting and the background sweep.
type LifecycleConfig struct {
	ExpiringWindow time.Duration `koanf:"expiring_window"`
	WatchLimit     int           `koanf:"watch_limit"`
	Sweep          SweepConfig   `koanf:"sweep"`
}

// SweepConfig configures the periodic status sweep.
type SweepConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Interval time.Duration `koanf:"interval"`
}

// NotificationsConfig configures outbound subscriber messages.
type NotificationsConfig struct {
	Email   EmailConfig   `koanf:"email"`
	Gateway GatewayConfig `koanf:"gateway"`
}

// EmailConfig configures the SMTP sender.
type EmailConfig struct {
	Enabled      bool   `koanf:"enabled"`
	SMTPHost     string `koanf:"smtp_host"`
	SMTPPort     int    `koanf:"smtp_port"`
	SMTPUser     string `koanf:"smtp_user"`
	SMTPPassword string `koanf:"smtp_password"`
	FromAddress  string `koanf:"from_address"`
}

// GatewayConfig configures the AMQP queue consumed by the SMS/WhatsApp gateway.
type GatewayConfig struct {
	Enabled  bool   `koanf:"enabled"`
	URL      string `koanf:"url"`
	Exchange string `koanf:"exchange"`
}

// SummarizerConfig configures the external notes summarization service.
type SummarizerConfig struct {
	URL     string        `koanf:"url"`
	APIKey  string        `koanf:"api_key"`
	Timeout time.Duration `koanf:"timeout"`
	RPS     float64       `koanf:"rps"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              "8080",
			MetricsPort:       "9090",
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnectTimeout:  30 * time.Second,
			ConnectAttempts: 5,
			AutoMigrate:     true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		JWT: JWTConfig{
			AccessTokenDuration: 12 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			LoginRPS:   1,
			LoginBurst: 5,
		},
		Bootstrap: BootstrapConfig{
			AdminName: "Administrator",
		},
		Lifecycle: LifecycleConfig{
			ExpiringWindow: 7 * 24 * time.Hour,
			WatchLimit:     5,
			Sweep: SweepConfig{
				Interval: time.Hour,
			},
		},
		Notifications: NotificationsConfig{
			Email: EmailConfig{
				SMTPPort: 587,
			},
			Gateway: GatewayConfig{
				Exchange: "submanage.messages",
			},
		},
		Summarizer: SummarizerConfig{
			Timeout: 20 * time.Second,
			RPS:     2,
		},
	}
}

// Load builds the configuration. Later sources override earlier ones:
// defaults, the YAML file named by CONFIG_PATH, then SUBMANAGE_* variables.
func Load() (*Config, error) {
	k := koanf.New(".")

	if path := os.Getenv(PathEnv); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// envKey maps SUBMANAGE_LIFECYCLE__SWEEP__ENABLED to lifecycle.sweep.enabled.
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

// Validate reports settings the application cannot start without.
func (c *Config) Validate() error {
	var errs []error

	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if c.JWT.SecretKey == "" {
		errs = append(errs, errors.New("jwt.secret_key is required"))
	}
	if c.JWT.AccessTokenDuration <= 0 {
		errs = append(errs, errors.New("jwt.access_token_duration must be positive"))
	}
	if c.Lifecycle.ExpiringWindow < 0 {
		errs = append(errs, errors.New("lifecycle.expiring_window must not be negative"))
	}
	if c.Lifecycle.Sweep.Enabled && c.Lifecycle.Sweep.Interval <= 0 {
		errs = append(errs, errors.New("lifecycle.sweep.interval must be positive"))
	}
	if c.Notifications.Gateway.Enabled && c.Notifications.Gateway.URL == "" {
		errs = append(errs, errors.New("notifications.gateway.url is required when the gateway is enabled"))
	}
	if (c.Bootstrap.AdminEmail == "") != (c.Bootstrap.AdminPassword == "") {
		errs = append(errs, errors.New("bootstrap.admin_email and bootstrap.admin_password must be set together"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
