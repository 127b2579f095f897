// Package config loads the service configuration from a YAML file with
// INTERVIEWS_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/gartstein/interviews/internal/interviews/captcha"
	"github.com/gartstein/interviews/internal/interviews/db"
)

// EnvPrefix is stripped from environment variables before they are mapped
// onto config keys: INTERVIEWS_DB_HOST sets db.host.
const EnvPrefix = "INTERVIEWS_"

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	DB        DBConfig        `koanf:"db"`
	Kafka     KafkaConfig     `koanf:"kafka"`
	Auth      AuthConfig      `koanf:"auth"`
	Captcha   CaptchaConfig   `koanf:"captcha"`
	Sync      SyncConfig      `koanf:"sync"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
}

type ServerConfig struct {
	GRPCPort int `koanf:"grpc_port"`
	HTTPPort int `koanf:"http_port"`
}

type DBConfig struct {
	Driver   string `koanf:"driver"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Name     string `koanf:"name"`
	SSLMode  string `koanf:"sslmode"`
	Path     string `koanf:"path"`
}

type KafkaConfig struct {
	Enabled bool     `koanf:"enabled"`
	Brokers []string `koanf:"brokers"`
	Topic   string   `koanf:"topic"`
}

type AuthConfig struct {
	JWTSecret string        `koanf:"jwt_secret"`
	TokenTTL  time.Duration `koanf:"token_ttl"`
}

type CaptchaConfig struct {
	Secret    string  `koanf:"secret"`
	VerifyURL string  `koanf:"verify_url"`
	Threshold float64 `koanf:"threshold"`
	Required  bool    `koanf:"required"`
}

type SyncConfig struct {
	// RemoteTimeout bounds each background write to the store.
	RemoteTimeout time.Duration `koanf:"remote_timeout"`
}

// RateLimitConfig limits sign-up and sign-in attempts per client IP.
type RateLimitConfig struct {
	AuthRPS   float64 `koanf:"auth_rps"`
	AuthBurst int     `koanf:"auth_burst"`
	// TrustedProxies lists addresses or CIDR prefixes whose forwarding
	// headers name the client. Empty means the peer address is used as is.
	TrustedProxies []string `koanf:"trusted_proxies"`
}

// Proxies parses TrustedProxies.
func (c RateLimitConfig) Proxies() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(c.TrustedProxies))
	for _, entry := range c.TrustedProxies {
		entry = strings.TrimSpace(entry)
		if strings.Contains(entry, "/") {
			p, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("ratelimit.trusted_proxies: %w", err)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("ratelimit.trusted_proxies: %w", err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

// Load reads path (optional, may be empty) and applies environment
// overrides, defaults and validation.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// envKey maps INTERVIEWS_SECTION_FIELD_NAME to section.field_name. Only the
// first underscore after the prefix separates the section.
func envKey(key, value string) (string, interface{}) {
	lower := strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower, value
	}
	name := parts[0] + "." + parts[1]

	switch name {
	case "kafka.brokers", "ratelimit.trusted_proxies":
		var items []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		return name, items
	}
	return name, value
}

func applyDefaults(cfg *Config) {
	if cfg.Server.GRPCPort == 0 {
		cfg.Server.GRPCPort = 50051
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}

	if cfg.DB.Driver == "" {
		cfg.DB.Driver = db.DriverPostgres
	}
	if cfg.DB.Driver == db.DriverPostgres {
		if cfg.DB.Host == "" {
			cfg.DB.Host = "localhost"
		}
		if cfg.DB.Port == 0 {
			cfg.DB.Port = 5432
		}
		if cfg.DB.SSLMode == "" {
			cfg.DB.SSLMode = "disable"
		}
	}
	if cfg.DB.Driver == db.DriverSQLite && cfg.DB.Path == "" {
		cfg.DB.Path = "interviews.db"
	}

	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "interviews-events"
	}

	if cfg.Auth.TokenTTL == 0 {
		cfg.Auth.TokenTTL = 24 * time.Hour
	}

	if cfg.Captcha.VerifyURL == "" {
		cfg.Captcha.VerifyURL = captcha.DefaultVerifyURL
	}
	if cfg.Captcha.Threshold == 0 {
		cfg.Captcha.Threshold = captcha.DefaultThreshold
	}

	if cfg.Sync.RemoteTimeout == 0 {
		cfg.Sync.RemoteTimeout = 10 * time.Second
	}

	if cfg.RateLimit.AuthRPS == 0 {
		cfg.RateLimit.AuthRPS = 1
	}
	if cfg.RateLimit.AuthBurst == 0 {
		cfg.RateLimit.AuthBurst = 10
	}
}

func (c *Config) Validate() error {
	var errs []error

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret is required"))
	}
	if c.Auth.TokenTTL < 0 {
		errs = append(errs, errors.New("auth.token_ttl must not be negative"))
	}

	switch c.DB.Driver {
	case db.DriverPostgres:
		if c.DB.Name == "" {
			errs = append(errs, errors.New("db.name is required for postgres"))
		}
	case db.DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("db.driver %q is not supported", c.DB.Driver))
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers is required when kafka is enabled"))
	}

	for name, port := range map[string]int{"server.grpc_port": c.Server.GRPCPort, "server.http_port": c.Server.HTTPPort} {
		if port < 1 || port > 65535 {
			errs = append(errs, fmt.Errorf("%s %d is out of range", name, port))
		}
	}

	if c.Captcha.Threshold < 0 || c.Captcha.Threshold > 1 {
		errs = append(errs, fmt.Errorf("captcha.threshold %v must be between 0 and 1", c.Captcha.Threshold))
	}

	if _, err := c.RateLimit.Proxies(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Database converts the db section for db.NewRepository.
func (c *Config) Database() *db.Config {
	return &db.Config{
		Driver:   c.DB.Driver,
		Host:     c.DB.Host,
		Port:     c.DB.Port,
		User:     c.DB.User,
		Password: c.DB.Password,
		DBName:   c.DB.Name,
		SSLMode:  c.DB.SSLMode,
		Path:     c.DB.Path,
	}
}

func (c *Config) CaptchaConfig() captcha.Config {
	return captcha.Config{
		Secret:    c.Captcha.Secret,
		VerifyURL: c.Captcha.VerifyURL,
		Threshold: c.Captcha.Threshold,
		Required:  c.Captcha.Required,
	}
}
