// Package config loads the service configuration from defaults, an optional
// YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment variables, e.g. KANBAN_STORAGE_DSN.
const EnvPrefix = "KANBAN"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Queue     QueueConfig     `mapstructure:"queue"`
	ShortLink ShortLinkConfig `mapstructure:"short_link"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
	// Port overrides the port of Addr when set.
	Port            string        `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Debug  bool   `mapstructure:"debug"`
}

type StorageConfig struct {
	Backend          string `mapstructure:"backend"`
	DSN              string `mapstructure:"dsn"`
	ConnectionString string `mapstructure:"connection_string"`
	TablePrefix      string `mapstructure:"table_prefix"`
}

type RedisConfig struct {
	URL       string        `mapstructure:"url"`
	DedupeTTL time.Duration `mapstructure:"dedupe_ttl"`
}

type AuthConfig struct {
	Mode         string        `mapstructure:"mode"`
	Domain       string        `mapstructure:"domain"`
	Audience     string        `mapstructure:"audience"`
	Secret       string        `mapstructure:"secret"`
	JWKSCacheTTL time.Duration `mapstructure:"jwks_cache_ttl"`
}

// JWKSURL is the key set location of the configured identity provider.
func (a AuthConfig) JWKSURL() string {
	return fmt.Sprintf("https://%s/.well-known/jwks.json", a.Domain)
}

// Issuer is the expected iss claim. Empty when no domain is configured.
func (a AuthConfig) Issuer() string {
	if a.Domain == "" {
		return ""
	}
	return "https://" + a.Domain + "/"
}

type QueueConfig struct {
	ConnectionString string `mapstructure:"connection_string"`
	Reminders        string `mapstructure:"reminders"`
}

type ShortLinkConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	Length      int    `mapstructure:"length"`
	MaxAttempts int    `mapstructure:"max_attempts"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.port", "")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.debug", false)
	v.SetDefault("storage.backend", "sqlite3")
	v.SetDefault("storage.dsn", "kanban.db")
	v.SetDefault("storage.connection_string", "")
	v.SetDefault("storage.table_prefix", "kanban")
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.dedupe_ttl", "24h")
	v.SetDefault("auth.mode", "jwks")
	v.SetDefault("auth.domain", "")
	v.SetDefault("auth.audience", "")
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.jwks_cache_ttl", "15m")
	v.SetDefault("queue.connection_string", "")
	v.SetDefault("queue.reminders", "")
	v.SetDefault("short_link.base_url", "")
	v.SetDefault("short_link.length", 8)
	v.SetDefault("short_link.max_attempts", 1000)
}

// legacyEnv maps keys to variable names used by earlier deployments.
var legacyEnv = map[string]string{
	"storage.connection_string": "STORAGE_CONNECTION_STRING",
	"redis.url":                 "REDIS_CONNECTION_STRING",
	"auth.domain":               "AUTH0_DOMAIN",
	"auth.audience":             "AUTH0_AUDIENCE",
	"log.debug":                 "DEBUG",
	"server.port":               "FUNCTIONS_CUSTOMHANDLER_PORT",
}

// Load reads the configuration. path may be empty. Prefixed variables take
// precedence over legacy names.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, err
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Server.Port != "" {
		cfg.Server.Addr = ":" + cfg.Server.Port
	}
	if cfg.Log.Debug {
		cfg.Log.Level = "debug"
	}
	if cfg.Queue.ConnectionString == "" {
		cfg.Queue.ConnectionString = cfg.Storage.ConnectionString
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	switch c.Storage.Backend {
	case "postgres", "sqlite3":
		if c.Storage.DSN == "" {
			errs = append(errs, errors.New("storage.dsn is required for sql backends"))
		}
	case "tables":
		if c.Storage.ConnectionString == "" {
			errs = append(errs, errors.New("storage.connection_string is required for the tables backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.backend %q", c.Storage.Backend))
	}

	switch strings.ToLower(c.Auth.Mode) {
	case "hs256":
		if c.Auth.Secret == "" {
			errs = append(errs, errors.New("auth.secret is required in hs256 mode"))
		}
	case "jwks":
		if c.Auth.Domain == "" || c.Auth.Audience == "" {
			errs = append(errs, errors.New("auth.domain and auth.audience are required in jwks mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown auth.mode %q", c.Auth.Mode))
	}

	if c.Queue.Reminders != "" && c.Queue.ConnectionString == "" {
		errs = append(errs, errors.New("queue.connection_string is required when queue.reminders is set"))
	}
	if c.ShortLink.Length < 4 || c.ShortLink.Length > 32 {
		errs = append(errs, fmt.Errorf("short_link.length must be between 4 and 32, got %d", c.ShortLink.Length))
	}
	if c.ShortLink.MaxAttempts <= 0 {
		errs = append(errs, errors.New("short_link.max_attempts must be positive"))
	}
	if c.Redis.URL != "" && c.Redis.DedupeTTL <= 0 {
		errs = append(errs, errors.New("redis.dedupe_ttl must be positive"))
	}
	return errors.Join(errs...)
}

// ConfigureLogger applies level and format to logger.
func (c *Config) ConfigureLogger(logger *log.Logger) {
	if lvl, err := log.ParseLevel(c.Log.Level); err == nil {
		logger.SetLevel(lvl)
	}
	if c.Log.Format == "json" {
		logger.SetFormatter(&log.JSONFormatter{})
	} else {
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}
