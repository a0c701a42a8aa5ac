package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config location, relative to the working directory.
const ConfigPath = "config.yaml"

// Session store kinds.
const (
	SessionMemory = "memory"
	SessionRedis  = "redis"
	SessionJWT    = "jwt"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port                       string   `yaml:"port"`
	LogLevel                   string   `yaml:"logLevel"`
	APIBaseURL                 string   `yaml:"apiBaseURL"`
	APITimeout                 string   `yaml:"apiTimeout"`
	SessionStore               string   `yaml:"sessionStore"`
	SessionSecret              string   `yaml:"sessionSecret"`
	FlashSecret                string   `yaml:"flashSecret"`
	SessionTTL                 string   `yaml:"sessionTTL"`
	CookieName                 string   `yaml:"cookieName"`
	CookieSecure               bool     `yaml:"cookieSecure"`
	RedisAddr                  string   `yaml:"redisAddr"`
	RedisPassword              string   `yaml:"redisPassword"`
	TrustedProxyCIDRs          []string `yaml:"trustedProxyCidrs"`
	LoginRateLimitPerMinute    int      `yaml:"loginRateLimitPerMinute"`
	RegisterRateLimitPerMinute int      `yaml:"registerRateLimitPerMinute"`
	ReportTimezone             string   `yaml:"reportTimezone"`
	MinioEndpoint              string   `yaml:"minioEndpoint"`
	MinioAccessKey             string   `yaml:"minioAccessKey"`
	MinioSecretKey             string   `yaml:"minioSecretKey"`
	MinioBucket                string   `yaml:"minioBucket"`
	MinioUseSSL                bool     `yaml:"minioUseSSL"`
	MinioPublicBaseURL         string   `yaml:"minioPublicBaseURL"`
	MaxCoverBytes              int64    `yaml:"maxCoverBytes"`
}

// Load reads config from path (defaults to config.yaml), applies CONSOLE_* and
// REDIS_* environment overrides, fills defaults and validates the result.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	envString("CONSOLE_PORT", &cfg.Port)
	envString("CONSOLE_LOG_LEVEL", &cfg.LogLevel)
	envString("CONSOLE_API_BASE_URL", &cfg.APIBaseURL)
	envString("CONSOLE_API_TIMEOUT", &cfg.APITimeout)
	envString("CONSOLE_SESSION_STORE", &cfg.SessionStore)
	envString("CONSOLE_SESSION_SECRET", &cfg.SessionSecret)
	envString("CONSOLE_FLASH_SECRET", &cfg.FlashSecret)
	envString("CONSOLE_SESSION_TTL", &cfg.SessionTTL)
	envString("CONSOLE_COOKIE_NAME", &cfg.CookieName)
	envBool("CONSOLE_COOKIE_SECURE", &cfg.CookieSecure)
	envString("REDIS_ADDR", &cfg.RedisAddr)
	envString("REDIS_PASSWORD", &cfg.RedisPassword)
	if v := os.Getenv("CONSOLE_TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	envInt("CONSOLE_LOGIN_RATE_LIMIT_PER_MINUTE", &cfg.LoginRateLimitPerMinute)
	envInt("CONSOLE_REGISTER_RATE_LIMIT_PER_MINUTE", &cfg.RegisterRateLimitPerMinute)
	envString("CONSOLE_REPORT_TIMEZONE", &cfg.ReportTimezone)
	envString("MINIO_ENDPOINT", &cfg.MinioEndpoint)
	envString("MINIO_ACCESS_KEY", &cfg.MinioAccessKey)
	envString("MINIO_SECRET_KEY", &cfg.MinioSecretKey)
	envString("MINIO_BUCKET", &cfg.MinioBucket)
	envBool("MINIO_USE_SSL", &cfg.MinioUseSSL)
	envString("MINIO_PUBLIC_BASE_URL", &cfg.MinioPublicBaseURL)
	if v := os.Getenv("CONSOLE_MAX_COVER_BYTES"); v != "" {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			cfg.MaxCoverBytes = n
		}
	}
}

func applyDefaults(cfg *FileConfig) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.APITimeout == "" {
		cfg.APITimeout = "10s"
	}
	if cfg.SessionStore == "" {
		cfg.SessionStore = SessionMemory
	}
	if cfg.SessionTTL == "" {
		cfg.SessionTTL = "24h"
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "librarydesk_session"
	}
	if cfg.ReportTimezone == "" {
		cfg.ReportTimezone = "Local"
	}
	if cfg.MaxCoverBytes == 0 {
		cfg.MaxCoverBytes = 5 << 20
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or CONSOLE_PORT)")
	}
	if cfg.APIBaseURL == "" {
		return errors.New("config: apiBaseURL is required (set in config.yaml or CONSOLE_API_BASE_URL)")
	}
	if _, err := cfg.UpstreamTimeout(); err != nil {
		return err
	}
	if _, err := cfg.SessionLifetime(); err != nil {
		return err
	}
	switch cfg.SessionStore {
	case SessionMemory:
	case SessionRedis:
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return errors.New("config: redisAddr is required when sessionStore is redis")
		}
	case SessionJWT:
		if len(cfg.SessionSecret) < 32 {
			return errors.New("config: sessionSecret must be at least 32 bytes when sessionStore is jwt")
		}
	default:
		return fmt.Errorf("config: unknown sessionStore %q (memory, redis or jwt)", cfg.SessionStore)
	}
	if cfg.FlashSecret != "" && len(cfg.FlashSecret) < 32 {
		return errors.New("config: flashSecret must be at least 32 bytes when set")
	}
	if cfg.LoginRateLimitPerMinute < 0 || cfg.RegisterRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	if (cfg.LoginRateLimitPerMinute > 0 || cfg.RegisterRateLimitPerMinute > 0) && strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required for rate limiting")
	}
	if _, err := cfg.Location(); err != nil {
		return err
	}
	if cfg.MinioEndpoint != "" && (cfg.MinioBucket == "" || cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "") {
		return errors.New("config: minioBucket, minioAccessKey and minioSecretKey are required with minioEndpoint")
	}
	if cfg.MaxCoverBytes < 0 {
		return errors.New("config: maxCoverBytes must be >= 0")
	}
	return nil
}

// UpstreamTimeout is the per-request timeout for library API calls.
func (c FileConfig) UpstreamTimeout() (time.Duration, error) {
	return parsePositiveDuration("apiTimeout", c.APITimeout)
}

// SessionLifetime bounds how long a console session lives.
func (c FileConfig) SessionLifetime() (time.Duration, error) {
	return parsePositiveDuration("sessionTTL", c.SessionTTL)
}

// Location is the timezone that report days are cut in.
func (c FileConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.ReportTimezone)
	if err != nil {
		return nil, fmt.Errorf("config: invalid reportTimezone: %w", err)
	}
	return loc, nil
}

func parsePositiveDuration(field, value string) (time.Duration, error) {
	dur, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("config: invalid %s duration: %w", field, err)
	}
	if dur <= 0 {
		return 0, fmt.Errorf("config: %s must be positive", field)
	}
	return dur, nil
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = strings.TrimSpace(v)
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			*dst = b
		}
	}
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
