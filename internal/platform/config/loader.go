package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"authguard-go/internal/platform/errors"
)

// Default config file candidates, checked in order.
var configFileCandidates = []string{".config.yaml", "config.yaml"}

// Loader reads configuration in layers: built-in defaults, then a yaml
// file, then environment overrides for secrets.
type Loader struct {
	useDotEnv bool
	source    string
}

func NewLoader() *Loader {
	return &Loader{
		useDotEnv: true,
	}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithSource pins the loader to a specific config file path (useful for tests).
func (l *Loader) WithSource(path string) *Loader {
	if path != "" {
		l.source = path
	}
	return l
}

// Load produces the effective configuration. A missing config file is not
// an error; defaults plus environment cover that case.
func (l *Loader) Load() (*Config, error) {
	if l.useDotEnv {
		if err := godotenv.Load(); err != nil {
			fmt.Println("no .env file found, using system environment")
		}
	}

	cfg := DefaultConfig()

	path := l.findConfigFile()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(errors.KindConfig, "config.read", "failed to read config file", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(errors.KindConfig, "config.parse", "failed to parse config file", err)
		}
	}

	l.applyEnvOverrides(cfg)

	if err := l.validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (l *Loader) findConfigFile() string {
	if l.source != "" {
		return l.source
	}
	for _, candidate := range configFileCandidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// applyEnvOverrides lets deployment environments inject secrets without
// writing them into the config file.
func (l *Loader) applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AUTHGUARD_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("AUTHGUARD_REDIS_ADDR"); v != "" {
		cfg.Cache.Redis.Addr = v
	}
	if v := os.Getenv("AUTHGUARD_REDIS_USERNAME"); v != "" {
		cfg.Cache.Redis.Username = v
	}
	if v := os.Getenv("AUTHGUARD_REDIS_PASSWORD"); v != "" {
		cfg.Cache.Redis.Password = v
	}
	if v := os.Getenv("AUTHGUARD_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.Redis.DB = db
		}
	}
	if v := os.Getenv("AUTHGUARD_JWT_SECRET"); v != "" {
		cfg.Blacklist.Secret = v
	}
}

func (l *Loader) validate(cfg *Config) error {
	switch cfg.Cache.Driver {
	case "redis", "memory":
	default:
		return errors.New(errors.KindConfig, "config.validate",
			fmt.Sprintf("unknown cache driver: %s", cfg.Cache.Driver))
	}

	if cfg.Cache.Driver == "redis" && cfg.Cache.Redis.Addr == "" {
		return errors.New(errors.KindConfig, "config.validate", "redis driver requires an address")
	}

	if cfg.Lockout.MaxAttempts < 1 {
		return errors.New(errors.KindConfig, "config.validate", "lockout max_attempts must be at least 1")
	}
	if cfg.Lockout.WindowMs <= 0 || cfg.Lockout.LockoutMs <= 0 {
		return errors.New(errors.KindConfig, "config.validate", "lockout windows must be positive")
	}
	for i := 1; i < len(cfg.Lockout.DelayScheduleMs); i++ {
		if cfg.Lockout.DelayScheduleMs[i] < cfg.Lockout.DelayScheduleMs[i-1] {
			return errors.New(errors.KindConfig, "config.validate", "delay schedule must be non-decreasing")
		}
	}

	if cfg.Blacklist.DefaultTTLSeconds <= 0 {
		return errors.New(errors.KindConfig, "config.validate", "blacklist default_ttl_seconds must be positive")
	}

	if cfg.Reputation.HistoryLimit < 1 {
		return errors.New(errors.KindConfig, "config.validate", "reputation history_limit must be at least 1")
	}
	if cfg.Reputation.VolatileThreshold < 1 {
		return errors.New(errors.KindConfig, "config.validate", "reputation volatile_threshold must be at least 1")
	}

	if cfg.Security.BruteForceThreshold < 1 || cfg.Security.RateLimitThreshold < 1 {
		return errors.New(errors.KindConfig, "config.validate", "security thresholds must be at least 1")
	}

	return nil
}
