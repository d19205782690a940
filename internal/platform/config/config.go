package config

import (
	"time"
)

type Config struct {
	Log           LogConfig           `yaml:"log" mapstructure:"log"`
	Cache         CacheConfig         `yaml:"cache" mapstructure:"cache"`
	Lockout       LockoutConfig       `yaml:"lockout" mapstructure:"lockout"`
	Blacklist     BlacklistConfig     `yaml:"blacklist" mapstructure:"blacklist"`
	Reputation    ReputationConfig    `yaml:"reputation" mapstructure:"reputation"`
	Security      SecurityConfig      `yaml:"security" mapstructure:"security"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
}

type LogConfig struct {
	Level string `yaml:"log_level" mapstructure:"log_level"`
	Dir   string `yaml:"log_dir" mapstructure:"log_dir"`
	File  string `yaml:"log_file" mapstructure:"log_file"`
}

// CacheConfig selects and parameterises the shared key-value backend.
type CacheConfig struct {
	Driver   string              `yaml:"driver" mapstructure:"driver"`
	Redis    RedisCacheConfig    `yaml:"redis,omitempty" mapstructure:"redis"`
	Memory   MemoryCacheConfig   `yaml:"memory,omitempty" mapstructure:"memory"`
	Failover FailoverCacheConfig `yaml:"failover" mapstructure:"failover"`
}

type RedisCacheConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Username string `yaml:"username,omitempty" mapstructure:"username"`
	Password string `yaml:"password,omitempty" mapstructure:"password"`
	DB       int    `yaml:"db,omitempty" mapstructure:"db"`
	Prefix   string `yaml:"prefix,omitempty" mapstructure:"prefix"`
}

type MemoryCacheConfig struct {
	CleanupMs int64 `yaml:"cleanup_ms" mapstructure:"cleanup_ms"`
}

type FailoverCacheConfig struct {
	Enabled     bool  `yaml:"enabled" mapstructure:"enabled"`
	ReconnectMs int64 `yaml:"reconnect_ms" mapstructure:"reconnect_ms"`
}

// LockoutConfig carries the failed-attempt thresholds. Durations are
// millisecond integers to match the stored record format.
type LockoutConfig struct {
	MaxAttempts     int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	WindowMs        int64   `yaml:"window_ms" mapstructure:"window_ms"`
	LockoutMs       int64   `yaml:"lockout_ms" mapstructure:"lockout_ms"`
	DelayScheduleMs []int64 `yaml:"delay_schedule_ms" mapstructure:"delay_schedule_ms"`
	ManualLockMs    int64   `yaml:"manual_lock_ms" mapstructure:"manual_lock_ms"`
}

type BlacklistConfig struct {
	DefaultTTLSeconds int64  `yaml:"default_ttl_seconds" mapstructure:"default_ttl_seconds"`
	Secret            string `yaml:"secret" mapstructure:"secret"`
}

type ReputationConfig struct {
	HistoryLimit        int `yaml:"history_limit" mapstructure:"history_limit"`
	StaleDays           int `yaml:"stale_days" mapstructure:"stale_days"`
	VolatileWindowHours int `yaml:"volatile_window_hours" mapstructure:"volatile_window_hours"`
	VolatileThreshold   int `yaml:"volatile_threshold" mapstructure:"volatile_threshold"`
}

type SecurityConfig struct {
	BruteForceThreshold int           `yaml:"brute_force_threshold" mapstructure:"brute_force_threshold"`
	BruteForceWindowMs  int64         `yaml:"brute_force_window_ms" mapstructure:"brute_force_window_ms"`
	RateLimitThreshold  int           `yaml:"rate_limit_threshold" mapstructure:"rate_limit_threshold"`
	AlertCooldownMs     int64         `yaml:"alert_cooldown_ms" mapstructure:"alert_cooldown_ms"`
	Journal             JournalConfig `yaml:"journal" mapstructure:"journal"`
}

type JournalConfig struct {
	Enabled       bool   `yaml:"enabled" mapstructure:"enabled"`
	Path          string `yaml:"path" mapstructure:"path"`
	RetentionDays int    `yaml:"retention_days" mapstructure:"retention_days"`
}

type ObservabilityConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

func (c LockoutConfig) Window() time.Duration {
	return time.Duration(c.WindowMs) * time.Millisecond
}

func (c LockoutConfig) LockoutDuration() time.Duration {
	return time.Duration(c.LockoutMs) * time.Millisecond
}

func (c LockoutConfig) ManualLockDuration() time.Duration {
	return time.Duration(c.ManualLockMs) * time.Millisecond
}

func (c LockoutConfig) DelaySchedule() []time.Duration {
	out := make([]time.Duration, len(c.DelayScheduleMs))
	for i, ms := range c.DelayScheduleMs {
		out[i] = time.Duration(ms) * time.Millisecond
	}
	return out
}

func (c BlacklistConfig) DefaultTTL() time.Duration {
	return time.Duration(c.DefaultTTLSeconds) * time.Second
}

func (c ReputationConfig) StaleAfter() time.Duration {
	return time.Duration(c.StaleDays) * 24 * time.Hour
}

func (c ReputationConfig) VolatileWindow() time.Duration {
	return time.Duration(c.VolatileWindowHours) * time.Hour
}

func (c SecurityConfig) BruteForceWindow() time.Duration {
	return time.Duration(c.BruteForceWindowMs) * time.Millisecond
}

func (c SecurityConfig) AlertCooldown() time.Duration {
	return time.Duration(c.AlertCooldownMs) * time.Millisecond
}

func (c FailoverCacheConfig) ReconnectInterval() time.Duration {
	return time.Duration(c.ReconnectMs) * time.Millisecond
}

func (c MemoryCacheConfig) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupMs) * time.Millisecond
}
