package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoader_Load(t *testing.T) {
	tempDir := t.TempDir()
	configFile := filepath.Join(tempDir, ".config.yaml")

	configContent := `
log:
  log_level: "DEBUG"
  log_dir: "/tmp/logs"
  log_file: "test.log"
cache:
  driver: "memory"
lockout:
  max_attempts: 3
  window_ms: 60000
  lockout_ms: 30000
`

	err := os.WriteFile(configFile, []byte(configContent), 0644)
	if err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	loader := NewLoader().WithDotEnv(false).WithSource(configFile)
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Log.Level != "DEBUG" {
		t.Errorf("expected log level DEBUG, got %s", cfg.Log.Level)
	}
	if cfg.Cache.Driver != "memory" {
		t.Errorf("expected cache driver memory, got %s", cfg.Cache.Driver)
	}
	if cfg.Lockout.MaxAttempts != 3 {
		t.Errorf("expected max attempts 3, got %d", cfg.Lockout.MaxAttempts)
	}
	// Untouched sections keep their defaults.
	if cfg.Blacklist.DefaultTTLSeconds != 604_800 {
		t.Errorf("expected default blacklist TTL, got %d", cfg.Blacklist.DefaultTTLSeconds)
	}
}

func TestLoader_LoadDefaults(t *testing.T) {
	oldWd, _ := os.Getwd()
	os.Chdir(t.TempDir())
	defer os.Chdir(oldWd)

	loader := NewLoader().WithDotEnv(false)
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Lockout.MaxAttempts != 5 {
		t.Errorf("expected default max attempts 5, got %d", cfg.Lockout.MaxAttempts)
	}
	if cfg.Lockout.WindowMs != 1_800_000 {
		t.Errorf("expected default window 1800000, got %d", cfg.Lockout.WindowMs)
	}
	if len(cfg.Lockout.DelayScheduleMs) != 5 {
		t.Errorf("expected 5 delay schedule entries, got %d", len(cfg.Lockout.DelayScheduleMs))
	}
	if cfg.Reputation.HistoryLimit != 10 {
		t.Errorf("expected default history limit 10, got %d", cfg.Reputation.HistoryLimit)
	}
}

func TestLoader_EnvOverrides(t *testing.T) {
	oldWd, _ := os.Getwd()
	os.Chdir(t.TempDir())
	defer os.Chdir(oldWd)

	t.Setenv("AUTHGUARD_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("AUTHGUARD_JWT_SECRET", "env_secret")

	loader := NewLoader().WithDotEnv(false)
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Cache.Redis.Addr != "redis.internal:6380" {
		t.Errorf("expected env redis addr, got %s", cfg.Cache.Redis.Addr)
	}
	if cfg.Blacklist.Secret != "env_secret" {
		t.Errorf("expected env secret, got %s", cfg.Blacklist.Secret)
	}
}

func TestLoader_Validate(t *testing.T) {
	loader := NewLoader()

	valid := func() *Config { return DefaultConfig() }

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "unknown cache driver",
			mutate:  func(c *Config) { c.Cache.Driver = "dynamo" },
			wantErr: true,
		},
		{
			name:    "redis driver without address",
			mutate:  func(c *Config) { c.Cache.Redis.Addr = "" },
			wantErr: true,
		},
		{
			name:    "zero max attempts",
			mutate:  func(c *Config) { c.Lockout.MaxAttempts = 0 },
			wantErr: true,
		},
		{
			name:    "decreasing delay schedule",
			mutate:  func(c *Config) { c.Lockout.DelayScheduleMs = []int64{0, 5000, 2000} },
			wantErr: true,
		},
		{
			name:    "negative blacklist ttl",
			mutate:  func(c *Config) { c.Blacklist.DefaultTTLSeconds = -1 },
			wantErr: true,
		},
		{
			name:    "zero rate limit threshold",
			mutate:  func(c *Config) { c.Security.RateLimitThreshold = 0 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := loader.validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLockoutConfig_Durations(t *testing.T) {
	cfg := DefaultConfig()

	if got := cfg.Lockout.Window().Minutes(); got != 30 {
		t.Errorf("expected 30 minute window, got %v", got)
	}
	if got := cfg.Lockout.LockoutDuration().Minutes(); got != 15 {
		t.Errorf("expected 15 minute lockout, got %v", got)
	}

	schedule := cfg.Lockout.DelaySchedule()
	if len(schedule) != 5 {
		t.Fatalf("expected 5 schedule entries, got %d", len(schedule))
	}
	if schedule[0] != 0 {
		t.Errorf("expected zero first delay, got %v", schedule[0])
	}
	if schedule[4].Seconds() != 30 {
		t.Errorf("expected 30s cap, got %v", schedule[4])
	}
}
