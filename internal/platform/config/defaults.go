package config

// DefaultConfig returns the configuration used when no file overrides it.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level: "INFO",
			Dir:   "data/logs",
			File:  "authguard.log",
		},
		Cache: CacheConfig{
			Driver: "redis",
			Redis: RedisCacheConfig{
				Addr:   "localhost:6379",
				DB:     0,
				Prefix: "authguard:",
			},
			Memory: MemoryCacheConfig{
				CleanupMs: 60_000,
			},
			Failover: FailoverCacheConfig{
				Enabled:     true,
				ReconnectMs: 5_000,
			},
		},
		Lockout: LockoutConfig{
			MaxAttempts:     5,
			WindowMs:        1_800_000,
			LockoutMs:       900_000,
			DelayScheduleMs: []int64{0, 2000, 5000, 10000, 30000},
			ManualLockMs:    3_600_000,
		},
		Blacklist: BlacklistConfig{
			DefaultTTLSeconds: 604_800,
			Secret:            "change_me",
		},
		Reputation: ReputationConfig{
			HistoryLimit:        10,
			StaleDays:           30,
			VolatileWindowHours: 24,
			VolatileThreshold:   3,
		},
		Security: SecurityConfig{
			BruteForceThreshold: 5,
			BruteForceWindowMs:  900_000,
			RateLimitThreshold:  100,
			AlertCooldownMs:     300_000,
			Journal: JournalConfig{
				Enabled:       true,
				Path:          "data/authguard.db",
				RetentionDays: 30,
			},
		},
		Observability: ObservabilityConfig{
			Enabled: false,
		},
	}
}
