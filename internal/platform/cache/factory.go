package cache

import (
	"fmt"

	"authguard-go/internal/platform/errors"
	"authguard-go/internal/platform/logging"
)

// Driver identifiers supported by the cache layer.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// New creates a store based on the provided configuration. The redis
// driver gets the in-process fallback wrapper unless failover is disabled.
func New(cfg Config, logger *logging.Logger) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverMemory
	}

	switch driver {
	case DriverMemory:
		return NewMemory(cfg), nil
	case DriverRedis:
		primary, err := NewRedis(cfg)
		if err != nil {
			return nil, err
		}
		if cfg.Failover != nil && !cfg.Failover.Enabled {
			return primary, nil
		}
		var interval = defaultReconnectInterval
		if cfg.Failover != nil && cfg.Failover.ReconnectInterval > 0 {
			interval = cfg.Failover.ReconnectInterval
		}
		return NewFailover(primary, NewMemory(cfg), interval, logger), nil
	default:
		return nil, errors.New(errors.KindConfig, "cache.factory",
			fmt.Sprintf("unsupported cache driver: %s", driver))
	}
}
