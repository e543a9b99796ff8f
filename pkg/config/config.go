package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xraph/crucible/errors"
	"github.com/xraph/crucible/logger"
	"github.com/xraph/crucible/pkg/metadata"
	"github.com/xraph/crucible/pkg/pool"
	"github.com/xraph/crucible/pkg/transaction"
)

// TransactionDefaults configures the transaction manager's defaults.
type TransactionDefaults struct {
	PoolSize       int           `yaml:"pool_size"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
	Isolation      string        `yaml:"isolation"`
}

// CacheConfig configures the caching interceptor.
type CacheConfig struct {
	// Backend selects the cache store: "memory" or "redis".
	Backend string `yaml:"backend"`

	// DefaultTTL applies to components whose cached marker declares no
	// TTL of its own.
	DefaultTTL time.Duration `yaml:"default_ttl"`

	// RedisAddr is the redis endpoint when Backend is "redis".
	RedisAddr string `yaml:"redis_addr"`
}

// Config is the runtime configuration.
type Config struct {
	Logging     logger.LoggingConfig   `yaml:"logging"`
	Scanner     metadata.ScannerConfig `yaml:"scanner"`
	Transaction TransactionDefaults    `yaml:"transaction"`
	Cache       CacheConfig            `yaml:"cache"`
}

// Default returns the configuration used when no file is supplied.
func Default() Config {
	return Config{
		Logging: logger.LoggingConfig{
			Level:       "info",
			Format:      "json",
			Environment: "production",
		},
		Transaction: TransactionDefaults{
			PoolSize:       10,
			AcquireTimeout: 30 * time.Second,
			Isolation:      transaction.IsolationDefault.String(),
		},
		Cache: CacheConfig{
			Backend:    "memory",
			DefaultTTL: 5 * time.Minute,
		},
	}
}

// Load reads a YAML configuration file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.ErrConfigError("failed to read config file", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.ErrConfigError("failed to parse config file", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the runtime cannot honor.
func (c Config) Validate() error {
	if c.Transaction.PoolSize <= 0 {
		return errors.ErrConfigError("transaction.pool_size must be positive", nil)
	}
	if c.Transaction.AcquireTimeout < 0 {
		return errors.ErrConfigError("transaction.acquire_timeout must not be negative", nil)
	}
	switch c.Cache.Backend {
	case "", "memory":
	case "redis":
		if c.Cache.RedisAddr == "" {
			return errors.ErrConfigError("cache.redis_addr is required for the redis backend", nil)
		}
	default:
		return errors.ErrConfigError("unknown cache backend '"+c.Cache.Backend+"'", nil)
	}
	return nil
}

// PoolConfig translates the transaction defaults into a pool config.
func (c Config) PoolConfig() pool.Config {
	return pool.Config{
		Size:           c.Transaction.PoolSize,
		AcquireTimeout: c.Transaction.AcquireTimeout,
	}
}

// TransactionConfig translates the defaults into a manager config.
func (c Config) TransactionConfig() transaction.Config {
	return transaction.Config{
		PoolSize:       c.Transaction.PoolSize,
		AcquireTimeout: c.Transaction.AcquireTimeout,
	}
}
