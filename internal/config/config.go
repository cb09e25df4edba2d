// Package config loads the gateway core's configuration as an explicit
// struct constructed once in main and threaded through every constructor,
// never read from package globals. Loading seeds viper with the built-in
// Default() values, merges one optional YAML file named after the
// environment over them, applies .env overrides via godotenv, and
// validates the result with github.com/go-playground/validator/v10.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the gateway core's full configuration surface. Nested structs
// group the knobs by subsystem.
type Config struct {
	MaxChunkHops int `mapstructure:"max_chunk_hops" validate:"gte=0"`

	ChunkCache struct {
		TTLSeconds int `mapstructure:"ttl_seconds" validate:"gt=0"`
		Capacity   int `mapstructure:"capacity" validate:"gt=0"`
	} `mapstructure:"chunk_cache"`

	WeightedPeers struct {
		TemperatureDelta   int `mapstructure:"temperature_delta" validate:"gt=0"`
		RequestWindowCount int `mapstructure:"request_window_count" validate:"gt=0"`
	} `mapstructure:"weighted_peers"`

	TrustedGateways struct {
		RequestTimeoutMs int      `mapstructure:"request_timeout_ms" validate:"gt=0"`
		Hosts            []string `mapstructure:"hosts"`
	} `mapstructure:"trusted_gateways"`

	GraphQLRootTx struct {
		RateLimitCapacity int     `mapstructure:"rate_limit_capacity" validate:"gt=0"`
		RateLimitPerSec   float64 `mapstructure:"rate_limit_per_sec" validate:"gt=0"`
	} `mapstructure:"graphql_root_tx"`

	BackgroundVerification struct {
		Enabled        bool `mapstructure:"enabled"`
		WorkerCount    int  `mapstructure:"worker_count" validate:"gte=0"`
		IntervalSecond int  `mapstructure:"interval_seconds" validate:"gte=0"`
	} `mapstructure:"background_data_verification"`

	FSCleanupWorker struct {
		BatchSize    int `mapstructure:"batch_size" validate:"gt=0"`
		PauseMs      int `mapstructure:"pause_ms" validate:"gte=0"`
		IntervalSecs int `mapstructure:"interval_seconds" validate:"gt=0"`
	} `mapstructure:"fs_cleanup_worker"`

	RootTxIndexCircuitBreaker struct {
		FailureThreshold uint32 `mapstructure:"failure_threshold" validate:"gt=0"`
		SuccessThreshold uint32 `mapstructure:"success_threshold" validate:"gt=0"`
		TimeoutMs        int    `mapstructure:"timeout_ms" validate:"gt=0"`
	} `mapstructure:"root_tx_index_circuit_breaker"`

	MaxBundleNestingDepth int `mapstructure:"max_bundle_nesting_depth" validate:"gt=0"`

	ArNSRootHost string `mapstructure:"arns_root_host"`
	SkipCache    bool   `mapstructure:"skip_cache"`

	CacheDir      string `mapstructure:"cache_dir" validate:"required"`
	CDBPath       string `mapstructure:"cdb_path"`
	PolicyFile    string `mapstructure:"policy_file"`
	LogLevel      string `mapstructure:"log_level"`
	MetricsListen string `mapstructure:"metrics_listen"`
}

// ChunkCacheTTL is ChunkCache.TTLSeconds as a time.Duration.
func (c Config) ChunkCacheTTL() time.Duration {
	return time.Duration(c.ChunkCache.TTLSeconds) * time.Second
}

// Default returns the built-in default for every knob, used to seed viper
// before any file or environment overlay is applied.
func Default() Config {
	var c Config
	c.MaxChunkHops = 1
	c.ChunkCache.TTLSeconds = 60
	c.ChunkCache.Capacity = 100
	c.WeightedPeers.TemperatureDelta = 5
	c.WeightedPeers.RequestWindowCount = 20
	c.TrustedGateways.RequestTimeoutMs = 10_000
	c.GraphQLRootTx.RateLimitCapacity = 10
	c.GraphQLRootTx.RateLimitPerSec = 5
	c.BackgroundVerification.WorkerCount = 2
	c.BackgroundVerification.IntervalSecond = 300
	c.FSCleanupWorker.BatchSize = 500
	c.FSCleanupWorker.PauseMs = 50
	c.FSCleanupWorker.IntervalSecs = 3600
	c.RootTxIndexCircuitBreaker.FailureThreshold = 5
	c.RootTxIndexCircuitBreaker.SuccessThreshold = 2
	c.RootTxIndexCircuitBreaker.TimeoutMs = 30_000
	c.MaxBundleNestingDepth = 8
	c.CacheDir = "./data/cache"
	c.LogLevel = "info"
	return c
}

// Load reads a YAML config file named by env (defaulting to "default") from
// configPaths, merges .env overrides via godotenv, and validates the
// result, failing with a single summary error. Unset fields fall back to
// Default()'s values.
func Load(env string, configPaths ...string) (*Config, error) {
	_ = godotenv.Load() // optional .env overlay; absence is not an error

	v := viper.New()
	v.SetConfigType("yaml")
	if env == "" {
		env = "default"
	}
	v.SetConfigName(env)
	for _, p := range configPaths {
		v.AddConfigPath(p)
	}
	if len(configPaths) == 0 {
		v.AddConfigPath(".")
	}
	v.SetEnvPrefix("GATEWAYCORE")
	v.AutomaticEnv()

	def := Default()
	if err := v.MergeConfigMap(structToMap(def)); err != nil {
		return nil, fmt.Errorf("config: seed defaults: %w", err)
	}

	if err := v.MergeInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}
	return &cfg, nil
}

// structToMap does a minimal field-name-preserving conversion so
// MergeConfigMap can seed viper's defaults layer; a plain
// map[string]interface{} is enough since viper's own mapstructure
// unmarshal handles the reverse direction.
func structToMap(c Config) map[string]interface{} {
	return map[string]interface{}{
		"max_chunk_hops": c.MaxChunkHops,
		"chunk_cache": map[string]interface{}{
			"ttl_seconds": c.ChunkCache.TTLSeconds,
			"capacity":    c.ChunkCache.Capacity,
		},
		"weighted_peers": map[string]interface{}{
			"temperature_delta":    c.WeightedPeers.TemperatureDelta,
			"request_window_count": c.WeightedPeers.RequestWindowCount,
		},
		"trusted_gateways": map[string]interface{}{
			"request_timeout_ms": c.TrustedGateways.RequestTimeoutMs,
			"hosts":              c.TrustedGateways.Hosts,
		},
		"graphql_root_tx": map[string]interface{}{
			"rate_limit_capacity": c.GraphQLRootTx.RateLimitCapacity,
			"rate_limit_per_sec":  c.GraphQLRootTx.RateLimitPerSec,
		},
		"background_data_verification": map[string]interface{}{
			"enabled":          c.BackgroundVerification.Enabled,
			"worker_count":     c.BackgroundVerification.WorkerCount,
			"interval_seconds": c.BackgroundVerification.IntervalSecond,
		},
		"fs_cleanup_worker": map[string]interface{}{
			"batch_size":       c.FSCleanupWorker.BatchSize,
			"pause_ms":         c.FSCleanupWorker.PauseMs,
			"interval_seconds": c.FSCleanupWorker.IntervalSecs,
		},
		"root_tx_index_circuit_breaker": map[string]interface{}{
			"failure_threshold": c.RootTxIndexCircuitBreaker.FailureThreshold,
			"success_threshold": c.RootTxIndexCircuitBreaker.SuccessThreshold,
			"timeout_ms":        c.RootTxIndexCircuitBreaker.TimeoutMs,
		},
		"max_bundle_nesting_depth": c.MaxBundleNestingDepth,
		"arns_root_host":           c.ArNSRootHost,
		"skip_cache":               c.SkipCache,
		"cache_dir":                c.CacheDir,
		"cdb_path":                 c.CDBPath,
		"policy_file":              c.PolicyFile,
		"log_level":                c.LogLevel,
		"metrics_listen":           c.MetricsListen,
	}
}
