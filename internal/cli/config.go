package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/Sternrassler/danbooru-harvester/pkg/checkpoint"
	"github.com/Sternrassler/danbooru-harvester/pkg/client"
	"github.com/Sternrassler/danbooru-harvester/pkg/harvester"
	"github.com/Sternrassler/danbooru-harvester/pkg/logging"
)

// defaultUserAgent identifies the harvester to the API. Danbooru asks
// scripted clients to send a descriptive User-Agent.
const defaultUserAgent = "danbooru-harvester/1.0 (github.com/Sternrassler/danbooru-harvester)"

// setDefaults seeds viper so every setting works from config file, env
// (DANBOORU_*), or flags, in that precedence order.
func setDefaults() {
	viper.SetDefault("base_url", client.DefaultBaseURL)
	viper.SetDefault("user_agent", defaultUserAgent)
	viper.SetDefault("login", "")
	viper.SetDefault("api_key", "")

	viper.SetDefault("page_size", client.MaxPageSize)
	viper.SetDefault("request_interval", "1s")
	viper.SetDefault("request_timeout", "30s")
	viper.SetDefault("max_retries", 3)
	viper.SetDefault("initial_backoff", "5s")
	viper.SetDefault("max_backoff", "60s")

	viper.SetDefault("batch_size", 1000)
	viper.SetDefault("first_id", 1)
	viper.SetDefault("upper_id", 0)
	viper.SetDefault("empty_batch_threshold", 5)

	viper.SetDefault("output", "posts.jsonl")
	viper.SetDefault("checkpoint.backend", "file")
	viper.SetDefault("checkpoint.path", "checkpoint.json")
	viper.SetDefault("checkpoint.redis_addr", "localhost:6379")
	viper.SetDefault("checkpoint.redis_key", checkpoint.DefaultRedisKey)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.pretty", false)
	viper.SetDefault("log.file", "")

	viper.SetDefault("metrics_addr", "")
}

// clientConfig assembles the API client configuration from viper.
func clientConfig() client.Config {
	cfg := client.DefaultConfig(viper.GetString("user_agent"))
	cfg.BaseURL = viper.GetString("base_url")
	cfg.Login = viper.GetString("login")
	cfg.APIKey = viper.GetString("api_key")
	cfg.PageSize = viper.GetInt("page_size")
	cfg.RequestInterval = viper.GetDuration("request_interval")
	cfg.RequestTimeout = viper.GetDuration("request_timeout")
	cfg.Retry = client.RetryConfig{
		MaxAttempts:       viper.GetInt("max_retries"),
		InitialBackoff:    viper.GetDuration("initial_backoff"),
		MaxBackoff:        viper.GetDuration("max_backoff"),
		BackoffMultiplier: 2.0,
	}
	return cfg
}

// harvestConfig assembles the harvest loop configuration from viper.
func harvestConfig() harvester.Config {
	return harvester.Config{
		BatchSize:           viper.GetInt64("batch_size"),
		FirstID:             viper.GetInt64("first_id"),
		UpperID:             viper.GetInt64("upper_id"),
		EmptyBatchThreshold: viper.GetInt("empty_batch_threshold"),
	}
}

// loggingConfig assembles the logger configuration from viper.
func loggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(viper.GetString("log.level"))
	cfg.Pretty = viper.GetBool("log.pretty")
	cfg.File = viper.GetString("log.file")
	if verbose {
		cfg.Level = logging.LevelDebug
		cfg.Pretty = true
	}
	return cfg
}

// resettableStore is the checkpoint surface the CLI needs: the Store
// contract plus the external reset action. Both backends implement it.
type resettableStore interface {
	checkpoint.Store
	Reset(ctx context.Context) error
}

// newCheckpointStore builds the configured checkpoint backend. The
// returned cleanup closes backend resources (the Redis connection);
// it is a no-op for the file backend.
func newCheckpointStore(logger zerolog.Logger) (resettableStore, func() error, error) {
	defaults := checkpoint.DefaultState(viper.GetInt64("first_id"))

	switch backend := viper.GetString("checkpoint.backend"); backend {
	case "file":
		store := checkpoint.NewFileStore(viper.GetString("checkpoint.path"), defaults, logger)
		return store, func() error { return nil }, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:        viper.GetString("checkpoint.redis_addr"),
			DialTimeout: 5 * time.Second,
		})
		store := checkpoint.NewRedisStore(rdb, viper.GetString("checkpoint.redis_key"), defaults, logger)
		return store, rdb.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown checkpoint backend %q (want file or redis)", backend)
	}
}
