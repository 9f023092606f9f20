package hitl

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/agentdesk/internal/tlsutil"
)

// StoreConfig 选择并配置存储后端。
type StoreConfig struct {
	Type             StoreType     `json:"type" yaml:"type"`
	KeyPrefix        string        `json:"key_prefix" yaml:"key_prefix"`
	OutcomeRetention time.Duration `json:"outcome_retention" yaml:"outcome_retention"`
	Redis            RedisOptions  `json:"redis" yaml:"redis"`
}

// RedisOptions Redis 连接参数
type RedisOptions struct {
	Addr         string `json:"addr" yaml:"addr"`
	Password     string `json:"password" yaml:"password"`
	DB           int    `json:"db" yaml:"db"`
	PoolSize     int    `json:"pool_size" yaml:"pool_size"`
	MinIdleConns int    `json:"min_idle_conns" yaml:"min_idle_conns"`
	// TLS 启用加固的 TLS 连接
	TLS bool `json:"tls" yaml:"tls"`
}

// NewStore 按配置创建存储后端。Redis 后端在创建时检查连接。
func NewStore(cfg StoreConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Type {
	case StoreTypeMemory, "":
		return NewMemoryStore(WithOutcomeRetention(cfg.OutcomeRetention)), nil
	case StoreTypeRedis:
		opts := &redis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		}
		if cfg.Redis.TLS {
			opts.TLSConfig = tlsutil.RedisTLSConfig(cfg.Redis.Addr)
		}
		client := redis.NewClient(opts)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}

		return NewRedisStore(client, RedisStoreConfig{
			KeyPrefix:        cfg.KeyPrefix,
			OutcomeRetention: cfg.OutcomeRetention,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unsupported interaction store type: %s", cfg.Type)
	}
}
