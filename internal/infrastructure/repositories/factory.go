package repositories

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"rtmpscout/internal/core/ports"
	"rtmpscout/internal/infrastructure/repositories/memory"
	redisrepo "rtmpscout/internal/infrastructure/repositories/redis"
	"rtmpscout/pkg/config"
)

// RepositoryFactory builds the result store and, when Redis is reachable, its
// mirror. An unreachable Redis downgrades to no mirror.
type RepositoryFactory struct {
	useRedis    bool
	redisClient *redis.Client
	mirror      *redisrepo.RedisResultMirror
	instanceID  string
	logger      *zap.SugaredLogger
}

func NewRepositoryFactory(cfg *config.Config, instanceID string, logger *zap.SugaredLogger) *RepositoryFactory {
	factory := &RepositoryFactory{
		useRedis:   cfg.Redis.Enabled,
		instanceID: instanceID,
		logger:     logger,
	}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("Failed to connect to Redis, results will not be mirrored",
				"address", cfg.Redis.Address,
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Infow("Mirroring results to Redis", "address", cfg.Redis.Address)
		}
	}

	return factory
}

func (f *RepositoryFactory) CreateResultStore() *memory.MemoryResultStore {
	return memory.NewMemoryResultStore()
}

// CreateResultMirror returns nil when Redis is not in use.
func (f *RepositoryFactory) CreateResultMirror() ports.ResultMirror {
	if !f.useRedis || f.redisClient == nil {
		return nil
	}
	if f.mirror == nil {
		f.mirror = redisrepo.NewRedisResultMirror(f.redisClient, f.instanceID, f.logger)
	}
	return f.mirror
}

func (f *RepositoryFactory) UsingRedis() bool {
	return f.useRedis && f.redisClient != nil
}

// Close flushes the mirror and closes the Redis connection.
func (f *RepositoryFactory) Close() error {
	if f.mirror != nil {
		_ = f.mirror.Close()
	}
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	return nil
}

// HealthCheck pings Redis when it is in use.
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.UsingRedis() {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
