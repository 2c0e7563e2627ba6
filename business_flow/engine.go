package businessflow

import (
	"github.com/amirphl/freightdesk/config"
	"github.com/amirphl/freightdesk/repository"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RateEngine bundles the importer, lookup cache and resolver over one
// database. The HTTP server and ratectl both build it the same way.
type RateEngine struct {
	Importer RateSheetImportFlow
	Cache    *RateLookupCache
	Resolver RateResolver
	Storage  RateStorage
}

// NewRateEngine wires the engine. rc may be nil, in which case the Redis
// cache store and locker are unavailable and the in-process ones are used.
func NewRateEngine(db *gorm.DB, rc *redis.Client, redisPrefix string, cfg *EngineConfig, logger *zap.Logger) *RateEngine {
	if cfg == nil {
		cfg = DefaultEngineConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	recordRepo := repository.NewRateRecordRepository(db)
	attributeRepo := repository.NewRateAttributeRepository(db)
	batchRepo := repository.NewImportBatchRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)

	storage := NewRepositoryRateStorage(recordRepo, attributeRepo)

	var opts []CacheOption
	if rc != nil && cfg.CacheStore == config.CacheStoreRedis {
		opts = append(opts, WithCacheStore(NewRedisCacheStore(rc, redisPrefix, cfg.CacheStaleGrace)))
	} else if cfg.CacheStore == config.CacheStoreRedis {
		logger.Warn("redis rate cache requested without a redis client, using memory store")
	}
	if rc != nil && cfg.LockProvider == config.LockProviderRedis {
		opts = append(opts, WithLocker(NewRedisLocker(rc, redisPrefix, cfg.CacheLockLease)))
	} else if cfg.LockProvider == config.LockProviderRedis {
		logger.Warn("redis rate cache lock requested without a redis client, using local lock")
	}

	cache := NewRateLookupCache(storage, cfg, logger.Named("rate_cache"), opts...)

	return &RateEngine{
		Importer: NewRateSheetImportFlow(storage, recordRepo, batchRepo, auditRepo, cache, db, cfg, logger.Named("rate_import")),
		Cache:    cache,
		Resolver: NewRateResolver(cache, storage, cfg, logger.Named("rate_resolver")),
		Storage:  storage,
	}
}
