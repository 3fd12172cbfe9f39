package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders/internal/cache"
	"github.com/vladislavdragonenkov/orders/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/orders/internal/health"
	"github.com/vladislavdragonenkov/orders/internal/storage/memory"
	"github.com/vladislavdragonenkov/orders/internal/storage/postgres"
)

const redisPingTimeout = 2 * time.Second

// runtimeDependencies — хранилище и кэш, выбранные конфигурацией.
type runtimeDependencies struct {
	repo  domain.OrderRepository
	cache domain.OrderCache

	// checkers регистрируются в health handler по имени.
	checkers map[string]healthcheck.Checker
	closeFns []func() error
}

func (d *runtimeDependencies) close(logger *log.Entry) {
	for i := len(d.closeFns) - 1; i >= 0; i-- {
		if err := d.closeFns[i](); err != nil {
			logger.WithError(err).Warn("failed to close dependency")
		}
	}
	d.closeFns = nil
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	deps := &runtimeDependencies{checkers: make(map[string]healthcheck.Checker)}

	if err := initStorage(ctx, cfg, deps, logger); err != nil {
		deps.close(logger)
		return nil, err
	}
	if err := initCache(ctx, cfg, deps, logger); err != nil {
		deps.close(logger)
		return nil, err
	}
	return deps, nil
}

func initStorage(ctx context.Context, cfg Config, deps *runtimeDependencies, logger *log.Entry) error {
	switch strings.ToLower(strings.TrimSpace(cfg.StorageDriver)) {
	case "", StorageDriverMemory:
		deps.repo = memory.NewOrderRepository()
		logger.Info("using in-memory order storage")
		return nil
	case StorageDriverPostgres:
	default:
		return fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return errors.New("postgres storage driver requires OMS_POSTGRES_DSN")
	}

	store, err := postgres.OpenWithOptions(ctx, cfg.PostgresDSN, postgres.PoolOptions{
		MaxOpenConns: cfg.PostgresMaxOpenConns,
	})
	if err != nil {
		return err
	}
	deps.closeFns = append(deps.closeFns, store.Close)

	if cfg.PostgresAutoMigrate {
		if err := store.MigrateUp(ctx, 0); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		state, err := store.MigrationStatus(ctx)
		if err != nil {
			return fmt.Errorf("read migration status: %w", err)
		}
		logger.WithField("version", state.Version).Info("postgres schema is up to date")
	}

	deps.repo = postgres.NewOrderRepository(store)
	deps.checkers["postgres"] = healthcheck.NewPingChecker("postgres", store, true)
	logger.Info("using postgres order storage")
	return nil
}

func initCache(ctx context.Context, cfg Config, deps *runtimeDependencies, logger *log.Entry) error {
	switch strings.ToLower(strings.TrimSpace(cfg.CacheDriver)) {
	case "", CacheDriverMemory:
		deps.cache = cache.NewMemory()
		return nil
	case CacheDriverNone:
		deps.cache = cache.Noop{}
		logger.Info("order cache is disabled")
		return nil
	case CacheDriverRedis:
	default:
		return fmt.Errorf("unsupported cache driver %q", cfg.CacheDriver)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	deps.closeFns = append(deps.closeFns, client.Close)

	redisCache := cache.NewRedis(client, cfg.RedisPrefix)
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := redisCache.Ping(pingCtx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	deps.cache = redisCache
	// Недоступный кэш не блокирует чтение из хранилища
	deps.checkers["redis"] = healthcheck.NewPingChecker("redis", redisCache, false)
	logger.WithField("addr", cfg.RedisAddr).Info("using redis order cache")
	return nil
}
