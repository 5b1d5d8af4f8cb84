package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Portunus/register/internal/config"
	"github.com/BrandonDHaskell/Portunus/register/internal/register/types"
)

const countsPrefix = "register:presence:counts:"

// CountCache keeps PresentCounts results in Redis for a short TTL. Every
// accepted event deletes the cached maps.
type CountCache struct {
	rdb    *goredis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCountCache connects and pings Redis.
func NewCountCache(cfg config.RedisConfig, logger *zap.Logger) (*CountCache, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	logger.Info("redis connected", zap.String("addr", cfg.Addr))
	return NewCountCacheWithClient(rdb, cfg.CountsTTL, logger), nil
}

func NewCountCacheWithClient(rdb *goredis.Client, ttl time.Duration, logger *zap.Logger) *CountCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CountCache{rdb: rdb, ttl: ttl, logger: logger}
}

func countsKey(kind types.Kind) string {
	if kind == "" {
		return countsPrefix + "all"
	}
	return countsPrefix + string(kind)
}

func (c *CountCache) Counts(ctx context.Context, kind types.Kind) (map[int64]int, bool, error) {
	raw, err := c.rdb.Get(ctx, countsKey(kind)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var counts map[int64]int
	if err := json.Unmarshal(raw, &counts); err != nil {
		return nil, false, fmt.Errorf("decode cached counts: %w", err)
	}
	return counts, true, nil
}

func (c *CountCache) StoreCounts(ctx context.Context, kind types.Kind, counts map[int64]int) error {
	raw, err := json.Marshal(counts)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, countsKey(kind), raw, c.ttl).Err()
}

func (c *CountCache) Invalidate(ctx context.Context) error {
	return c.rdb.Del(ctx,
		countsKey(""),
		countsKey(types.KindEmployee),
		countsKey(types.KindVehicle),
	).Err()
}

func (c *CountCache) Close() error {
	return c.rdb.Close()
}
