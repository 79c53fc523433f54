package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	recordCachePrefix = "ldapauth:record:"
	DefaultCacheTTL   = 5 * time.Minute
)

// CachedFinder keeps found records in Redis. Misses are not cached so a
// newly provisioned user is visible on the next login.
type CachedFinder struct {
	next   Finder
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedFinder(next Finder, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedFinder {
	if ttl == 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedFinder{next: next, rdb: rdb, ttl: ttl, logger: logger}
}

func cacheKey(model, field, value string) string {
	return recordCachePrefix + model + ":" + field + ":" + value
}

func (c *CachedFinder) FindByField(ctx context.Context, model, field, value string) (Record, error) {
	key := cacheKey(model, field, value)

	cached, err := c.get(ctx, key)
	if err != nil {
		c.logger.Warn("record cache read failed", zap.String("key", key), zap.Error(err))
	}
	if cached != nil {
		return cached, nil
	}

	record, err := c.next.FindByField(ctx, model, field, value)
	if err != nil || record == nil {
		return record, err
	}

	if err := c.set(ctx, key, record); err != nil {
		c.logger.Warn("record cache write failed", zap.String("key", key), zap.Error(err))
	}
	return record, nil
}

// Invalidate drops the cached record, if any.
func (c *CachedFinder) Invalidate(ctx context.Context, model, field, value string) error {
	return c.rdb.Del(ctx, cacheKey(model, field, value)).Err()
}

func (c *CachedFinder) get(ctx context.Context, key string) (Record, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "redis get")
	}

	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, errors.Wrap(err, "unmarshal record")
	}
	return record, nil
}

func (c *CachedFinder) set(ctx context.Context, key string, record Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "marshal record")
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return errors.Wrap(err, "redis set")
	}
	return nil
}
