package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/kompetch-n/archikoo-shirt-backend/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	OrderCachePrefix = "order:"
	DefaultCacheTTL  = 5 * time.Minute
)

// OrderCache stores orders keyed by orderId. Set always overwrites;
// SetIfAbsent leaves an existing entry untouched.
type OrderCache interface {
	Get(ctx context.Context, orderID string) (*models.Order, error)
	Set(ctx context.Context, order *models.Order) error
	SetIfAbsent(ctx context.Context, order *models.Order) error
}

// ErrCacheMiss is returned by OrderCache.Get when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

type RedisOrderCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisOrderCache(client *redis.Client, ttl time.Duration) *RedisOrderCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisOrderCache{redis: client, ttl: ttl}
}

func (c *RedisOrderCache) Get(ctx context.Context, orderID string) (*models.Order, error) {
	data, err := c.redis.Get(ctx, OrderCachePrefix+orderID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}
	var order models.Order
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *RedisOrderCache) Set(ctx context.Context, order *models.Order) error {
	data, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return c.redis.Set(ctx, OrderCachePrefix+order.OrderID, data, c.ttl).Err()
}

func (c *RedisOrderCache) SetIfAbsent(ctx context.Context, order *models.Order) error {
	data, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return c.redis.SetNX(ctx, OrderCachePrefix+order.OrderID, data, c.ttl).Err()
}

// CachedOrderRepository serves FindByOrderID from an OrderCache and keeps the
// cache current on tracking updates. Cache errors are logged and otherwise
// ignored; MongoDB stays the source of truth.
//
// Read misses fill the cache with SetIfAbsent so a lookup that raced a
// SetTracking can never replace the shipped entry with the older document.
type CachedOrderRepository struct {
	OrderRepository
	cache  OrderCache
	logger *zap.Logger
}

func NewCachedOrderRepository(next OrderRepository, cache OrderCache, logger *zap.Logger) *CachedOrderRepository {
	return &CachedOrderRepository{OrderRepository: next, cache: cache, logger: logger}
}

func (r *CachedOrderRepository) FindByOrderID(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := r.cache.Get(ctx, orderID)
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		r.logger.Warn("Order cache read failed", zap.String("order_id", orderID), zap.Error(err))
	}

	order, err = r.OrderRepository.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := r.cache.SetIfAbsent(ctx, order); err != nil {
		r.logger.Warn("Order cache write failed", zap.String("order_id", order.OrderID), zap.Error(err))
	}
	return order, nil
}

func (r *CachedOrderRepository) SetTracking(ctx context.Context, orderID, trackingNumber string) (*models.Order, error) {
	order, err := r.OrderRepository.SetTracking(ctx, orderID, trackingNumber)
	if err != nil {
		return nil, err
	}
	r.store(ctx, order)
	return order, nil
}

func (r *CachedOrderRepository) store(ctx context.Context, order *models.Order) {
	if err := r.cache.Set(ctx, order); err != nil {
		r.logger.Warn("Order cache write failed", zap.String("order_id", order.OrderID), zap.Error(err))
	}
}
