// Package stockcache keeps the fast-path copy of per-category available stock
// in Redis. The durable stock ledger stays authoritative; entries here expire
// after DefaultTTL and are rewritten by read-through seeding and reconciliation.
package stockcache

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/boxoffice/pkg/booking"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL bounds how long a cached stock value may lag the ledger.
	DefaultTTL = 10 * time.Minute

	keyPrefix          = "stock::"
	defaultAddress     = "localhost:6379"
	defaultPingTimeout = 2 * time.Second
)

// ErrCorruptEntry reports a cached value that is not an integer. It matches
// booking.ErrCorruptCacheEntry so the service rewrites the key.
var ErrCorruptEntry = fmt.Errorf("stockcache: %w", booking.ErrCorruptCacheEntry)

type client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Cache implements booking.StockCache on Redis string keys.
type Cache struct {
	client client
	ttl    time.Duration
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(cache *Cache) {
		if ttl > 0 {
			cache.ttl = ttl
		}
	}
}

// New wraps a Redis client.
func New(redisClient client, options ...Option) (*Cache, error) {
	if redisClient == nil {
		return nil, fmt.Errorf("%w: redis client is nil", booking.ErrInvalidServiceConfig)
	}
	cache := &Cache{client: redisClient, ttl: DefaultTTL}
	for _, option := range options {
		if option != nil {
			option(cache)
		}
	}
	return cache, nil
}

// Key returns the cache key for a category.
func Key(categoryID booking.CategoryID) string {
	return keyPrefix + categoryID.String()
}

// Get reads the cached stock. A missing key reports found=false and no error.
func (cache *Cache) Get(ctx context.Context, categoryID booking.CategoryID) (int, bool, error) {
	raw, err := cache.client.Get(ctx, Key(categoryID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, booking.Unavailable(err)
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, false, fmt.Errorf("%w: key %s holds %q", ErrCorruptEntry, Key(categoryID), raw)
	}
	return value, true, nil
}

// Set overwrites the cached stock and refreshes the TTL.
func (cache *Cache) Set(ctx context.Context, categoryID booking.CategoryID, availableStock int) error {
	if err := cache.client.Set(ctx, Key(categoryID), strconv.Itoa(availableStock), cache.ttl).Err(); err != nil {
		return booking.Unavailable(err)
	}
	return nil
}

// ClientConfig holds Redis connection settings.
type ClientConfig struct {
	Address  string
	Password string
	DB       int
	TLS      bool
}

// NewClient builds a Redis client and verifies it answers PING.
func NewClient(ctx context.Context, config ClientConfig) (*redis.Client, error) {
	address := strings.TrimSpace(config.Address)
	if address == "" {
		address = defaultAddress
	}
	var tlsConfig *tls.Config
	if config.TLS {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	redisClient := redis.NewClient(&redis.Options{
		Addr:      address,
		Password:  config.Password,
		DB:        config.DB,
		TLSConfig: tlsConfig,
	})
	pingContext, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := redisClient.Ping(pingContext).Err(); err != nil {
		_ = redisClient.Close()
		return nil, booking.Unavailable(fmt.Errorf("redis ping %s: %w", address, err))
	}
	return redisClient, nil
}
