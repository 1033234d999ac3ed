package stockcache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/boxoffice/pkg/booking"
	"github.com/redis/go-redis/v9"
)

type fakeRedis struct {
	mu      sync.Mutex
	values  map[string]string
	ttls    map[string]time.Duration
	failure error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (fake *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.failure != nil {
		return redis.NewStringResult("", fake.failure)
	}
	value, ok := fake.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(value, nil)
}

func (fake *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.failure != nil {
		return redis.NewStatusResult("", fake.failure)
	}
	fake.values[key] = value.(string)
	fake.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func mustCategoryID(test *testing.T, raw string) booking.CategoryID {
	test.Helper()
	categoryID, err := booking.NewCategoryID(raw)
	if err != nil {
		test.Fatalf("category id: %v", err)
	}
	return categoryID
}

func TestCacheRoundTripUsesStockKeyAndTTL(test *testing.T) {
	test.Parallel()
	fake := newFakeRedis()
	cache, err := New(fake)
	if err != nil {
		test.Fatalf("new cache: %v", err)
	}
	categoryID := mustCategoryID(test, "category-1")
	if err := cache.Set(context.Background(), categoryID, 42); err != nil {
		test.Fatalf("set: %v", err)
	}
	if fake.values["stock::category-1"] != "42" {
		test.Fatalf("expected stock::category-1=42, got %v", fake.values)
	}
	if fake.ttls["stock::category-1"] != DefaultTTL {
		test.Fatalf("expected ttl %s, got %s", DefaultTTL, fake.ttls["stock::category-1"])
	}
	value, found, err := cache.Get(context.Background(), categoryID)
	if err != nil || !found || value != 42 {
		test.Fatalf("expected 42 found, got %d %v %v", value, found, err)
	}
}

func TestCacheMissIsNotAnError(test *testing.T) {
	test.Parallel()
	cache, err := New(newFakeRedis(), WithTTL(time.Minute))
	if err != nil {
		test.Fatalf("new cache: %v", err)
	}
	value, found, err := cache.Get(context.Background(), mustCategoryID(test, "missing"))
	if err != nil || found || value != 0 {
		test.Fatalf("expected clean miss, got %d %v %v", value, found, err)
	}
}

func TestCacheFailuresAreUnavailable(test *testing.T) {
	test.Parallel()
	fake := newFakeRedis()
	fake.failure = errors.New("connection reset")
	cache, err := New(fake)
	if err != nil {
		test.Fatalf("new cache: %v", err)
	}
	categoryID := mustCategoryID(test, "category-1")
	if _, _, err := cache.Get(context.Background(), categoryID); !errors.Is(err, booking.ErrDownstreamUnavailable) {
		test.Fatalf("expected unavailable on get, got %v", err)
	}
	if err := cache.Set(context.Background(), categoryID, 1); !errors.Is(err, booking.ErrDownstreamUnavailable) {
		test.Fatalf("expected unavailable on set, got %v", err)
	}
}

func TestCacheRejectsCorruptEntry(test *testing.T) {
	test.Parallel()
	fake := newFakeRedis()
	fake.values["stock::category-1"] = "many"
	cache, err := New(fake)
	if err != nil {
		test.Fatalf("new cache: %v", err)
	}
	if _, _, err := cache.Get(context.Background(), mustCategoryID(test, "category-1")); !errors.Is(err, ErrCorruptEntry) || !errors.Is(err, booking.ErrCorruptCacheEntry) {
		test.Fatalf("expected corrupt entry error, got %v", err)
	}
}

func TestNewRejectsNilClient(test *testing.T) {
	test.Parallel()
	if _, err := New(nil); !errors.Is(err, booking.ErrInvalidServiceConfig) {
		test.Fatalf("expected invalid config, got %v", err)
	}
}
