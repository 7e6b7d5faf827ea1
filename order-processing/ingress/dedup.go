package ingress

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper claims provider event ids so a re-delivered event is applied once.
// Release gives a claim back when applying the event failed and the
// provider should be allowed to deliver it again.
type Deduper interface {
	Claim(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

const dedupNamespace = "webhook-event"

type redisClaimer interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisDeduper keeps claims in Redis so every worker replica sees them
type RedisDeduper struct {
	client redisClaimer
	ttl    time.Duration
}

func NewRedisDeduper(client redis.UniversalClient, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (d *RedisDeduper) Claim(ctx context.Context, key string) (bool, error) {
	return d.client.SetNX(ctx, dedupNamespace+":"+key, 1, d.ttl).Result()
}

func (d *RedisDeduper) Release(ctx context.Context, key string) error {
	return d.client.Del(ctx, dedupNamespace+":"+key).Err()
}

// MemoryDeduper is the single-process Deduper used when Redis is not
// configured
type MemoryDeduper struct {
	ttl time.Duration
	now func() time.Time

	mu        sync.Mutex
	claims    map[string]time.Time // key -> expiry
	nextSweep time.Time
}

func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	return &MemoryDeduper{ttl: ttl, now: time.Now, claims: make(map[string]time.Time)}
}

func (d *MemoryDeduper) Claim(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if exp, ok := d.claims[key]; ok && now.Before(exp) {
		return false, nil
	}
	d.sweep(now)
	d.claims[key] = now.Add(d.ttl)
	return true, nil
}

// sweep drops expired claims, at most once per ttl
func (d *MemoryDeduper) sweep(now time.Time) {
	if now.Before(d.nextSweep) {
		return
	}
	for key, exp := range d.claims {
		if !now.Before(exp) {
			delete(d.claims, key)
		}
	}
	d.nextSweep = now.Add(d.ttl)
}

func (d *MemoryDeduper) Release(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.claims, key)
	return nil
}
