// Package leaderboard caches the top-scores leaderboard in Redis.
//
// The leaderboard is a read-through cache over the score store's top-N
// query: reads hit Redis first and fall back to the loader on a miss, and
// every score insert invalidates the cached board. Redis unavailability is
// never fatal; the cache degrades to pass-through and the loader serves
// every read.
package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mathchange/backend/pkg/config"
	mcerr "github.com/mathchange/backend/pkg/errors"
	"github.com/mathchange/backend/pkg/models"
)

// tracerName is the OpenTelemetry instrumentation scope name for this package.
const tracerName = "github.com/mathchange/backend/pkg/cache/leaderboard"

// cacheKey is the single Redis key the cached board lives under.
const cacheKey = "leaderboard:top"

// CachedSize is the number of entries the cached board holds. Requests for
// at most this many entries are served from cache; larger requests bypass
// it.
const CachedSize = 50

// Loader produces the authoritative top-N list on a cache miss. The score
// store's TopScores method satisfies it.
type Loader func(ctx context.Context, limit int) ([]*models.ScoreRecord, error)

// Cmdable defines the Redis operations this package needs. It is satisfied
// by [*redis.Client] and by mock implementations for unit testing.
type Cmdable interface {
	// Get returns the value of a key.
	Get(ctx context.Context, key string) *redis.StringCmd

	// Set stores a key with an expiration.
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd

	// Del deletes one or more keys.
	Del(ctx context.Context, keys ...string) *redis.IntCmd

	// Ping pings the Redis server.
	Ping(ctx context.Context) *redis.StatusCmd

	// Close closes the client connection.
	Close() error
}

// Compile-time interface compliance check.
var _ Cmdable = (*redis.Client)(nil)

// Config holds the Redis connection and cache settings.
type Config struct {
	// URL is the Redis connection string (redis://host:port/db).
	URL config.Secret `env:"URL" yaml:"url" required:"true"`

	// TTL is how long a cached board stays fresh.
	TTL time.Duration `env:"TTL" envDefault:"30s" yaml:"ttl"`
}

// Cache is the Redis-backed leaderboard cache.
//
// Cache is safe for concurrent use by multiple goroutines.
type Cache struct {
	client Cmdable
	ttl    time.Duration
	tracer trace.Tracer
}

// New connects to Redis and returns a Cache. The caller must call
// [Cache.Close] when the cache is no longer needed.
//
// Error codes returned:
//   - [mcerr.CodeValidation]: invalid configuration
//   - [mcerr.CodeUnavailableDependency]: cannot connect to Redis
func New(ctx context.Context, cfg Config) (*Cache, error) {
	opts, err := redis.ParseURL(cfg.URL.Value())
	if err != nil {
		return nil, mcerr.Wrap(err, mcerr.CodeValidation, "leaderboard: invalid redis URL")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, mcerr.Wrap(err, mcerr.CodeUnavailableDependency, "leaderboard: failed to connect to redis")
	}
	return NewFromClient(client, cfg.TTL), nil
}

// NewFromClient creates a Cache with a pre-existing [Cmdable]. Intended
// for testing with mocks.
func NewFromClient(client Cmdable, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{
		client: client,
		ttl:    ttl,
		tracer: otel.Tracer(tracerName),
	}
}

// Top returns the top limit score records, serving from cache when
// possible. A request for more than [CachedSize] entries bypasses the
// cache entirely. Redis failures degrade to a direct loader call.
func (c *Cache) Top(ctx context.Context, limit int, load Loader) ([]*models.ScoreRecord, error) {
	ctx, span := c.tracer.Start(ctx, "leaderboard.Top")
	defer span.End()

	if limit <= 0 || limit > CachedSize {
		span.SetAttributes(attribute.Bool("cache.bypassed", true))
		return load(ctx, limit)
	}

	payload, err := c.client.Get(ctx, cacheKey).Result()
	switch {
	case err == nil:
		var recs []*models.ScoreRecord
		if jsonErr := json.Unmarshal([]byte(payload), &recs); jsonErr == nil {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			if len(recs) > limit {
				recs = recs[:limit]
			}
			return recs, nil
		}
		// A corrupt entry falls through to a reload.
		slog.WarnContext(ctx, "leaderboard: dropping corrupt cache entry")
		_ = c.client.Del(ctx, cacheKey).Err()
	case !errors.Is(err, redis.Nil):
		slog.WarnContext(ctx, "leaderboard: cache read failed, loading directly", "error", err)
		return load(ctx, limit)
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	recs, err := load(ctx, CachedSize)
	if err != nil {
		return nil, err
	}
	c.store(ctx, recs)
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// Invalidate drops the cached board. Called after every score insert so
// the next read reflects the new record. Redis failures are logged and
// swallowed; a stale board expires on its own TTL.
func (c *Cache) Invalidate(ctx context.Context) {
	ctx, span := c.tracer.Start(ctx, "leaderboard.Invalidate")
	defer span.End()

	if err := c.client.Del(ctx, cacheKey).Err(); err != nil {
		slog.WarnContext(ctx, "leaderboard: cache invalidation failed", "error", err)
	}
}

// Close releases the underlying Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}

// store writes the freshly loaded board to Redis, best effort.
func (c *Cache) store(ctx context.Context, recs []*models.ScoreRecord) {
	payload, err := json.Marshal(recs)
	if err != nil {
		slog.WarnContext(ctx, "leaderboard: failed to encode board for caching", "error", err)
		return
	}
	if err := c.client.Set(ctx, cacheKey, payload, c.ttl).Err(); err != nil {
		slog.WarnContext(ctx, "leaderboard: cache write failed", "error", err)
	}
}
