// ratelimit.go provides Gin middleware that enforces per-client token-bucket limits,
// backed either by process memory or by Redis when several replicas share the load.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"

	"github.com/dpc-platform/dpc-admin/internal/config"
	"github.com/dpc-platform/dpc-admin/internal/telemetry"
)

// Rate limit backends
const (
	RateLimitMemory = "memory"
	RateLimitRedis  = "redis"
)

// Rate limit scopes, used as key prefixes and metric labels
const (
	ScopeAuth     = "auth"
	ScopeInternal = "internal"
)

// Decision is the outcome of one rate limit check
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether a keyed request may proceed
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
	Limit() int
	Backend() string
	Close() error
}

// NewLimiter builds the limiter named by cfg.Backend. rpm and burst override the
// configured values when positive so callers can derive stricter limits for login.
func NewLimiter(cfg config.RateLimitingConfig, rpm, burst int) (Limiter, error) {
	if rpm <= 0 {
		rpm = cfg.RequestsPerMinute
	}
	if burst <= 0 {
		burst = cfg.Burst
	}
	if rpm <= 0 {
		return nil, fmt.Errorf("rate limit requests_per_minute must be positive")
	}
	if burst <= 0 {
		burst = 1
	}

	switch cfg.Backend {
	case "", RateLimitMemory:
		return NewMemoryLimiter(rpm, burst, 5*time.Minute), nil
	case RateLimitRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return NewRedisLimiter(rdb, rpm, burst), nil
	default:
		return nil, fmt.Errorf("unknown rate limit backend: %s", cfg.Backend)
	}
}

// rateLimitEntry tracks the bucket of a single client
type rateLimitEntry struct {
	tokens     float64
	lastUpdate time.Time
}

// MemoryLimiter is an in-process token bucket per key
type MemoryLimiter struct {
	rpm     int
	burst   int
	entries map[string]*rateLimitEntry
	mu      sync.Mutex
	stopCh  chan struct{}
	once    sync.Once
	now     func() time.Time
}

// NewMemoryLimiter creates a limiter refilling rpm tokens per minute up to burst, and
// evicting idle clients every cleanupInterval.
func NewMemoryLimiter(rpm, burst int, cleanupInterval time.Duration) *MemoryLimiter {
	rl := &MemoryLimiter{
		rpm:     rpm,
		burst:   burst,
		entries: make(map[string]*rateLimitEntry),
		stopCh:  make(chan struct{}),
		now:     time.Now,
	}
	go rl.cleanup(cleanupInterval)
	return rl
}

func (rl *MemoryLimiter) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			now := rl.now()
			for key, entry := range rl.entries {
				if now.Sub(entry.lastUpdate) > 10*time.Minute {
					delete(rl.entries, key)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopCh:
			return
		}
	}
}

// Allow consumes one token for key when available
func (rl *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	perSecond := float64(rl.rpm) / 60.0

	entry, ok := rl.entries[key]
	if !ok {
		entry = &rateLimitEntry{tokens: float64(rl.burst), lastUpdate: now}
		rl.entries[key] = entry
	} else {
		elapsed := now.Sub(entry.lastUpdate).Seconds()
		entry.tokens = math.Min(float64(rl.burst), entry.tokens+elapsed*perSecond)
		entry.lastUpdate = now
	}

	if entry.tokens >= 1 {
		entry.tokens--
		return Decision{Allowed: true, Remaining: int(entry.tokens)}, nil
	}

	wait := time.Duration((1 - entry.tokens) / perSecond * float64(time.Second))
	return Decision{Allowed: false, Remaining: 0, RetryAfter: wait}, nil
}

// Limit returns the configured requests per minute
func (rl *MemoryLimiter) Limit() int { return rl.rpm }

// Backend returns RateLimitMemory
func (rl *MemoryLimiter) Backend() string { return RateLimitMemory }

// Close stops the cleanup goroutine
func (rl *MemoryLimiter) Close() error {
	rl.once.Do(func() { close(rl.stopCh) })
	return nil
}

// RedisLimiter shares buckets across replicas through Redis (GCRA via redis_rate)
type RedisLimiter struct {
	client  *redis.Client
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
}

// NewRedisLimiter creates a limiter using client
func NewRedisLimiter(client *redis.Client, rpm, burst int) *RedisLimiter {
	return &RedisLimiter{
		client:  client,
		limiter: redis_rate.NewLimiter(client),
		limit:   redis_rate.Limit{Rate: rpm, Burst: burst, Period: time.Minute},
	}
}

// Allow consumes one token for key
func (rl *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	res, err := rl.limiter.Allow(ctx, "dpc-admin:ratelimit:"+key, rl.limit)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to check rate limit: %w", err)
	}
	return Decision{Allowed: res.Allowed > 0, Remaining: res.Remaining, RetryAfter: res.RetryAfter}, nil
}

// Limit returns the configured requests per minute
func (rl *RedisLimiter) Limit() int { return rl.limit.Rate }

// Backend returns RateLimitRedis
func (rl *RedisLimiter) Backend() string { return RateLimitRedis }

// Close closes the Redis client
func (rl *RedisLimiter) Close() error { return rl.client.Close() }

// RateLimitMiddleware rejects requests over the limit with 429. Keys are prefixed with
// scope so login attempts and panel traffic use separate buckets. A failing backend
// lets the request through.
func RateLimitMiddleware(limiter Limiter, scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := scope + ":" + rateLimitKey(c)

		d, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			slog.Warn("rate limiter unavailable, allowing request", "scope", scope, "backend", limiter.Backend(), "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

		if !d.Allowed {
			retry := int(math.Ceil(d.RetryAfter.Seconds()))
			if retry < 1 {
				retry = 1
			}
			telemetry.RateLimitRejectionsTotal.WithLabelValues(scope, limiter.Backend()).Inc()
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": retry,
			})
			return
		}

		c.Next()
	}
}

// rateLimitKey prefers the authenticated staff id and falls back to the client IP.
func rateLimitKey(c *gin.Context) string {
	if id := c.GetString(ContextUserID); id != "" {
		return "user:" + id
	}
	ip := c.ClientIP()
	if ip == "" {
		ip = c.Request.RemoteAddr
	}
	return "ip:" + ip
}
