package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/recruiting-portal/internal/config"
	"github.com/iliyamo/recruiting-portal/internal/logger"
)

// tokenBucket refills refill_tokens every interval_ms up to capacity and
// takes one token per call. Returns {allowed, tokens_left, retry_after_ms}.
var tokenBucket = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local refill_tokens = tonumber(ARGV[3])
local interval_ms = tonumber(ARGV[4])
local ttl_seconds = tonumber(ARGV[5])

local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])
if tokens == nil or last_refill == nil then
  tokens = capacity
  last_refill = now_ms
end

local intervals = math.floor(math.max(0, now_ms - last_refill) / interval_ms)
if intervals > 0 then
  tokens = math.min(capacity, tokens + intervals * refill_tokens)
  last_refill = last_refill + intervals * interval_ms
end

local allowed = 0
local retry_after_ms = 0
if tokens > 0 then
  allowed = 1
  tokens = tokens - 1
else
  retry_after_ms = math.max(0, interval_ms - (now_ms - last_refill))
end

redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill)
redis.call('EXPIRE', key, ttl_seconds)
return { allowed, tokens, retry_after_ms }
`)

// RateDecision is the outcome of one bucket take.
type RateDecision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// RateLimiter is a Redis token bucket keyed by caller and route.
type RateLimiter struct {
	cfg config.RateLimitConfig
	rdb *redis.Client
	log logger.Logger
	// OnBlocked, when set, is called for every rejected request.
	OnBlocked func(route string)
}

func NewRateLimiter(cfg config.RateLimitConfig, rdb *redis.Client) *RateLimiter {
	return &RateLimiter{cfg: cfg, rdb: rdb, log: logger.Named("ratelimit")}
}

// Take removes one token from the bucket at key.
func (rl *RateLimiter) Take(ctx context.Context, key string, now time.Time) (RateDecision, error) {
	vals, err := tokenBucket.Run(ctx, rl.rdb, []string{key},
		now.UnixMilli(),
		rl.cfg.Capacity,
		rl.cfg.RefillTokens,
		rl.cfg.RefillInterval.Milliseconds(),
		int64(rl.cfg.TTL/time.Second),
	).Int64Slice()
	if err != nil {
		return RateDecision{}, err
	}
	if len(vals) != 3 {
		return RateDecision{}, fmt.Errorf("unexpected token bucket result %v", vals)
	}
	return RateDecision{
		Allowed:    vals[0] == 1,
		Remaining:  vals[1],
		RetryAfter: time.Duration(vals[2]) * time.Millisecond,
	}, nil
}

func (rl *RateLimiter) key(c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	route := c.Request().Method + " " + c.Path()
	parts := []string{rl.cfg.Prefix}
	switch strings.ToLower(rl.cfg.KeyStrategy) {
	case "ip":
		parts = append(parts, "ip", ip)
	case "user_route":
		parts = append(parts, "user", subject(c), "route", route)
	case "ip_user_route":
		parts = append(parts, "ip", ip, "user", subject(c), "route", route)
	default: // ip_route
		parts = append(parts, "ip", ip, "route", route)
	}
	return strings.Join(parts, ":")
}

// Middleware answers 429 once the caller's bucket is empty. Redis failures
// let the request through.
func (rl *RateLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if rl == nil || !rl.cfg.Enabled || rl.rdb == nil {
			return next
		}
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			key := rl.key(c)
			d, err := rl.Take(ctx, key, time.Now())
			if err != nil {
				rl.log.Warn(ctx, "token bucket unavailable", logger.String("key", key), logger.Err(err))
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(rl.cfg.Capacity))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
			if d.Allowed {
				return next(c)
			}

			secs := int(math.Ceil(d.RetryAfter.Seconds()))
			h.Set("Retry-After", strconv.Itoa(secs))
			if rl.cfg.Debug {
				rl.log.Info(ctx, "rate limited", logger.String("key", key), logger.Int("retry_after", secs))
			}
			if rl.OnBlocked != nil {
				rl.OnBlocked(c.Path())
			}
			return c.JSON(http.StatusTooManyRequests, echo.Map{
				"error":      "too many requests, try again later",
				"code":       "RATE_LIMITED",
				"retryAfter": secs,
			})
		}
	}
}
