package middleware

import (
    "math"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"

    "github.com/iliyamo/seat-occupancy/internal/config"
)

// frameBucket takes one token from the bucket at KEYS[1], refilling it in
// whole intervals first.  It returns {allowed, tokens left, ms until the
// next refill}.  Running it as one script keeps concurrent frame posts for
// the same camera from racing on the bucket.
var frameBucket = redis.NewScript(`
    local key = KEYS[1]
    local now_ms = tonumber(ARGV[1])
    local capacity = tonumber(ARGV[2])
    local refill = tonumber(ARGV[3])
    local interval_ms = tonumber(ARGV[4])
    local ttl = tonumber(ARGV[5])

    local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
    local tokens = tonumber(state[1])
    local last = tonumber(state[2])
    if tokens == nil or last == nil then
        tokens = capacity
        last = now_ms
    end

    local n = math.floor(math.max(0, now_ms - last) / interval_ms)
    if n > 0 then
        tokens = math.min(capacity, tokens + n * refill)
        last = last + n * interval_ms
    end

    local allowed = 0
    local wait_ms = 0
    if tokens > 0 then
        allowed = 1
        tokens = tokens - 1
    else
        wait_ms = math.max(0, interval_ms - (now_ms - last))
    end

    redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last)
    redis.call('EXPIRE', key, ttl)
    return { allowed, tokens, wait_ms }
`)

// bucketDecision is the parsed reply of frameBucket.
type bucketDecision struct {
    allowed   bool
    remaining int64
    retry     time.Duration
}

// retryAfter rounds the wait up to whole seconds for the Retry-After header.
func (d bucketDecision) retryAfter() int {
    return int(math.Ceil(d.retry.Seconds()))
}

func parseBucketReply(v interface{}) (bucketDecision, bool) {
    arr, ok := v.([]interface{})
    if !ok || len(arr) != 3 {
        return bucketDecision{}, false
    }
    allowed, ok1 := arr[0].(int64)
    remaining, ok2 := arr[1].(int64)
    waitMs, ok3 := arr[2].(int64)
    if !ok1 || !ok2 || !ok3 {
        return bucketDecision{}, false
    }
    return bucketDecision{
        allowed:   allowed == 1,
        remaining: remaining,
        retry:     time.Duration(waitMs) * time.Millisecond,
    }, true
}

// NewTokenBucket limits frame ingestion per camera with a Redis token
// bucket.  Over-limit posts get 429 and Retry-After.  When Redis fails the
// frame is let through, since losing frames skews occupancy totals more
// than an unthrottled burst does.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
    if !cfg.Enabled || rdb == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    limit := strconv.Itoa(cfg.Capacity)

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            key := buildRateKey(cfg, c)
            reply, err := frameBucket.Run(c.Request().Context(), rdb, []string{key},
                time.Now().UnixMilli(),
                cfg.Capacity,
                cfg.RefillTokens,
                cfg.RefillInterval.Milliseconds(),
                int64(cfg.TTL/time.Second),
            ).Result()
            if err != nil {
                c.Logger().Warnf("ratelimit: %s: %v", key, err)
                return next(c)
            }
            d, ok := parseBucketReply(reply)
            if !ok {
                c.Logger().Warnf("ratelimit: %s: unexpected reply %#v", key, reply)
                return next(c)
            }

            h := c.Response().Header()
            h.Set("X-RateLimit-Limit", limit)
            h.Set("X-RateLimit-Remaining", strconv.FormatInt(d.remaining, 10))
            if cfg.Debug {
                h.Set("X-RateLimit-Key", key)
            }
            if !d.allowed {
                h.Set("Retry-After", strconv.Itoa(d.retryAfter()))
                if cfg.Debug {
                    c.Logger().Infof("ratelimit: throttled %s, retry in %s", key, d.retry)
                }
                return c.JSON(http.StatusTooManyRequests, map[string]any{
                    "error":       "frame rate limit exceeded",
                    "retry_after": d.retryAfter(),
                })
            }
            return next(c)
        }
    }
}

// buildRateKey names the bucket a frame post draws from.  The default
// ip_session gives each camera its own bucket per session; session alone
// shares one bucket between every detector feeding the same session.
func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
    ip := c.RealIP()
    if ip == "" {
        ip = "unknown"
    }
    sid := c.Param("id")
    if sid == "" {
        sid = "none"
    }
    route := c.Request().Method + " " + c.Path()

    parts := []string{cfg.Prefix}
    switch strings.ToLower(cfg.KeyStrategy) {
    case "ip":
        parts = append(parts, "ip", ip)
    case "session":
        parts = append(parts, "session", sid)
    case "route":
        parts = append(parts, "route", route)
    case "ip_route":
        parts = append(parts, "ip", ip, "route", route)
    case "session_route":
        parts = append(parts, "session", sid, "route", route)
    default:
        parts = append(parts, "ip", ip, "session", sid)
    }
    return strings.Join(parts, ":")
}
