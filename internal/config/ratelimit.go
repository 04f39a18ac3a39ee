package config

import (
    "os"
    "strconv"
    "strings"
    "time"
)

// RateLimitConfig sizes the token bucket in front of POST .../frames.  A
// detector may burst up to Capacity frames, then sustains RefillTokens
// frames per RefillInterval; anything faster is answered with 429 before
// it can fill the session's frame queue and cause drops.
type RateLimitConfig struct {
    Enabled        bool
    Capacity       int           // burst size in frames
    RefillTokens   int           // frames regained per interval
    RefillInterval time.Duration
    TTL            time.Duration // idle buckets expire after this
    KeyStrategy    string        // see middleware.buildRateKey
    Prefix         string
    Debug          bool          // log limiter decisions and expose X-RateLimit-Key
}

// LoadRateLimitConfig reads RATE_LIMIT_* variables.  The default of 60
// frames burst and 30 frames/s sustained per camera session covers a
// detector running at typical video rates.
func LoadRateLimitConfig() RateLimitConfig {
    cfg := RateLimitConfig{
        Enabled:        envBool("RATE_LIMIT_ENABLED", true),
        Capacity:       envInt("RATE_LIMIT_CAPACITY", 60),
        RefillTokens:   envInt("RATE_LIMIT_REFILL_TOKENS", 30),
        RefillInterval: envDur("RATE_LIMIT_REFILL_INTERVAL", time.Second),
        TTL:            envDur("RATE_LIMIT_TTL", 10*time.Minute),
        KeyStrategy:    envStr("RATE_LIMIT_KEY_STRATEGY", "ip_session"),
        Prefix:         envStr("RATE_LIMIT_PREFIX", "occupancy:rl"),
        Debug:          envBool("RATE_LIMIT_DEBUG", false),
    }
    if b := envInt("RATE_LIMIT_BURST", -1); b > 0 {
        cfg.Capacity = b
    }
    cfg.normalize()
    return cfg
}

// normalize clamps values the limiter script cannot work with.  A bucket
// must outlive a few refill intervals or idle cameras would regain a full
// burst on every frame.
func (c *RateLimitConfig) normalize() {
    if c.Capacity < 1 {
        c.Capacity = 1
    }
    if c.RefillTokens < 1 {
        c.RefillTokens = 1
    }
    if c.RefillInterval <= 0 {
        c.RefillInterval = time.Second
    }
    if minTTL := 5 * c.RefillInterval; c.TTL < minTTL {
        c.TTL = minTTL
    }
}

func envStr(k, d string) string {
    if v := os.Getenv(k); v != "" {
        return v
    }
    return d
}

// envBool accepts 1/0, true/false, yes/no and on/off in any case.  Other
// values keep the default.
func envBool(k string, d bool) bool {
    switch strings.ToLower(os.Getenv(k)) {
    case "1", "true", "yes", "on":
        return true
    case "0", "false", "no", "off":
        return false
    }
    return d
}

func envInt(k string, d int) int {
    if n, err := strconv.Atoi(os.Getenv(k)); err == nil {
        return n
    }
    return d
}

func envDur(k string, d time.Duration) time.Duration {
    if dur, err := time.ParseDuration(os.Getenv(k)); err == nil {
        return dur
    }
    return d
}
