package config

import (
    "strings"
    "time"
)

// CacheConfig configures the Redis cache in front of /v1/reports.  Only
// archived reports go through it: they never change once written, and the
// cache is purged whenever a new one is archived so listings stay current.
// Live session reads are never cached.
type CacheConfig struct {
    Enabled      bool
    Methods      map[string]bool // upper-cased HTTP methods eligible for caching
    TTL          time.Duration
    KeyStrategy  string // path_query, path, method_path_query or route
    Prefix       string // also the SCAN pattern used by the purge
    MaxBodyBytes int    // larger responses are served but not stored
}

// LoadCacheConfig reads CACHE_* variables.  An unparsable TTL keeps the
// five minute default.
func LoadCacheConfig() CacheConfig {
    return CacheConfig{
        Enabled:      envBool("CACHE_ENABLED", true),
        Methods:      parseMethods(envStr("CACHE_METHODS", "GET")),
        TTL:          envDur("CACHE_TTL", 5*time.Minute),
        KeyStrategy:  envStr("CACHE_KEY_STRATEGY", "path_query"),
        Prefix:       envStr("CACHE_PREFIX", "occupancy:cache"),
        MaxBodyBytes: envInt("CACHE_MAX_BODY_BYTES", 1<<20),
    }
}

func parseMethods(s string) map[string]bool {
    m := map[string]bool{}
    for _, p := range strings.Split(s, ",") {
        if p = strings.ToUpper(strings.TrimSpace(p)); p != "" {
            m[p] = true
        }
    }
    return m
}
