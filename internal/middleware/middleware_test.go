package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/seat-occupancy/internal/config"
)

func newContext(method, target string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.7")
	return e.NewContext(req, httptest.NewRecorder())
}

func TestBuildRateKey(t *testing.T) {
	c := newContext(http.MethodPost, "/v1/sessions/abc/frames")
	c.SetPath("/v1/sessions/:id/frames")
	c.SetParamNames("id")
	c.SetParamValues("abc")

	tests := []struct {
		strategy string
		want     string
	}{
		{"ip", "rl:ip:10.0.0.7"},
		{"session", "rl:session:abc"},
		{"route", "rl:route:POST /v1/sessions/:id/frames"},
		{"ip_route", "rl:ip:10.0.0.7:route:POST /v1/sessions/:id/frames"},
		{"session_route", "rl:session:abc:route:POST /v1/sessions/:id/frames"},
		{"ip_session", "rl:ip:10.0.0.7:session:abc"},
		{"", "rl:ip:10.0.0.7:session:abc"},
	}
	for _, tt := range tests {
		t.Run(tt.strategy, func(t *testing.T) {
			cfg := config.RateLimitConfig{Prefix: "rl", KeyStrategy: tt.strategy}
			assert.Equal(t, tt.want, buildRateKey(cfg, c))
		})
	}
}

func TestBuildRateKey_NoSession(t *testing.T) {
	c := newContext(http.MethodGet, "/healthz")
	assert.Equal(t, "rl:session:none", buildRateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: "session"}, c))
}

func TestCacheKeyFrom(t *testing.T) {
	cfg := config.CacheConfig{Prefix: "occupancy:cache", KeyStrategy: "path_query"}

	a := cacheKeyFrom(cfg, newContext(http.MethodGet, "/v1/reports/a"))
	b := cacheKeyFrom(cfg, newContext(http.MethodGet, "/v1/reports/b"))
	again := cacheKeyFrom(cfg, newContext(http.MethodGet, "/v1/reports/a"))
	withQuery := cacheKeyFrom(cfg, newContext(http.MethodGet, "/v1/reports/a?x=1"))

	assert.Equal(t, a, again)
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, withQuery)
	assert.Regexp(t, `^occupancy:cache:[0-9a-f]{40}$`, a)

	c := newContext(http.MethodGet, "/v1/reports/a")
	c.Request().Header.Set(echo.HeaderAccept, "application/protobuf")
	assert.NotEqual(t, a, cacheKeyFrom(cfg, c))
}

func TestPayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"ok":true}`))
	require.NoError(t, err)

	status, gotHdr, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, hdr, gotHdr)
	assert.Equal(t, `{"ok":true}`, string(body))

	_, _, _, ok = decodePayload([]byte{0, 0})
	assert.False(t, ok)
	_, _, _, ok = decodePayload([]byte{0, 0, 0, 200, 0, 0, 0, 99})
	assert.False(t, ok)
}

func TestDisabledMiddlewarePassThrough(t *testing.T) {
	called := 0
	next := func(c echo.Context) error { called++; return c.NoContent(http.StatusNoContent) }

	c := newContext(http.MethodGet, "/v1/reports")
	require.NoError(t, NewRedisCache(config.CacheConfig{Enabled: true}, nil)(next)(c))
	require.NoError(t, NewTokenBucket(config.RateLimitConfig{Enabled: false}, nil)(next)(c))
	assert.Equal(t, 2, called)
}

func TestCaptureWriterLimit(t *testing.T) {
	rec := httptest.NewRecorder()
	cw := &captureWriter{ResponseWriter: rec, status: http.StatusOK, limit: 4}
	_, _ = cw.Write([]byte("abc"))
	_, _ = cw.Write([]byte("defg"))

	assert.Equal(t, "abcd", cw.buf.String())
	assert.Equal(t, int64(7), cw.size)
	assert.Equal(t, "abcdefg", rec.Body.String())
}

func TestParseBucketReply(t *testing.T) {
	d, ok := parseBucketReply([]interface{}{int64(0), int64(0), int64(1200)})
	require.True(t, ok)
	assert.False(t, d.allowed)
	assert.Equal(t, 1200*time.Millisecond, d.retry)
	assert.Equal(t, 2, d.retryAfter())

	d, ok = parseBucketReply([]interface{}{int64(1), int64(59), int64(0)})
	require.True(t, ok)
	assert.True(t, d.allowed)
	assert.Equal(t, int64(59), d.remaining)
	assert.Equal(t, 0, d.retryAfter())

	_, ok = parseBucketReply([]interface{}{int64(1), "x", int64(0)})
	assert.False(t, ok)
	_, ok = parseBucketReply("OK")
	assert.False(t, ok)
}
