package middleware

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/moviebook/internal/config"
	"github.com/iliyamo/moviebook/internal/model"
	"github.com/iliyamo/moviebook/internal/utils"
)

const secret = "test-secret"

func quietLog() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

type fakeTokens map[string]uint64

func (f fakeTokens) ValidateRefresh(_ context.Context, hash string) (uint64, error) {
	if id, ok := f[hash]; ok {
		return id, nil
	}
	return 0, errors.New("not found")
}

type fakeUsers map[uint64]model.User

func (f fakeUsers) GetByID(_ context.Context, id uint64) (model.User, error) {
	if u, ok := f[id]; ok {
		return u, nil
	}
	return model.User{}, errors.New("not found")
}

var ada = model.User{ID: 7, Name: "Ada", Email: "ada@example.com"}

func sessionEcho(s *Session) *echo.Echo {
	e := echo.New()
	e.GET("/dashboard", func(c echo.Context) error {
		u, _ := CurrentUser(c)
		return c.String(http.StatusOK, "hello "+u.Name)
	}, s.Require())
	e.GET("/", func(c echo.Context) error {
		if u, ok := CurrentUser(c); ok {
			return c.String(http.StatusOK, u.Email)
		}
		return c.String(http.StatusOK, "guest")
	}, s.Optional())
	return e
}

func TestRequireRedirectsWithoutSession(t *testing.T) {
	e := sessionEcho(&Session{Secret: secret, Log: quietLog()})
	req := httptest.NewRequest(http.MethodGet, "/dashboard?tab=1", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login?next=%2Fdashboard%3Ftab%3D1", rec.Header().Get(echo.HeaderLocation))
}

func TestRequireAcceptsAccessCookie(t *testing.T) {
	e := sessionEcho(&Session{Secret: secret, Log: quietLog()})
	tok, err := utils.NewAccessToken(secret, ada, time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: utils.AccessCookie, Value: tok.Token})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello Ada", rec.Body.String())
}

func TestRequireRenewsFromRefreshCookie(t *testing.T) {
	raw := "refresh-raw"
	s := &Session{
		Secret:    secret,
		AccessTTL: time.Minute,
		Tokens:    fakeTokens{utils.HashRefreshRaw(raw): ada.ID},
		Users:     fakeUsers{ada.ID: ada},
		Log:       quietLog(),
	}
	e := sessionEcho(s)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: utils.AccessCookie, Value: "garbage"})
	req.AddCookie(&http.Cookie{Name: utils.RefreshCookie, Value: raw})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var renewed *http.Cookie
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == utils.AccessCookie {
			renewed = ck
		}
	}
	require.NotNil(t, renewed)
	u, err := utils.ParseAccessToken(secret, renewed.Value)
	require.NoError(t, err)
	assert.Equal(t, ada.ID, u.ID)
}

func TestRequireRejectsUnknownRefresh(t *testing.T) {
	s := &Session{Secret: secret, Tokens: fakeTokens{}, Users: fakeUsers{}, Log: quietLog()}
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: utils.RefreshCookie, Value: "nope"})
	rec := httptest.NewRecorder()
	sessionEcho(s).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestOptionalNeverBlocks(t *testing.T) {
	rec := httptest.NewRecorder()
	sessionEcho(&Session{Secret: secret}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "guest", rec.Body.String())
}

func TestSafeNext(t *testing.T) {
	tests := map[string]string{
		"/movie/5":             "/movie/5",
		"/dashboard?x=1":       "/dashboard?x=1",
		"":                     "/dashboard",
		"https://evil.example": "/dashboard",
		"//evil.example/x":     "/dashboard",
		"/\\evil.example":      "/dashboard",
		"dashboard":            "/dashboard",
	}
	for in, want := range tests {
		assert.Equal(t, want, SafeNext(in, "/dashboard"), in)
	}
}

func TestRequestID(t *testing.T) {
	e := echo.New()
	var seen string
	e.GET("/", func(c echo.Context) error {
		seen = GetRequestID(c)
		return c.NoContent(http.StatusOK)
	}, RequestID())

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, seen, 36)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "not-a-uuid")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.NotEqual(t, "not-a-uuid", rec.Header().Get(RequestIDHeader))
}

func TestTokenBucketBlocksWhenEmpty(t *testing.T) {
	cfg := config.RateLimitConfig{
		Enabled: true, Capacity: 2, RefillTokens: 1, RefillInterval: time.Hour,
		TTL: time.Hour, KeyStrategy: "ip_route", Prefix: "rl",
	}
	e := echo.New()
	mw := NewTokenBucket(cfg, newRedis(t), quietLog())
	e.POST("/login", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, mw)
	e.GET("/api/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, mw)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login", nil))
		codes = append(codes, rec.Code)
		if i == 2 {
			assert.NotEmpty(t, rec.Header().Get("Retry-After"))
			assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
		}
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	// separate bucket per route
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/x", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTokenBucketAPIAnswersJSON(t *testing.T) {
	cfg := config.RateLimitConfig{
		Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Hour,
		TTL: time.Hour, Prefix: "rl",
	}
	e := echo.New()
	e.GET("/api/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, NewTokenBucket(cfg, newRedis(t), quietLog()))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/x", nil))
		if i == 1 {
			assert.Equal(t, http.StatusTooManyRequests, rec.Code)
			assert.Contains(t, rec.Body.String(), "too_many_requests")
		}
	}
}

func TestTokenBucketPassThroughWithoutRedis(t *testing.T) {
	cfg := config.RateLimitConfig{Enabled: true, Capacity: 1}
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, NewTokenBucket(cfg, nil, quietLog()))
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRedisCacheHitAndMiss(t *testing.T) {
	cfg := config.CacheConfig{
		Enabled: true, TTL: time.Minute, KeyStrategy: "route_query", Prefix: "cache",
		MaxBodyBytes: 1 << 20, Methods: map[string]bool{"GET": true},
	}
	var calls int32
	e := echo.New()
	e.GET("/api/movies/:id", func(c echo.Context) error {
		atomic.AddInt32(&calls, 1)
		if c.Param("id") == "0" {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
		}
		return c.JSON(http.StatusOK, echo.Map{"id": c.Param("id")})
	}, NewRedisCache(cfg, newRedis(t), quietLog()))

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	first := get("/api/movies/1")
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
	second := get("/api/movies/1")
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.True(t, strings.HasPrefix(second.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	// other path, same route pattern
	assert.Equal(t, "MISS", get("/api/movies/2").Header().Get("X-Cache"))

	// non-200 answers are not stored
	get("/api/movies/0")
	assert.Equal(t, "MISS", get("/api/movies/0").Header().Get("X-Cache"))
}

func TestPayloadRoundTripRejectsShortInput(t *testing.T) {
	_, _, _, ok := decodePayload([]byte{1, 2, 3})
	assert.False(t, ok)

	bs, err := encodePayload(200, http.Header{"A": {"b"}}, []byte("body"))
	require.NoError(t, err)
	status, hdr, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, 200, status)
	assert.Equal(t, "b", hdr.Get("A"))
	assert.Equal(t, "body", string(body))
}
