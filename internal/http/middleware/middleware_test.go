package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	echo "github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEcho(mw ...echo.MiddlewareFunc) *echo.Echo {
	e := echo.New()
	e.GET("/x", func(c echo.Context) error {
		id, _ := ClientIDFromCtx(c)
		return c.String(http.StatusOK, id)
	}, mw...)
	return e
}

func do(e *echo.Echo, apiKey string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestAPIKeyMiddleware(t *testing.T) {
	e := newEcho(APIKeyMiddleware("s3cret"))

	assert.Equal(t, http.StatusUnauthorized, do(e, "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(e, "wrong").Code)

	rec := do(e, "s3cret")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "key:")
	assert.NotContains(t, rec.Body.String(), "s3cret")
}

func TestAPIKeyMiddleware_Disabled(t *testing.T) {
	e := newEcho(APIKeyMiddleware(""))
	rec := do(e, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ip:")
}

func TestRateLimitMiddleware(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	e := newEcho(APIKeyMiddleware("k"), RateLimitMiddleware(RateLimitConfig{
		Redis:          rdb,
		DefaultRPS:     2,
		Window:         time.Minute,
		RetryAfterHint: true,
	}))

	assert.Equal(t, http.StatusOK, do(e, "k").Code)
	assert.Equal(t, http.StatusOK, do(e, "k").Code)
	rec := do(e, "k")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestRateLimitMiddleware_FailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	mr.Close()

	e := newEcho(APIKeyMiddleware("k"), RateLimitMiddleware(RateLimitConfig{Redis: rdb, DefaultRPS: 1}))
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, do(e, "k").Code)
	}
}
