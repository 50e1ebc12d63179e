package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/learnhive/authcore/services/ratelimit"
	"github.com/learnhive/authcore/testutils"
	"github.com/stretchr/testify/assert"
)

func newLimitedEcho(t *testing.T, rate, burst int) *echo.Echo {
	cfg := testutils.GetTestConfig()
	cfg.RateLimit.Rate = rate
	cfg.RateLimit.BurstRate = burst

	store := ratelimit.NewMemoryStore()
	t.Cleanup(store.Close)
	limiter := ratelimit.NewLimiter(store, cfg, nil)

	e := echo.New()
	e.Use(Middleware(&Config{Limiter: limiter}))
	e.GET("/login", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	e.GET("/health", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	return e
}

func get(e *echo.Echo, path, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = ip + ":1234"
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware(t *testing.T) {
	t.Run("allows under the limit with quota headers", func(t *testing.T) {
		e := newLimitedEcho(t, 2, 10)

		rec := get(e, "/login", "203.0.113.7")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))
	})

	t.Run("denies over the limit with retry hint", func(t *testing.T) {
		e := newLimitedEcho(t, 2, 10)

		for i := 0; i < 2; i++ {
			rec := get(e, "/login", "203.0.113.7")
			assert.Equal(t, http.StatusOK, rec.Code)
		}

		rec := get(e, "/login", "203.0.113.7")
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	})

	t.Run("clients are limited independently", func(t *testing.T) {
		e := newLimitedEcho(t, 1, 10)

		assert.Equal(t, http.StatusOK, get(e, "/login", "203.0.113.7").Code)
		assert.Equal(t, http.StatusTooManyRequests, get(e, "/login", "203.0.113.7").Code)
		assert.Equal(t, http.StatusOK, get(e, "/login", "198.51.100.9").Code)
	})

	t.Run("health checks bypass the limiter", func(t *testing.T) {
		e := newLimitedEcho(t, 1, 1)

		for i := 0; i < 5; i++ {
			rec := get(e, "/health", "203.0.113.7")
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
		}
	})

	t.Run("custom handler on limit", func(t *testing.T) {
		cfg := testutils.GetTestConfig()
		cfg.RateLimit.Rate = 1
		cfg.RateLimit.BurstRate = 1

		store := ratelimit.NewMemoryStore()
		t.Cleanup(store.Close)

		e := echo.New()
		e.Use(Middleware(&Config{
			Limiter: ratelimit.NewLimiter(store, cfg, nil),
			OnLimitReached: func(c echo.Context) error {
				return c.String(http.StatusTooManyRequests, "custom")
			},
		}))
		e.GET("/login", func(c echo.Context) error {
			return c.NoContent(http.StatusOK)
		})

		get(e, "/login", "203.0.113.7")
		rec := get(e, "/login", "203.0.113.7")
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "custom", rec.Body.String())
	})
}

func TestShouldBypass(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{"/health", true},
		{"/up", true},
		{"/static/app.js", true},
		{"/assets/logo.png", true},
		{"/healthcheck", false},
		{"/login", false},
	}

	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			assert.Equal(t, tc.want, shouldBypass(tc.path, DefaultBypassPaths))
		})
	}
}

func TestDefaultKeyGenerator(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:1234"
	c := e.NewContext(req, httptest.NewRecorder())

	assert.Equal(t, "http:203.0.113.7", DefaultKeyGenerator(c))
}
