package ratelimit

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/learnhive/authcore/services/ratelimit"
)

type Config struct {
	Limiter        *ratelimit.Limiter
	KeyGenerator   func(c echo.Context) string
	BypassPaths    []string
	OnLimitReached func(c echo.Context) error
}

// Middleware applies the dual-window limiter to incoming requests and
// surfaces the remaining quota in X-RateLimit headers. Health-check and
// static paths skip the limiter entirely.
func Middleware(cfg *Config) echo.MiddlewareFunc {
	if cfg.KeyGenerator == nil {
		cfg.KeyGenerator = DefaultKeyGenerator
	}

	if cfg.OnLimitReached == nil {
		cfg.OnLimitReached = DefaultOnLimitReached
	}

	if cfg.BypassPaths == nil {
		cfg.BypassPaths = DefaultBypassPaths
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if shouldBypass(c.Request().URL.Path, cfg.BypassPaths) {
				return next(c)
			}

			decision, err := cfg.Limiter.Allow(c.Request().Context(), cfg.KeyGenerator(c))
			if err != nil {
				// A broken counter store must not take logins down with it.
				return next(c)
			}

			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Limiter.Limit()))
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))

			if !decision.Allowed {
				c.Response().Header().Set("Retry-After", strconv.Itoa(int(decision.RetryAfter.Seconds())))
				return cfg.OnLimitReached(c)
			}

			return next(c)
		}
	}
}

var DefaultBypassPaths = []string{"/health", "/up", "/static/", "/assets/"}

func shouldBypass(path string, bypass []string) bool {
	for _, prefix := range bypass {
		if strings.HasSuffix(prefix, "/") {
			if strings.HasPrefix(path, prefix) {
				return true
			}
		} else if path == prefix {
			return true
		}
	}
	return false
}

func DefaultKeyGenerator(c echo.Context) string {
	realIP := c.RealIP()

	if realIP == "" || realIP == "unknown" {
		realIP = "fallback"
	}

	return "http:" + realIP
}

func DefaultOnLimitReached(c echo.Context) error {
	return echo.NewHTTPError(http.StatusTooManyRequests, "Too Many Requests")
}
