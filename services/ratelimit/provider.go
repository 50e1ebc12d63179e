package ratelimit

import (
	"github.com/learnhive/authcore/config"
	"github.com/learnhive/authcore/services/logging"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

func ProvideStore(cfg *config.Config) Store {
	switch cfg.RateLimit.Store {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RateLimit.RedisAddr,
			Password: cfg.RateLimit.RedisPassword,
			DB:       cfg.RateLimit.RedisDB,
		})
		return NewRedisStore(client)
	case "memory":
		fallthrough
	default:
		return NewMemoryStore()
	}
}

func ProvideLimiter(store Store, cfg *config.Config, logger *logging.Service) *Limiter {
	return NewLimiter(store, cfg, logger)
}

var Module = fx.Options(
	fx.Provide(ProvideStore),
	fx.Provide(ProvideLimiter),
)
