package ratelimit

import (
	"context"
	"time"

	"github.com/learnhive/authcore/config"
	"github.com/learnhive/authcore/services/logging"
	"go.uber.org/zap"
)

// Decision is the admission verdict for one key. Remaining is the smaller of
// the two window quotas so callers can surface it in response headers; the
// limiter itself never decides HTTP status codes.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter combines a rolling window bounding total attempts with a short
// burst window bounding rapid spikes, both over the same key.
type Limiter struct {
	store  Store
	config *config.Config
	logger *logging.Service
}

func NewLimiter(store Store, cfg *config.Config, logger *logging.Service) *Limiter {
	return &Limiter{
		store:  store,
		config: cfg,
		logger: logger,
	}
}

func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	now := time.Now()
	window := l.config.RateLimit.Window
	burstWindow := l.config.RateLimit.BurstWindow

	counts, oldest, err := l.store.Hit(ctx, key, now, window, burstWindow)
	if err != nil {
		return Decision{}, err
	}

	rate := l.config.RateLimit.Rate
	burst := l.config.RateLimit.BurstRate

	remaining := min(rate-counts[0], burst-counts[1])
	if remaining < 0 {
		remaining = 0
	}

	if counts[0] > rate || counts[1] > burst {
		retryAfter := burstWindow
		if counts[0] > rate && !oldest.IsZero() {
			retryAfter = time.Until(oldest.Add(window))
		}
		if retryAfter < 0 {
			retryAfter = 0
		}

		if l.logger != nil {
			l.logger.Warn("rate limit exceeded",
				zap.String("key", key),
				zap.Int("window_count", counts[0]),
				zap.Int("burst_count", counts[1]))
		}

		return Decision{Allowed: false, Remaining: 0, RetryAfter: retryAfter}, nil
	}

	return Decision{Allowed: true, Remaining: remaining}, nil
}

func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.store.Reset(ctx, key)
}

func (l *Limiter) Limit() int {
	return l.config.RateLimit.Rate
}
