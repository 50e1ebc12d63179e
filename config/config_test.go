package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	var cfg Config
	require.NoError(t, LoadConfig(&cfg))

	assert.Equal(t, "LearnHive", cfg.App.Name)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)

	assert.Equal(t, 8, cfg.Password.MinLength)
	assert.True(t, cfg.Password.RequireUpper)
	assert.False(t, cfg.Password.RequireSpecial)
	assert.Equal(t, 12, cfg.Password.BcryptCost)

	assert.Equal(t, 30*time.Minute, cfg.AccessToken.Expiry)
	assert.Equal(t, 10*time.Minute, cfg.AccessToken.PendingTwoFactorExpiry)
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshToken.Expiry)
	assert.Equal(t, 30*24*time.Hour, cfg.RefreshToken.RememberMeExpiry)

	assert.Equal(t, 5, cfg.Session.MaxPerUser)

	assert.Equal(t, "memory", cfg.RateLimit.Store)
	assert.Equal(t, 20, cfg.RateLimit.Rate)
	assert.Equal(t, 60*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, 10, cfg.RateLimit.BurstRate)
	assert.Equal(t, 10*time.Second, cfg.RateLimit.BurstWindow)

	assert.Equal(t, 5, cfg.Lockout.Threshold)
	assert.Equal(t, 30*time.Minute, cfg.Lockout.Duration)

	assert.Equal(t, 90*24*time.Hour, cfg.LoginAudit.Retention)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("AUTHCORE_ACCESS_TOKEN_SECRET", "from-env")
	t.Setenv("AUTHCORE_ACCESS_TOKEN_EXPIRY", "15m")
	t.Setenv("AUTHCORE_SESSION_MAX_PER_USER", "3")
	t.Setenv("AUTHCORE_RATELIMIT_STORE", "redis")
	t.Setenv("AUTHCORE_LOCKOUT_THRESHOLD", "10")

	var cfg Config
	require.NoError(t, LoadConfig(&cfg))

	assert.Equal(t, "from-env", cfg.AccessToken.Secret)
	assert.Equal(t, 15*time.Minute, cfg.AccessToken.Expiry)
	assert.Equal(t, 3, cfg.Session.MaxPerUser)
	assert.Equal(t, "redis", cfg.RateLimit.Store)
	assert.Equal(t, 10, cfg.Lockout.Threshold)
}
