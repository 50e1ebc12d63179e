package testutils

import (
	"time"

	"github.com/learnhive/authcore/config"
	"golang.org/x/crypto/bcrypt"
)

func GetTestConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Name: "Test App",
			URL:  "http://localhost:8080",
		},
		Password: config.PasswordConfig{
			MinLength:      8,
			RequireUpper:   true,
			RequireLower:   true,
			RequireNumber:  true,
			RequireSpecial: false,
			BcryptCost:     bcrypt.MinCost,
		},
		AccessToken: config.AccessTokenConfig{
			Secret:                 "test-secret-key-32-chars-long!!",
			Issuer:                 "test-issuer",
			Expiry:                 30 * time.Minute,
			PendingTwoFactorExpiry: 10 * time.Minute,
		},
		RefreshToken: config.RefreshTokenConfig{
			Expiry:           7 * 24 * time.Hour,
			RememberMeExpiry: 30 * 24 * time.Hour,
			TokenLength:      32,
		},
		Session: config.SessionConfig{
			MaxPerUser: 5,
		},
		RateLimit: config.RateLimitConfig{
			Store:       "memory",
			Rate:        20,
			Window:      60 * time.Second,
			BurstRate:   10,
			BurstWindow: 10 * time.Second,
		},
		Lockout: config.LockoutConfig{
			Threshold: 5,
			Duration:  30 * time.Minute,
		},
		TwoFactor: config.TwoFactorConfig{
			Issuer:          "Test App",
			SecretSize:      20,
			BackupCodeCount: 10,
		},
		LoginAudit: config.LoginAuditConfig{
			Retention: 90 * 24 * time.Hour,
		},
		Database: config.DatabaseConfig{
			Driver: "sqlite",
			DSN:    ":memory:",
		},
	}
}

var TestPasswords = struct {
	Valid    string
	TooShort string
	NoUpper  string
	NoNumber string
}{
	Valid:    "Password123",
	TooShort: "Pass1",
	NoUpper:  "password123",
	NoNumber: "Password",
}
