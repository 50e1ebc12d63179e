package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	App          AppConfig          `envPrefix:"AUTHCORE_APP_"`
	Server       ServerConfig       `envPrefix:"AUTHCORE_SERVER_"`
	Log          LogConfig          `envPrefix:"AUTHCORE_LOG_"`
	Database     DatabaseConfig     `envPrefix:"AUTHCORE_DB_"`
	Password     PasswordConfig     `envPrefix:"AUTHCORE_PASSWORD_"`
	AccessToken  AccessTokenConfig  `envPrefix:"AUTHCORE_ACCESS_TOKEN_"`
	RefreshToken RefreshTokenConfig `envPrefix:"AUTHCORE_REFRESH_TOKEN_"`
	Session      SessionConfig      `envPrefix:"AUTHCORE_SESSION_"`
	RateLimit    RateLimitConfig    `envPrefix:"AUTHCORE_RATELIMIT_"`
	Lockout      LockoutConfig      `envPrefix:"AUTHCORE_LOCKOUT_"`
	TwoFactor    TwoFactorConfig    `envPrefix:"AUTHCORE_TWOFACTOR_"`
	LoginAudit   LoginAuditConfig   `envPrefix:"AUTHCORE_LOGIN_AUDIT_"`
}

type AppConfig struct {
	Name string `env:"NAME" envDefault:"LearnHive"`
	URL  string `env:"URL" envDefault:"http://localhost:8080"`
}

type ServerConfig struct {
	Host string `env:"HOST" envDefault:"localhost"`
	Port string `env:"PORT" envDefault:"8080"`
}

type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
	Output string `env:"OUTPUT" envDefault:"stdout"`
}

type DatabaseConfig struct {
	Driver      string `env:"DRIVER" envDefault:"sqlite"`
	DSN         string `env:"DSN" envDefault:"authcore.db"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`
}

type PasswordConfig struct {
	MinLength      int  `env:"MIN_LENGTH" envDefault:"8"`
	RequireUpper   bool `env:"REQUIRE_UPPER" envDefault:"true"`
	RequireLower   bool `env:"REQUIRE_LOWER" envDefault:"true"`
	RequireNumber  bool `env:"REQUIRE_NUMBER" envDefault:"true"`
	RequireSpecial bool `env:"REQUIRE_SPECIAL" envDefault:"false"`
	BcryptCost     int  `env:"BCRYPT_COST" envDefault:"12"`
}

type AccessTokenConfig struct {
	Secret                 string        `env:"SECRET"`
	Issuer                 string        `env:"ISSUER" envDefault:"authcore"`
	Expiry                 time.Duration `env:"EXPIRY" envDefault:"30m"`
	PendingTwoFactorExpiry time.Duration `env:"PENDING_TWOFACTOR_EXPIRY" envDefault:"10m"`
}

type RefreshTokenConfig struct {
	Expiry           time.Duration `env:"EXPIRY" envDefault:"168h"`
	RememberMeExpiry time.Duration `env:"REMEMBER_ME_EXPIRY" envDefault:"720h"`
	TokenLength      int           `env:"TOKEN_LENGTH" envDefault:"32"`
	CleanupInterval  time.Duration `env:"CLEANUP_INTERVAL" envDefault:"1h"`
}

type SessionConfig struct {
	MaxPerUser      int           `env:"MAX_PER_USER" envDefault:"5"`
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"1h"`
}

type RateLimitConfig struct {
	Store         string        `env:"STORE" envDefault:"memory"`
	Rate          int           `env:"RATE" envDefault:"20"`
	Window        time.Duration `env:"WINDOW" envDefault:"60s"`
	BurstRate     int           `env:"BURST_RATE" envDefault:"10"`
	BurstWindow   time.Duration `env:"BURST_WINDOW" envDefault:"10s"`
	RedisAddr     string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
}

type LockoutConfig struct {
	Threshold int           `env:"THRESHOLD" envDefault:"5"`
	Duration  time.Duration `env:"DURATION" envDefault:"30m"`
}

type TwoFactorConfig struct {
	Issuer          string `env:"ISSUER" envDefault:"LearnHive"`
	SecretSize      uint   `env:"SECRET_SIZE" envDefault:"20"`
	BackupCodeCount int    `env:"BACKUP_CODE_COUNT" envDefault:"10"`
}

type LoginAuditConfig struct {
	Retention       time.Duration `env:"RETENTION" envDefault:"2160h"`
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"24h"`
}

func LoadConfig(cfg any) error {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	return env.Parse(cfg)
}
