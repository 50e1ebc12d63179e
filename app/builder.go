package app

import (
	"fmt"

	"github.com/learnhive/authcore/config"
	"github.com/learnhive/authcore/database"
	"github.com/learnhive/authcore/server"
	"github.com/learnhive/authcore/services/accesstoken"
	"github.com/learnhive/authcore/services/authflow"
	"github.com/learnhive/authcore/services/lockout"
	"github.com/learnhive/authcore/services/loginaudit"
	"github.com/learnhive/authcore/services/logging"
	"github.com/learnhive/authcore/services/password"
	"github.com/learnhive/authcore/services/ratelimit"
	"github.com/learnhive/authcore/services/refreshtoken"
	"github.com/learnhive/authcore/services/sessions"
	"github.com/learnhive/authcore/services/twofactor"
	"github.com/learnhive/authcore/services/users"
	"go.uber.org/fx"
)

type AppBuilder struct {
	config    *config.Config
	services  map[string]bool
	models    []any
	fxOptions []fx.Option
	errors    []error
}

func NewApp() *AppBuilder {
	return &AppBuilder{
		services:  make(map[string]bool),
		models:    make([]any, 0),
		fxOptions: make([]fx.Option, 0),
		errors:    make([]error, 0),
	}
}

func (b *AppBuilder) WithConfig(cfg *config.Config) *AppBuilder {
	if cfg == nil {
		b.addError("config cannot be nil")
		return b
	}
	b.config = cfg
	return b
}

func (b *AppBuilder) WithAutoConfig() *AppBuilder {
	cfg := &config.Config{}
	if err := config.LoadConfig(cfg); err != nil {
		b.addError(fmt.Sprintf("failed to load config: %v", err))
		return b
	}
	b.config = cfg
	return b
}

func (b *AppBuilder) WithDatabase(models ...any) *AppBuilder {
	b.services["database"] = true
	b.models = append(b.models, models...)
	return b
}

// WithAuth wires the full authentication stack: credentials, tokens,
// sessions, rate limiting, lockout, two-factor and audit.
func (b *AppBuilder) WithAuth() *AppBuilder {
	b.services["auth"] = true
	b.services["database"] = true
	b.models = append(b.models,
		&users.User{},
		&refreshtoken.RefreshToken{},
		&sessions.Session{},
		&lockout.AccountLockout{},
		&twofactor.BackupCode{},
		&twofactor.UsedCode{},
		&loginaudit.LoginAttempt{},
	)
	return b
}

func (b *AppBuilder) WithServer() *AppBuilder {
	b.services["server"] = true
	return b
}

func (b *AppBuilder) WithFxOptions(opts ...fx.Option) *AppBuilder {
	b.fxOptions = append(b.fxOptions, opts...)
	return b
}

func (b *AppBuilder) Build() (*App, error) {
	if len(b.errors) > 0 {
		return nil, fmt.Errorf("configuration errors: %v", b.errors)
	}

	if b.config == nil {
		if b.WithAutoConfig(); len(b.errors) > 0 {
			return nil, fmt.Errorf("configuration errors: %v", b.errors)
		}
	}

	logger, err := logging.NewService(logging.Config{
		Level:      logging.LogLevel(b.config.Log.Level),
		Format:     b.config.Log.Format,
		OutputPath: b.config.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	options := []fx.Option{
		fx.Supply(b.config),
		fx.Supply(logger),
		fx.NopLogger,
	}

	if b.services["database"] {
		options = append(options,
			fx.Supply(database.WithModels(b.models...)),
			database.Module,
		)
	}

	if b.services["auth"] {
		options = append(options,
			users.Module,
			password.Module,
			accesstoken.Module,
			refreshtoken.Module,
			sessions.Module,
			ratelimit.Module,
			lockout.Module,
			twofactor.Module,
			loginaudit.Module,
			authflow.Module,
		)
	}

	if b.services["server"] {
		options = append(options, server.NewProvider())
	}

	options = append(options, b.fxOptions...)

	app := &App{
		config: b.config,
		logger: logger,
	}
	app.fx = fx.New(options...)

	return app, nil
}

func (b *AppBuilder) addError(msg string) {
	b.errors = append(b.errors, fmt.Errorf("%s", msg))
}
