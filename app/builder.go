package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/tech-arch1tect/fuelqr/config"
	"github.com/tech-arch1tect/fuelqr/database"
	"github.com/tech-arch1tect/fuelqr/handlers"
	"github.com/tech-arch1tect/fuelqr/middleware/ratelimit"
	"github.com/tech-arch1tect/fuelqr/server"
	"github.com/tech-arch1tect/fuelqr/services/accounts"
	"github.com/tech-arch1tect/fuelqr/services/dispense"
	"github.com/tech-arch1tect/fuelqr/services/finance"
	"github.com/tech-arch1tect/fuelqr/services/jwt"
	"github.com/tech-arch1tect/fuelqr/services/logging"
	"github.com/tech-arch1tect/fuelqr/services/mail"
	"github.com/tech-arch1tect/fuelqr/services/qrsession"
	"github.com/tech-arch1tect/fuelqr/services/revocation"
	"github.com/tech-arch1tect/fuelqr/services/secretbox"
	"github.com/tech-arch1tect/fuelqr/services/totp"
	"go.uber.org/fx"
)

// Models lists every table the service owns.
func Models() []any {
	return []any{
		&accounts.Account{},
		&qrsession.QRSession{},
		&finance.FinanceBackendAuthConfig{},
		&dispense.FuelTransaction{},
		&ratelimit.RateLimitCounter{},
		&revocation.RevokedToken{},
		&revocation.SubjectRevocation{},
	}
}

type AppBuilder struct {
	config    *config.Config
	models    []any
	fxOptions []fx.Option
	listen    bool
	errors    []error
}

func NewApp() *AppBuilder {
	return &AppBuilder{
		models:    Models(),
		fxOptions: make([]fx.Option, 0),
		listen:    true,
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

// WithoutListener builds the full graph but never binds the HTTP port. Tests
// drive the echo instance directly.
func (b *AppBuilder) WithoutListener() *AppBuilder {
	b.listen = false
	return b
}

func (b *AppBuilder) WithModels(models ...any) *AppBuilder {
	b.models = append(b.models, models...)
	return b
}

func (b *AppBuilder) WithFxOptions(opts ...fx.Option) *AppBuilder {
	b.fxOptions = append(b.fxOptions, opts...)
	return b
}

func (b *AppBuilder) Build() (*App, error) {
	if b.config == nil && len(b.errors) == 0 {
		b.WithAutoConfig()
	}
	if len(b.errors) > 0 {
		return nil, fmt.Errorf("configuration errors: %w", errors.Join(b.errors...))
	}

	app := &App{}
	options := append(b.buildFxOptions(),
		fx.Populate(&app.config, &app.logger, &app.db, &app.server, &app.docs),
	)

	fxApp := fx.New(options...)
	if err := fxApp.Err(); err != nil {
		return nil, fmt.Errorf("failed to build application: %w", err)
	}
	app.fx = fxApp
	app.shutdownTimeout = app.config.Server.ShutdownTimeout
	if app.shutdownTimeout <= 0 {
		app.shutdownTimeout = 30 * time.Second
	}

	return app, nil
}

func (b *AppBuilder) addError(msg string) {
	b.errors = append(b.errors, errors.New(msg))
}

func (b *AppBuilder) buildFxOptions() []fx.Option {
	options := []fx.Option{
		fx.NopLogger,
		config.NewProvider(b.config),
		logging.Module,
		fx.Supply(database.WithModels(b.models...)),
		database.Module,
	}

	if b.listen {
		options = append(options, server.NewProvider())
	} else {
		options = append(options, fx.Provide(server.New))
	}

	options = append(options,
		totp.Module,
		secretbox.Module,
		accounts.Module,
		qrsession.Module,
		finance.Module,
		mail.Module,
		dispense.Module,
		jwt.Module,
		revocation.Module,
		ratelimit.Module,
		handlers.Module,
	)

	return append(options, b.fxOptions...)
}
