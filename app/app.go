package app

import (
	"context"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/fuelqr/config"
	"github.com/tech-arch1tect/fuelqr/openapi"
	"github.com/tech-arch1tect/fuelqr/server"
	"github.com/tech-arch1tect/fuelqr/services/logging"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	fx     *fx.App
	config *config.Config
	logger *logging.Service
	db     *gorm.DB
	server *server.Server
	docs   *openapi.OpenAPI

	shutdownTimeout time.Duration
}

func (a *App) Start(ctx context.Context) error {
	return a.fx.Start(ctx)
}

// Run starts the application and blocks until ctx is cancelled, then stops
// within the configured shutdown timeout.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}
	a.logger.Info("application started", zap.String("addr", a.server.ListenAddr()))

	<-ctx.Done()
	a.logger.Info("shutdown requested, stopping gracefully", zap.NamedError("cause", context.Cause(ctx)))

	return a.Stop(a.shutdownTimeout)
}

// Stop shuts the fx graph down. Hooks run in reverse start order, so the HTTP
// listener closes before workers and the database pool.
func (a *App) Stop(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := a.fx.Stop(ctx); err != nil {
		a.logger.Error("failed to stop application gracefully", zap.Error(err))
		return err
	}
	return nil
}

func (a *App) Echo() *echo.Echo {
	if a.server == nil {
		return nil
	}
	return a.server.Echo()
}

func (a *App) Server() *server.Server {
	return a.server
}

func (a *App) DB() *gorm.DB {
	return a.db
}

func (a *App) Logger() *logging.Service {
	return a.logger
}

func (a *App) Config() *config.Config {
	return a.config
}

func (a *App) Docs() *openapi.OpenAPI {
	return a.docs
}
