package database

import (
	"context"
	"fmt"

	"github.com/tech-arch1tect/fuelqr/config"
	"github.com/tech-arch1tect/fuelqr/services/logging"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type moduleParams struct {
	fx.In

	Config *config.Config
	Models *ModelsOption `optional:"true"`
	Logger *logging.Service
}

func provideModuleDatabase(p moduleParams) (*gorm.DB, error) {
	return ProvideDatabase(*p.Config, p.Models, p.Logger.Named("database"))
}

// registerPool pings the pool on start and closes it on stop.
func registerPool(lc fx.Lifecycle, db *gorm.DB, logger *logging.Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return fmt.Errorf("failed to access database pool: %w", err)
			}
			if err := sqlDB.PingContext(ctx); err != nil {
				return fmt.Errorf("database is unreachable: %w", err)
			}
			return nil
		},
		OnStop: func(context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			if err := sqlDB.Close(); err != nil {
				logger.Error("failed to close database", zap.Error(err))
				return err
			}
			return nil
		},
	})
}

var Module = fx.Options(
	fx.Provide(provideModuleDatabase),
	fx.Invoke(registerPool),
)
