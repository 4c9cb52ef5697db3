package revocation

import (
	"context"
	"fmt"

	"github.com/tech-arch1tect/fuelqr/config"
	"github.com/tech-arch1tect/fuelqr/services/jwt"
	"github.com/tech-arch1tect/fuelqr/services/logging"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func NewStore(cfg *config.RevocationConfig, db *gorm.DB) (Store, error) {
	switch cfg.Store {
	case "memory":
		return NewMemoryStore(), nil
	case "", "database":
		if db == nil {
			return nil, fmt.Errorf("database revocation store requires a database connection")
		}
		return NewDatabaseStore(db), nil
	default:
		return nil, fmt.Errorf("unsupported revocation store: %s", cfg.Store)
	}
}

func ProvideStore(cfg *config.Config, db *gorm.DB, logger *logging.Service) (Store, error) {
	logger.Info("initializing token revocation store", zap.String("store", cfg.Revocation.Store))
	return NewStore(&cfg.Revocation, db)
}

func ProvideService(store Store, tokens *jwt.Service, logger *logging.Service) *Service {
	return NewService(store, tokens, logger.Named("revocation"))
}

func ProvideAsRevocationChecker(svc *Service) jwt.RevocationChecker {
	return svc
}

// RegisterCleanupWorker runs one cleanup at startup and keeps the worker alive
// until shutdown.
func RegisterCleanupWorker(lc fx.Lifecycle, cfg *config.Config, svc *Service, logger *logging.Service) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(start context.Context) error {
			if _, err := svc.Cleanup(start); err != nil {
				logger.Warn("initial revocation cleanup failed", zap.Error(err))
			}
			svc.StartCleanupWorker(ctx, cfg.Revocation.CleanupInterval)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

var Module = fx.Options(
	fx.Provide(ProvideStore),
	fx.Provide(ProvideService),
	fx.Provide(ProvideAsRevocationChecker),
	fx.Invoke(RegisterCleanupWorker),
)
