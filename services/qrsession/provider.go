package qrsession

import (
	"context"

	"github.com/tech-arch1tect/fuelqr/config"
	"github.com/tech-arch1tect/fuelqr/services/accounts"
	"github.com/tech-arch1tect/fuelqr/services/logging"
	"github.com/tech-arch1tect/fuelqr/services/totp"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func NewProvider(cfg *config.Config, db *gorm.DB, codes *totp.Service, accountSvc *accounts.Service, logger *logging.Service) (*Service, error) {
	return NewService(cfg, db, codes, accountSvc, logger.Named("qrsession"))
}

// RegisterPurgeWorker ties the purge loop to the application lifecycle.
func RegisterPurgeWorker(lc fx.Lifecycle, cfg *config.Config, svc *Service) {
	ctx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			svc.StartPurgeWorker(ctx, cfg.QR.PurgeInterval, cfg.QR.PurgeRetention)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

var Module = fx.Options(
	fx.Provide(NewProvider),
	fx.Invoke(RegisterPurgeWorker),
)
