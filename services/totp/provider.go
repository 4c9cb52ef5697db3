package totp

import (
	"github.com/tech-arch1tect/fuelqr/config"
	"github.com/tech-arch1tect/fuelqr/services/logging"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func NewProvider(cfg *config.Config, logger *logging.Service) *Service {
	logger.Info("initializing TOTP service",
		zap.Uint("period", cfg.QR.TOTPInterval),
		zap.Uint("window", cfg.QR.TOTPWindow))

	return NewService(cfg.QR.TOTPInterval, logger.Named("totp"))
}

var Module = fx.Options(
	fx.Provide(NewProvider),
)
