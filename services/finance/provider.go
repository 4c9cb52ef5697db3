package finance

import (
	"github.com/tech-arch1tect/fuelqr/config"
	"github.com/tech-arch1tect/fuelqr/services/logging"
	"github.com/tech-arch1tect/fuelqr/services/secretbox"
	"github.com/tech-arch1tect/fuelqr/services/totp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func NewConfigServiceProvider(cfg *config.Config, db *gorm.DB, box *secretbox.Service, codes *totp.Service, logger *logging.Service) *ConfigService {
	return NewConfigService(db, box, codes, cfg.Finance.DefaultInterval, logger.Named("finance"))
}

type GatewayParams struct {
	fx.In

	Config  *config.Config
	Configs *ConfigService
	Codes   *totp.Service
	Alerter Alerter `optional:"true"`
	Logger  *logging.Service
}

func NewGatewayProvider(p GatewayParams) *Gateway {
	p.Logger.Info("initializing finance gateway",
		zap.String("service", p.Config.Finance.ServiceName),
		zap.Duration("timeout", p.Config.Finance.RequestTimeout),
		zap.Int("alert_threshold", p.Config.Finance.AlertThreshold))

	return NewGateway(GatewayConfig{
		ServiceName:    p.Config.Finance.ServiceName,
		RequestTimeout: p.Config.Finance.RequestTimeout,
		AlertThreshold: p.Config.Finance.AlertThreshold,
	}, p.Configs, p.Codes, p.Alerter, p.Logger.Named("gateway"))
}

var Module = fx.Options(
	fx.Provide(NewConfigServiceProvider),
	fx.Provide(NewGatewayProvider),
)
