package dispense

import (
	"github.com/tech-arch1tect/fuelqr/config"
	"github.com/tech-arch1tect/fuelqr/services/finance"
	"github.com/tech-arch1tect/fuelqr/services/logging"
	"github.com/tech-arch1tect/fuelqr/services/qrsession"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func NewProvider(cfg *config.Config, db *gorm.DB, sessions *qrsession.Service, gateway *finance.Gateway, logger *logging.Service) *Service {
	return NewService(Config{
		QRSecret: cfg.QR.TOTPSecret,
		LockTTL:  cfg.QR.LockTTL,
	}, db, sessions, gateway, logger.Named("dispense"))
}

var Module = fx.Options(
	fx.Provide(NewProvider),
)
