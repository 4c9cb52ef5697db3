package accounts

import (
	"github.com/tech-arch1tect/fuelqr/services/logging"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func NewProvider(db *gorm.DB, logger *logging.Service) *Service {
	return NewService(db, logger.Named("accounts"))
}

var Module = fx.Options(
	fx.Provide(NewProvider),
)
