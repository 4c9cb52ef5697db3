package mail

import (
	"github.com/tech-arch1tect/fuelqr/config"
	"github.com/tech-arch1tect/fuelqr/services/finance"
	"github.com/tech-arch1tect/fuelqr/services/logging"
	"go.uber.org/fx"
)

func ProvideMailService(cfg *config.Config, logger *logging.Service) (*Service, error) {
	return NewService(cfg.Mail, cfg.App, logger.Named("mail"))
}

func ProvideAlerter(svc *Service) finance.Alerter {
	return svc
}

var Module = fx.Options(
	fx.Provide(ProvideMailService),
	fx.Provide(ProvideAlerter),
)
