package jwt

import (
	"github.com/tech-arch1tect/fuelqr/config"
	"github.com/tech-arch1tect/fuelqr/services/logging"
	"go.uber.org/fx"
)

func NewJWTService(cfg *config.Config, logger *logging.Service) *Service {
	return NewService(cfg, logger.Named("jwt"))
}

type OptionalRevocationChecker struct {
	fx.In
	Checker RevocationChecker `optional:"true"`
}

func WireRevocationChecker(jwtSvc *Service, opt OptionalRevocationChecker) {
	if jwtSvc != nil && opt.Checker != nil {
		jwtSvc.SetRevocationChecker(opt.Checker)
	}
}

var Module = fx.Options(
	fx.Provide(NewJWTService),
	fx.Invoke(WireRevocationChecker),
)
