package secretbox

import (
	"github.com/tech-arch1tect/fuelqr/config"
	"github.com/tech-arch1tect/fuelqr/services/logging"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func NewProvider(cfg *config.Config, logger *logging.Service) (*Service, error) {
	svc, err := NewService(cfg.Encryption.Key)
	if err != nil {
		logger.Error("secret encryption unavailable", zap.Error(err))
		return nil, err
	}
	return svc, nil
}

var Module = fx.Options(
	fx.Provide(NewProvider),
)
