package logging

import (
	"context"

	"github.com/tech-arch1tect/fuelqr/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func NewLoggingService(cfg *config.Config) (*Service, error) {
	svc, err := NewService(Config{
		Level:      LogLevel(cfg.Log.Level),
		Format:     cfg.Log.Format,
		OutputPath: cfg.Log.Output,
	})
	if err != nil {
		return nil, err
	}
	return svc.With(
		zap.String("app", cfg.App.Name),
		zap.String("version", cfg.App.Version),
	), nil
}

// registerFlush syncs buffered entries on shutdown.
func registerFlush(lc fx.Lifecycle, logger *Service) {
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			_ = logger.Sync()
			return nil
		},
	})
}

var Module = fx.Options(
	fx.Provide(NewLoggingService),
	fx.Invoke(registerFlush),
)
