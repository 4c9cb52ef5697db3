package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/tech-arch1tect/fuelqr/config"
	"github.com/tech-arch1tect/fuelqr/services/logging"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func NewStore(cfg *config.RateLimitConfig, db *gorm.DB) (Store, error) {
	switch cfg.Store {
	case "", "memory":
		return NewMemoryStore(), nil
	case "database":
		if db == nil {
			return nil, fmt.Errorf("database rate limit store requires a database connection")
		}
		return NewDatabaseStore(db), nil
	default:
		return nil, fmt.Errorf("unsupported rate limit store: %s", cfg.Store)
	}
}

func ProvideRateLimitStore(cfg *config.Config, db *gorm.DB, logger *logging.Service) (Store, error) {
	logger.Info("initializing rate limit store", zap.String("store", cfg.RateLimit.Store))
	return NewStore(&cfg.RateLimit, db)
}

// RegisterCleanup sweeps closed windows at startup and then on every
// RATE_LIMIT_CLEANUP_INTERVAL until shutdown.
func RegisterCleanup(lc fx.Lifecycle, cfg *config.Config, store Store, logger *logging.Service) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	sweep := func(ctx context.Context) {
		removed, err := store.Cleanup(ctx)
		if err != nil {
			logger.Warn("failed to clean up rate limit counters", zap.Error(err))
			return
		}
		if removed > 0 {
			logger.Debug("cleaned up rate limit counters", zap.Int64("removed", removed))
		}
	}

	lc.Append(fx.Hook{
		OnStart: func(start context.Context) error {
			sweep(start)

			interval := cfg.RateLimit.CleanupInterval
			if interval <= 0 {
				close(done)
				return nil
			}

			go func() {
				defer close(done)
				ticker := time.NewTicker(interval)
				defer ticker.Stop()

				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						sweep(ctx)
					}
				}
			}()
			return nil
		},
		OnStop: func(stop context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stop.Done():
			}
			return nil
		},
	})
}

var Module = fx.Options(
	fx.Provide(ProvideRateLimitStore),
	fx.Invoke(RegisterCleanup),
)
