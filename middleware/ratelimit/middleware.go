package ratelimit

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/fuelqr/config"
	"github.com/tech-arch1tect/fuelqr/services/logging"
	"go.uber.org/zap"
)

const failureKey = "_rate_limit_failure"

type Config struct {
	Name           string
	Store          Store
	Rate           int
	Period         time.Duration
	CountMode      config.CountingMode
	KeyGenerator   func(c echo.Context) string
	OnLimitReached func(c echo.Context) error
	Logger         *logging.Service
}

// MarkFailure flags the request as failed for counting purposes even though the
// response status is a success.
func MarkFailure(c echo.Context) {
	c.Set(failureKey, true)
}

func Middleware(cfg *Config) echo.MiddlewareFunc {
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}

	if cfg.Rate <= 0 {
		cfg.Rate = 10
	}

	if cfg.Period <= 0 {
		cfg.Period = time.Minute
	}

	if cfg.KeyGenerator == nil {
		cfg.KeyGenerator = DefaultKeyGenerator
	}

	if cfg.OnLimitReached == nil {
		cfg.OnLimitReached = DefaultOnLimitReached
	}

	if cfg.CountMode == "" {
		cfg.CountMode = config.CountAll
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			key := cfg.Name + ":" + cfg.KeyGenerator(c)
			resetTime := time.Now().UTC().Add(cfg.Period)

			count, existingReset, exists, err := cfg.Store.Get(ctx, key)
			if err != nil {
				cfg.Logger.Error("rate limit store unavailable, allowing request",
					zap.String("limiter", cfg.Name),
					zap.Error(err))
				return next(c)
			}
			if exists {
				resetTime = existingReset
			}

			setHeaders(c, cfg.Rate, cfg.Rate-count, resetTime)
			if count >= cfg.Rate {
				setHeaders(c, cfg.Rate, 0, resetTime)
				cfg.Logger.Warn("rate limit reached",
					zap.String("limiter", cfg.Name),
					zap.String("ip", c.RealIP()))
				return cfg.OnLimitReached(c)
			}

			if cfg.CountMode == config.CountAll {
				newCount, err := cfg.Store.Increment(ctx, key, resetTime)
				if err != nil {
					cfg.Logger.Error("failed to count request", zap.Error(err))
				} else {
					setHeaders(c, cfg.Rate, cfg.Rate-newCount, resetTime)
				}
				return next(c)
			}

			handlerErr := next(c)

			if shouldCount(c, cfg.CountMode, handlerErr) {
				if _, err := cfg.Store.Increment(ctx, key, resetTime); err != nil {
					cfg.Logger.Error("failed to count request", zap.Error(err))
				}
			}

			return handlerErr
		}
	}
}

func shouldCount(c echo.Context, mode config.CountingMode, handlerErr error) bool {
	status := c.Response().Status
	if handlerErr != nil {
		var httpErr *echo.HTTPError
		if errors.As(handlerErr, &httpErr) {
			status = httpErr.Code
		} else {
			status = http.StatusInternalServerError
		}
	}

	failed := status >= 400
	if flagged, ok := c.Get(failureKey).(bool); ok && flagged {
		failed = true
	}

	switch mode {
	case config.CountFailures:
		return failed
	case config.CountSuccess:
		return !failed
	default:
		return true
	}
}

func setHeaders(c echo.Context, limit, remaining int, reset time.Time) {
	h := c.Response().Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(max(remaining, 0)))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
}

func DefaultKeyGenerator(c echo.Context) string {
	realIP := c.RealIP()

	if realIP == "" || realIP == "unknown" {
		realIP = "fallback"
	}

	return "ip:" + realIP
}

func DefaultOnLimitReached(c echo.Context) error {
	return echo.NewHTTPError(http.StatusTooManyRequests, "Too Many Requests")
}
