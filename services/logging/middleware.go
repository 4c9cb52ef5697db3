package logging

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

type RequestLoggerConfig struct {
	// SkipPrefixes lists path prefixes that are never logged, e.g. /health.
	SkipPrefixes []string
	// Subject resolves the authenticated caller once the handler has run.
	Subject func(c echo.Context) string
	Role    func(c echo.Context) string
}

// RequestLogger emits one entry per request, leveled by response status.
func RequestLogger(logger *Service, cfg RequestLoggerConfig) echo.MiddlewareFunc {
	reqLog := logger.Named("http")

	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogError:     true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogUserAgent: true,
		LogRequestID: true,
		LogRoutePath: true,
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			for _, prefix := range cfg.SkipPrefixes {
				if strings.HasPrefix(path, prefix) {
					return true
				}
			}
			return false
		},
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("remote_ip", v.RemoteIP),
			}
			if v.RoutePath != "" {
				fields = append(fields, zap.String("route", v.RoutePath))
			}
			if v.UserAgent != "" {
				fields = append(fields, zap.String("user_agent", v.UserAgent))
			}
			if v.RequestID != "" {
				fields = append(fields, zap.String("request_id", v.RequestID))
			}
			fields = appendResolved(fields, c, "subject", cfg.Subject)
			fields = appendResolved(fields, c, "role", cfg.Role)
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}

			switch {
			case v.Status >= 500:
				reqLog.Error("server error", fields...)
			case v.Status >= 400:
				reqLog.Warn("client error", fields...)
			default:
				reqLog.Info("request", fields...)
			}
			return nil
		},
	})
}

func appendResolved(fields []zap.Field, c echo.Context, key string, resolve func(echo.Context) string) []zap.Field {
	if resolve == nil {
		return fields
	}
	if value := resolve(c); value != "" {
		fields = append(fields, zap.String(key, value))
	}
	return fields
}
