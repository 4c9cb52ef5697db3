package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Service is a nil-safe wrapper over zap. A nil *Service discards everything,
// so components built without a logger (CLI commands, tests) need no guards.
type Service struct {
	logger *zap.Logger
}

type LogLevel string

const (
	Debug LogLevel = "debug"
	Info  LogLevel = "info"
	Warn  LogLevel = "warn"
	Error LogLevel = "error"
)

type Config struct {
	Level      LogLevel
	Format     string
	OutputPath string
}

func NewService(config Config) (*Service, error) {
	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = zap.NewAtomicLevelAt(parseLogLevel(config.Level))
	zapConfig.EncoderConfig.TimeKey = "ts"
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if strings.EqualFold(config.Format, "console") {
		zapConfig.Encoding = "console"
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	switch config.OutputPath {
	case "", "stdout":
	case "stderr":
		zapConfig.OutputPaths = []string{"stderr"}
	default:
		zapConfig.OutputPaths = []string{config.OutputPath}
	}

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}
	return &Service{logger: logger}, nil
}

// NewFromZap wraps an existing zap logger, mostly for tests using zaptest/observer.
func NewFromZap(logger *zap.Logger) *Service {
	return &Service{logger: logger}
}

func (s *Service) Logger() *zap.Logger {
	if s != nil {
		return s.logger
	}
	return nil
}

// Named returns a child logger tagged with the component name.
func (s *Service) Named(component string) *Service {
	if s == nil || s.logger == nil {
		return s
	}
	return &Service{logger: s.logger.Named(component)}
}

// With returns a child logger that attaches fields to every entry.
func (s *Service) With(fields ...zap.Field) *Service {
	if s == nil || s.logger == nil {
		return s
	}
	return &Service{logger: s.logger.With(fields...)}
}

func (s *Service) log(level zapcore.Level, msg string, fields []zap.Field) {
	if s == nil || s.logger == nil {
		return
	}
	if ce := s.logger.Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
}

func (s *Service) Debug(msg string, fields ...zap.Field) { s.log(zapcore.DebugLevel, msg, fields) }
func (s *Service) Info(msg string, fields ...zap.Field)  { s.log(zapcore.InfoLevel, msg, fields) }
func (s *Service) Warn(msg string, fields ...zap.Field)  { s.log(zapcore.WarnLevel, msg, fields) }
func (s *Service) Error(msg string, fields ...zap.Field) { s.log(zapcore.ErrorLevel, msg, fields) }

func (s *Service) Sync() error {
	if s != nil && s.logger != nil {
		return s.logger.Sync()
	}
	return nil
}

// TokenField logs a one-time token as a short digest so it never lands in log storage verbatim.
func TokenField(key, token string) zap.Field {
	sum := sha256.Sum256([]byte(token))
	return zap.String(key, hex.EncodeToString(sum[:6]))
}

func parseLogLevel(level LogLevel) zapcore.Level {
	parsed, err := zapcore.ParseLevel(strings.ToLower(string(level)))
	if err != nil || parsed > zapcore.ErrorLevel {
		return zapcore.InfoLevel
	}
	return parsed
}
