package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	App        AppConfig        `envPrefix:"APP_"`
	Server     ServerConfig     `envPrefix:"SERVER_"`
	Log        LogConfig        `envPrefix:"LOG_"`
	Database   DatabaseConfig   `envPrefix:"DATABASE_"`
	JWT        JWTConfig        `envPrefix:"JWT_"`
	QR         QRConfig         `envPrefix:"QR_"`
	Finance    FinanceConfig    `envPrefix:"FINANCE_"`
	Encryption EncryptionConfig `envPrefix:"ENCRYPTION_"`
	RateLimit  RateLimitConfig  `envPrefix:"RATE_LIMIT_"`
	Revocation RevocationConfig `envPrefix:"REVOCATION_"`
	Mail       MailConfig       `envPrefix:"MAIL_"`
}

type AppConfig struct {
	Name    string `env:"NAME" envDefault:"fuelqr"`
	URL     string `env:"URL" envDefault:"http://localhost:8080"`
	Version string `env:"VERSION" envDefault:"dev"`
}

type ServerConfig struct {
	Port           string   `env:"PORT" envDefault:"8080"`
	Host           string   `env:"HOST" envDefault:"localhost"`
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
	Output string `env:"OUTPUT" envDefault:"stdout"`
}

type DatabaseConfig struct {
	Driver      string `env:"DRIVER" envDefault:"sqlite"`
	DSN         string `env:"DSN" envDefault:"fuelqr.db"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`

	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"30m"`
}

type JWTConfig struct {
	SecretKey string `env:"SECRET_KEY"`
	Issuer    string `env:"ISSUER" envDefault:"fuelqr"`
	Algorithm string `env:"ALGORITHM" envDefault:"HS256"`
}

type QRConfig struct {
	// TOTPSecret is the base32 shared secret the QR codes are derived from.
	TOTPSecret       string        `env:"TOTP_SECRET"`
	TOTPInterval     uint          `env:"TOTP_INTERVAL" envDefault:"30"`
	TOTPWindow       uint          `env:"TOTP_WINDOW" envDefault:"3"`
	TimestampKey     string        `env:"TIMESTAMP_KEY"`
	MaxTimestampAge  time.Duration `env:"MAX_TIMESTAMP_AGE" envDefault:"30m"`
	DefaultValidity  int           `env:"DEFAULT_VALIDITY_MINUTES" envDefault:"5"`
	LockTTL          time.Duration `env:"LOCK_TTL" envDefault:"45s"`
	PurgeInterval    time.Duration `env:"PURGE_INTERVAL" envDefault:"1h"`
	PurgeRetention   time.Duration `env:"PURGE_RETENTION" envDefault:"168h"`
	TokenBytes       int           `env:"TOKEN_BYTES" envDefault:"32"`
	HistoryPageLimit int           `env:"HISTORY_PAGE_LIMIT" envDefault:"20"`
}

type FinanceConfig struct {
	ServiceName     string        `env:"SERVICE_NAME" envDefault:"finance-backend"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	AlertThreshold  int           `env:"ALERT_THRESHOLD" envDefault:"3"`
	DefaultInterval uint          `env:"DEFAULT_TOTP_INTERVAL" envDefault:"30"`
}

type EncryptionConfig struct {
	// Key is a base64 encoded 32 byte key.
	Key string `env:"KEY"`
}

type CountingMode string

const (
	CountAll      CountingMode = "all"
	CountFailures CountingMode = "failures"
	CountSuccess  CountingMode = "success"
)

type RateLimitConfig struct {
	Store        string        `env:"STORE" envDefault:"memory"`
	VerifyRate   int           `env:"VERIFY_RATE" envDefault:"20"`
	VerifyPeriod time.Duration `env:"VERIFY_PERIOD" envDefault:"1m"`
	VerifyMode   CountingMode  `env:"VERIFY_MODE" envDefault:"failures"`
	IssueRate    int           `env:"ISSUE_RATE" envDefault:"10"`
	IssuePeriod  time.Duration `env:"ISSUE_PERIOD" envDefault:"1m"`

	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"5m"`
}

type RevocationConfig struct {
	Store           string        `env:"STORE" envDefault:"database"`
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"1h"`
}

type MailConfig struct {
	Enabled     bool     `env:"ENABLED" envDefault:"false"`
	Host        string   `env:"HOST" envDefault:"localhost"`
	Port        int      `env:"PORT" envDefault:"587"`
	Username    string   `env:"USERNAME"`
	Password    string   `env:"PASSWORD"`
	Encryption  string   `env:"ENCRYPTION" envDefault:"starttls"`
	FromAddress string   `env:"FROM_ADDRESS"`
	FromName    string   `env:"FROM_NAME" envDefault:"fuelqr"`
	AlertTo     []string `env:"ALERT_TO" envSeparator:","`
}

func LoadConfig(cfg any) error {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	if err := env.Parse(cfg); err != nil {
		return err
	}

	if c, ok := cfg.(*Config); ok {
		return Validate(c)
	}

	return nil
}

// Validate checks cross-field constraints that env tags cannot express.
func Validate(cfg *Config) error {
	if err := validateJWTConfig(&cfg.JWT); err != nil {
		return err
	}
	if err := validateQRConfig(&cfg.QR); err != nil {
		return err
	}
	if err := validateRateLimitConfig(&cfg.RateLimit); err != nil {
		return err
	}
	if err := validateRevocationConfig(&cfg.Revocation); err != nil {
		return err
	}
	return nil
}

func validateJWTConfig(cfg *JWTConfig) error {
	if len(cfg.SecretKey) < 32 {
		return fmt.Errorf("JWT secret key must be at least 32 characters long")
	}

	lower := strings.ToLower(cfg.SecretKey)
	for _, weak := range []string{"password", "secret", "test", "example", "default", "change"} {
		if strings.Contains(lower, weak) {
			return fmt.Errorf("JWT secret key contains weak patterns")
		}
	}

	if cfg.Algorithm != "HS256" {
		return fmt.Errorf("JWT algorithm %q is not supported (supported: HS256)", cfg.Algorithm)
	}

	return nil
}

func validateQRConfig(cfg *QRConfig) error {
	if cfg.TOTPInterval == 0 {
		return fmt.Errorf("QR TOTP interval must be greater than zero")
	}
	if cfg.DefaultValidity < 1 || cfg.DefaultValidity > 30 {
		return fmt.Errorf("QR default validity must be between 1 and 30 minutes")
	}
	if cfg.MaxTimestampAge <= 0 {
		return fmt.Errorf("QR max timestamp age must be positive")
	}
	if cfg.TokenBytes < 16 {
		return fmt.Errorf("QR session token must be at least 16 bytes")
	}
	return nil
}

func validateRateLimitConfig(cfg *RateLimitConfig) error {
	switch cfg.Store {
	case "memory", "database":
	default:
		return fmt.Errorf("rate limit store must be: memory or database")
	}

	switch cfg.VerifyMode {
	case CountAll, CountFailures, CountSuccess:
	default:
		return fmt.Errorf("rate limit counting mode must be: all, failures, or success")
	}

	return nil
}

func validateRevocationConfig(cfg *RevocationConfig) error {
	switch cfg.Store {
	case "memory", "database":
		return nil
	default:
		return fmt.Errorf("revocation store must be: memory or database")
	}
}
