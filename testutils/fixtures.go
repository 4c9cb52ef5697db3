package testutils

import (
	"time"

	"github.com/tech-arch1tect/fuelqr/config"
)

const (
	TestQRSecret      = "JBSWY3DPEHPK3PXP"
	TestFinanceSecret = "KRUGS4ZANFZSAYJAORSXG5DJNZTSA43F"
	TestEncryptionKey = "MDEyMzQ1Njc4OWFiY2RlZjAxMjM0NTY3ODlhYmNkZWY="
	TestJWTKey        = "a1b2c3d4e5f6g7h8i9j0k1l2m3n4o5p6q7r8s9t0u1v2w3x4y5z6"
	TestTimestampKey  = "z9y8x7w6v5u4t3s2r1q0p9o8n7m6l5k4j3i2h1g0"
)

func GetTestConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Name:    "fuelqr test",
			URL:     "http://localhost:8080",
			Version: "test",
		},
		Server: config.ServerConfig{
			Host: "localhost",
			Port: "8080",

			ShutdownTimeout: 2 * time.Second,
		},
		Log: config.LogConfig{
			Level:  "error",
			Format: "json",
			Output: "stdout",
		},
		Database: config.DatabaseConfig{
			Driver:      "sqlite",
			DSN:         ":memory:",
			AutoMigrate: true,
		},
		JWT: config.JWTConfig{
			SecretKey: TestJWTKey,
			Issuer:    "fuelqr-test",
			Algorithm: "HS256",
		},
		QR: config.QRConfig{
			TOTPSecret:       TestQRSecret,
			TOTPInterval:     30,
			TOTPWindow:       3,
			TimestampKey:     TestTimestampKey,
			MaxTimestampAge:  30 * time.Minute,
			DefaultValidity:  5,
			LockTTL:          45 * time.Second,
			PurgeInterval:    time.Hour,
			PurgeRetention:   7 * 24 * time.Hour,
			TokenBytes:       32,
			HistoryPageLimit: 20,
		},
		Finance: config.FinanceConfig{
			ServiceName:     "finance-backend",
			RequestTimeout:  2 * time.Second,
			AlertThreshold:  3,
			DefaultInterval: 30,
		},
		Encryption: config.EncryptionConfig{
			Key: TestEncryptionKey,
		},
		RateLimit: config.RateLimitConfig{
			Store:        "memory",
			VerifyRate:   100,
			VerifyPeriod: time.Minute,
			VerifyMode:   config.CountFailures,
			IssueRate:    100,
			IssuePeriod:  time.Minute,

			CleanupInterval: time.Minute,
		},
		Revocation: config.RevocationConfig{
			Store:           "database",
			CleanupInterval: time.Hour,
		},
	}
}
