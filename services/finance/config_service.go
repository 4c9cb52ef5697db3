package finance

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tech-arch1tect/fuelqr/faults"
	"github.com/tech-arch1tect/fuelqr/services/logging"
	"github.com/tech-arch1tect/fuelqr/services/secretbox"
	"github.com/tech-arch1tect/fuelqr/services/totp"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrConfigNotFound = errors.New("finance backend configuration not found")
	ErrConfigExists   = errors.New("finance backend configuration already exists")
)

type CreateConfigInput struct {
	ServiceName  string `json:"service_name"`
	APIEndpoint  string `json:"api_endpoint"`
	TOTPSecret   string `json:"totp_secret"`
	TOTPInterval uint   `json:"totp_interval"`
}

// UpdateConfigInput changes only the fields that are set.
type UpdateConfigInput struct {
	APIEndpoint  *string `json:"api_endpoint,omitempty"`
	TOTPSecret   *string `json:"totp_secret,omitempty"`
	TOTPInterval *uint   `json:"totp_interval,omitempty"`
	IsActive     *bool   `json:"is_active,omitempty"`
}

type ConfigService struct {
	db              *gorm.DB
	box             *secretbox.Service
	codes           *totp.Service
	logger          *logging.Service
	defaultInterval uint
	now             func() time.Time
}

func NewConfigService(db *gorm.DB, box *secretbox.Service, codes *totp.Service, defaultInterval uint, logger *logging.Service) *ConfigService {
	if defaultInterval == 0 {
		defaultInterval = totp.DefaultPeriod
	}
	return &ConfigService{
		db:              db,
		box:             box,
		codes:           codes,
		logger:          logger,
		defaultInterval: defaultInterval,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

func validateEndpoint(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return faults.Validation("api_endpoint", "must be an absolute http or https URL")
	}
	return nil
}

func (s *ConfigService) validateSecret(secret string) error {
	if err := s.codes.ValidateSecret(secret); err != nil {
		return faults.Validation("totp_secret", "must be a non-empty base32 secret")
	}
	return nil
}

func (s *ConfigService) Create(ctx context.Context, in CreateConfigInput) (*FinanceBackendAuthConfig, error) {
	in.ServiceName = strings.TrimSpace(in.ServiceName)
	in.APIEndpoint = strings.TrimRight(strings.TrimSpace(in.APIEndpoint), "/")

	if in.ServiceName == "" {
		return nil, faults.Validation("service_name", "is required")
	}
	if err := validateEndpoint(in.APIEndpoint); err != nil {
		return nil, err
	}
	if err := s.validateSecret(in.TOTPSecret); err != nil {
		return nil, err
	}
	if in.TOTPInterval == 0 {
		in.TOTPInterval = s.defaultInterval
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&FinanceBackendAuthConfig{}).
		Where("service_name = ?", in.ServiceName).
		Count(&count).Error; err != nil {
		return nil, faults.Storage("finance_config_lookup", err)
	}
	if count > 0 {
		return nil, ErrConfigExists
	}

	encrypted, err := s.box.Encrypt(in.TOTPSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt TOTP secret: %w", err)
	}

	cfg := &FinanceBackendAuthConfig{
		ServiceName:         in.ServiceName,
		APIEndpoint:         in.APIEndpoint,
		EncryptedTOTPSecret: encrypted,
		TOTPInterval:        in.TOTPInterval,
		IsActive:            true,
	}
	if err := s.db.WithContext(ctx).Create(cfg).Error; err != nil {
		s.logger.Error("failed to create finance backend config",
			zap.String("service", in.ServiceName),
			zap.Error(err))
		return nil, faults.Storage("finance_config_create", err)
	}

	s.logger.Info("finance backend config created",
		zap.String("service", cfg.ServiceName),
		zap.String("endpoint", cfg.APIEndpoint))

	return cfg, nil
}

func (s *ConfigService) Get(ctx context.Context, serviceName string) (*FinanceBackendAuthConfig, error) {
	var cfg FinanceBackendAuthConfig
	if err := s.db.WithContext(ctx).Where("service_name = ?", serviceName).First(&cfg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConfigNotFound
		}
		return nil, faults.Storage("finance_config_get", err)
	}
	return &cfg, nil
}

func (s *ConfigService) GetActive(ctx context.Context, serviceName string) (*FinanceBackendAuthConfig, error) {
	var cfg FinanceBackendAuthConfig
	err := s.db.WithContext(ctx).
		Where("service_name = ? AND is_active = ?", serviceName, true).
		First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConfigNotFound
		}
		return nil, faults.Storage("finance_config_get", err)
	}
	return &cfg, nil
}

func (s *ConfigService) Update(ctx context.Context, serviceName string, in UpdateConfigInput) (*FinanceBackendAuthConfig, error) {
	cfg, err := s.Get(ctx, serviceName)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if in.APIEndpoint != nil {
		endpoint := strings.TrimRight(strings.TrimSpace(*in.APIEndpoint), "/")
		if err := validateEndpoint(endpoint); err != nil {
			return nil, err
		}
		updates["api_endpoint"] = endpoint
	}
	if in.TOTPSecret != nil {
		if err := s.validateSecret(*in.TOTPSecret); err != nil {
			return nil, err
		}
		encrypted, err := s.box.Encrypt(*in.TOTPSecret)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt TOTP secret: %w", err)
		}
		updates["encrypted_totp_secret"] = encrypted
		updates["failed_attempts"] = 0
	}
	if in.TOTPInterval != nil && *in.TOTPInterval > 0 {
		updates["totp_interval"] = *in.TOTPInterval
	}
	if in.IsActive != nil {
		updates["is_active"] = *in.IsActive
	}
	if len(updates) == 0 {
		return cfg, nil
	}

	if err := s.db.WithContext(ctx).Model(cfg).Updates(updates).Error; err != nil {
		return nil, faults.Storage("finance_config_update", err)
	}

	s.logger.Info("finance backend config updated", zap.String("service", serviceName))
	return s.Get(ctx, serviceName)
}

func (s *ConfigService) Deactivate(ctx context.Context, serviceName string) error {
	inactive := false
	_, err := s.Update(ctx, serviceName, UpdateConfigInput{IsActive: &inactive})
	return err
}

// Secret decrypts the stored TOTP secret. A secret that cannot be decrypted
// means the encryption key changed, which is a configuration problem.
func (s *ConfigService) Secret(cfg *FinanceBackendAuthConfig) (string, error) {
	secret, err := s.box.Decrypt(cfg.EncryptedTOTPSecret)
	if err != nil {
		s.logger.Error("failed to decrypt finance backend secret",
			zap.String("service", cfg.ServiceName),
			zap.Error(err))
		return "", faults.Configuration("finance", err)
	}
	return secret, nil
}

func (s *ConfigService) RecordSuccess(ctx context.Context, cfg *FinanceBackendAuthConfig) error {
	now := s.now()
	err := s.db.WithContext(ctx).Model(&FinanceBackendAuthConfig{}).
		Where("id = ?", cfg.ID).
		Updates(map[string]any{
			"failed_attempts":      0,
			"last_successful_auth": now,
		}).Error
	if err != nil {
		return faults.Storage("finance_record_success", err)
	}

	cfg.FailedAttempts = 0
	cfg.LastSuccessfulAuth = &now
	return nil
}

// RecordFailure increments the failure counter by one and returns the new count.
func (s *ConfigService) RecordFailure(ctx context.Context, cfg *FinanceBackendAuthConfig) (int, error) {
	now := s.now()
	err := s.db.WithContext(ctx).Model(&FinanceBackendAuthConfig{}).
		Where("id = ?", cfg.ID).
		Updates(map[string]any{
			"failed_attempts":  gorm.Expr("failed_attempts + ?", 1),
			"last_failed_auth": now,
		}).Error
	if err != nil {
		return 0, faults.Storage("finance_record_failure", err)
	}

	var reloaded FinanceBackendAuthConfig
	if err := s.db.WithContext(ctx).Select("id", "failed_attempts").First(&reloaded, cfg.ID).Error; err != nil {
		return 0, faults.Storage("finance_record_failure", err)
	}

	cfg.FailedAttempts = reloaded.FailedAttempts
	cfg.LastFailedAuth = &now
	return reloaded.FailedAttempts, nil
}
