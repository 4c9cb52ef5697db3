package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tech-arch1tect/fuelqr/services/logging"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")
	ErrInvalidCorID    = errors.New("cor_id is required")
)

type Service struct {
	db     *gorm.DB
	logger *logging.Service
}

func NewService(db *gorm.DB, logger *logging.Service) *Service {
	return &Service{
		db:     db,
		logger: logger,
	}
}

func (s *Service) Create(ctx context.Context, corID, displayName string) (*Account, error) {
	corID = strings.TrimSpace(corID)
	if corID == "" {
		return nil, ErrInvalidCorID
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&Account{}).Where("cor_id = ?", corID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to check existing account: %w", err)
	}
	if count > 0 {
		return nil, ErrAccountExists
	}

	account := &Account{
		CorID:       corID,
		DisplayName: displayName,
		Active:      true,
	}
	if err := s.db.WithContext(ctx).Create(account).Error; err != nil {
		s.logger.Error("failed to create account", zap.String("cor_id", corID), zap.Error(err))
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	s.logger.Info("account created", zap.String("cor_id", corID))
	return account, nil
}

func (s *Service) Get(ctx context.Context, corID string) (*Account, error) {
	var account Account
	if err := s.db.WithContext(ctx).Where("cor_id = ?", corID).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return &account, nil
}

// IsActive reports false for unknown accounts as well as deactivated ones.
func (s *Service) IsActive(ctx context.Context, corID string) (bool, error) {
	account, err := s.Get(ctx, corID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return false, nil
		}
		return false, err
	}
	return account.Active, nil
}

func (s *Service) SetActive(ctx context.Context, corID string, active bool) (*Account, error) {
	result := s.db.WithContext(ctx).Model(&Account{}).
		Where("cor_id = ?", corID).
		Update("active", active)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update account: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrAccountNotFound
	}

	s.logger.Info("account status changed",
		zap.String("cor_id", corID),
		zap.Bool("active", active))

	return s.Get(ctx, corID)
}
