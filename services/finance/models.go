package finance

import (
	"time"

	"gorm.io/gorm"
)

// FinanceBackendAuthConfig holds how this service authenticates to one finance
// backend. The TOTP secret is only ever stored encrypted.
type FinanceBackendAuthConfig struct {
	gorm.Model
	ServiceName         string     `json:"service_name" gorm:"uniqueIndex;size:100;not null"`
	APIEndpoint         string     `json:"api_endpoint" gorm:"size:512;not null"`
	EncryptedTOTPSecret string     `json:"-" gorm:"type:text;not null"`
	TOTPInterval        uint       `json:"totp_interval" gorm:"not null;default:30"`
	IsActive            bool       `json:"is_active" gorm:"index;not null;default:true"`
	LastSuccessfulAuth  *time.Time `json:"last_successful_auth,omitempty"`
	LastFailedAuth      *time.Time `json:"last_failed_auth,omitempty"`
	FailedAttempts      int        `json:"failed_attempts" gorm:"not null;default:0"`
}

func (FinanceBackendAuthConfig) TableName() string {
	return "finance_backend_auth_configs"
}

// PublicConfig is the administrator view. It never carries the secret.
type PublicConfig struct {
	ID                 uint       `json:"id"`
	ServiceName        string     `json:"service_name"`
	APIEndpoint        string     `json:"api_endpoint"`
	TOTPInterval       uint       `json:"totp_interval"`
	IsActive           bool       `json:"is_active"`
	LastSuccessfulAuth *time.Time `json:"last_successful_auth,omitempty"`
	LastFailedAuth     *time.Time `json:"last_failed_auth,omitempty"`
	FailedAttempts     int        `json:"failed_attempts"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

func (c *FinanceBackendAuthConfig) Public() PublicConfig {
	return PublicConfig{
		ID:                 c.ID,
		ServiceName:        c.ServiceName,
		APIEndpoint:        c.APIEndpoint,
		TOTPInterval:       c.TOTPInterval,
		IsActive:           c.IsActive,
		LastSuccessfulAuth: c.LastSuccessfulAuth,
		LastFailedAuth:     c.LastFailedAuth,
		FailedAttempts:     c.FailedAttempts,
		CreatedAt:          c.CreatedAt,
		UpdatedAt:          c.UpdatedAt,
	}
}

// LimitInfo is the spending limit the backend reports for an owner. Found is
// false when the backend has no record for the owner.
type LimitInfo struct {
	Found      bool       `json:"found"`
	CorID      string     `json:"cor_id"`
	DailyLimit float64    `json:"daily_limit"`
	Remaining  float64    `json:"remaining"`
	Currency   string     `json:"currency,omitempty"`
	ResetsAt   *time.Time `json:"resets_at,omitempty"`
}

func (l *LimitInfo) CanSpend() bool {
	return l != nil && l.Found && l.Remaining > 0
}

type DebitResult struct {
	TransactionID string  `json:"transaction_id"`
	Amount        float64 `json:"amount"`
	Remaining     float64 `json:"remaining"`
	Reference     string  `json:"reference,omitempty"`
}
