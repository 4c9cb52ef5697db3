package dispense

import (
	"time"

	"gorm.io/gorm"
)

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// FuelTransaction records the amount dispensed against one consumed QR session.
// There is at most one per session.
type FuelTransaction struct {
	gorm.Model
	TransactionID    string     `json:"transaction_id" gorm:"uniqueIndex;size:36;not null"`
	SessionToken     string     `json:"-" gorm:"uniqueIndex;size:128;not null"`
	CorID            string     `json:"cor_id" gorm:"index;size:64;not null"`
	Amount           float64    `json:"amount" gorm:"not null"`
	Status           string     `json:"status" gorm:"size:16;not null;index"`
	Device           string     `json:"device,omitempty" gorm:"size:255"`
	FinanceReference string     `json:"finance_reference,omitempty" gorm:"size:128"`
	RemainingLimit   *float64   `json:"remaining_limit,omitempty"`
	FailureReason    string     `json:"failure_reason,omitempty" gorm:"size:512"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

func (FuelTransaction) TableName() string {
	return "fuel_transactions"
}
