package accounts

import (
	"gorm.io/gorm"
)

// Account is the slice of the identity subsystem the fuel flow depends on.
type Account struct {
	gorm.Model
	CorID       string `json:"cor_id" gorm:"uniqueIndex;size:64;not null"`
	DisplayName string `json:"display_name" gorm:"size:255"`
	Active      bool   `json:"active" gorm:"not null;default:true"`
}

func (Account) TableName() string {
	return "accounts"
}
