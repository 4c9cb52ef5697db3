package qrsession

import (
	"time"
)

// QRSession is one issued QR code. Rows are only inserted and then flipped to
// used once; expired unused rows are eventually purged.
type QRSession struct {
	ID             uint       `json:"id" gorm:"primaryKey"`
	SessionToken   string     `json:"-" gorm:"uniqueIndex;size:128;not null"`
	OwnerIdentity  string     `json:"cor_id" gorm:"index;size:64;not null"`
	TOTPCode       string     `json:"-" gorm:"size:16;not null"`
	TimestampToken string     `json:"-" gorm:"type:text;not null"`
	CreatedAt      time.Time  `json:"created_at"`
	ExpiresAt      time.Time  `json:"expires_at" gorm:"index;not null"`
	IsUsed         bool       `json:"is_used" gorm:"index;not null;default:false"`
	UsedAt         *time.Time `json:"used_at,omitempty"`
	UsedByDevice   string     `json:"used_by_device,omitempty" gorm:"size:255"`
	UsedByPump     string     `json:"used_by_pump,omitempty" gorm:"index;size:64"`
	LockedUntil    *time.Time `json:"-"`
	LeaseID        string     `json:"-" gorm:"size:36"`
}

// Consumer identifies who consumed a session: the authenticated pump and a
// descriptive device label.
type Consumer struct {
	PumpID string
	Device string
}

func (QRSession) TableName() string {
	return "qr_sessions"
}

func (s *QRSession) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Status is the derived lifecycle state shown in history views.
func (s *QRSession) Status(now time.Time) string {
	switch {
	case s.IsUsed:
		return "consumed"
	case s.IsExpired(now):
		return "expired"
	default:
		return "issued"
	}
}
