package revocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DatabaseStore shares revocations between every instance behind the same database.
type DatabaseStore struct {
	db *gorm.DB
}

func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	return &DatabaseStore{db: db}
}

func (s *DatabaseStore) RevokeToken(ctx context.Context, entry RevokedToken) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "jti"}},
			DoNothing: true,
		}).
		Create(&entry).Error
	if err != nil {
		return fmt.Errorf("failed to store revoked token: %w", err)
	}
	return nil
}

func (s *DatabaseStore) RevokeSubject(ctx context.Context, subject string, issuedBefore time.Time) error {
	entry := SubjectRevocation{Subject: subject, IssuedBefore: issuedBefore}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "subject"}},
			DoUpdates: clause.AssignmentColumns([]string{"issued_before", "updated_at"}),
		}).
		Create(&entry).Error
	if err != nil {
		return fmt.Errorf("failed to store subject revocation: %w", err)
	}
	return nil
}

func (s *DatabaseStore) IsRevoked(ctx context.Context, jti, subject string, issuedAt time.Time) (bool, error) {
	db := s.db.WithContext(ctx)

	if jti != "" {
		var count int64
		if err := db.Model(&RevokedToken{}).Where("jti = ?", jti).Count(&count).Error; err != nil {
			return false, fmt.Errorf("failed to look up revoked token: %w", err)
		}
		if count > 0 {
			return true, nil
		}
	}

	var cutoff SubjectRevocation
	err := db.Where("subject = ?", subject).First(&cutoff).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to look up subject revocation: %w", err)
	}
	return issuedAt.Before(cutoff.IssuedBefore), nil
}

func (s *DatabaseStore) Cleanup(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at <= ?", now.UTC()).Delete(&RevokedToken{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to clean up revoked tokens: %w", res.Error)
	}
	return res.RowsAffected, nil
}
