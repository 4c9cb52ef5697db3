package revocation

import (
	"context"
	"sync"
	"time"
)

// RevokedToken blocks a single bearer token until it would have expired anyway.
type RevokedToken struct {
	ID        uint      `json:"-" gorm:"primarykey"`
	CreatedAt time.Time `json:"revoked_at"`
	JTI       string    `json:"jti" gorm:"uniqueIndex;size:64;not null"`
	Subject   string    `json:"subject" gorm:"index;size:128"`
	ExpiresAt time.Time `json:"expires_at" gorm:"index;not null"`
}

func (RevokedToken) TableName() string {
	return "revoked_tokens"
}

// SubjectRevocation blocks every token of a subject issued before IssuedBefore.
type SubjectRevocation struct {
	Subject      string    `json:"subject" gorm:"primaryKey;size:128"`
	IssuedBefore time.Time `json:"issued_before" gorm:"not null"`
	UpdatedAt    time.Time `json:"-"`
}

func (SubjectRevocation) TableName() string {
	return "subject_revocations"
}

type Store interface {
	// RevokeToken is idempotent per jti.
	RevokeToken(ctx context.Context, entry RevokedToken) error

	// RevokeSubject moves the subject's cutoff to issuedBefore.
	RevokeSubject(ctx context.Context, subject string, issuedBefore time.Time) error

	IsRevoked(ctx context.Context, jti, subject string, issuedAt time.Time) (bool, error)

	// Cleanup drops token entries whose tokens have expired by now.
	Cleanup(ctx context.Context, now time.Time) (int64, error)
}

type MemoryStore struct {
	mu       sync.RWMutex
	tokens   map[string]time.Time
	subjects map[string]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tokens:   make(map[string]time.Time),
		subjects: make(map[string]time.Time),
	}
}

func (m *MemoryStore) RevokeToken(_ context.Context, entry RevokedToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tokens[entry.JTI]; !exists {
		m.tokens[entry.JTI] = entry.ExpiresAt
	}
	return nil
}

func (m *MemoryStore) RevokeSubject(_ context.Context, subject string, issuedBefore time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.subjects[subject] = issuedBefore
	return nil
}

func (m *MemoryStore) IsRevoked(_ context.Context, jti, subject string, issuedAt time.Time) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, exists := m.tokens[jti]; exists && jti != "" {
		return true, nil
	}
	if cutoff, exists := m.subjects[subject]; exists && issuedAt.Before(cutoff) {
		return true, nil
	}
	return false, nil
}

func (m *MemoryStore) Cleanup(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for jti, expiresAt := range m.tokens {
		if !expiresAt.After(now) {
			delete(m.tokens, jti)
			removed++
		}
	}
	return removed, nil
}
