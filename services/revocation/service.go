package revocation

import (
	"context"
	"strings"
	"time"

	"github.com/tech-arch1tect/fuelqr/faults"
	"github.com/tech-arch1tect/fuelqr/services/jwt"
	"github.com/tech-arch1tect/fuelqr/services/logging"
	"go.uber.org/zap"
)

// Service withdraws pump, owner or admin tokens before they expire. A single
// token is revoked by its jti, a whole subject by an issued-before cutoff.
type Service struct {
	store  Store
	tokens *jwt.Service
	logger *logging.Service
	now    func() time.Time
}

func NewService(store Store, tokens *jwt.Service, logger *logging.Service) *Service {
	return &Service{
		store:  store,
		tokens: tokens,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// RevokeToken blocks the given bearer token. The token must still parse, so
// expired or forged tokens are rejected as invalid input.
func (s *Service) RevokeToken(ctx context.Context, tokenString string) (*RevokedToken, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, faults.Validation("token", "token is required")
	}

	claims, err := s.tokens.ParseToken(tokenString)
	if err != nil {
		return nil, faults.Validation("token", err.Error())
	}
	if claims.ID == "" {
		return nil, faults.Validation("token", "token carries no jti")
	}

	entry := RevokedToken{
		JTI:       claims.ID,
		Subject:   claims.Subject,
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}
	if err := s.store.RevokeToken(ctx, entry); err != nil {
		s.logger.Error("failed to revoke token", zap.String("jti", entry.JTI), zap.Error(err))
		return nil, faults.Storage("revoke token", err)
	}

	s.logger.Info("token revoked",
		zap.String("jti", entry.JTI),
		zap.String("subject", entry.Subject),
		zap.String("role", string(claims.Role)),
		zap.Time("expires_at", entry.ExpiresAt))

	return &entry, nil
}

// RevokeSubject blocks every token already issued to subject. Token issue
// times have second precision, so tokens minted within the same second as
// the revocation are blocked too.
func (s *Service) RevokeSubject(ctx context.Context, subject string) (*SubjectRevocation, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, faults.Validation("subject", "subject is required")
	}

	cutoff := s.now()
	if err := s.store.RevokeSubject(ctx, subject, cutoff); err != nil {
		s.logger.Error("failed to revoke subject tokens", zap.String("subject", subject), zap.Error(err))
		return nil, faults.Storage("revoke subject", err)
	}

	s.logger.Info("subject tokens revoked",
		zap.String("subject", subject),
		zap.Time("issued_before", cutoff))

	return &SubjectRevocation{Subject: subject, IssuedBefore: cutoff}, nil
}

func (s *Service) IsRevoked(ctx context.Context, claims *jwt.Claims) (bool, error) {
	var issuedAt time.Time
	if claims.IssuedAt != nil {
		issuedAt = claims.IssuedAt.Time
	}
	return s.store.IsRevoked(ctx, claims.ID, claims.Subject, issuedAt)
}

func (s *Service) Cleanup(ctx context.Context) (int64, error) {
	removed, err := s.store.Cleanup(ctx, s.now())
	if err != nil {
		return 0, faults.Storage("revocation cleanup", err)
	}
	if removed > 0 {
		s.logger.Debug("cleaned up revoked tokens", zap.Int64("removed", removed))
	}
	return removed, nil
}

// StartCleanupWorker runs Cleanup on every tick until ctx is cancelled.
func (s *Service) StartCleanupWorker(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		s.logger.Warn("revocation cleanup worker disabled", zap.Duration("interval", interval))
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Cleanup(ctx); err != nil {
					s.logger.Error("revocation cleanup worker failed", zap.Error(err))
				}
			}
		}
	}()
}
