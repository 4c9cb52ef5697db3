package qrsession

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tech-arch1tect/fuelqr/config"
	"github.com/tech-arch1tect/fuelqr/faults"
	"github.com/tech-arch1tect/fuelqr/services/logging"
	"github.com/tech-arch1tect/fuelqr/services/totp"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	MinValidityMinutes = 1
	MaxValidityMinutes = 30
)

var ErrSessionNotFound = errors.New("QR session not found")

type Reason string

const (
	ReasonValid            Reason = "VALID"
	ReasonInvalidFormat    Reason = "INVALID_FORMAT"
	ReasonSessionNotFound  Reason = "SESSION_NOT_FOUND"
	ReasonAlreadyUsed      Reason = "ALREADY_USED"
	ReasonExpired          Reason = "EXPIRED"
	ReasonTimestampInvalid Reason = "TIMESTAMP_INVALID"
	ReasonTOTPMismatch     Reason = "TOTP_MISMATCH"
	ReasonIdentityMismatch Reason = "IDENTITY_MISMATCH"
	ReasonInactiveAccount  Reason = "INACTIVE_ACCOUNT"
	ReasonSessionLocked    Reason = "SESSION_LOCKED"
	ReasonStorageError     Reason = "STORAGE_ERROR"
)

var reasonMessages = map[Reason]string{
	ReasonValid:            "QR code is valid",
	ReasonInvalidFormat:    "QR code data is not in a recognised format",
	ReasonSessionNotFound:  "QR code session was not found",
	ReasonAlreadyUsed:      "QR code already used",
	ReasonExpired:          "QR code has expired",
	ReasonTimestampInvalid: "QR code timestamp is invalid or too old",
	ReasonTOTPMismatch:     "QR code verification code does not match",
	ReasonIdentityMismatch: "QR code owner does not match the session",
	ReasonInactiveAccount:  "account is not active",
	ReasonSessionLocked:    "QR code is being processed by another scan",
	ReasonStorageError:     "QR code could not be checked, try again",
}

func (r Reason) Message() string {
	return reasonMessages[r]
}

// VerificationResult is returned for every verification attempt. Failures are
// results, not errors.
type VerificationResult struct {
	IsValid      bool      `json:"is_valid"`
	Reason       Reason    `json:"reason"`
	Message      string    `json:"message"`
	CorID        string    `json:"cor_id,omitempty"`
	SessionToken string    `json:"-"`
	ExpiresAt    time.Time `json:"-"`
}

func Reject(reason Reason) VerificationResult {
	return VerificationResult{Reason: reason, Message: reason.Message()}
}

// AccountChecker answers whether an owner may still fuel.
type AccountChecker interface {
	IsActive(ctx context.Context, corID string) (bool, error)
}

type IssuedQR struct {
	Payload          Payload `json:"payload"`
	QRString         string  `json:"qr_string"`
	SecondsRemaining int     `json:"totp_seconds_remaining"`
}

type Service struct {
	db         *gorm.DB
	codes      *totp.Service
	stamps     *timestampSigner
	accounts   AccountChecker
	logger     *logging.Service
	window     uint
	tokenBytes int
	now        func() time.Time
}

func NewService(cfg *config.Config, db *gorm.DB, codes *totp.Service, accounts AccountChecker, logger *logging.Service) (*Service, error) {
	stamps, err := newTimestampSigner(cfg.QR.TimestampKey, cfg.QR.MaxTimestampAge)
	if err != nil {
		return nil, faults.Configuration("qr", err)
	}

	tokenBytes := cfg.QR.TokenBytes
	if tokenBytes < 16 {
		tokenBytes = 32
	}

	return &Service{
		db:         db,
		codes:      codes,
		stamps:     stamps,
		accounts:   accounts,
		logger:     logger,
		window:     cfg.QR.TOTPWindow,
		tokenBytes: tokenBytes,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

func ClampValidity(minutes int) int {
	if minutes < MinValidityMinutes {
		return MinValidityMinutes
	}
	if minutes > MaxValidityMinutes {
		return MaxValidityMinutes
	}
	return minutes
}

func (s *Service) Issue(ctx context.Context, owner, secret string, validityMinutes int) (*IssuedQR, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return nil, faults.Validation("cor_id", "owner identity is required")
	}

	validity := ClampValidity(validityMinutes)
	issuedAt := s.now().Truncate(time.Second)

	code, err := s.codes.GenerateAt(secret, issuedAt)
	if err != nil {
		return nil, err
	}

	sessionToken, err := s.newSessionToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	stamp, err := s.stamps.Sign(owner, sessionToken, issuedAt)
	if err != nil {
		return nil, err
	}

	session := &QRSession{
		SessionToken:   sessionToken,
		OwnerIdentity:  owner,
		TOTPCode:       code,
		TimestampToken: stamp,
		CreatedAt:      issuedAt,
		ExpiresAt:      issuedAt.Add(time.Duration(validity) * time.Minute),
	}
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		s.logger.Error("failed to persist QR session",
			zap.String("cor_id", owner),
			zap.Error(err))
		return nil, faults.Storage("issue", err)
	}

	payload := Payload{
		CorID:          owner,
		TOTPCode:       code,
		TimestampToken: stamp,
		SessionToken:   sessionToken,
		ExpiresAt:      session.ExpiresAt,
	}
	encoded, err := payload.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR payload: %w", err)
	}

	period := int64(s.codes.Period())
	remaining := int(period - issuedAt.Unix()%period)

	s.logger.Info("QR code issued",
		zap.String("cor_id", owner),
		logging.TokenField("session", sessionToken),
		zap.Int("validity_minutes", validity),
		zap.Time("expires_at", session.ExpiresAt))

	return &IssuedQR{
		Payload:          payload,
		QRString:         encoded,
		SecondsRemaining: remaining,
	}, nil
}

// Verify runs the ordered checks without changing any state. The error return
// is reserved for an unusable TOTP secret.
func (s *Service) Verify(ctx context.Context, data, secret string) (VerificationResult, error) {
	payload, err := ParsePayload(data)
	if err != nil {
		return s.reject(ReasonInvalidFormat, ""), nil
	}

	session, err := s.Get(ctx, payload.SessionToken)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return s.reject(ReasonSessionNotFound, payload.SessionToken), nil
		}
		s.logger.Error("failed to load QR session", zap.Error(err))
		return s.reject(ReasonStorageError, payload.SessionToken), nil
	}

	if session.IsUsed {
		return s.reject(ReasonAlreadyUsed, session.SessionToken), nil
	}

	now := s.now()
	if session.IsExpired(now) {
		return s.reject(ReasonExpired, session.SessionToken), nil
	}

	if payload.TimestampToken != session.TimestampToken {
		return s.reject(ReasonTimestampInvalid, session.SessionToken), nil
	}
	issuedAt, err := s.stamps.Parse(payload.TimestampToken, session.SessionToken, now)
	if err != nil {
		s.logger.Debug("timestamp token rejected", zap.Error(err))
		return s.reject(ReasonTimestampInvalid, session.SessionToken), nil
	}

	valid, err := s.codes.VerifyAt(secret, payload.TOTPCode, issuedAt, s.window)
	if err != nil {
		return VerificationResult{}, err
	}
	if !valid || subtle.ConstantTimeCompare([]byte(payload.TOTPCode), []byte(session.TOTPCode)) != 1 {
		return s.reject(ReasonTOTPMismatch, session.SessionToken), nil
	}

	if payload.CorID != session.OwnerIdentity {
		return s.reject(ReasonIdentityMismatch, session.SessionToken), nil
	}

	active, err := s.accounts.IsActive(ctx, session.OwnerIdentity)
	if err != nil {
		s.logger.Error("failed to check account status",
			zap.String("cor_id", session.OwnerIdentity),
			zap.Error(err))
		return s.reject(ReasonStorageError, session.SessionToken), nil
	}
	if !active {
		return s.reject(ReasonInactiveAccount, session.SessionToken), nil
	}

	s.logger.Info("QR code verified",
		zap.String("cor_id", session.OwnerIdentity),
		logging.TokenField("session", session.SessionToken))

	return VerificationResult{
		IsValid:      true,
		Reason:       ReasonValid,
		Message:      ReasonValid.Message(),
		CorID:        session.OwnerIdentity,
		SessionToken: session.SessionToken,
		ExpiresAt:    session.ExpiresAt,
	}, nil
}

func (s *Service) reject(reason Reason, sessionToken string) VerificationResult {
	fields := []zap.Field{zap.String("reason", string(reason))}
	if sessionToken != "" {
		fields = append(fields, logging.TokenField("session", sessionToken))
	}
	s.logger.Warn("QR verification failed", fields...)
	return Reject(reason)
}

// MarkUsed consumes the session. Only the first caller gets true.
func (s *Service) MarkUsed(ctx context.Context, sessionToken string) (bool, error) {
	return s.MarkUsedBy(ctx, sessionToken, Consumer{})
}

// MarkUsedBy consumes an unused, unexpired session on behalf of by. Expired
// sessions stay expired even when they were verified moments earlier.
func (s *Service) MarkUsedBy(ctx context.Context, sessionToken string, by Consumer) (bool, error) {
	now := s.now()
	result := s.db.WithContext(ctx).Model(&QRSession{}).
		Where("session_token = ? AND is_used = ? AND expires_at >= ?", sessionToken, false, now).
		Updates(map[string]any{
			"is_used":        true,
			"used_at":        now,
			"used_by_device": by.Device,
			"used_by_pump":   by.PumpID,
			"locked_until":   nil,
			"lease_id":       "",
		})
	if result.Error != nil {
		s.logger.Error("failed to mark QR session used",
			logging.TokenField("session", sessionToken),
			zap.Error(result.Error))
		return false, faults.Storage("mark_used", result.Error)
	}

	if result.RowsAffected != 1 {
		s.logger.Debug("QR session already consumed or expired", logging.TokenField("session", sessionToken))
		return false, nil
	}

	s.logger.Info("QR session consumed",
		logging.TokenField("session", sessionToken),
		zap.String("pump", by.PumpID),
		zap.String("device", by.Device))
	return true, nil
}

// Claim takes a short lease on an unused, unexpired session so only one scan
// can carry it through the limit check. Expired leases can be taken over. The
// returned lease id must be handed back to Release.
func (s *Service) Claim(ctx context.Context, sessionToken string, ttl time.Duration) (string, bool, error) {
	now := s.now()
	lease := uuid.NewString()

	result := s.db.WithContext(ctx).Model(&QRSession{}).
		Where("session_token = ? AND is_used = ? AND expires_at >= ?", sessionToken, false, now).
		Where("(locked_until IS NULL OR locked_until < ?)", now).
		Updates(map[string]any{
			"locked_until": now.Add(ttl),
			"lease_id":     lease,
		})
	if result.Error != nil {
		return "", false, faults.Storage("claim", result.Error)
	}
	if result.RowsAffected != 1 {
		return "", false, nil
	}
	return lease, true, nil
}

// Release drops the lease if it is still the one taken by Claim. A lease that
// timed out and was taken over by another scan is left alone.
func (s *Service) Release(ctx context.Context, sessionToken, lease string) error {
	err := s.db.WithContext(ctx).Model(&QRSession{}).
		Where("session_token = ? AND is_used = ? AND lease_id = ?", sessionToken, false, lease).
		Updates(map[string]any{
			"locked_until": nil,
			"lease_id":     "",
		}).Error
	if err != nil {
		return faults.Storage("release", err)
	}
	return nil
}

// VerifyAndConsume verifies and consumes in one call for callers with no
// external check between the two steps.
func (s *Service) VerifyAndConsume(ctx context.Context, data, secret string, by Consumer) (VerificationResult, error) {
	result, err := s.Verify(ctx, data, secret)
	if err != nil || !result.IsValid {
		return result, err
	}

	consumed, err := s.MarkUsedBy(ctx, result.SessionToken, by)
	if err != nil {
		s.logger.Error("failed to consume verified QR session", zap.Error(err))
		return Reject(ReasonStorageError), nil
	}
	if !consumed {
		return Reject(ReasonAlreadyUsed), nil
	}

	return result, nil
}

func (s *Service) Get(ctx context.Context, sessionToken string) (*QRSession, error) {
	var session QRSession
	if err := s.db.WithContext(ctx).Where("session_token = ?", sessionToken).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, faults.Storage("get", err)
	}
	return &session, nil
}

func (s *Service) ListForOwner(ctx context.Context, owner string, limit int) ([]QRSession, error) {
	if limit <= 0 {
		limit = 20
	}

	var sessions []QRSession
	err := s.db.WithContext(ctx).
		Where("owner_identity = ?", owner).
		Order("created_at DESC").
		Limit(limit).
		Find(&sessions).Error
	if err != nil {
		return nil, faults.Storage("list", err)
	}
	return sessions, nil
}

// PurgeExpired deletes unused sessions that expired more than olderThan ago.
func (s *Service) PurgeExpired(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.now().Add(-olderThan)

	result := s.db.WithContext(ctx).
		Where("is_used = ? AND expires_at < ?", false, cutoff).
		Delete(&QRSession{})
	if result.Error != nil {
		s.logger.Error("failed to purge expired QR sessions", zap.Error(result.Error))
		return 0, faults.Storage("purge", result.Error)
	}

	if result.RowsAffected > 0 {
		s.logger.Info("purged expired QR sessions", zap.Int64("count", result.RowsAffected))
	}
	return result.RowsAffected, nil
}

// StartPurgeWorker runs PurgeExpired on every tick until ctx is cancelled.
func (s *Service) StartPurgeWorker(ctx context.Context, interval, retention time.Duration) {
	if interval <= 0 {
		s.logger.Warn("QR purge worker disabled", zap.Duration("interval", interval))
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
				if _, err := s.PurgeExpired(ctx, retention); err != nil {
					s.logger.Error("QR purge worker failed", zap.Error(err))
				}
			}
		}
	}()

	s.logger.Info("started QR purge worker",
		zap.Duration("interval", interval),
		zap.Duration("retention", retention))
}

func (s *Service) newSessionToken() (string, error) {
	buf := make([]byte, s.tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
