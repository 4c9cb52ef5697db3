package dispense

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tech-arch1tect/fuelqr/faults"
	"github.com/tech-arch1tect/fuelqr/services/finance"
	"github.com/tech-arch1tect/fuelqr/services/logging"
	"github.com/tech-arch1tect/fuelqr/services/qrsession"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	ReasonServiceUnavailable qrsession.Reason = "SERVICE_UNAVAILABLE"
	ReasonLimitExceeded      qrsession.Reason = "LIMIT_EXCEEDED"
)

var (
	ErrSessionNotConsumed = errors.New("QR session has not been authorized")
	ErrWrongPump          = errors.New("QR session was authorized by another pump")
)

var reasonMessages = map[qrsession.Reason]string{
	ReasonServiceUnavailable: "finance service is unavailable, the QR code can be retried",
	ReasonLimitExceeded:      "fuel limit exceeded",
}

// Sessions is the QR session store used by the workflow.
type Sessions interface {
	Verify(ctx context.Context, data, secret string) (qrsession.VerificationResult, error)
	Claim(ctx context.Context, sessionToken string, ttl time.Duration) (lease string, ok bool, err error)
	Release(ctx context.Context, sessionToken, lease string) error
	MarkUsedBy(ctx context.Context, sessionToken string, by qrsession.Consumer) (bool, error)
	Get(ctx context.Context, sessionToken string) (*qrsession.QRSession, error)
}

// Limits is the finance backend.
type Limits interface {
	CheckLimit(ctx context.Context, corID string) (*finance.LimitInfo, error)
	Debit(ctx context.Context, corID string, amount float64, transactionID string) (*finance.DebitResult, error)
}

type AuthorizationResult struct {
	IsValid      bool               `json:"is_valid"`
	Reason       qrsession.Reason   `json:"reason"`
	Message      string             `json:"message"`
	CorID        string             `json:"cor_id,omitempty"`
	SessionToken string             `json:"session_token,omitempty"`
	LimitInfo    *finance.LimitInfo `json:"limit_info,omitempty"`
}

func rejected(reason qrsession.Reason) *AuthorizationResult {
	msg, ok := reasonMessages[reason]
	if !ok {
		msg = reason.Message()
	}
	return &AuthorizationResult{Reason: reason, Message: msg}
}

type Config struct {
	QRSecret string
	LockTTL  time.Duration
}

type Service struct {
	db       *gorm.DB
	sessions Sessions
	limits   Limits
	logger   *logging.Service
	cfg      Config
	now      func() time.Time
}

func NewService(cfg Config, db *gorm.DB, sessions Sessions, limits Limits, logger *logging.Service) *Service {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 45 * time.Second
	}
	return &Service{
		db:       db,
		sessions: sessions,
		limits:   limits,
		logger:   logger,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Authorize verifies a scanned QR, checks the owner's limit and consumes the QR.
// The QR stays unconsumed, and can be scanned again until it expires, when the
// limit check fails or the limit is exhausted.
func (s *Service) Authorize(ctx context.Context, data string, by qrsession.Consumer) (*AuthorizationResult, error) {
	verification, err := s.sessions.Verify(ctx, data, s.cfg.QRSecret)
	if err != nil {
		return nil, err
	}
	if !verification.IsValid {
		return &AuthorizationResult{
			Reason:  verification.Reason,
			Message: verification.Message,
		}, nil
	}

	token := verification.SessionToken
	lease, claimed, err := s.sessions.Claim(ctx, token, s.cfg.LockTTL)
	if err != nil {
		return nil, err
	}
	if !claimed {
		s.logger.Warn("QR session is held by another scan", logging.TokenField("session", token))
		return rejected(qrsession.ReasonSessionLocked), nil
	}

	limit, err := s.limits.CheckLimit(ctx, verification.CorID)
	if err != nil {
		s.release(ctx, token, lease)
		if errors.Is(err, finance.ErrInsufficientFunds) {
			return rejected(ReasonLimitExceeded), nil
		}
		s.logger.Warn("limit check failed, QR left unconsumed",
			zap.String("cor_id", verification.CorID),
			logging.TokenField("session", token),
			zap.Error(err))
		return rejected(ReasonServiceUnavailable), nil
	}

	if !limit.CanSpend() {
		s.release(ctx, token, lease)
		s.logger.Info("fuel limit exhausted",
			zap.String("cor_id", verification.CorID),
			zap.Bool("limit_found", limit.Found))
		result := rejected(ReasonLimitExceeded)
		result.CorID = verification.CorID
		result.LimitInfo = limit
		return result, nil
	}

	consumed, err := s.sessions.MarkUsedBy(ctx, token, by)
	if err != nil {
		s.release(ctx, token, lease)
		return nil, err
	}
	if !consumed {
		s.release(ctx, token, lease)
		return s.notConsumed(ctx, token), nil
	}

	s.logger.Info("fuel dispense authorized",
		zap.String("cor_id", verification.CorID),
		zap.String("pump", by.PumpID),
		zap.String("device", by.Device),
		zap.Float64("remaining", limit.Remaining))

	return &AuthorizationResult{
		IsValid:      true,
		Reason:       qrsession.ReasonValid,
		Message:      "fuel dispense authorized",
		CorID:        verification.CorID,
		SessionToken: token,
		LimitInfo:    limit,
	}, nil
}

// notConsumed reports why the final consume lost: the session either expired
// during the limit check or was consumed by another scan.
func (s *Service) notConsumed(ctx context.Context, token string) *AuthorizationResult {
	session, err := s.sessions.Get(ctx, token)
	if err == nil && !session.IsUsed && session.IsExpired(s.now()) {
		return rejected(qrsession.ReasonExpired)
	}
	return rejected(qrsession.ReasonAlreadyUsed)
}

func (s *Service) release(ctx context.Context, token, lease string) {
	if err := s.sessions.Release(context.WithoutCancel(ctx), token, lease); err != nil {
		s.logger.Error("failed to release QR session lease",
			logging.TokenField("session", token),
			zap.Error(err))
	}
}

// Complete records the dispensed amount and debits it. Only the pump that
// authorized the session may complete it. Each session gets one transaction;
// repeated calls return the stored record without a second debit.
func (s *Service) Complete(ctx context.Context, pumpID, sessionToken string, amount float64) (*FuelTransaction, error) {
	if amount <= 0 {
		return nil, faults.Validation("amount", "must be positive")
	}

	session, err := s.sessions.Get(ctx, sessionToken)
	if err != nil {
		return nil, err
	}
	if !session.IsUsed {
		return nil, ErrSessionNotConsumed
	}
	if session.UsedByPump != pumpID {
		s.logger.Warn("fuel completion from a different pump",
			zap.String("pump", pumpID),
			zap.String("authorized_pump", session.UsedByPump),
			logging.TokenField("session", sessionToken))
		return nil, ErrWrongPump
	}

	if existing, err := s.findBySession(ctx, sessionToken); err != nil {
		return nil, err
	} else if existing != nil {
		s.logger.Info("fuel transaction already recorded",
			zap.String("transaction_id", existing.TransactionID),
			zap.String("status", existing.Status))
		return existing, nil
	}

	tx := &FuelTransaction{
		TransactionID: uuid.NewString(),
		SessionToken:  sessionToken,
		CorID:         session.OwnerIdentity,
		Amount:        amount,
		Status:        StatusPending,
		Device:        session.UsedByDevice,
	}
	if err := s.db.WithContext(ctx).Create(tx).Error; err != nil {
		if existing, findErr := s.findBySession(ctx, sessionToken); findErr == nil && existing != nil {
			return existing, nil
		}
		return nil, faults.Storage("transaction_create", err)
	}

	debit, err := s.limits.Debit(ctx, tx.CorID, amount, tx.TransactionID)
	if err != nil {
		s.logger.Error("fuel debit failed",
			zap.String("transaction_id", tx.TransactionID),
			zap.String("cor_id", tx.CorID),
			zap.Error(err))
		s.finish(ctx, tx, map[string]any{
			"status":         StatusFailed,
			"failure_reason": truncate(err.Error(), 512),
		})
		return tx, err
	}

	now := s.now()
	s.finish(ctx, tx, map[string]any{
		"status":            StatusCompleted,
		"finance_reference": debit.Reference,
		"remaining_limit":   debit.Remaining,
		"completed_at":      now,
	})

	s.logger.Info("fuel transaction completed",
		zap.String("transaction_id", tx.TransactionID),
		zap.String("cor_id", tx.CorID),
		zap.Float64("amount", amount))

	return tx, nil
}

func (s *Service) finish(ctx context.Context, tx *FuelTransaction, updates map[string]any) {
	if err := s.db.WithContext(context.WithoutCancel(ctx)).Model(tx).Updates(updates).Error; err != nil {
		s.logger.Error("failed to update fuel transaction",
			zap.String("transaction_id", tx.TransactionID),
			zap.Error(err))
		return
	}
	if err := s.db.WithContext(context.WithoutCancel(ctx)).First(tx, tx.ID).Error; err != nil {
		s.logger.Error("failed to reload fuel transaction", zap.Error(err))
	}
}

func (s *Service) findBySession(ctx context.Context, sessionToken string) (*FuelTransaction, error) {
	var tx FuelTransaction
	err := s.db.WithContext(ctx).Where("session_token = ?", sessionToken).First(&tx).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, faults.Storage("transaction_lookup", err)
	}
	return &tx, nil
}

func (s *Service) ListForOwner(ctx context.Context, corID string, limit int) ([]FuelTransaction, error) {
	if limit <= 0 {
		limit = 20
	}
	var txs []FuelTransaction
	if err := s.db.WithContext(ctx).
		Where("cor_id = ?", corID).
		Order("created_at DESC").
		Limit(limit).
		Find(&txs).Error; err != nil {
		return nil, faults.Storage("transaction_list", err)
	}
	return txs, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s...", s[:n-3])
}
