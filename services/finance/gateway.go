package finance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tech-arch1tect/fuelqr/faults"
	"github.com/tech-arch1tect/fuelqr/services/logging"
	"github.com/tech-arch1tect/fuelqr/services/totp"
	"go.uber.org/zap"
)

const (
	checkPath = "/limits/check"
	debitPath = "/limits/debit"

	maxErrorBody = 4 << 10
)

var (
	ErrAuthFailed        = errors.New("finance backend rejected authentication")
	ErrNotFound          = errors.New("finance backend has no record for owner")
	ErrBackendValidation = errors.New("finance backend rejected the request")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Alerter notifies operators about repeated authentication failures.
type Alerter interface {
	SendAlert(ctx context.Context, subject, body string) error
}

type authBlock struct {
	TOTPCode  string `json:"totp_code"`
	Timestamp string `json:"timestamp"`
}

type backendRequest struct {
	CorID         string    `json:"cor_id"`
	Amount        *float64  `json:"amount,omitempty"`
	TransactionID string    `json:"transaction_id,omitempty"`
	Auth          authBlock `json:"auth"`
}

type backendError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type GatewayConfig struct {
	ServiceName    string
	RequestTimeout time.Duration
	AlertThreshold int
}

// Gateway talks to the external finance backend. Nothing is retried: a failed
// debit must never be replayed blindly.
type Gateway struct {
	configs *ConfigService
	codes   *totp.Service
	client  *http.Client
	alerter Alerter
	logger  *logging.Service
	cfg     GatewayConfig
	now     func() time.Time
}

func NewGateway(cfg GatewayConfig, configs *ConfigService, codes *totp.Service, alerter Alerter, logger *logging.Service) *Gateway {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	return &Gateway{
		configs: configs,
		codes:   codes,
		client:  &http.Client{Timeout: cfg.RequestTimeout},
		alerter: alerter,
		logger:  logger,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (g *Gateway) ServiceName() string {
	return g.cfg.ServiceName
}

// CheckLimit returns the owner's limit. An owner unknown to the backend is not
// an error; the result has Found set to false.
func (g *Gateway) CheckLimit(ctx context.Context, corID string) (*LimitInfo, error) {
	var info LimitInfo
	err := g.call(ctx, checkPath, backendRequest{CorID: corID}, &info)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return &LimitInfo{Found: false, CorID: corID}, nil
		}
		return nil, err
	}

	info.Found = true
	if info.CorID == "" {
		info.CorID = corID
	}
	return &info, nil
}

func (g *Gateway) Debit(ctx context.Context, corID string, amount float64, transactionID string) (*DebitResult, error) {
	if amount <= 0 {
		return nil, faults.Validation("amount", "must be positive")
	}
	if transactionID == "" {
		return nil, faults.Validation("transaction_id", "is required")
	}

	var result DebitResult
	req := backendRequest{CorID: corID, Amount: &amount, TransactionID: transactionID}
	if err := g.call(ctx, debitPath, req, &result); err != nil {
		return nil, err
	}

	if result.TransactionID == "" {
		result.TransactionID = transactionID
	}
	if result.Amount == 0 {
		result.Amount = amount
	}
	return &result, nil
}

func (g *Gateway) call(ctx context.Context, path string, payload backendRequest, out any) error {
	backend, err := g.configs.GetActive(ctx, g.cfg.ServiceName)
	if err != nil {
		if errors.Is(err, ErrConfigNotFound) {
			return faults.Configuration("finance", err)
		}
		return err
	}

	secret, err := g.configs.Secret(backend)
	if err != nil {
		return err
	}

	now := g.now()
	code, err := g.codes.WithPeriod(backend.TOTPInterval).GenerateAt(secret, now)
	if err != nil {
		return err
	}
	payload.Auth = authBlock{TOTPCode: code, Timestamp: now.Format(time.RFC3339)}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode finance request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, backend.APIEndpoint+path, bytes.NewReader(raw))
	if err != nil {
		return faults.Configuration("finance", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Warn("finance backend unreachable",
			zap.String("service", backend.ServiceName),
			zap.String("path", path),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return faults.External(backend.ServiceName, 0, err)
	}
	defer resp.Body.Close()

	g.logger.Debug("finance backend responded",
		zap.String("service", backend.ServiceName),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := g.configs.RecordSuccess(ctx, backend); err != nil {
			g.logger.Error("failed to record finance auth success", zap.Error(err))
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
			return faults.External(backend.ServiceName, resp.StatusCode, fmt.Errorf("malformed response: %w", err))
		}
		return nil

	case resp.StatusCode == http.StatusUnauthorized:
		g.recordAuthFailure(ctx, backend)
		return ErrAuthFailed

	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound

	case resp.StatusCode == http.StatusBadRequest:
		return fmt.Errorf("%w: %s", ErrBackendValidation, readErrorMessage(resp.Body))

	case resp.StatusCode == http.StatusPaymentRequired:
		return ErrInsufficientFunds

	default:
		return faults.External(backend.ServiceName, resp.StatusCode, errors.New(readErrorMessage(resp.Body)))
	}
}

func (g *Gateway) recordAuthFailure(ctx context.Context, backend *FinanceBackendAuthConfig) {
	attempts, err := g.configs.RecordFailure(ctx, backend)
	if err != nil {
		g.logger.Error("failed to record finance auth failure", zap.Error(err))
		return
	}

	g.logger.Warn("finance backend authentication failed",
		zap.String("service", backend.ServiceName),
		zap.Int("failed_attempts", attempts))

	threshold := g.cfg.AlertThreshold
	if g.alerter == nil || threshold <= 0 || attempts < threshold || attempts%threshold != 0 {
		return
	}

	subject := fmt.Sprintf("[fuelqr] %s authentication failing", backend.ServiceName)
	body := fmt.Sprintf("Finance backend %q at %s has rejected %d consecutive authentication attempts. Last failure at %s.",
		backend.ServiceName, backend.APIEndpoint, attempts, g.now().Format(time.RFC3339))
	if err := g.alerter.SendAlert(ctx, subject, body); err != nil {
		g.logger.Error("failed to send finance auth alert", zap.Error(err))
	}
}

func readErrorMessage(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return "no details"
	}

	var parsed backendError
	if json.Unmarshal(raw, &parsed) == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Error != "" {
			return parsed.Error
		}
	}
	return string(raw)
}
