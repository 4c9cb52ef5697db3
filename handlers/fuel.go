package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/fuelqr/config"
	jwtmw "github.com/tech-arch1tect/fuelqr/middleware/jwt"
	"github.com/tech-arch1tect/fuelqr/middleware/ratelimit"
	"github.com/tech-arch1tect/fuelqr/services/dispense"
	"github.com/tech-arch1tect/fuelqr/services/logging"
	"github.com/tech-arch1tect/fuelqr/services/qrsession"
	"go.uber.org/zap"
)

type QRSessions interface {
	Issue(ctx context.Context, owner, secret string, validityMinutes int) (*qrsession.IssuedQR, error)
	ListForOwner(ctx context.Context, owner string, limit int) ([]qrsession.QRSession, error)
}

type Dispenser interface {
	Authorize(ctx context.Context, data string, by qrsession.Consumer) (*dispense.AuthorizationResult, error)
	Complete(ctx context.Context, pumpID, sessionToken string, amount float64) (*dispense.FuelTransaction, error)
	ListForOwner(ctx context.Context, corID string, limit int) ([]dispense.FuelTransaction, error)
}

type ActiveChecker interface {
	IsActive(ctx context.Context, corID string) (bool, error)
}

type issueRequest struct {
	ValidityMinutes int `json:"validity_minutes,omitempty" doc:"minutes the QR stays valid, clamped to 1..30"`
}

type verifyRequest struct {
	QRData string `json:"qr_data" doc:"canonical QR string as scanned"`
}

type completeRequest struct {
	SessionToken string  `json:"session_token"`
	Amount       float64 `json:"amount" doc:"dispensed amount to debit"`
}

type completeFailure struct {
	Error       string                    `json:"error"`
	Transaction *dispense.FuelTransaction `json:"transaction"`
}

type sessionView struct {
	qrsession.QRSession
	Status string `json:"status" doc:"issued, consumed or expired"`
}

type FuelHandler struct {
	sessions  QRSessions
	dispenser Dispenser
	accounts  ActiveChecker
	qr        config.QRConfig
	logger    *logging.Service
	now       func() time.Time
}

func NewFuelHandler(cfg *config.Config, sessions QRSessions, dispenser Dispenser, accounts ActiveChecker, logger *logging.Service) *FuelHandler {
	return &FuelHandler{
		sessions:  sessions,
		dispenser: dispenser,
		accounts:  accounts,
		qr:        cfg.QR,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// IssueQR creates a QR session for the authenticated owner.
func (h *FuelHandler) IssueQR(c echo.Context) error {
	var req issueRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	validity := req.ValidityMinutes
	if validity == 0 {
		validity = h.qr.DefaultValidity
	}

	ctx := c.Request().Context()
	owner := jwtmw.GetSubject(c)

	active, err := h.accounts.IsActive(ctx, owner)
	if err != nil {
		return httpError(err)
	}
	if !active {
		return echo.NewHTTPError(http.StatusForbidden, "account is not active")
	}

	issued, err := h.sessions.Issue(ctx, owner, h.qr.TOTPSecret, validity)
	if err != nil {
		h.logger.Error("failed to issue QR code", zap.String("cor_id", owner), zap.Error(err))
		return httpError(err)
	}

	return c.JSON(http.StatusCreated, issued)
}

// VerifyQR authorizes a pump to dispense against a scanned QR. Rejected codes
// are a normal 200 response so the pump can show the reason.
func (h *FuelHandler) VerifyQR(c echo.Context) error {
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		ratelimit.MarkFailure(c)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.QRData) == "" {
		ratelimit.MarkFailure(c)
		return echo.NewHTTPError(http.StatusBadRequest, "qr_data is required")
	}

	pump := jwtmw.GetSubject(c)
	device := dispense.DescribeDevice(pump, c.Request().UserAgent())

	result, err := h.dispenser.Authorize(c.Request().Context(), req.QRData, qrsession.Consumer{PumpID: pump, Device: device})
	if err != nil {
		h.logger.Error("QR authorization failed", zap.String("device", device), zap.Error(err))
		return httpError(err)
	}

	if !result.IsValid {
		ratelimit.MarkFailure(c)
		h.logger.Info("QR code rejected",
			zap.String("device", device),
			zap.String("reason", string(result.Reason)),
			zap.String("ip", c.RealIP()))
	}

	return c.JSON(http.StatusOK, result)
}

// CompleteTransaction records the dispensed amount for an authorized QR.
func (h *FuelHandler) CompleteTransaction(c echo.Context) error {
	var req completeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.SessionToken == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "session_token is required")
	}

	tx, err := h.dispenser.Complete(c.Request().Context(), jwtmw.GetSubject(c), req.SessionToken, req.Amount)
	if err != nil {
		if tx == nil {
			return httpError(err)
		}
		status, message := statusFor(err)
		return c.JSON(status, completeFailure{Error: message, Transaction: tx})
	}

	return c.JSON(http.StatusOK, tx)
}

// History lists the owner's recent QR sessions without their secrets.
func (h *FuelHandler) History(c echo.Context) error {
	owner := jwtmw.GetSubject(c)

	sessions, err := h.sessions.ListForOwner(c.Request().Context(), owner, h.limit(c))
	if err != nil {
		return httpError(err)
	}

	now := h.now()
	views := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		views = append(views, sessionView{QRSession: s, Status: s.Status(now)})
	}

	return c.JSON(http.StatusOK, views)
}

func (h *FuelHandler) Transactions(c echo.Context) error {
	txs, err := h.dispenser.ListForOwner(c.Request().Context(), jwtmw.GetSubject(c), h.limit(c))
	if err != nil {
		return httpError(err)
	}
	if txs == nil {
		txs = []dispense.FuelTransaction{}
	}
	return c.JSON(http.StatusOK, txs)
}

func (h *FuelHandler) limit(c echo.Context) int {
	max := h.qr.HistoryPageLimit
	if max <= 0 {
		max = 20
	}
	n, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil || n <= 0 || n > max {
		return max
	}
	return n
}
