package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	jwtmw "github.com/tech-arch1tect/fuelqr/middleware/jwt"
	"github.com/tech-arch1tect/fuelqr/services/accounts"
	"github.com/tech-arch1tect/fuelqr/services/finance"
	"github.com/tech-arch1tect/fuelqr/services/logging"
	"github.com/tech-arch1tect/fuelqr/services/revocation"
	"go.uber.org/zap"
)

type FinanceConfigs interface {
	Create(ctx context.Context, in finance.CreateConfigInput) (*finance.FinanceBackendAuthConfig, error)
	Get(ctx context.Context, serviceName string) (*finance.FinanceBackendAuthConfig, error)
	Update(ctx context.Context, serviceName string, in finance.UpdateConfigInput) (*finance.FinanceBackendAuthConfig, error)
}

type Accounts interface {
	Create(ctx context.Context, corID, displayName string) (*accounts.Account, error)
	Get(ctx context.Context, corID string) (*accounts.Account, error)
	SetActive(ctx context.Context, corID string, active bool) (*accounts.Account, error)
}

type Revoker interface {
	RevokeToken(ctx context.Context, token string) (*revocation.RevokedToken, error)
	RevokeSubject(ctx context.Context, subject string) (*revocation.SubjectRevocation, error)
}

type revokeTokenRequest struct {
	Token string `json:"token" doc:"bearer token to withdraw"`
}

type createAccountRequest struct {
	CorID       string `json:"cor_id"`
	DisplayName string `json:"display_name,omitempty"`
}

type updateAccountRequest struct {
	Active *bool `json:"active"`
}

type AdminHandler struct {
	configs  FinanceConfigs
	accounts Accounts
	revoker  Revoker
	logger   *logging.Service
}

func NewAdminHandler(configs FinanceConfigs, accounts Accounts, revoker Revoker, logger *logging.Service) *AdminHandler {
	return &AdminHandler{
		configs:  configs,
		accounts: accounts,
		revoker:  revoker,
		logger:   logger,
	}
}

func (h *AdminHandler) CreateFinanceConfig(c echo.Context) error {
	var req finance.CreateConfigInput
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	cfg, err := h.configs.Create(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}

	h.logger.Info("finance backend configured",
		zap.String("service", cfg.ServiceName),
		zap.String("admin", jwtmw.GetSubject(c)))

	return c.JSON(http.StatusCreated, cfg.Public())
}

func (h *AdminHandler) GetFinanceConfig(c echo.Context) error {
	cfg, err := h.configs.Get(c.Request().Context(), c.Param("service"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, cfg.Public())
}

func (h *AdminHandler) UpdateFinanceConfig(c echo.Context) error {
	var req finance.UpdateConfigInput
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	cfg, err := h.configs.Update(c.Request().Context(), c.Param("service"), req)
	if err != nil {
		return httpError(err)
	}

	h.logger.Info("finance backend config changed",
		zap.String("service", cfg.ServiceName),
		zap.String("admin", jwtmw.GetSubject(c)),
		zap.Bool("secret_rotated", req.TOTPSecret != nil))

	return c.JSON(http.StatusOK, cfg.Public())
}

func (h *AdminHandler) CreateAccount(c echo.Context) error {
	var req createAccountRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	account, err := h.accounts.Create(c.Request().Context(), req.CorID, req.DisplayName)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, account)
}

func (h *AdminHandler) GetAccount(c echo.Context) error {
	account, err := h.accounts.Get(c.Request().Context(), c.Param("cor_id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, account)
}

func (h *AdminHandler) UpdateAccount(c echo.Context) error {
	var req updateAccountRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Active == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "active is required")
	}

	account, err := h.accounts.SetActive(c.Request().Context(), c.Param("cor_id"), *req.Active)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, account)
}

func (h *AdminHandler) RevokeToken(c echo.Context) error {
	var req revokeTokenRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	entry, err := h.revoker.RevokeToken(c.Request().Context(), req.Token)
	if err != nil {
		return httpError(err)
	}

	h.logger.Info("admin revoked token",
		zap.String("jti", entry.JTI),
		zap.String("admin", jwtmw.GetSubject(c)))

	return c.JSON(http.StatusOK, entry)
}

// RevokeSubject withdraws every token already issued to a pump, owner or admin.
func (h *AdminHandler) RevokeSubject(c echo.Context) error {
	entry, err := h.revoker.RevokeSubject(c.Request().Context(), c.Param("subject"))
	if err != nil {
		return httpError(err)
	}

	h.logger.Info("admin revoked subject tokens",
		zap.String("subject", entry.Subject),
		zap.String("admin", jwtmw.GetSubject(c)))

	return c.JSON(http.StatusOK, entry)
}
