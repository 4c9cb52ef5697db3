package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/fuelqr/config"
	jwtmw "github.com/tech-arch1tect/fuelqr/middleware/jwt"
	"github.com/tech-arch1tect/fuelqr/middleware/ratelimit"
	"github.com/tech-arch1tect/fuelqr/openapi"
	"github.com/tech-arch1tect/fuelqr/server"
	"github.com/tech-arch1tect/fuelqr/services/accounts"
	"github.com/tech-arch1tect/fuelqr/services/dispense"
	"github.com/tech-arch1tect/fuelqr/services/finance"
	jwtservice "github.com/tech-arch1tect/fuelqr/services/jwt"
	"github.com/tech-arch1tect/fuelqr/services/logging"
	"github.com/tech-arch1tect/fuelqr/services/qrsession"
	"github.com/tech-arch1tect/fuelqr/services/revocation"
	"go.uber.org/fx"
)

const bearer = "bearer"

func NewDocs(cfg *config.Config) *openapi.OpenAPI {
	return openapi.New(cfg.App.Name, cfg.App.Version).
		Description("One-time QR authorization for fuel dispensing").
		Server(cfg.App.URL, "").
		Tag("fuel", "QR issuance, pump authorization and transactions").
		Tag("admin", "Finance backend, account and token administration").
		BearerAuth(bearer, "JWT carrying an owner, pump or admin role")
}

type RouteParams struct {
	fx.In

	Config *config.Config
	Server *server.Server
	Docs   *openapi.OpenAPI
	Fuel   *FuelHandler
	Admin  *AdminHandler
	JWT    *jwtservice.Service
	Store  ratelimit.Store
	Logger *logging.Service
}

func ownerKey(c echo.Context) string {
	return "owner:" + jwtmw.GetSubject(c)
}

// RegisterRoutes wires every endpoint and documents it as it goes.
func RegisterRoutes(p RouteParams) {
	e := p.Server.Echo()
	rl := p.Config.RateLimit

	verifyLimit := ratelimit.Middleware(&ratelimit.Config{
		Name:      "qr_verify",
		Store:     p.Store,
		Rate:      rl.VerifyRate,
		Period:    rl.VerifyPeriod,
		CountMode: rl.VerifyMode,
		Logger:    p.Logger,
	})
	issueLimit := ratelimit.Middleware(&ratelimit.Config{
		Name:         "qr_issue",
		Store:        p.Store,
		Rate:         rl.IssueRate,
		Period:       rl.IssuePeriod,
		CountMode:    config.CountAll,
		KeyGenerator: ownerKey,
		Logger:       p.Logger,
	})

	owner := jwtmw.RequireJWT(p.JWT, jwtservice.RoleOwner)
	pump := jwtmw.RequireJWT(p.JWT, jwtservice.RolePump)
	admin := jwtmw.RequireJWT(p.JWT, jwtservice.RoleAdmin)

	fuel := e.Group("/api/fuel")
	fuel.POST("/qr", p.Fuel.IssueQR, owner, issueLimit)
	fuel.GET("/qr/history", p.Fuel.History, owner)
	fuel.POST("/qr/verify", p.Fuel.VerifyQR, pump, verifyLimit)
	fuel.POST("/transactions", p.Fuel.CompleteTransaction, pump)
	fuel.GET("/transactions", p.Fuel.Transactions, owner)

	adm := e.Group("/api/admin", admin)
	adm.POST("/finance-config", p.Admin.CreateFinanceConfig)
	adm.GET("/finance-config/:service", p.Admin.GetFinanceConfig)
	adm.PATCH("/finance-config/:service", p.Admin.UpdateFinanceConfig)
	adm.POST("/accounts", p.Admin.CreateAccount)
	adm.GET("/accounts/:cor_id", p.Admin.GetAccount)
	adm.PATCH("/accounts/:cor_id", p.Admin.UpdateAccount)
	adm.POST("/tokens/revoke", p.Admin.RevokeToken)
	adm.POST("/subjects/:subject/revoke", p.Admin.RevokeSubject)

	document(p.Docs)
	p.Docs.Mount(e, "/api")
}

func document(docs *openapi.OpenAPI) {
	docs.Document(http.MethodPost, "/api/fuel/qr").
		Summary("Issue a one-time QR code").
		Tags("fuel").
		Security(bearer).
		Body(issueRequest{}, "Requested validity").
		Response(http.StatusCreated, qrsession.IssuedQR{}, "QR session issued").
		Response(http.StatusForbidden, errorResponse{}, "Account inactive or wrong role").
		Response(http.StatusTooManyRequests, errorResponse{}, "Too many QR codes issued").
		Build()

	docs.Document(http.MethodGet, "/api/fuel/qr/history").
		Summary("List recent QR sessions").
		Tags("fuel").
		Security(bearer).
		QueryInt("limit", "maximum sessions to return", 1, 100).
		Response(http.StatusOK, []sessionView{}, "Recent sessions, newest first").
		Build()

	docs.Document(http.MethodPost, "/api/fuel/qr/verify").
		Summary("Authorize a dispense against a scanned QR code").
		Description("Rejections are returned with status 200 and is_valid false.").
		Tags("fuel").
		Security(bearer).
		Body(verifyRequest{}, "Scanned QR payload").
		Response(http.StatusOK, dispense.AuthorizationResult{}, "Authorization outcome").
		Response(http.StatusTooManyRequests, errorResponse{}, "Too many failed scans from this client").
		Build()

	docs.Document(http.MethodPost, "/api/fuel/transactions").
		Summary("Record and debit a completed dispense").
		Tags("fuel").
		Security(bearer).
		Body(completeRequest{}, "Authorized session and dispensed amount").
		Response(http.StatusOK, dispense.FuelTransaction{}, "Transaction recorded").
		Response(http.StatusForbidden, errorResponse{}, "Session was authorized by another pump").
		Response(http.StatusConflict, errorResponse{}, "Session was not authorized").
		Response(http.StatusPaymentRequired, completeFailure{}, "Debit refused by finance backend").
		Response(http.StatusServiceUnavailable, completeFailure{}, "Finance backend unavailable").
		Build()

	docs.Document(http.MethodGet, "/api/fuel/transactions").
		Summary("List the owner's fuel transactions").
		Tags("fuel").
		Security(bearer).
		QueryInt("limit", "maximum transactions to return", 1, 100).
		Response(http.StatusOK, []dispense.FuelTransaction{}, "Transactions, newest first").
		Build()

	docs.Document(http.MethodPost, "/api/admin/finance-config").
		Summary("Configure the finance backend").
		Tags("admin").
		Security(bearer).
		Body(finance.CreateConfigInput{}, "Backend endpoint and shared TOTP secret").
		Response(http.StatusCreated, finance.PublicConfig{}, "Configuration stored, secret omitted").
		Response(http.StatusConflict, errorResponse{}, "Service already configured").
		Build()

	docs.Document(http.MethodGet, "/api/admin/finance-config/:service").
		Summary("Fetch a finance backend configuration").
		Tags("admin").
		Security(bearer).
		PathParam("service", "configured service name").
		Response(http.StatusOK, finance.PublicConfig{}, "Configuration, secret omitted").
		Response(http.StatusNotFound, errorResponse{}, "Unknown service").
		Build()

	docs.Document(http.MethodPatch, "/api/admin/finance-config/:service").
		Summary("Update or rotate a finance backend configuration").
		Tags("admin").
		Security(bearer).
		PathParam("service", "configured service name").
		Body(finance.UpdateConfigInput{}, "Fields to change").
		Response(http.StatusOK, finance.PublicConfig{}, "Updated configuration").
		Build()

	docs.Document(http.MethodPost, "/api/admin/accounts").
		Summary("Register an owner account").
		Tags("admin").
		Security(bearer).
		Body(createAccountRequest{}, "Owner identity").
		Response(http.StatusCreated, accounts.Account{}, "Account created").
		Response(http.StatusConflict, errorResponse{}, "Account exists").
		Build()

	docs.Document(http.MethodGet, "/api/admin/accounts/:cor_id").
		Summary("Fetch an owner account").
		Tags("admin").
		Security(bearer).
		Response(http.StatusOK, accounts.Account{}, "Account").
		Response(http.StatusNotFound, errorResponse{}, "Unknown account").
		Build()

	docs.Document(http.MethodPatch, "/api/admin/accounts/:cor_id").
		Summary("Activate or deactivate an owner account").
		Tags("admin").
		Security(bearer).
		Body(updateAccountRequest{}, "New status").
		Response(http.StatusOK, accounts.Account{}, "Updated account").
		Build()

	docs.Document(http.MethodPost, "/api/admin/tokens/revoke").
		Summary("Revoke a single bearer token").
		Tags("admin").
		Security(bearer).
		Body(revokeTokenRequest{}, "Token to withdraw").
		Response(http.StatusOK, revocation.RevokedToken{}, "Token revoked until it expires").
		Response(http.StatusBadRequest, errorResponse{}, "Token does not parse or has expired").
		Build()

	docs.Document(http.MethodPost, "/api/admin/subjects/:subject/revoke").
		Summary("Revoke every token issued to a subject so far").
		Tags("admin").
		Security(bearer).
		PathParam("subject", "pump id, cor_id or administrator name").
		Response(http.StatusOK, revocation.SubjectRevocation{}, "Tokens issued before the cutoff are rejected").
		Build()
}

func ProvideFuelHandler(cfg *config.Config, sessions *qrsession.Service, dispenser *dispense.Service, accountSvc *accounts.Service, logger *logging.Service) *FuelHandler {
	return NewFuelHandler(cfg, sessions, dispenser, accountSvc, logger)
}

func ProvideAdminHandler(configs *finance.ConfigService, accountSvc *accounts.Service, revoker *revocation.Service, logger *logging.Service) *AdminHandler {
	return NewAdminHandler(configs, accountSvc, revoker, logger)
}

var Module = fx.Options(
	fx.Provide(NewDocs, ProvideFuelHandler, ProvideAdminHandler),
	fx.Invoke(RegisterRoutes),
)
