package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/fuelqr/faults"
	jwtmw "github.com/tech-arch1tect/fuelqr/middleware/jwt"
	"github.com/tech-arch1tect/fuelqr/services/accounts"
	"github.com/tech-arch1tect/fuelqr/services/dispense"
	"github.com/tech-arch1tect/fuelqr/services/finance"
	"github.com/tech-arch1tect/fuelqr/services/qrsession"
	"github.com/tech-arch1tect/fuelqr/services/revocation"
	"github.com/tech-arch1tect/fuelqr/testutils"
)

type MockSessions struct {
	mock.Mock
}

func (m *MockSessions) Issue(ctx context.Context, owner, secret string, validity int) (*qrsession.IssuedQR, error) {
	args := m.Called(ctx, owner, secret, validity)
	issued, _ := args.Get(0).(*qrsession.IssuedQR)
	return issued, args.Error(1)
}

func (m *MockSessions) ListForOwner(ctx context.Context, owner string, limit int) ([]qrsession.QRSession, error) {
	args := m.Called(ctx, owner, limit)
	sessions, _ := args.Get(0).([]qrsession.QRSession)
	return sessions, args.Error(1)
}

type MockDispenser struct {
	mock.Mock
}

func (m *MockDispenser) Authorize(ctx context.Context, data string, by qrsession.Consumer) (*dispense.AuthorizationResult, error) {
	args := m.Called(ctx, data, by)
	result, _ := args.Get(0).(*dispense.AuthorizationResult)
	return result, args.Error(1)
}

func (m *MockDispenser) Complete(ctx context.Context, pumpID, token string, amount float64) (*dispense.FuelTransaction, error) {
	args := m.Called(ctx, pumpID, token, amount)
	tx, _ := args.Get(0).(*dispense.FuelTransaction)
	return tx, args.Error(1)
}

func (m *MockDispenser) ListForOwner(ctx context.Context, corID string, limit int) ([]dispense.FuelTransaction, error) {
	args := m.Called(ctx, corID, limit)
	txs, _ := args.Get(0).([]dispense.FuelTransaction)
	return txs, args.Error(1)
}

type MockAccounts struct {
	mock.Mock
}

func (m *MockAccounts) IsActive(ctx context.Context, corID string) (bool, error) {
	args := m.Called(ctx, corID)
	return args.Bool(0), args.Error(1)
}

func (m *MockAccounts) Create(ctx context.Context, corID, displayName string) (*accounts.Account, error) {
	args := m.Called(ctx, corID, displayName)
	account, _ := args.Get(0).(*accounts.Account)
	return account, args.Error(1)
}

func (m *MockAccounts) Get(ctx context.Context, corID string) (*accounts.Account, error) {
	args := m.Called(ctx, corID)
	account, _ := args.Get(0).(*accounts.Account)
	return account, args.Error(1)
}

func (m *MockAccounts) SetActive(ctx context.Context, corID string, active bool) (*accounts.Account, error) {
	args := m.Called(ctx, corID, active)
	account, _ := args.Get(0).(*accounts.Account)
	return account, args.Error(1)
}

type MockConfigs struct {
	mock.Mock
}

func (m *MockConfigs) Create(ctx context.Context, in finance.CreateConfigInput) (*finance.FinanceBackendAuthConfig, error) {
	args := m.Called(ctx, in)
	cfg, _ := args.Get(0).(*finance.FinanceBackendAuthConfig)
	return cfg, args.Error(1)
}

func (m *MockConfigs) Get(ctx context.Context, serviceName string) (*finance.FinanceBackendAuthConfig, error) {
	args := m.Called(ctx, serviceName)
	cfg, _ := args.Get(0).(*finance.FinanceBackendAuthConfig)
	return cfg, args.Error(1)
}

func (m *MockConfigs) Update(ctx context.Context, serviceName string, in finance.UpdateConfigInput) (*finance.FinanceBackendAuthConfig, error) {
	args := m.Called(ctx, serviceName, in)
	cfg, _ := args.Get(0).(*finance.FinanceBackendAuthConfig)
	return cfg, args.Error(1)
}

type MockRevoker struct {
	mock.Mock
}

func (m *MockRevoker) RevokeToken(ctx context.Context, token string) (*revocation.RevokedToken, error) {
	args := m.Called(ctx, token)
	entry, _ := args.Get(0).(*revocation.RevokedToken)
	return entry, args.Error(1)
}

func (m *MockRevoker) RevokeSubject(ctx context.Context, subject string) (*revocation.SubjectRevocation, error) {
	args := m.Called(ctx, subject)
	entry, _ := args.Get(0).(*revocation.SubjectRevocation)
	return entry, args.Error(1)
}

func request(method, path, body, subject string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if subject != "" {
		c.Set(jwtmw.SubjectKey, subject)
	}
	return c, rec
}

func requireHTTPError(t *testing.T, err error, status int) {
	t.Helper()
	var httpErr *echo.HTTPError
	require.True(t, errors.As(err, &httpErr), "expected echo.HTTPError, got %v", err)
	assert.Equal(t, status, httpErr.Code)
}

func newFuelHandler() (*FuelHandler, *MockSessions, *MockDispenser, *MockAccounts) {
	sessions := &MockSessions{}
	dispenser := &MockDispenser{}
	accts := &MockAccounts{}
	return NewFuelHandler(testutils.GetTestConfig(), sessions, dispenser, accts, nil), sessions, dispenser, accts
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", faults.Validation("amount", "must be positive"), http.StatusBadRequest},
		{"invalid cor id", accounts.ErrInvalidCorID, http.StatusBadRequest},
		{"session not found", qrsession.ErrSessionNotFound, http.StatusNotFound},
		{"account not found", fmt.Errorf("lookup: %w", accounts.ErrAccountNotFound), http.StatusNotFound},
		{"finance config not found", finance.ErrConfigNotFound, http.StatusNotFound},
		{"finance config missing at runtime", faults.Configuration("finance", finance.ErrConfigNotFound), http.StatusServiceUnavailable},
		{"owner unknown to backend", finance.ErrNotFound, http.StatusNotFound},
		{"account exists", accounts.ErrAccountExists, http.StatusConflict},
		{"config exists", finance.ErrConfigExists, http.StatusConflict},
		{"session not consumed", dispense.ErrSessionNotConsumed, http.StatusConflict},
		{"wrong pump", dispense.ErrWrongPump, http.StatusForbidden},
		{"insufficient funds", finance.ErrInsufficientFunds, http.StatusPaymentRequired},
		{"backend validation", fmt.Errorf("%w: bad cor_id", finance.ErrBackendValidation), http.StatusBadGateway},
		{"auth failed", finance.ErrAuthFailed, http.StatusServiceUnavailable},
		{"storage", faults.Storage("issue", errors.New("disk")), http.StatusServiceUnavailable},
		{"external", faults.External("finance", 503, errors.New("down")), http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, message := statusFor(tt.err)
			assert.Equal(t, tt.status, status)
			assert.NotEmpty(t, message)
		})
	}
}

func TestIssueQR(t *testing.T) {
	t.Run("uses default validity", func(t *testing.T) {
		h, sessions, _, accts := newFuelHandler()
		issued := &qrsession.IssuedQR{QRString: `{"cor_id":"COR1"}`, SecondsRemaining: 12}

		accts.On("IsActive", mock.Anything, "COR1").Return(true, nil)
		sessions.On("Issue", mock.Anything, "COR1", testutils.TestQRSecret, 5).Return(issued, nil)

		c, rec := request(http.MethodPost, "/api/fuel/qr", `{}`, "COR1")
		require.NoError(t, h.IssueQR(c))

		assert.Equal(t, http.StatusCreated, rec.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, `{"cor_id":"COR1"}`, body["qr_string"])
		sessions.AssertExpectations(t)
	})

	t.Run("passes requested validity", func(t *testing.T) {
		h, sessions, _, accts := newFuelHandler()
		accts.On("IsActive", mock.Anything, "COR1").Return(true, nil)
		sessions.On("Issue", mock.Anything, "COR1", testutils.TestQRSecret, 12).Return(&qrsession.IssuedQR{}, nil)

		c, _ := request(http.MethodPost, "/api/fuel/qr", `{"validity_minutes":12}`, "COR1")
		require.NoError(t, h.IssueQR(c))
		sessions.AssertExpectations(t)
	})

	t.Run("inactive account", func(t *testing.T) {
		h, sessions, _, accts := newFuelHandler()
		accts.On("IsActive", mock.Anything, "COR1").Return(false, nil)

		c, _ := request(http.MethodPost, "/api/fuel/qr", `{}`, "COR1")
		requireHTTPError(t, h.IssueQR(c), http.StatusForbidden)
		sessions.AssertNotCalled(t, "Issue")
	})

	t.Run("storage failure", func(t *testing.T) {
		h, sessions, _, accts := newFuelHandler()
		accts.On("IsActive", mock.Anything, "COR1").Return(true, nil)
		sessions.On("Issue", mock.Anything, "COR1", testutils.TestQRSecret, 5).
			Return(nil, faults.Storage("issue", errors.New("locked")))

		c, _ := request(http.MethodPost, "/api/fuel/qr", `{}`, "COR1")
		requireHTTPError(t, h.IssueQR(c), http.StatusServiceUnavailable)
	})
}

func TestVerifyQR(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		h, _, dispenser, _ := newFuelHandler()
		result := &dispense.AuthorizationResult{
			IsValid:   true,
			Reason:    qrsession.ReasonValid,
			Message:   "fuel dispense authorized",
			CorID:     "COR1",
			LimitInfo: &finance.LimitInfo{Found: true, CorID: "COR1", Remaining: 40},
		}
		dispenser.On("Authorize", mock.Anything, "qr-data", mock.MatchedBy(func(by qrsession.Consumer) bool {
			return by.PumpID == "PUMP-7" && strings.HasPrefix(by.Device, "pump PUMP-7")
		})).Return(result, nil)

		c, rec := request(http.MethodPost, "/api/fuel/qr/verify", `{"qr_data":"qr-data"}`, "PUMP-7")
		require.NoError(t, h.VerifyQR(c))

		assert.Equal(t, http.StatusOK, rec.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, true, body["is_valid"])
		assert.Equal(t, "COR1", body["cor_id"])
		assert.Contains(t, body, "limit_info")
		dispenser.AssertExpectations(t)
	})

	t.Run("rejection is a 200", func(t *testing.T) {
		h, _, dispenser, _ := newFuelHandler()
		dispenser.On("Authorize", mock.Anything, "qr-data", mock.Anything).
			Return(&dispense.AuthorizationResult{
				Reason:  qrsession.ReasonAlreadyUsed,
				Message: qrsession.ReasonAlreadyUsed.Message(),
			}, nil)

		c, rec := request(http.MethodPost, "/api/fuel/qr/verify", `{"qr_data":"qr-data"}`, "PUMP-7")
		require.NoError(t, h.VerifyQR(c))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"is_valid":false`)
		assert.Contains(t, rec.Body.String(), "ALREADY_USED")
	})

	t.Run("missing qr data", func(t *testing.T) {
		h, _, dispenser, _ := newFuelHandler()

		c, _ := request(http.MethodPost, "/api/fuel/qr/verify", `{"qr_data":"  "}`, "PUMP-7")
		requireHTTPError(t, h.VerifyQR(c), http.StatusBadRequest)
		dispenser.AssertNotCalled(t, "Authorize")
	})

	t.Run("configuration error", func(t *testing.T) {
		h, _, dispenser, _ := newFuelHandler()
		dispenser.On("Authorize", mock.Anything, "qr-data", mock.Anything).
			Return(nil, faults.Configuration("totp", errors.New("no secret")))

		c, _ := request(http.MethodPost, "/api/fuel/qr/verify", `{"qr_data":"qr-data"}`, "PUMP-7")
		requireHTTPError(t, h.VerifyQR(c), http.StatusServiceUnavailable)
	})
}

func TestCompleteTransaction(t *testing.T) {
	t.Run("completed", func(t *testing.T) {
		h, _, dispenser, _ := newFuelHandler()
		tx := &dispense.FuelTransaction{TransactionID: "tx-1", CorID: "COR1", Amount: 20, Status: dispense.StatusCompleted}
		dispenser.On("Complete", mock.Anything, "PUMP-7", "sess", 20.0).Return(tx, nil)

		c, rec := request(http.MethodPost, "/api/fuel/transactions", `{"session_token":"sess","amount":20}`, "PUMP-7")
		require.NoError(t, h.CompleteTransaction(c))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"transaction_id":"tx-1"`)
		assert.NotContains(t, rec.Body.String(), "sess")
	})

	t.Run("failed debit returns the record", func(t *testing.T) {
		h, _, dispenser, _ := newFuelHandler()
		tx := &dispense.FuelTransaction{TransactionID: "tx-2", Status: dispense.StatusFailed}
		dispenser.On("Complete", mock.Anything, "PUMP-7", "sess", 90.0).Return(tx, finance.ErrInsufficientFunds)

		c, rec := request(http.MethodPost, "/api/fuel/transactions", `{"session_token":"sess","amount":90}`, "PUMP-7")
		require.NoError(t, h.CompleteTransaction(c))

		assert.Equal(t, http.StatusPaymentRequired, rec.Code)
		var body completeFailure
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "fuel limit exceeded", body.Error)
		require.NotNil(t, body.Transaction)
		assert.Equal(t, dispense.StatusFailed, body.Transaction.Status)
	})

	t.Run("session not authorized", func(t *testing.T) {
		h, _, dispenser, _ := newFuelHandler()
		dispenser.On("Complete", mock.Anything, "PUMP-7", "sess", 5.0).Return(nil, dispense.ErrSessionNotConsumed)

		c, _ := request(http.MethodPost, "/api/fuel/transactions", `{"session_token":"sess","amount":5}`, "PUMP-7")
		requireHTTPError(t, h.CompleteTransaction(c), http.StatusConflict)
	})

	t.Run("session authorized by another pump", func(t *testing.T) {
		h, _, dispenser, _ := newFuelHandler()
		dispenser.On("Complete", mock.Anything, "PUMP-9", "sess", 5.0).Return(nil, dispense.ErrWrongPump)

		c, _ := request(http.MethodPost, "/api/fuel/transactions", `{"session_token":"sess","amount":5}`, "PUMP-9")
		requireHTTPError(t, h.CompleteTransaction(c), http.StatusForbidden)
		dispenser.AssertExpectations(t)
	})

	t.Run("missing session token", func(t *testing.T) {
		h, _, _, _ := newFuelHandler()

		c, _ := request(http.MethodPost, "/api/fuel/transactions", `{"amount":5}`, "PUMP-7")
		requireHTTPError(t, h.CompleteTransaction(c), http.StatusBadRequest)
	})
}

func TestHistory(t *testing.T) {
	h, sessions, _, _ := newFuelHandler()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return now }

	usedAt := now.Add(-time.Minute)
	sessions.On("ListForOwner", mock.Anything, "COR1", 5).Return([]qrsession.QRSession{
		{OwnerIdentity: "COR1", SessionToken: "secret-token", TOTPCode: "123456", ExpiresAt: now.Add(time.Minute)},
		{OwnerIdentity: "COR1", ExpiresAt: now.Add(-time.Minute)},
		{OwnerIdentity: "COR1", ExpiresAt: now.Add(time.Minute), IsUsed: true, UsedAt: &usedAt},
	}, nil)

	c, rec := request(http.MethodGet, "/api/fuel/qr/history?limit=5", "", "COR1")
	require.NoError(t, h.History(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret-token")
	assert.NotContains(t, rec.Body.String(), "123456")

	var body []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 3)
	assert.Equal(t, "issued", body[0]["status"])
	assert.Equal(t, "expired", body[1]["status"])
	assert.Equal(t, "consumed", body[2]["status"])
}

func TestHistoryLimit(t *testing.T) {
	h, _, _, _ := newFuelHandler()

	for query, want := range map[string]int{"": 20, "limit=3": 3, "limit=500": 20, "limit=-1": 20, "limit=x": 20} {
		c, _ := request(http.MethodGet, "/api/fuel/qr/history?"+query, "", "COR1")
		assert.Equal(t, want, h.limit(c), query)
	}
}

func TestTransactions(t *testing.T) {
	h, _, dispenser, _ := newFuelHandler()
	dispenser.On("ListForOwner", mock.Anything, "COR1", 20).Return(nil, nil)

	c, rec := request(http.MethodGet, "/api/fuel/transactions", "", "COR1")
	require.NoError(t, h.Transactions(c))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestAdminFinanceConfig(t *testing.T) {
	t.Run("create hides the secret", func(t *testing.T) {
		configs := &MockConfigs{}
		h := NewAdminHandler(configs, &MockAccounts{}, &MockRevoker{}, nil)

		in := finance.CreateConfigInput{
			ServiceName: "finance-backend",
			APIEndpoint: "https://finance.example.com",
			TOTPSecret:  testutils.TestFinanceSecret,
		}
		stored := &finance.FinanceBackendAuthConfig{
			ServiceName:         in.ServiceName,
			APIEndpoint:         in.APIEndpoint,
			EncryptedTOTPSecret: "ciphertext",
			TOTPInterval:        30,
			IsActive:            true,
		}
		configs.On("Create", mock.Anything, in).Return(stored, nil)

		body, _ := json.Marshal(in)
		c, rec := request(http.MethodPost, "/api/admin/finance-config", string(body), "ops")
		require.NoError(t, h.CreateFinanceConfig(c))

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.NotContains(t, rec.Body.String(), "ciphertext")
		assert.NotContains(t, rec.Body.String(), testutils.TestFinanceSecret)
		assert.Contains(t, rec.Body.String(), `"service_name":"finance-backend"`)
	})

	t.Run("invalid secret", func(t *testing.T) {
		configs := &MockConfigs{}
		h := NewAdminHandler(configs, &MockAccounts{}, &MockRevoker{}, nil)
		configs.On("Create", mock.Anything, mock.Anything).Return(nil, faults.Validation("totp_secret", "must be base32"))

		c, _ := request(http.MethodPost, "/api/admin/finance-config", `{"service_name":"x","api_endpoint":"https://x","totp_secret":"!"}`, "ops")
		requireHTTPError(t, h.CreateFinanceConfig(c), http.StatusBadRequest)
	})

	t.Run("get unknown", func(t *testing.T) {
		configs := &MockConfigs{}
		h := NewAdminHandler(configs, &MockAccounts{}, &MockRevoker{}, nil)
		configs.On("Get", mock.Anything, "missing").Return(nil, finance.ErrConfigNotFound)

		c, _ := request(http.MethodGet, "/api/admin/finance-config/missing", "", "ops")
		c.SetParamNames("service")
		c.SetParamValues("missing")
		requireHTTPError(t, h.GetFinanceConfig(c), http.StatusNotFound)
	})

	t.Run("rotate secret", func(t *testing.T) {
		configs := &MockConfigs{}
		h := NewAdminHandler(configs, &MockAccounts{}, &MockRevoker{}, nil)
		configs.On("Update", mock.Anything, "finance-backend", mock.MatchedBy(func(in finance.UpdateConfigInput) bool {
			return in.TOTPSecret != nil && *in.TOTPSecret == testutils.TestFinanceSecret
		})).Return(&finance.FinanceBackendAuthConfig{ServiceName: "finance-backend"}, nil)

		c, rec := request(http.MethodPatch, "/api/admin/finance-config/finance-backend", `{"totp_secret":"`+testutils.TestFinanceSecret+`"}`, "ops")
		c.SetParamNames("service")
		c.SetParamValues("finance-backend")
		require.NoError(t, h.UpdateFinanceConfig(c))
		assert.Equal(t, http.StatusOK, rec.Code)
		configs.AssertExpectations(t)
	})
}

func TestAdminAccounts(t *testing.T) {
	t.Run("create", func(t *testing.T) {
		accts := &MockAccounts{}
		h := NewAdminHandler(&MockConfigs{}, accts, &MockRevoker{}, nil)
		accts.On("Create", mock.Anything, "COR1", "Fleet van").Return(&accounts.Account{CorID: "COR1", DisplayName: "Fleet van", Active: true}, nil)

		c, rec := request(http.MethodPost, "/api/admin/accounts", `{"cor_id":"COR1","display_name":"Fleet van"}`, "ops")
		require.NoError(t, h.CreateAccount(c))
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Contains(t, rec.Body.String(), `"active":true`)
	})

	t.Run("duplicate", func(t *testing.T) {
		accts := &MockAccounts{}
		h := NewAdminHandler(&MockConfigs{}, accts, &MockRevoker{}, nil)
		accts.On("Create", mock.Anything, "COR1", "").Return(nil, accounts.ErrAccountExists)

		c, _ := request(http.MethodPost, "/api/admin/accounts", `{"cor_id":"COR1"}`, "ops")
		requireHTTPError(t, h.CreateAccount(c), http.StatusConflict)
	})

	t.Run("deactivate", func(t *testing.T) {
		accts := &MockAccounts{}
		h := NewAdminHandler(&MockConfigs{}, accts, &MockRevoker{}, nil)
		accts.On("SetActive", mock.Anything, "COR1", false).Return(&accounts.Account{CorID: "COR1"}, nil)

		c, rec := request(http.MethodPatch, "/api/admin/accounts/COR1", `{"active":false}`, "ops")
		c.SetParamNames("cor_id")
		c.SetParamValues("COR1")
		require.NoError(t, h.UpdateAccount(c))
		assert.Equal(t, http.StatusOK, rec.Code)
		accts.AssertExpectations(t)
	})

	t.Run("missing active flag", func(t *testing.T) {
		h := NewAdminHandler(&MockConfigs{}, &MockAccounts{}, &MockRevoker{}, nil)

		c, _ := request(http.MethodPatch, "/api/admin/accounts/COR1", `{}`, "ops")
		c.SetParamNames("cor_id")
		c.SetParamValues("COR1")
		requireHTTPError(t, h.UpdateAccount(c), http.StatusBadRequest)
	})
}

func TestAdminRevocation(t *testing.T) {
	t.Run("revoke token", func(t *testing.T) {
		revoker := &MockRevoker{}
		h := NewAdminHandler(&MockConfigs{}, &MockAccounts{}, revoker, nil)
		revoker.On("RevokeToken", mock.Anything, "tok").
			Return(&revocation.RevokedToken{JTI: "j1", Subject: "PUMP-3"}, nil)

		c, rec := request(http.MethodPost, "/api/admin/tokens/revoke", `{"token":"tok"}`, "ops")
		require.NoError(t, h.RevokeToken(c))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"jti":"j1"`)
		revoker.AssertExpectations(t)
	})

	t.Run("unparseable token", func(t *testing.T) {
		revoker := &MockRevoker{}
		h := NewAdminHandler(&MockConfigs{}, &MockAccounts{}, revoker, nil)
		revoker.On("RevokeToken", mock.Anything, "junk").Return(nil, faults.Validation("token", "malformed"))

		c, _ := request(http.MethodPost, "/api/admin/tokens/revoke", `{"token":"junk"}`, "ops")
		requireHTTPError(t, h.RevokeToken(c), http.StatusBadRequest)
	})

	t.Run("revoke subject", func(t *testing.T) {
		revoker := &MockRevoker{}
		h := NewAdminHandler(&MockConfigs{}, &MockAccounts{}, revoker, nil)
		revoker.On("RevokeSubject", mock.Anything, "PUMP-3").
			Return(&revocation.SubjectRevocation{Subject: "PUMP-3", IssuedBefore: time.Now()}, nil)

		c, rec := request(http.MethodPost, "/api/admin/subjects/PUMP-3/revoke", "", "ops")
		c.SetParamNames("subject")
		c.SetParamValues("PUMP-3")
		require.NoError(t, h.RevokeSubject(c))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"subject":"PUMP-3"`)
	})

	t.Run("storage failure", func(t *testing.T) {
		revoker := &MockRevoker{}
		h := NewAdminHandler(&MockConfigs{}, &MockAccounts{}, revoker, nil)
		revoker.On("RevokeSubject", mock.Anything, "PUMP-3").Return(nil, faults.Storage("revoke subject", errors.New("locked")))

		c, _ := request(http.MethodPost, "/api/admin/subjects/PUMP-3/revoke", "", "ops")
		c.SetParamNames("subject")
		c.SetParamValues("PUMP-3")
		requireHTTPError(t, h.RevokeSubject(c), http.StatusServiceUnavailable)
	})
}
