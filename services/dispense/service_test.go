package dispense

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/fuelqr/faults"
	"github.com/tech-arch1tect/fuelqr/services/finance"
	"github.com/tech-arch1tect/fuelqr/services/qrsession"
	"github.com/tech-arch1tect/fuelqr/testutils"
)

const (
	testToken  = "session-token"
	testCorID  = "COR-1001"
	testPump   = "P-7"
	testDevice = "pump P-7"
	testLease  = "lease-1"
)

var testConsumer = qrsession.Consumer{PumpID: testPump, Device: testDevice}

type MockSessions struct {
	mock.Mock
}

func (m *MockSessions) Verify(ctx context.Context, data, secret string) (qrsession.VerificationResult, error) {
	args := m.Called(ctx, data, secret)
	return args.Get(0).(qrsession.VerificationResult), args.Error(1)
}

func (m *MockSessions) Claim(ctx context.Context, sessionToken string, ttl time.Duration) (string, bool, error) {
	args := m.Called(ctx, sessionToken, ttl)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockSessions) Release(ctx context.Context, sessionToken, lease string) error {
	args := m.Called(ctx, sessionToken, lease)
	return args.Error(0)
}

func (m *MockSessions) MarkUsedBy(ctx context.Context, sessionToken string, by qrsession.Consumer) (bool, error) {
	args := m.Called(ctx, sessionToken, by)
	return args.Bool(0), args.Error(1)
}

func (m *MockSessions) Get(ctx context.Context, sessionToken string) (*qrsession.QRSession, error) {
	args := m.Called(ctx, sessionToken)
	if s := args.Get(0); s != nil {
		return s.(*qrsession.QRSession), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockLimits struct {
	mock.Mock
}

func (m *MockLimits) CheckLimit(ctx context.Context, corID string) (*finance.LimitInfo, error) {
	args := m.Called(ctx, corID)
	if info := args.Get(0); info != nil {
		return info.(*finance.LimitInfo), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLimits) Debit(ctx context.Context, corID string, amount float64, transactionID string) (*finance.DebitResult, error) {
	args := m.Called(ctx, corID, amount, transactionID)
	if r := args.Get(0); r != nil {
		return r.(*finance.DebitResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func newTestService(t *testing.T) (*Service, *MockSessions, *MockLimits) {
	t.Helper()
	db := testutils.SetupTestDB(t, &FuelTransaction{})
	sessions := &MockSessions{}
	limits := &MockLimits{}

	svc := NewService(Config{QRSecret: testutils.TestQRSecret, LockTTL: 45 * time.Second}, db, sessions, limits, nil)
	return svc, sessions, limits
}

func validVerification() qrsession.VerificationResult {
	return qrsession.VerificationResult{
		IsValid:      true,
		Reason:       qrsession.ReasonValid,
		Message:      qrsession.ReasonValid.Message(),
		CorID:        testCorID,
		SessionToken: testToken,
	}
}

func TestService_Authorize_Success(t *testing.T) {
	svc, sessions, limits := newTestService(t)
	ctx := context.Background()

	sessions.On("Verify", ctx, "qr-data", testutils.TestQRSecret).Return(validVerification(), nil)
	sessions.On("Claim", ctx, testToken, 45*time.Second).Return(testLease, true, nil)
	limits.On("CheckLimit", ctx, testCorID).Return(&finance.LimitInfo{Found: true, Remaining: 80}, nil)
	sessions.On("MarkUsedBy", ctx, testToken, testConsumer).Return(true, nil)

	result, err := svc.Authorize(ctx, "qr-data", testConsumer)
	require.NoError(t, err)

	assert.True(t, result.IsValid)
	assert.Equal(t, testCorID, result.CorID)
	assert.Equal(t, testToken, result.SessionToken)
	assert.Equal(t, 80.0, result.LimitInfo.Remaining)
	sessions.AssertExpectations(t)
	sessions.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_Authorize_VerificationFailure(t *testing.T) {
	svc, sessions, limits := newTestService(t)
	ctx := context.Background()

	sessions.On("Verify", ctx, "qr-data", testutils.TestQRSecret).Return(qrsession.Reject(qrsession.ReasonAlreadyUsed), nil)

	result, err := svc.Authorize(ctx, "qr-data", testConsumer)
	require.NoError(t, err)

	assert.False(t, result.IsValid)
	assert.Equal(t, qrsession.ReasonAlreadyUsed, result.Reason)
	assert.Contains(t, result.Message, "already used")
	sessions.AssertNotCalled(t, "Claim", mock.Anything, mock.Anything, mock.Anything)
	limits.AssertNotCalled(t, "CheckLimit", mock.Anything, mock.Anything)
}

func TestService_Authorize_ConfigurationError(t *testing.T) {
	svc, sessions, _ := newTestService(t)
	ctx := context.Background()

	sessions.On("Verify", ctx, "qr-data", testutils.TestQRSecret).
		Return(qrsession.VerificationResult{}, faults.Configuration("totp", errors.New("bad secret")))

	_, err := svc.Authorize(ctx, "qr-data", testConsumer)
	assert.True(t, faults.IsConfiguration(err))
}

func TestService_Authorize_LeaseHeld(t *testing.T) {
	svc, sessions, limits := newTestService(t)
	ctx := context.Background()

	sessions.On("Verify", ctx, "qr-data", testutils.TestQRSecret).Return(validVerification(), nil)
	sessions.On("Claim", ctx, testToken, 45*time.Second).Return("", false, nil)

	result, err := svc.Authorize(ctx, "qr-data", testConsumer)
	require.NoError(t, err)

	assert.False(t, result.IsValid)
	assert.Equal(t, qrsession.ReasonSessionLocked, result.Reason)
	limits.AssertNotCalled(t, "CheckLimit", mock.Anything, mock.Anything)
}

func TestService_Authorize_LimitCheckFailureLeavesQRUnconsumed(t *testing.T) {
	tests := []struct {
		name   string
		info   *finance.LimitInfo
		err    error
		reason qrsession.Reason
	}{
		{"backend unavailable", nil, faults.External("finance-backend", 0, errors.New("timeout")), ReasonServiceUnavailable},
		{"auth rejected", nil, finance.ErrAuthFailed, ReasonServiceUnavailable},
		{"insufficient funds", nil, finance.ErrInsufficientFunds, ReasonLimitExceeded},
		{"no limit record", &finance.LimitInfo{Found: false}, nil, ReasonLimitExceeded},
		{"limit exhausted", &finance.LimitInfo{Found: true, Remaining: 0}, nil, ReasonLimitExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, sessions, limits := newTestService(t)
			ctx := context.Background()

			sessions.On("Verify", ctx, "qr-data", testutils.TestQRSecret).Return(validVerification(), nil)
			sessions.On("Claim", ctx, testToken, 45*time.Second).Return(testLease, true, nil)
			sessions.On("Release", mock.Anything, testToken, testLease).Return(nil).Once()
			limits.On("CheckLimit", ctx, testCorID).Return(tt.info, tt.err)

			result, err := svc.Authorize(ctx, "qr-data", testConsumer)
			require.NoError(t, err)

			assert.False(t, result.IsValid)
			assert.Equal(t, tt.reason, result.Reason)
			assert.NotEmpty(t, result.Message)
			sessions.AssertExpectations(t)
			sessions.AssertNotCalled(t, "MarkUsedBy", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestService_Authorize_LostRace(t *testing.T) {
	svc, sessions, limits := newTestService(t)
	ctx := context.Background()

	sessions.On("Verify", ctx, "qr-data", testutils.TestQRSecret).Return(validVerification(), nil)
	sessions.On("Claim", ctx, testToken, 45*time.Second).Return(testLease, true, nil)
	limits.On("CheckLimit", ctx, testCorID).Return(&finance.LimitInfo{Found: true, Remaining: 80}, nil)
	sessions.On("MarkUsedBy", ctx, testToken, testConsumer).Return(false, nil)
	sessions.On("Release", mock.Anything, testToken, testLease).Return(nil).Once()
	sessions.On("Get", ctx, testToken).Return(usedSession(), nil)

	result, err := svc.Authorize(ctx, "qr-data", testConsumer)
	require.NoError(t, err)

	assert.False(t, result.IsValid)
	assert.Equal(t, qrsession.ReasonAlreadyUsed, result.Reason)
	sessions.AssertExpectations(t)
}

func TestService_Authorize_ExpiredDuringLimitCheck(t *testing.T) {
	svc, sessions, limits := newTestService(t)
	ctx := context.Background()
	svc.now = func() time.Time { return time.Unix(1_700_000_600, 0).UTC() }

	expired := usedSession()
	expired.IsUsed = false
	expired.ExpiresAt = time.Unix(1_700_000_590, 0).UTC()

	sessions.On("Verify", ctx, "qr-data", testutils.TestQRSecret).Return(validVerification(), nil)
	sessions.On("Claim", ctx, testToken, 45*time.Second).Return(testLease, true, nil)
	limits.On("CheckLimit", ctx, testCorID).Return(&finance.LimitInfo{Found: true, Remaining: 80}, nil)
	sessions.On("MarkUsedBy", ctx, testToken, testConsumer).Return(false, nil)
	sessions.On("Release", mock.Anything, testToken, testLease).Return(nil).Once()
	sessions.On("Get", ctx, testToken).Return(expired, nil)

	result, err := svc.Authorize(ctx, "qr-data", testConsumer)
	require.NoError(t, err)

	assert.False(t, result.IsValid)
	assert.Equal(t, qrsession.ReasonExpired, result.Reason)
	sessions.AssertExpectations(t)
}

func usedSession() *qrsession.QRSession {
	return &qrsession.QRSession{
		SessionToken:  testToken,
		OwnerIdentity: testCorID,
		IsUsed:        true,
		UsedByDevice:  testDevice,
		UsedByPump:    testPump,
	}
}

func TestService_Complete(t *testing.T) {
	t.Run("debits once", func(t *testing.T) {
		svc, sessions, limits := newTestService(t)
		ctx := context.Background()

		sessions.On("Get", ctx, testToken).Return(usedSession(), nil)
		limits.On("Debit", ctx, testCorID, 42.5, mock.AnythingOfType("string")).
			Return(&finance.DebitResult{Remaining: 37.5, Reference: "FIN-1"}, nil).Once()

		tx, err := svc.Complete(ctx, testPump, testToken, 42.5)
		require.NoError(t, err)

		assert.Equal(t, StatusCompleted, tx.Status)
		assert.Len(t, tx.TransactionID, 36)
		assert.Equal(t, "FIN-1", tx.FinanceReference)
		assert.Equal(t, testDevice, tx.Device)
		require.NotNil(t, tx.RemainingLimit)
		assert.Equal(t, 37.5, *tx.RemainingLimit)
		assert.NotNil(t, tx.CompletedAt)

		again, err := svc.Complete(ctx, testPump, testToken, 42.5)
		require.NoError(t, err)
		assert.Equal(t, tx.TransactionID, again.TransactionID)
		limits.AssertNumberOfCalls(t, "Debit", 1)

		history, err := svc.ListForOwner(ctx, testCorID, 10)
		require.NoError(t, err)
		assert.Len(t, history, 1)
	})

	t.Run("failed debit is recorded and not retried", func(t *testing.T) {
		svc, sessions, limits := newTestService(t)
		ctx := context.Background()

		sessions.On("Get", ctx, testToken).Return(usedSession(), nil)
		limits.On("Debit", ctx, testCorID, 10.0, mock.AnythingOfType("string")).
			Return(nil, finance.ErrInsufficientFunds).Once()

		tx, err := svc.Complete(ctx, testPump, testToken, 10)
		assert.ErrorIs(t, err, finance.ErrInsufficientFunds)
		require.NotNil(t, tx)
		assert.Equal(t, StatusFailed, tx.Status)
		assert.Contains(t, tx.FailureReason, "insufficient funds")

		again, err := svc.Complete(ctx, testPump, testToken, 10)
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, again.Status)
		limits.AssertNumberOfCalls(t, "Debit", 1)
	})

	t.Run("session not consumed", func(t *testing.T) {
		svc, sessions, _ := newTestService(t)
		ctx := context.Background()

		unused := usedSession()
		unused.IsUsed = false
		sessions.On("Get", ctx, testToken).Return(unused, nil)

		_, err := svc.Complete(ctx, testPump, testToken, 10)
		assert.ErrorIs(t, err, ErrSessionNotConsumed)
	})

	t.Run("unknown session", func(t *testing.T) {
		svc, sessions, _ := newTestService(t)
		ctx := context.Background()

		sessions.On("Get", ctx, "missing").Return(nil, qrsession.ErrSessionNotFound)

		_, err := svc.Complete(ctx, testPump, "missing", 10)
		assert.ErrorIs(t, err, qrsession.ErrSessionNotFound)
	})

	t.Run("invalid amount", func(t *testing.T) {
		svc, _, _ := newTestService(t)

		_, err := svc.Complete(context.Background(), testPump, testToken, -1)
		assert.True(t, faults.IsValidation(err))
	})

	t.Run("another pump cannot complete", func(t *testing.T) {
		svc, sessions, limits := newTestService(t)
		ctx := context.Background()

		sessions.On("Get", ctx, testToken).Return(usedSession(), nil)

		_, err := svc.Complete(ctx, "P-9", testToken, 10)
		assert.ErrorIs(t, err, ErrWrongPump)
		limits.AssertNotCalled(t, "Debit", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

		history, err := svc.ListForOwner(ctx, testCorID, 10)
		require.NoError(t, err)
		assert.Empty(t, history)
	})
}

func TestDescribeDevice(t *testing.T) {
	chrome := "Mozilla/5.0 (Linux; Android 13; Pixel 7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36"

	assert.Equal(t, "unknown device", DescribeDevice("", ""))
	assert.Equal(t, "pump P-7", DescribeDevice("P-7", ""))

	desc := DescribeDevice("P-7", chrome)
	assert.Contains(t, desc, "pump P-7 (Chrome")
	assert.Contains(t, desc, "Android")

	assert.LessOrEqual(t, len(DescribeDevice("P-7", string(make([]byte, 600)))), 255)
}
