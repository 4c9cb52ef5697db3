package mail

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/fuelqr/config"
	"github.com/wneessen/go-mail"
)

type MockSender struct {
	mock.Mock
}

func (m *MockSender) DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error {
	args := m.Called(ctx, messages)
	return args.Error(0)
}

func testMailConfig() config.MailConfig {
	return config.MailConfig{
		Enabled:     true,
		Host:        "localhost",
		Port:        587,
		Encryption:  "starttls",
		FromAddress: "fuelqr@example.com",
		FromName:    "fuelqr",
		AlertTo:     []string{"ops@example.com", "oncall@example.com"},
	}
}

func testAppConfig() config.AppConfig {
	return config.AppConfig{Name: "fuelqr", Version: "test"}
}

func TestNewService(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		cfg := testMailConfig()
		cfg.Enabled = false

		svc, err := NewService(cfg, testAppConfig(), nil)
		require.NoError(t, err)
		assert.False(t, svc.Enabled())
		assert.NoError(t, svc.SendAlert(context.Background(), "subject", "body"))
	})

	t.Run("enabled builds a client", func(t *testing.T) {
		svc, err := NewService(testMailConfig(), testAppConfig(), nil)
		require.NoError(t, err)
		assert.True(t, svc.Enabled())
	})

	t.Run("missing from address", func(t *testing.T) {
		cfg := testMailConfig()
		cfg.FromAddress = ""

		_, err := NewService(cfg, testAppConfig(), nil)
		assert.ErrorIs(t, err, ErrMissingFromAddress)
	})

	t.Run("no recipients", func(t *testing.T) {
		cfg := testMailConfig()
		cfg.AlertTo = nil

		_, err := NewService(cfg, testAppConfig(), nil)
		assert.ErrorIs(t, err, ErrNoRecipients)
	})
}

func TestService_SendAlert(t *testing.T) {
	t.Run("renders and sends to operators", func(t *testing.T) {
		sender := &MockSender{}
		svc, err := NewServiceWithClient(testMailConfig(), testAppConfig(), sender, nil)
		require.NoError(t, err)

		var sent *mail.Msg
		sender.On("DialAndSendWithContext", mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				sent = args.Get(1).([]*mail.Msg)[0]
			}).
			Return(nil).Once()

		err = svc.SendAlert(context.Background(), "[fuelqr] finance failing", "Backend rejected 3 attempts.")
		require.NoError(t, err)
		sender.AssertExpectations(t)

		require.NotNil(t, sent)
		assert.Equal(t, []string{"[fuelqr] finance failing"}, sent.GetGenHeader(mail.HeaderSubject))
		assert.Len(t, sent.GetToString(), 2)

		var buf bytes.Buffer
		_, err = sent.WriteTo(&buf)
		require.NoError(t, err)
		assert.Contains(t, buf.String(), "Backend rejected 3 attempts.")
		assert.Contains(t, buf.String(), "Service: fuelqr (test)")
	})

	t.Run("send failure is returned", func(t *testing.T) {
		sender := &MockSender{}
		svc, err := NewServiceWithClient(testMailConfig(), testAppConfig(), sender, nil)
		require.NoError(t, err)

		sender.On("DialAndSendWithContext", mock.Anything, mock.Anything).
			Return(errors.New("connection refused")).Once()

		err = svc.SendAlert(context.Background(), "subject", "body")
		assert.EqualError(t, err, "connection refused")
	})

	t.Run("invalid recipient", func(t *testing.T) {
		cfg := testMailConfig()
		cfg.AlertTo = []string{"not an address"}
		svc, err := NewServiceWithClient(cfg, testAppConfig(), &MockSender{}, nil)
		require.NoError(t, err)

		err = svc.SendAlert(context.Background(), "subject", "body")
		assert.Error(t, err)
	})
}
