package totp

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/tech-arch1tect/fuelqr/faults"
	"github.com/tech-arch1tect/fuelqr/services/logging"
	"go.uber.org/zap"
)

const (
	DefaultPeriod uint = 30
	DefaultDigits      = otp.DigitsSix
)

var ErrEmptySecret = errors.New("TOTP secret is empty")

type Service struct {
	period uint
	digits otp.Digits
	logger *logging.Service
	now    func() time.Time
}

func NewService(period uint, logger *logging.Service) *Service {
	if period == 0 {
		period = DefaultPeriod
	}

	return &Service{
		period: period,
		digits: DefaultDigits,
		logger: logger,
		now:    time.Now,
	}
}

// WithPeriod returns a copy of the service using a different step length.
func (s *Service) WithPeriod(period uint) *Service {
	if period == 0 || period == s.period {
		return s
	}
	clone := *s
	clone.period = period
	return &clone
}

func (s *Service) Period() uint {
	return s.period
}

func (s *Service) opts(skew uint) totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    s.period,
		Skew:      skew,
		Digits:    s.digits,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// Generate returns the code for the current step and the seconds left before it rolls over.
func (s *Service) Generate(secret string) (string, int, error) {
	now := s.now()

	code, err := s.GenerateAt(secret, now)
	if err != nil {
		return "", 0, err
	}

	remaining := int(int64(s.period) - now.Unix()%int64(s.period))
	return code, remaining, nil
}

func (s *Service) GenerateAt(secret string, t time.Time) (string, error) {
	if err := s.ValidateSecret(secret); err != nil {
		return "", err
	}

	code, err := totp.GenerateCodeCustom(secret, t, s.opts(0))
	if err != nil {
		s.logger.Error("TOTP code generation failed", zap.Error(err))
		return "", faults.Configuration("totp", err)
	}

	return code, nil
}

// Verify accepts codes from window steps either side of now.
func (s *Service) Verify(secret, code string, window uint) (bool, error) {
	return s.VerifyAt(secret, code, s.now(), window)
}

func (s *Service) VerifyAt(secret, code string, t time.Time, window uint) (bool, error) {
	if err := s.ValidateSecret(secret); err != nil {
		return false, err
	}

	code = strings.TrimSpace(code)
	if len(code) != s.digits.Length() {
		s.logger.Debug("TOTP verification failed - wrong code length",
			zap.Int("length", len(code)))
		return false, nil
	}

	valid, err := totp.ValidateCustom(code, secret, t, s.opts(window))
	if err != nil {
		if errors.Is(err, otp.ErrValidateInputInvalidLength) {
			return false, nil
		}
		return false, faults.Configuration("totp", err)
	}

	return valid, nil
}

func (s *Service) ValidateSecret(secret string) error {
	if strings.TrimSpace(secret) == "" {
		return faults.Configuration("totp", ErrEmptySecret)
	}

	if _, err := totp.GenerateCodeCustom(secret, time.Unix(0, 0), s.opts(0)); err != nil {
		return faults.Configuration("totp", err)
	}

	return nil
}

// GenerateSecret creates a fresh base32 shared secret.
func GenerateSecret(issuer, accountName string) (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountName,
		Period:      DefaultPeriod,
		Digits:      DefaultDigits,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate TOTP secret: %w", err)
	}

	return key.Secret(), nil
}
