package qrsession

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingTimestampKey = errors.New("timestamp signing key is not configured")
	ErrTimestampInvalid    = errors.New("timestamp token is invalid")
	ErrTimestampTooOld     = errors.New("timestamp token is too old")
)

// timestampClaims binds the issuance time to one session.
type timestampClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

type timestampSigner struct {
	key    []byte
	maxAge time.Duration
}

func newTimestampSigner(key string, maxAge time.Duration) (*timestampSigner, error) {
	if key == "" {
		return nil, ErrMissingTimestampKey
	}
	return &timestampSigner{key: []byte(key), maxAge: maxAge}, nil
}

func (s *timestampSigner) Sign(owner, sessionToken string, issuedAt time.Time) (string, error) {
	claims := timestampClaims{
		SessionID: sessionToken,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  owner,
			IssuedAt: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign timestamp token: %w", err)
	}
	return signed, nil
}

// Parse checks the signature, the session binding and the age of the token and
// returns the issuance time it carries.
func (s *timestampSigner) Parse(tokenString, sessionToken string, now time.Time) (time.Time, error) {
	claims := &timestampClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(5*time.Second),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrTimestampInvalid, err)
	}

	if claims.IssuedAt == nil || claims.SessionID != sessionToken {
		return time.Time{}, ErrTimestampInvalid
	}

	issuedAt := claims.IssuedAt.Time
	if now.Sub(issuedAt) > s.maxAge {
		return time.Time{}, ErrTimestampTooOld
	}

	return issuedAt, nil
}
