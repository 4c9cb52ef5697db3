package jwt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tech-arch1tect/fuelqr/config"
	"github.com/tech-arch1tect/fuelqr/services/logging"
	"go.uber.org/zap"
)

var (
	ErrInvalidToken     = errors.New("invalid JWT token")
	ErrExpiredToken     = errors.New("JWT token has expired")
	ErrMalformedToken   = errors.New("malformed JWT token")
	ErrInvalidSignature = errors.New("invalid JWT token signature")
	ErrInvalidRole      = errors.New("JWT token has an unknown role")
	ErrMissingSubject   = errors.New("JWT token subject is required")
	ErrRevokedToken     = errors.New("JWT token has been revoked")
)

type Role string

const (
	RoleOwner Role = "owner"
	RolePump  Role = "pump"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RolePump, RoleAdmin:
		return true
	}
	return false
}

// Claims identify the caller. Subject is the owner cor_id, the pump id or the
// administrator name depending on Role.
type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// RevocationChecker reports whether an otherwise valid token was withdrawn.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, claims *Claims) (bool, error)
}

type Service struct {
	config     *config.Config
	logger     *logging.Service
	revocation RevocationChecker
	now        func() time.Time
}

func NewService(cfg *config.Config, logger *logging.Service) *Service {
	return &Service{
		config: cfg,
		logger: logger,
		now:    time.Now,
	}
}

func (s *Service) SetRevocationChecker(checker RevocationChecker) {
	s.revocation = checker
}

// GenerateToken mints a bearer token for a pump, owner app or administrator.
func (s *Service) GenerateToken(subject string, role Role, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", ErrMissingSubject
	}
	if !role.Valid() {
		return "", ErrInvalidRole
	}

	now := s.now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.config.JWT.Issuer,
			Subject:   subject,
			Audience:  []string{s.config.JWT.Issuer},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.config.JWT.SecretKey))
	if err != nil {
		s.logger.Error("failed to sign JWT token", zap.Error(err))
		return "", fmt.Errorf("failed to generate JWT token: %w", err)
	}

	return tokenString, nil
}

func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return s.ValidateTokenContext(context.Background(), tokenString)
}

// ValidateTokenContext parses the token and rejects it when it has been revoked.
// A failing revocation lookup is logged and the token is accepted.
func (s *Service) ValidateTokenContext(ctx context.Context, tokenString string) (*Claims, error) {
	claims, err := s.ParseToken(tokenString)
	if err != nil {
		return nil, err
	}

	if s.revocation != nil {
		revoked, err := s.revocation.IsRevoked(ctx, claims)
		if err != nil {
			s.logger.Error("failed to check token revocation status",
				zap.String("jti", claims.ID),
				zap.Error(err))
		} else if revoked {
			s.logger.Warn("rejected revoked JWT token",
				zap.String("jti", claims.ID),
				zap.String("subject", claims.Subject))
			return nil, ErrRevokedToken
		}
	}

	return claims, nil
}

// ParseToken checks signature, issuer, expiry and claims without consulting
// the revocation list.
func (s *Service) ParseToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("invalid algorithm family: %v", token.Header["alg"])
		}
		return []byte(s.config.JWT.SecretKey), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.config.JWT.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		s.logger.Warn("JWT token validation failed", zap.Error(err))

		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrMalformedToken
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrInvalidSignature
		default:
			return nil, ErrInvalidToken
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if !claims.Role.Valid() {
		return nil, ErrInvalidRole
	}
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}

	return claims, nil
}
