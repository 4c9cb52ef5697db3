package jwt

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/fuelqr/services/jwt"
)

const (
	SubjectKey = "_jwt_subject"
	ClaimsKey  = "_jwt_claims"
)

// rejection messages, checked in order against the validation error.
var rejections = []struct {
	err     error
	message string
}{
	{jwt.ErrExpiredToken, "JWT token has expired"},
	{jwt.ErrMalformedToken, "Malformed JWT token"},
	{jwt.ErrInvalidSignature, "Invalid JWT token signature"},
	{jwt.ErrRevokedToken, "JWT token has been revoked"},
}

// RequireJWT authenticates the bearer token and, when roles are given, requires
// the token to carry one of them.
func RequireJWT(jwtService *jwt.Service, roles ...jwt.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, err := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if err != nil {
				return err
			}

			claims, err := jwtService.ValidateTokenContext(c.Request().Context(), token)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, rejectionMessage(err))
			}

			if len(roles) > 0 && !slices.Contains(roles, claims.Role) {
				return echo.NewHTTPError(http.StatusForbidden, "Insufficient permissions")
			}

			c.Set(SubjectKey, claims.Subject)
			c.Set(ClaimsKey, claims)
			return next(c)
		}
	}
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Authorization header required")
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || scheme != "Bearer" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization header format")
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "JWT token required")
	}
	return token, nil
}

func rejectionMessage(err error) string {
	for _, r := range rejections {
		if errors.Is(err, r.err) {
			return r.message
		}
	}
	return "Invalid JWT token"
}

func GetSubject(c echo.Context) string {
	subject, _ := c.Get(SubjectKey).(string)
	return subject
}

func GetClaims(c echo.Context) *jwt.Claims {
	claims, _ := c.Get(ClaimsKey).(*jwt.Claims)
	return claims
}

// GetRole returns the authenticated role, or "" outside RequireJWT.
func GetRole(c echo.Context) jwt.Role {
	if claims := GetClaims(c); claims != nil {
		return claims.Role
	}
	return ""
}
