package middleware

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	svcerrors "github.com/hrygo/speechcare/server/internal/errors"
)

// ClaimsContextKey is the echo context key holding the verified claims.
const ClaimsContextKey = "auth.claims"

const issuer = "speechcare"

// Claims are the bearer token claims issued by the hosting application.
type Claims struct {
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for subject. It is used by the CLI and tests.
func IssueToken(secret, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", errors.Wrap(err, "failed to sign token")
	}
	return token, nil
}

// ParseToken verifies an HS256 token and returns its claims.
func ParseToken(secret, tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, errors.Wrap(err, "invalid token")
	}
	return claims, nil
}

// BearerAuth requires a valid bearer token. An empty secret disables the check.
func BearerAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if secret == "" {
			return next
		}
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			tokenString, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(tokenString) == "" {
				return writeError(c, svcerrors.Unauthorized("Authentication required"))
			}
			claims, err := ParseToken(secret, strings.TrimSpace(tokenString))
			if err != nil {
				return writeError(c, svcerrors.Unauthorized("Invalid token"))
			}
			c.Set(ClaimsContextKey, claims)
			return next(c)
		}
	}
}

func writeError(c echo.Context, err *svcerrors.ServiceError) error {
	return c.JSON(err.HTTPStatus(), err.ResponseBody(false))
}
