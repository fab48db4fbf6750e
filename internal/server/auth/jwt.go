// Package auth verifies the HS256 bearer tokens issued by the platform's
// identity service. This component only consumes tokens; GenerateToken
// exists for tests and local tooling.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carries the registered claims plus the tenant identifier the
// request is scoped to.
type Claims struct {
	jwt.RegisteredClaims
	TenantID string
}

func GenerateToken(tenantID string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		TenantID: tenantID,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// GetTenantIDFromToken parses and verifies the token and returns the tenant
// it was issued for.
func GetTenantIDFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		return "", err
	}

	if !token.Valid || claims.TenantID == "" {
		return "", ErrInvalidToken
	}

	return claims.TenantID, nil
}
