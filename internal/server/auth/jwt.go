package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/devchaudhary24k/vidcastx/internal/common"
)

// Claims carries the authenticated identity: the user and the tenant the
// token is scoped to.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string
	TenantID string
}

func GenerateToken(userID, tenantID string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		UserID:   userID,
		TenantID: tenantID,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ParseToken validates the signature and expiry and returns the embedded
// identity.
func ParseToken(tokenString string, secretKey []byte) (userID, tenantID string, err error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		return "", "", err
	}

	if !token.Valid || claims.UserID == "" || claims.TenantID == "" {
		return "", "", common.ErrInvalidToken
	}

	return claims.UserID, claims.TenantID, nil
}
