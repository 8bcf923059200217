package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims is the bearer token payload. Address is the contributor's wallet
// address and doubles as the subject.
type Claims struct {
	Address string `json:"address"`
	jwt.StandardClaims
}

// GenerateToken signs an HS256 bearer token for the given wallet address.
func GenerateToken(secret []byte, address string, expiry time.Duration) (string, error) {
	if address == "" {
		return "", errors.New("address is required")
	}

	now := time.Now()
	claims := Claims{
		Address: address,
		StandardClaims: jwt.StandardClaims{
			Subject:   address,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(expiry).Unix(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// VerifyToken parses and validates a bearer token, returning its claims.
func VerifyToken(secret []byte, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Address == "" {
		return nil, fmt.Errorf("%w: missing address claim", ErrInvalidToken)
	}
	return claims, nil
}
