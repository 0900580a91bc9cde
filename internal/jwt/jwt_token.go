package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

const DefaultTokenTTL = 15 * time.Minute

var (
	ErrEmptyToken   = errors.New("token string is empty")
	ErrInvalidToken = errors.New("token is not valid")
)

// CreateToken signs an access token for user. Tokens are issued by the storefront
// auth service in production; this is used by tests and the dev tooling.
func CreateToken(secret string, user User, validUntil time.Time) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("signing secret not configured")
	}
	if validUntil.IsZero() {
		validUntil = time.Now().Add(DefaultTokenTTL)
	}
	role := user.Role
	if role == "" {
		role = RoleCustomer
	}

	claims := Claims{
		Email: user.Email,
		Name:  user.Name,
		Role:  role,
		StandardClaims: jwt.StandardClaims{
			Subject:   user.Id,
			ExpiresAt: validUntil.Unix(),
			IssuedAt:  time.Now().Unix(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ParseToken(secret, tokenString string) (*Claims, error) {
	if len(tokenString) == 0 {
		return nil, ErrEmptyToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	if claims.Role == "" {
		claims.Role = RoleCustomer
	}

	return claims, nil
}

// InspectToken reads the claims of a token without verifying its signature. Clients use
// it to learn who they are logged in as; the server always verifies.
func InspectToken(tokenString string) (*Claims, error) {
	if len(tokenString) == 0 {
		return nil, ErrEmptyToken
	}

	claims := &Claims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(tokenString, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	if claims.Role == "" {
		claims.Role = RoleCustomer
	}
	return claims, nil
}
