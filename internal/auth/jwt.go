package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the tenant and role bound to a token.
type Claims struct {
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

func (c *Claims) validate() error {
	if c.TenantID == "" {
		return errors.New("auth: token missing tenant_id")
	}
	if _, ok := NormalizeRole(c.Role); !ok {
		return fmt.Errorf("auth: unknown role %q", c.Role)
	}
	return nil
}

// ParseJWT verifies an HS256 token and returns its claims. Registered time
// claims (exp, nbf) are validated by the parser.
func ParseJWT(tokenString string, secret []byte) (*Claims, error) {
	if tokenString == "" {
		return nil, errors.New("auth: missing bearer token")
	}
	if len(secret) == 0 {
		return nil, errors.New("auth: signing secret not configured")
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("auth: invalid token")
	}
	if err := claims.validate(); err != nil {
		return nil, err
	}
	return claims, nil
}
