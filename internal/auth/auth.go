package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const defaultIssuer = "alumnihub"

// Claims represents the access-token JWT claims used across the service.
// IsSuperuser mirrors the backing user row so clients can derive the admin
// flag without an extra profile call.
type Claims struct {
	TokenType   string `json:"token_type"`
	Name        string `json:"name,omitempty"`
	IsSuperuser bool   `json:"is_superuser"`
	jwt.RegisteredClaims
}

func signAccessToken(secret []byte, issuer, userID, name string, isSuperuser bool, now time.Time, ttl time.Duration) (string, time.Time, error) {
	if len(secret) == 0 {
		return "", time.Time{}, errors.New("auth secret is not configured")
	}
	exp := now.Add(ttl)
	claims := Claims{
		TokenType:   "access",
		Name:        name,
		IsSuperuser: isSuperuser,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

func parseAccessToken(secret []byte, issuer, token string, now func() time.Time) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return secret, nil
	}, jwt.WithTimeFunc(now), jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != "access" {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
