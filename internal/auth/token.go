package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

type Claims struct {
	jwt.RegisteredClaims
	Role          string `json:"role"`
	EmailVerified bool   `json:"email_verified"`
}

// Tokens signs and verifies HS256 bearer tokens carrying a Caller.
type Tokens struct {
	secret []byte
	issuer string
}

func NewTokens(secret []byte, issuer string) *Tokens {
	return &Tokens{secret: secret, issuer: issuer}
}

func (t *Tokens) Issue(c Caller, ttl time.Duration) (string, error) {
	if c.UserID == uuid.Nil {
		return "", errors.New("token subject is required")
	}
	if _, ok := ParseRole(string(c.Role)); !ok {
		return "", fmt.Errorf("unknown role %q", c.Role)
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   c.UserID.String(),
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role:          string(c.Role),
		EmailVerified: c.EmailVerified,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (t *Tokens) Verify(raw string) (Caller, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}

	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return Anonymous, ErrInvalidToken
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Anonymous, ErrInvalidToken
	}
	role, ok := ParseRole(claims.Role)
	if !ok {
		return Anonymous, ErrInvalidToken
	}

	return Caller{UserID: userID, Role: role, EmailVerified: claims.EmailVerified}, nil
}
