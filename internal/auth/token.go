package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AdminClaim is the boolean claim that grants administrative access.
const AdminClaim = "admin"

// tokenValidator abstracts token validation for testability.
type tokenValidator interface {
	ValidateToken(ctx context.Context, token string) (jwt.MapClaims, error)
}

// hmacValidator verifies HS256 tokens signed with a shared secret.
type hmacValidator struct {
	secret []byte
	parser *jwt.Parser
}

func newHMACValidator(secret, issuer string) *hmacValidator {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &hmacValidator{secret: []byte(secret), parser: jwt.NewParser(opts...)}
}

// ValidateToken checks the signature and registered claims of token.
func (v *hmacValidator) ValidateToken(_ context.Context, token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// IsAdmin reports whether claims carry admin=true.
func IsAdmin(claims jwt.MapClaims) bool {
	admin, ok := claims[AdminClaim].(bool)
	return ok && admin
}

// IssueAdminToken signs an admin token for subject valid for ttl.
func IssueAdminToken(secret, issuer, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("admin secret is required")
	}
	if ttl <= 0 {
		return "", errors.New("token lifetime must be positive")
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":      subject,
		"iat":      now.Unix(),
		"exp":      now.Add(ttl).Unix(),
		AdminClaim: true,
	}
	if issuer != "" {
		claims["iss"] = issuer
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign admin token: %w", err)
	}
	return signed, nil
}
