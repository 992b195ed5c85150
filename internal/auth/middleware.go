// Package auth guards the administrative endpoints of the discovery API.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/stacklok/site-discovery-server/internal/config"
)

// RFC 6750 Section 3 error codes
const (
	errorCodeInvalidRequest    = "invalid_request"
	errorCodeInvalidToken      = "invalid_token"
	errorCodeInsufficientScope = "insufficient_scope"
)

const defaultRealm = "site-discovery"

type claimsKey struct{}

// ClaimsFromContext returns the claims of an authenticated admin request.
func ClaimsFromContext(ctx context.Context) (jwt.MapClaims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(jwt.MapClaims)
	return claims, ok
}

// adminMiddleware admits requests bearing a valid token with the admin claim.
// Every rejection is a 403.
type adminMiddleware struct {
	// validator is nil when no secret is configured; all requests are refused.
	validator tokenValidator
	realm     string
}

// NewAdminMiddleware builds the middleware for administrative routes from cfg.
func NewAdminMiddleware(cfg *config.AuthConfig) (func(http.Handler) http.Handler, error) {
	secret, err := cfg.GetAdminSecret()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve admin secret: %w", err)
	}

	m := &adminMiddleware{realm: defaultRealm}
	if secret == "" {
		slog.Warn("auth: no admin secret configured, administrative endpoints are disabled")
		return m.Middleware, nil
	}

	issuer := ""
	if cfg != nil {
		issuer = cfg.Issuer
	}
	m.validator = newHMACValidator(secret, issuer)
	slog.Info("auth: admin token verification enabled", "issuer", issuer)
	return m.Middleware, nil
}

// Middleware returns an HTTP middleware function that performs the admin check.
func (m *adminMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.validator == nil {
			m.writeError(w, errorCodeInvalidRequest, "administrative access is not configured")
			return
		}

		token, err := extractBearerToken(r)
		if err != nil {
			slog.Warn("Token extraction failed",
				"error", err,
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path)
			m.writeError(w, errorCodeInvalidRequest, "missing or malformed authorization header")
			return
		}

		claims, err := m.validator.ValidateToken(r.Context(), token)
		if err != nil {
			slog.Warn("Token validation failed",
				"error", err,
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path)
			m.writeError(w, errorCodeInvalidToken, "token validation failed")
			return
		}

		if !IsAdmin(claims) {
			slog.Warn("Non-admin token rejected",
				"subject", claims["sub"],
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path)
			m.writeError(w, errorCodeInsufficientScope, "admin access required")
			return
		}

		slog.Info("Admin request authenticated",
			"subject", claims["sub"],
			"remote_addr", r.RemoteAddr,
			"path", r.URL.Path)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	})
}

func extractBearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", fmt.Errorf("authorization header missing")
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", fmt.Errorf("authorization header is not a bearer token")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("bearer token is empty")
	}
	return token, nil
}

// sanitizeHeaderValue removes characters that could enable header injection attacks.
func sanitizeHeaderValue(s string) string {
	if !strings.ContainsAny(s, "\r\n\"") {
		return s
	}
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}

// writeError writes a 403 JSON error with an RFC 6750 WWW-Authenticate header.
func (m *adminMiddleware) writeError(w http.ResponseWriter, errCode, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Bearer realm="%s", error="%s", error_description="%s"`,
		sanitizeHeaderValue(m.realm), errCode, sanitizeHeaderValue(description)))
	w.WriteHeader(http.StatusForbidden)

	resp := struct {
		Error string `json:"error"`
	}{
		Error: description,
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode error response", "error", err)
	}
}
