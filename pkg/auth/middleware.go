package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/TimMatthis/auzguard/pkg/api"
)

// JWTValidator validates HMAC-signed (HS256/HS384/HS512) JWTs issued by the configured JWT_ISSUER,
// bound to JWT_AUDIENCE, and signed with JWT_SECRET.
type JWTValidator struct {
	secret   []byte
	issuer   string
	audience string
}

// Claims are the JWT claims expected by the gateway API.
type Claims struct {
	jwt.RegisteredClaims
	OrgID string   `json:"org_id"`
	Roles []string `json:"roles"`
}

// NewJWTValidator creates a validator bound to the given HMAC secret,
// issuer, and audience. Returns nil if secret is empty (fail-closed
// caller: NewMiddleware rejects all non-public requests when nil).
func NewJWTValidator(secret, issuer, audience string) *JWTValidator {
	if secret == "" {
		return nil
	}
	return &JWTValidator{secret: []byte(secret), issuer: issuer, audience: audience}
}

// Validate parses and validates a JWT token string.
func (v *JWTValidator) Validate(tokenStr string) (*Claims, error) {
	if v == nil {
		return nil, fmt.Errorf("validator uninitialized")
	}

	claims := &Claims{}
	parserOpts := []jwt.ParserOption{}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.audience))
	}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, parserOpts...)
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// publicPaths are endpoints that do not require authentication.
var publicPaths = []string{
	"/health",
	"/readiness",
	"/startup",
}

// isPublicPath checks if the path should be accessible without auth.
func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}

// NewMiddleware creates JWT auth middleware.
// If validator is nil, all non-public requests are rejected (fail closed).
func NewMiddleware(validator *JWTValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				api.WriteUnauthorized(w, "missing Authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				api.WriteUnauthorized(w, "invalid Authorization header format (expected 'Bearer <token>')")
				return
			}
			tokenStr := parts[1]

			if validator == nil {
				api.WriteUnauthorized(w, "authentication not configured")
				return
			}

			claims, err := validator.Validate(tokenStr)
			if err != nil {
				api.WriteUnauthorized(w, "invalid or expired token")
				return
			}
			if claims.Subject == "" {
				api.WriteUnauthorized(w, "token subject is required")
				return
			}
			if claims.OrgID == "" {
				api.WriteUnauthorized(w, "token org binding is required")
				return
			}

			principal := &BasePrincipal{
				ID:    claims.Subject,
				OrgID: claims.OrgID,
				Roles: claims.Roles,
			}

			ctx := WithPrincipal(r.Context(), principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireCapability wraps next, rejecting requests whose Principal lacks
// cap with a 403 FORBIDDEN envelope.
func RequireCapability(cap Capability, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := GetPrincipal(r.Context())
		if err != nil {
			api.WriteUnauthorized(w, "")
			return
		}
		if !principal.HasCapability(cap) {
			api.WriteForbidden(w, fmt.Sprintf("missing capability %q", cap))
			return
		}
		next.ServeHTTP(w, r)
	})
}
