package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TimMatthis/auzguard/pkg/auth"
)

const testSecret = "test-secret-value"

func signToken(t *testing.T, sub, orgID string, roles []string, expiry time.Time, secret string) string {
	t.Helper()
	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(expiry),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "auzguard-test",
			Audience:  jwt.ClaimStrings{"auzguard"},
		},
		OrgID: orgID,
		Roles: roles,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestMiddlewareValidJWT(t *testing.T) {
	validator := auth.NewJWTValidator(testSecret, "auzguard-test", "auzguard")
	middleware := auth.NewMiddleware(validator)

	var captured auth.Principal
	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := auth.GetPrincipal(r.Context())
		require.NoError(t, err)
		captured = p
		w.WriteHeader(http.StatusOK)
	}))

	token := signToken(t, "user-123", "org-abc", []string{"admin"}, time.Now().Add(time.Hour), testSecret)
	req := httptest.NewRequest("GET", "/api/policies", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, captured)
	assert.Equal(t, "user-123", captured.GetID())
	assert.Equal(t, "org-abc", captured.GetOrgID())
}

func TestMiddlewareExpiredJWT(t *testing.T) {
	validator := auth.NewJWTValidator(testSecret, "auzguard-test", "auzguard")
	middleware := auth.NewMiddleware(validator)

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called for expired token")
	}))

	token := signToken(t, "user-123", "org-abc", []string{"admin"}, time.Now().Add(-time.Hour), testSecret)
	req := httptest.NewRequest("GET", "/api/policies", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMiddlewareMissingHeader(t *testing.T) {
	validator := auth.NewJWTValidator(testSecret, "", "")
	middleware := auth.NewMiddleware(validator)

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called without auth header")
	}))

	req := httptest.NewRequest("GET", "/api/policies", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMiddlewareInvalidSignature(t *testing.T) {
	validator := auth.NewJWTValidator("a-different-secret", "", "")
	middleware := auth.NewMiddleware(validator)

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called for invalid signature")
	}))

	token := signToken(t, "user-123", "org-abc", []string{"admin"}, time.Now().Add(time.Hour), testSecret)
	req := httptest.NewRequest("GET", "/api/policies", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMiddlewarePublicPathsBypass(t *testing.T) {
	middleware := auth.NewMiddleware(nil)

	called := false
	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMiddlewareNilValidatorFailsClosed(t *testing.T) {
	middleware := auth.NewMiddleware(nil)

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called when validator is nil")
	}))

	req := httptest.NewRequest("GET", "/api/policies", nil)
	req.Header.Set("Authorization", "Bearer some-token")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMiddlewareMissingOrgClaim(t *testing.T) {
	validator := auth.NewJWTValidator(testSecret, "", "")
	middleware := auth.NewMiddleware(validator)

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called for missing org claim")
	}))

	token := signToken(t, "user-123", "", []string{"admin"}, time.Now().Add(time.Hour), testSecret)
	req := httptest.NewRequest("GET", "/api/policies", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireCapabilityRejectsMissingCapability(t *testing.T) {
	handlerCalled := false
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusOK)
	})

	principal := &auth.BasePrincipal{ID: "u1", OrgID: "org-1", Roles: []string{"viewer"}}
	req := httptest.NewRequest("POST", "/api/policies/pol-1", nil)
	req = req.WithContext(auth.WithPrincipal(req.Context(), principal))
	w := httptest.NewRecorder()

	auth.RequireCapability(auth.CapEditRules, inner).ServeHTTP(w, req)

	assert.False(t, handlerCalled)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireCapabilityAllowsGrantedCapability(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	principal := &auth.BasePrincipal{ID: "u1", OrgID: "org-1", Roles: []string{"policy_editor"}}
	req := httptest.NewRequest("POST", "/api/policies/pol-1", nil)
	req = req.WithContext(auth.WithPrincipal(req.Context(), principal))
	w := httptest.NewRecorder()

	auth.RequireCapability(auth.CapEditRules, inner).ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetRequestIDExtractsFromContext(t *testing.T) {
	var got string
	handler := auth.RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = auth.GetRequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/api/policies", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.NotEmpty(t, got)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}
