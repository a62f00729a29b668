package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"viewql/internal/logging"
	"viewql/internal/rbac"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestLoggingAssignsRequestID(t *testing.T) {
	logger := logging.New(logging.Options{Level: "error"})
	handler := Logging(logger)(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/graphql", nil))

	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestLoggingKeepsProvidedRequestID(t *testing.T) {
	logger := logging.New(logging.Options{Level: "error"})
	var seen string
	handler := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.RequestID(r.Context())
	}))

	r := httptest.NewRequest("GET", "/graphql", nil)
	r.Header.Set(RequestIDHeader, "req-42")
	handler.ServeHTTP(httptest.NewRecorder(), r)

	assert.Equal(t, "req-42", seen)
}

func TestRateLimitExhaustsBurst(t *testing.T) {
	handler := RateLimit(RateLimitConfig{Enabled: true, RPS: 0.001, Burst: 2})(okHandler())

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("POST", "/graphql", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/graphql", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestRateLimitDisabledPassesThrough(t *testing.T) {
	handler := RateLimit(RateLimitConfig{})(okHandler())

	for i := 0; i < 50; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("POST", "/graphql", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return raw
}

func TestAuthResolvesCaller(t *testing.T) {
	var caller rbac.Caller
	handler := Auth(AuthConfig{JWTSecret: "s3cret"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller = CallerFromContext(r.Context())
	}))

	token := signToken(t, "s3cret", jwt.MapClaims{
		"sub":          "user-1",
		"capabilities": []string{"pii:read", "self:read"},
		"exp":          time.Now().Add(time.Hour).Unix(),
	})
	r := httptest.NewRequest("POST", "/graphql", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), r)

	assert.Equal(t, "user-1", caller.Subject)
	assert.Equal(t, []string{"pii:read", "self:read"}, caller.Capabilities)
}

func TestAuthSpaceSeparatedCapabilities(t *testing.T) {
	var caller rbac.Caller
	handler := Auth(AuthConfig{JWTSecret: "s3cret"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller = CallerFromContext(r.Context())
	}))

	token := signToken(t, "s3cret", jwt.MapClaims{
		"sub":          "user-2",
		"capabilities": "pii:read admin",
	})
	r := httptest.NewRequest("POST", "/graphql", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(httptest.NewRecorder(), r)

	assert.Equal(t, []string{"pii:read", "admin"}, caller.Capabilities)
}

func TestAuthRejectsBadSignature(t *testing.T) {
	handler := Auth(AuthConfig{JWTSecret: "s3cret"})(okHandler())

	token := signToken(t, "wrong-secret", jwt.MapClaims{"sub": "user-1"})
	r := httptest.NewRequest("POST", "/graphql", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthRejectsExpiredToken(t *testing.T) {
	handler := Auth(AuthConfig{JWTSecret: "s3cret"})(okHandler())

	token := signToken(t, "s3cret", jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	r := httptest.NewRequest("POST", "/graphql", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthAnonymousWithoutToken(t *testing.T) {
	var caller rbac.Caller
	handler := Auth(AuthConfig{JWTSecret: "s3cret"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller = CallerFromContext(r.Context())
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/graphql", nil))

	assert.Empty(t, caller.Subject)
	assert.Empty(t, caller.Capabilities)
}

func TestAuthDisabledWithoutSecret(t *testing.T) {
	handler := Auth(AuthConfig{})(okHandler())

	r := httptest.NewRequest("POST", "/graphql", nil)
	r.Header.Set("Authorization", "Bearer garbage")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminTokenAuth(t *testing.T) {
	_, err := AdminTokenAuth(AdminTokenConfig{})
	assert.Error(t, err)

	mw, err := AdminTokenAuth(AdminTokenConfig{Token: "hunter2"})
	require.NoError(t, err)
	handler := mw(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/admin/reload", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	r := httptest.NewRequest("POST", "/admin/reload", nil)
	r.Header.Set("X-Admin-Token", "hunter2")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)
}
