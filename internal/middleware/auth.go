package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"viewql/internal/rbac"

	"github.com/golang-jwt/jwt/v5"
)

type callerContextKey struct{}

// WithCaller attaches the caller identity to the context.
func WithCaller(ctx context.Context, caller rbac.Caller) context.Context {
	return context.WithValue(ctx, callerContextKey{}, caller)
}

// CallerFromContext retrieves the caller identity. An absent caller is the
// anonymous caller with no capabilities.
func CallerFromContext(ctx context.Context) rbac.Caller {
	if caller, ok := ctx.Value(callerContextKey{}).(rbac.Caller); ok {
		return caller
	}
	return rbac.Caller{}
}

// AuthConfig controls bearer token verification.
type AuthConfig struct {
	// JWTSecret verifies HS256 tokens. Empty disables verification and every
	// request runs as the anonymous caller.
	JWTSecret string
	// CapabilitiesClaim names the claim carrying capability tokens.
	CapabilitiesClaim string
}

// Auth resolves the caller identity from an Authorization bearer token.
// Requests without a token proceed anonymously; requests with an invalid
// token are rejected.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	claim := cfg.CapabilitiesClaim
	if claim == "" {
		claim = "capabilities"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.JWTSecret == "" {
				next.ServeHTTP(w, r)
				return
			}

			raw := bearerToken(r)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}

			caller, err := verifyToken(raw, cfg.JWTSecret, claim)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = fmt.Fprint(w, `{"error":"invalid token"}`)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func verifyToken(raw, secret, capabilitiesClaim string) (rbac.Caller, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return []byte(secret), nil
	})
	if err != nil {
		return rbac.Caller{}, err
	}

	caller := rbac.Caller{}
	if sub, err := claims.GetSubject(); err == nil {
		caller.Subject = sub
	}
	caller.Capabilities = capabilityTokens(claims[capabilitiesClaim])
	return caller, nil
}

// capabilityTokens accepts either a JSON array of strings or a single
// space-separated string, mirroring OAuth scope formatting.
func capabilityTokens(value any) []string {
	switch v := value.(type) {
	case []any:
		tokens := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				tokens = append(tokens, s)
			}
		}
		return tokens
	case []string:
		return v
	case string:
		return strings.Fields(v)
	default:
		return nil
	}
}
