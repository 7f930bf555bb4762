package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Mindburn-Labs/helm-bridge/pkg/contracts"
)

// JWTValidator validates JWT tokens and extracts claims.
type JWTValidator struct {
	// KeySet provides the keys for validation.
	KeySet KeySet
	// Issuer, when set, must match the iss claim.
	Issuer string
}

// BridgeClaims are the JWT claims expected by the bridge API. The subject is
// the hex address of the paying account.
type BridgeClaims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles,omitempty"`
}

// NewJWTValidator creates a validator with the given KeySet.
func NewJWTValidator(ks KeySet, issuer string) *JWTValidator {
	if ks == nil {
		return nil
	}
	return &JWTValidator{KeySet: ks, Issuer: issuer}
}

// Validate parses and validates a JWT token string.
func (v *JWTValidator) Validate(tokenStr string) (*BridgeClaims, error) {
	if v.KeySet == nil {
		return nil, fmt.Errorf("validator uninitialized")
	}

	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}

	claims := &BridgeClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, v.KeySet.KeyFunc(), opts...)
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// IssueToken signs a token for subject valid for ttl.
func IssueToken(ctx context.Context, ks KeySet, issuer, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	return ks.Sign(ctx, BridgeClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
}

// ErrorWriter writes an error response. api.WriteErrorR satisfies it.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, status int, title, detail string)

// publicPaths are endpoints that do not require authentication.
var publicPaths = []string{
	"/health",
	"/metrics",
}

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
func NewMiddleware(validator *JWTValidator, writeErr ErrorWriter) func(http.Handler) http.Handler {
	unauthorized := func(w http.ResponseWriter, r *http.Request, detail string) {
		writeErr(w, r, http.StatusUnauthorized, "Unauthorized", detail)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthorized(w, r, "Missing Authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				unauthorized(w, r, "Invalid Authorization header format (expected 'Bearer <token>')")
				return
			}

			if validator == nil {
				unauthorized(w, r, "Authentication not configured")
				return
			}

			claims, err := validator.Validate(parts[1])
			if err != nil {
				unauthorized(w, r, "Invalid or expired token")
				return
			}
			if claims.Subject == "" {
				unauthorized(w, r, "Token subject is required")
				return
			}
			payer, err := contracts.ParseAddress(claims.Subject)
			if err != nil {
				unauthorized(w, r, "Token subject must be an account address")
				return
			}

			ctx := WithPrincipal(r.Context(), &Principal{
				Subject: claims.Subject,
				Payer:   payer,
				Roles:   claims.Roles,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
