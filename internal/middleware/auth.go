// Package middleware hosts authentication, logging, and rate limiting middleware.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"dotpay/pkg/logger"
	"dotpay/pkg/validator"

	"github.com/golang-jwt/jwt/v5"
)

// contextKey avoids collisions when storing values in request contexts.
type contextKey string

const (
	ctxAddressKey contextKey = "address"
	ctxSubjectKey contextKey = "subject"
)

// TokenBlacklist reports revoked tokens.
type TokenBlacklist interface {
	IsBlacklisted(ctx context.Context, token string) (bool, error)
}

// AuthMiddleware validates bearer JWTs and injects the caller's wallet address.
type AuthMiddleware struct {
	jwtSecret    string
	addressClaim string
	blacklist    TokenBlacklist
	logger       logger.Logger
}

// NewAuthMiddleware constructs an AuthMiddleware. blacklist may be nil.
func NewAuthMiddleware(secret, addressClaim string, blacklist TokenBlacklist, log logger.Logger) *AuthMiddleware {
	if addressClaim == "" {
		addressClaim = "address"
	}
	return &AuthMiddleware{
		jwtSecret:    secret,
		addressClaim: addressClaim,
		blacklist:    blacklist,
		logger:       log,
	}
}

// Authenticate enforces bearer auth and puts the lowercased sender address on the context.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if strings.TrimSpace(authHeader) == "" {
			jsonError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		parts := strings.Fields(authHeader)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			jsonError(w, http.StatusUnauthorized, "Invalid authorization format")
			return
		}
		tokenString := parts[1]

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(m.jwtSecret), nil
		}, jwt.WithExpirationRequired())
		if err != nil || !token.Valid {
			jsonError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		if m.blacklist != nil {
			revoked, err := m.blacklist.IsBlacklisted(r.Context(), tokenString)
			if err != nil {
				m.logger.Warn("Token blacklist unavailable", map[string]interface{}{"error": err.Error()})
			} else if revoked {
				jsonError(w, http.StatusUnauthorized, "Token revoked")
				return
			}
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			jsonError(w, http.StatusUnauthorized, "Invalid token claims")
			return
		}

		address, _ := claims[m.addressClaim].(string)
		address = strings.ToLower(strings.TrimSpace(address))
		if !validator.IsEVMAddress(address) {
			jsonError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		ctx := context.WithValue(r.Context(), ctxAddressKey, address)
		if sub, err := claims.GetSubject(); err == nil && sub != "" {
			ctx = context.WithValue(ctx, ctxSubjectKey, sub)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AddressFromContext returns the authenticated wallet address, lowercased.
func AddressFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxAddressKey).(string)
	return v, ok && v != ""
}

func SubjectFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxSubjectKey).(string)
	return v, ok
}

// WithAddress returns a context carrying address, as Authenticate would set it.
func WithAddress(ctx context.Context, address string) context.Context {
	return context.WithValue(ctx, ctxAddressKey, strings.ToLower(address))
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"message": message,
	})
}

func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed := os.Getenv("CORS_ALLOWED_ORIGINS")
		origin := r.Header.Get("Origin")
		if strings.TrimSpace(allowed) != "" {
			for _, o := range strings.Split(allowed, ",") {
				if strings.EqualFold(strings.TrimSpace(o), origin) {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Vary", "Origin")
					break
				}
			}
		} else if origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
