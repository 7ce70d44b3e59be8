// Package auth authenticates requests to the gateway's admin HTTP surface
// with a bearer JWT, carrying an operator identity and role set rather than
// a request body claim.
package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/serbia-gov/platform/internal/shared/config"
)

type contextKey string

const UserContextKey contextKey = "user"

// Operator is the authenticated caller of the admin HTTP surface — an ops
// engineer or a monitoring system, not a clinical end user.
type Operator struct {
	Subject string   `json:"sub"`
	Roles   []string `json:"roles"`
}

// Claims extends the registered JWT claims with the operator's roles.
type Claims struct {
	jwt.RegisteredClaims
	Roles []string `json:"roles"`
}

// Middleware authenticates a bearer JWT and attaches the resulting Operator
// to the request context. Requests without a valid token never reach the
// handler.
func Middleware(cfg config.AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				writeError(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			token, err := jwt.ParseWithClaims(parts[1], &Claims{}, func(token *jwt.Token) (interface{}, error) {
				return []byte(cfg.JWTSecret), nil
			})
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			claims, ok := token.Claims.(*Claims)
			if !ok || !token.Valid {
				writeError(w, http.StatusUnauthorized, "invalid token claims")
				return
			}

			op := &Operator{Subject: claims.Subject, Roles: claims.Roles}
			ctx := context.WithValue(r.Context(), UserContextKey, op)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetOperator extracts the authenticated Operator from a request context.
func GetOperator(ctx context.Context) *Operator {
	op, ok := ctx.Value(UserContextKey).(*Operator)
	if !ok {
		return nil
	}
	return op
}

// RequireRoles rejects any request whose authenticated operator holds none
// of the given roles. Must run after Middleware.
func RequireRoles(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			op := GetOperator(r.Context())
			if op == nil {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if !hasAnyRole(op.Roles, roles) {
				writeError(w, http.StatusForbidden, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (o *Operator) HasRole(role string) bool {
	return hasAnyRole(o.Roles, []string{role})
}

func hasAnyRole(operatorRoles, requiredRoles []string) bool {
	for _, required := range requiredRoles {
		for _, role := range operatorRoles {
			if role == required {
				return true
			}
		}
	}
	return false
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
