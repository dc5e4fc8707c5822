package middleware

import (
	"context"
	"net/http"
	"strings"

	"crm-notification-service/pkg/response"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const (
	ContextUserID  contextKey = "userID"
	ContextScopeID contextKey = "scopeID"
)

// Claims carried by the platform's access tokens. Issuance happens elsewhere;
// this service only verifies.
type Claims struct {
	UserID  string `json:"uid"`
	ScopeID string `json:"scope"`
	jwt.RegisteredClaims
}

func GetUserID(ctx context.Context) (string, bool) {
	val, ok := ctx.Value(ContextUserID).(string)
	return val, ok
}

func GetScopeID(ctx context.Context) (string, bool) {
	val, ok := ctx.Value(ContextScopeID).(string)
	return val, ok
}

// RequireAuth verifies the Bearer token and puts user + tenant scope into the
// request context.
func RequireAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				response.Error(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			tokenStr := strings.TrimPrefix(header, "Bearer ")

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid || claims.UserID == "" {
				response.Error(w, http.StatusUnauthorized, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), ContextUserID, claims.UserID)
			ctx = context.WithValue(ctx, ContextScopeID, claims.ScopeID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
