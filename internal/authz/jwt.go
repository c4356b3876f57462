package authz

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/saborhub/ordercore/internal/tenancy"
)

// Claims mirrors the bearer-token contract of spec section 6.1:
// {sub: user_id, tenant_id, role, exp}.
type Claims struct {
	jwt.RegisteredClaims
	TenantID string `json:"tenant_id"`
	Role     string `json:"role"`
}

// Middleware verifies the bearer token on every request, rejecting with
// 401 on any failure, and injects the resolved Actor plus tenant
// binding into the request context for downstream handlers.
type Middleware struct {
	secret []byte
}

func NewMiddleware(secret []byte) *Middleware {
	return &Middleware{secret: secret}
}

func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		raw := strings.TrimPrefix(header, "Bearer ")

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
			return m.secret, nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || !token.Valid {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		userID, err := uuid.Parse(claims.Subject)
		if err != nil {
			http.Error(w, "invalid subject claim", http.StatusUnauthorized)
			return
		}
		tenantID, err := uuid.Parse(claims.TenantID)
		if err != nil {
			http.Error(w, "invalid tenant claim", http.StatusUnauthorized)
			return
		}

		actor := Actor{UserID: userID, TenantID: tenantID, Role: Role(claims.Role)}
		ctx := WithActor(r.Context(), actor)
		ctx = tenancy.WithTenant(ctx, tenantID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequirePermission gates a handler behind a permission check, translating
// a missing permission into a 403 before the handler ever runs.
func RequirePermission(p Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok || !actor.Has(p) {
				http.Error(w, "permission denied", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
