package auth

import (
	"net/http"
	"strings"
)

// Middleware validates JWTs and enforces RBAC.
type Middleware struct {
	Secret  []byte
	Policy  Policy
	PlantID string
}

// NewMiddleware constructs an auth middleware. A non-empty plantID rejects
// tokens issued for another plant.
func NewMiddleware(secret []byte, policy Policy, plantID string) *Middleware {
	return &Middleware{Secret: secret, Policy: policy, PlantID: plantID}
}

// Wrap applies auth and RBAC to the handler.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.Policy.IsExempt(r) {
			next.ServeHTTP(w, r)
			return
		}

		required, ok := m.Policy.RequiredRole(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := ParseJWT(extractToken(r), m.Secret)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if m.PlantID != "" && claims.PlantID != "" && claims.PlantID != m.PlantID {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		role, _ := NormalizeRole(claims.Role)
		if !RoleAtLeast(role, required) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		ctx := WithIdentity(r.Context(), claims.PlantID, role, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractToken reads the bearer header, falling back to the access_token
// query parameter for websocket clients that cannot set headers.
func extractToken(r *http.Request) string {
	if r == nil {
		return ""
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return r.URL.Query().Get("access_token")
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
