package api

import (
	"crypto/subtle"
	"fmt"
	"net/http"

	"github.com/AaronLay10/pipecheck/internal/config"
)

// Role represents an authorization role.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
)

// Auth holds basic auth credentials. Auth is enabled only when admin
// credentials are set.
type Auth struct {
	Admin    config.Credentials
	Operator config.Credentials
}

// AuthFromEnv resolves PIPECHECK_ADMIN_USER/PASSWORD and
// PIPECHECK_OPERATOR_USER/PASSWORD, each with the *_FILE convention.
func AuthFromEnv() (Auth, error) {
	admin, err := config.ResolveCredentials("PIPECHECK_ADMIN")
	if err != nil {
		return Auth{}, fmt.Errorf("resolve admin credentials: %w", err)
	}
	operator, err := config.ResolveCredentials("PIPECHECK_OPERATOR")
	if err != nil {
		return Auth{}, fmt.Errorf("resolve operator credentials: %w", err)
	}
	return Auth{Admin: admin, Operator: operator}, nil
}

// Enabled returns true if authentication is configured.
func (a Auth) Enabled() bool {
	return a.Admin.Set()
}

// authenticate checks basic auth credentials and returns the role, or ""
// when they match nothing.
func (a Auth) authenticate(r *http.Request) Role {
	if !a.Enabled() {
		return RoleAdmin
	}

	user, pass, ok := r.BasicAuth()
	if !ok {
		return ""
	}
	if secureCompare(user, a.Admin.Username) && secureCompare(pass, a.Admin.Password) {
		return RoleAdmin
	}
	if a.Operator.Set() && secureCompare(user, a.Operator.Username) && secureCompare(pass, a.Operator.Password) {
		return RoleOperator
	}
	return ""
}

// secureCompare performs constant-time string comparison.
func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func requireAuth(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="pipecheck"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}

// RequireRole wraps a handler and requires one of the specified roles.
func (a Auth) RequireRole(handler http.HandlerFunc, allowedRoles ...Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := a.authenticate(r)
		if role == "" {
			requireAuth(w)
			return
		}
		for _, allowed := range allowedRoles {
			if role == allowed {
				handler(w, r)
				return
			}
		}
		http.Error(w, "Forbidden", http.StatusForbidden)
	}
}

// RequireAnyRole wraps a handler requiring admin OR operator role.
func (a Auth) RequireAnyRole(handler http.HandlerFunc) http.HandlerFunc {
	return a.RequireRole(handler, RoleAdmin, RoleOperator)
}

// RequireAdmin wraps a handler requiring admin role only.
func (a Auth) RequireAdmin(handler http.HandlerFunc) http.HandlerFunc {
	return a.RequireRole(handler, RoleAdmin)
}
