// Package tenants resolves the institute a request acts in.
package tenants

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/mind-engage/mindengage-exams/internal/rbac"
)

// DefaultHeader carries a superadmin's institute override.
const DefaultHeader = "X-Institute-Id"

var (
	ErrBadInstitute     = errors.New("tenants: invalid institute id")
	ErrForeignInstitute = errors.New("tenants: institute override requires superadmin")
)

// Resolver derives the acting institute from the principal's token claim and,
// for superadmins only, an override header.
type Resolver struct {
	HeaderKey string
}

func NewResolver(headerKey string) *Resolver {
	if headerKey == "" {
		headerKey = DefaultHeader
	}
	return &Resolver{HeaderKey: headerKey}
}

// Resolve returns p with InstituteID set to the institute the request acts in.
// Other roles may repeat their own institute in the header but never name another.
func (res *Resolver) Resolve(r *http.Request, p rbac.Principal) (rbac.Principal, error) {
	raw := strings.TrimSpace(r.Header.Get(res.HeaderKey))
	if raw == "" {
		return p, nil
	}
	id := sanitize(raw)
	if id == "" {
		return p, ErrBadInstitute
	}
	if p.IsSuperAdmin() {
		p.InstituteID = id
		return p, nil
	}
	if id != p.InstituteID {
		return p, ErrForeignInstitute
	}
	return p, nil
}

// Middleware rewrites the principal in the request context. Requests without a
// principal pass through untouched.
func Middleware(res *Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := rbac.PrincipalFromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			p, err := res.Resolve(r, p)
			switch {
			case errors.Is(err, ErrBadInstitute):
				reject(w, http.StatusBadRequest, "invalid "+res.HeaderKey+" header")
				return
			case err != nil:
				reject(w, http.StatusForbidden, "cannot act in another institute")
				return
			}
			next.ServeHTTP(w, r.WithContext(rbac.WithPrincipal(r.Context(), p)))
		})
	}
}

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// sanitize accepts uuids and short slug-like ids.
func sanitize(s string) string {
	if !idPattern.MatchString(s) {
		return ""
	}
	return s
}

func reject(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"message": msg, "errors": []any{}})
}
