package rbac

import (
	"context"
	"strings"
)

// Principal is the authenticated caller.
type Principal struct {
	UserID      string `json:"userId"`
	Role        Role   `json:"role"`
	InstituteID string `json:"instituteId"`
}

func (p Principal) IsSuperAdmin() bool { return p.Role == RoleSuperAdmin }

type Checker struct {
	RolePermissions map[Role][]string
}

func NewChecker(rp map[Role][]string) *Checker {
	if rp == nil {
		rp = RolePermissions
	}
	return &Checker{RolePermissions: rp}
}

func (c *Checker) Has(role Role, perm string) bool {
	for _, p := range c.RolePermissions[role] {
		if matchPerm(p, perm) {
			return true
		}
	}
	return false
}

// HasAny reports whether role holds perm either outright or for its own documents.
func (c *Checker) HasAny(role Role, perm string) bool {
	return c.Has(role, perm) || c.Has(role, perm+"_own")
}

// Can decides a single action on a document created by owner.
func (c *Checker) Can(p Principal, perm, owner string) bool {
	if c.Has(p.Role, perm) {
		return true
	}
	return owner != "" && owner == p.UserID && c.Has(p.Role, perm+"_own")
}

func (c *Checker) CanAssign(p Principal, target Role) bool {
	for _, r := range assignable[p.Role] {
		if r == target {
			return true
		}
	}
	return false
}

func matchPerm(pattern, perm string) bool {
	if pattern == "*" || pattern == perm {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(perm, prefix) && !strings.HasSuffix(perm, "_own")
	}
	return false
}

var defaultChecker = NewChecker(nil)

func Can(p Principal, perm, owner string) bool { return defaultChecker.Can(p, perm, owner) }

func CanAssign(p Principal, target Role) bool { return defaultChecker.CanAssign(p, target) }

// ---- principal in context ----

type ctxKey struct{}

var ctxKeyPrincipal = ctxKey{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKeyPrincipal).(Principal)
	return p, ok
}
