package rbac

import "context"

// Principal describes the authenticated actor resolved for the current
// request: identity, role, and the account's stored permission snapshot.
type Principal struct {
	ID          int64
	Email       string
	Role        Role
	Permissions []string
	IsActive    bool
}

// HasPermission reports whether the principal's stored set contains the
// permission.
func (p Principal) HasPermission(permission string) bool {
	for _, held := range p.Permissions {
		if held == permission {
			return true
		}
	}
	return false
}

// HasAnyPermission reports whether the principal holds at least one of the
// given permissions.
func (p Principal) HasAnyPermission(permissions ...string) bool {
	for _, required := range permissions {
		if p.HasPermission(required) {
			return true
		}
	}
	return false
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in the request context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from the context, or nil.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}
