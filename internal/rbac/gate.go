package rbac

// The gates are pure decision functions with no side effects. They answer
// allow/deny for a resolved principal; translating a denial into an HTTP
// outcome is the middleware's job.

// AllowRoles reports whether the principal's role is in the required set.
// An empty set means "any authenticated principal".
func AllowRoles(p Principal, requiredRoles ...Role) bool {
	if len(requiredRoles) == 0 {
		return true
	}
	for _, role := range requiredRoles {
		if p.Role == role {
			return true
		}
	}
	return false
}

// AllowAnyPermission reports whether the principal holds at least one of the
// required permissions. This is an OR across the set: listing {approve,
// reject} is satisfied by holding either. An empty set means "any
// authenticated principal".
func AllowAnyPermission(p Principal, requiredPermissions ...string) bool {
	if len(requiredPermissions) == 0 {
		return true
	}
	return p.HasAnyPermission(requiredPermissions...)
}

// AllowOwnerOrPrivileged reports whether the principal either holds one of
// the privileged roles or owns the resource. Used uniformly for file,
// API-key, and request access so non-privileged users only ever reach their
// own resources.
func AllowOwnerOrPrivileged(p Principal, resourceOwnerID int64, privilegedRoles ...Role) bool {
	for _, role := range privilegedRoles {
		if p.Role == role {
			return true
		}
	}
	return p.ID == resourceOwnerID
}
