// Package rbac defines the permission catalog, the role defaults, and the
// authorization gates that every protected endpoint is checked against.
package rbac

// Permission tokens. The catalog is closed: any string outside this set is
// meaningless and must be rejected or dropped by validation.
const (
	PermRequestsCreate  = "rv.requests.create"
	PermRequestsView    = "rv.requests.view"
	PermRequestsViewAll = "rv.requests.viewAll"
	PermRequestsApprove = "rv.requests.approve"
	PermRequestsReject  = "rv.requests.reject"

	PermFilesUpload     = "rv.files.upload"
	PermFilesDownload   = "rv.files.download"
	PermFilesMakePublic = "rv.files.makePublic"

	PermAPIKeysCreate    = "rv.apiKeys.create"
	PermAPIKeysView      = "rv.apiKeys.view"
	PermAPIKeysManage    = "rv.apiKeys.manage"
	PermAPIKeysViewAll   = "rv.apiKeys.viewAll"
	PermAPIKeysDeleteAll = "rv.apiKeys.deleteAll"

	PermUsersManage = "rv.users.manage"
)

// Role is a named bundle that determines an account's default permission set
// at creation time. There is no linear privilege order between roles.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleContributor Role = "contributor"
	RoleViewer      Role = "viewer"
)

// Roles lists all known roles.
func Roles() []Role {
	return []Role{RoleAdmin, RoleContributor, RoleViewer}
}

// IsKnownRole reports whether the role exists in the catalog.
func IsKnownRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleContributor, RoleViewer:
		return true
	}
	return false
}

// rolePermissions is the static role to default-permission mapping. It is
// evaluated once per account at creation; stored permission sets are
// authoritative afterward and are never recomputed from this table.
var rolePermissions = map[Role][]string{
	RoleAdmin: {
		PermRequestsApprove,
		PermRequestsReject,
		PermFilesUpload,
		PermFilesDownload,
		PermFilesMakePublic,
		PermAPIKeysCreate,
		PermAPIKeysView,
		PermAPIKeysManage,
		PermAPIKeysViewAll,
		PermAPIKeysDeleteAll,
		PermUsersManage,
	},
	RoleContributor: {
		PermFilesUpload,
		PermFilesDownload,
		PermRequestsCreate,
		PermRequestsView,
		PermAPIKeysCreate,
		PermAPIKeysView,
		PermAPIKeysManage,
	},
	RoleViewer: {
		PermFilesDownload,
		PermRequestsCreate,
		PermRequestsView,
	},
}

var knownPermissions = func() map[string]struct{} {
	set := make(map[string]struct{})
	for _, perms := range rolePermissions {
		for _, p := range perms {
			set[p] = struct{}{}
		}
	}
	set[PermRequestsViewAll] = struct{}{}
	return set
}()

// PermissionsForRole returns the default permission list for a role. An
// unrecognized role yields an empty list, not an error.
func PermissionsForRole(role Role) []string {
	perms, ok := rolePermissions[role]
	if !ok {
		return []string{}
	}
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}

// AllRolePermissions returns the full role to permission table for
// introspection and audit endpoints.
func AllRolePermissions() map[Role][]string {
	out := make(map[Role][]string, len(rolePermissions))
	for role := range rolePermissions {
		out[role] = PermissionsForRole(role)
	}
	return out
}

// RoleHasPermission reports whether a role's default set contains the
// permission.
func RoleHasPermission(role Role, permission string) bool {
	for _, p := range rolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}

// IsKnownPermission reports whether the token exists in the catalog.
func IsKnownPermission(permission string) bool {
	_, ok := knownPermissions[permission]
	return ok
}

// AllPermissions returns every token in the catalog.
func AllPermissions() []string {
	out := make([]string, 0, len(knownPermissions))
	for p := range knownPermissions {
		out = append(out, p)
	}
	return out
}

// NormalizePermissions deduplicates the input and drops tokens outside the
// catalog. Order of first appearance is preserved.
func NormalizePermissions(perms []string) []string {
	seen := make(map[string]struct{}, len(perms))
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		if !IsKnownPermission(p) {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
