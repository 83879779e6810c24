package content

// Role is a user's global role.
type Role string

const (
	// RoleUser can read published articles and purchase premium content.
	RoleUser Role = "USER"
	// RoleContentManager can additionally author and edit articles.
	RoleContentManager Role = "CONTENT_MANAGER"
	// RoleAdmin can do everything, including managing users and orders.
	RoleAdmin Role = "ADMIN"
)

// Permission is one indivisible capability checked against a role's
// permission set.
type Permission string

const (
	PermArticleRead   Permission = "article.read"
	PermArticleWrite  Permission = "article.write"
	PermArticleDelete Permission = "article.delete"
	PermUsersManage   Permission = "users.manage"
	PermOrdersManage  Permission = "orders.manage"
	PermSystemManage  Permission = "system.manage"
)

// rolePermissions is the static role → permission table. Article permissions
// are monotonically inclusive up the ladder; the table does not enforce that
// structurally, it simply lists each role's full set.
var rolePermissions = map[Role][]Permission{
	RoleUser: {
		PermArticleRead,
	},
	RoleContentManager: {
		PermArticleRead,
		PermArticleWrite,
		PermArticleDelete,
	},
	RoleAdmin: {
		PermArticleRead,
		PermArticleWrite,
		PermArticleDelete,
		PermUsersManage,
		PermOrdersManage,
		PermSystemManage,
	},
}

// PermissionsFor returns the permission set for a role. Unknown roles get an
// empty set.
func PermissionsFor(role Role) []Permission {
	perms, ok := rolePermissions[role]
	if !ok {
		return nil
	}
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}

// HasPermission reports whether the role's permission set contains the
// permission. Fail-closed: unknown roles have no permissions.
func HasPermission(role Role, permission Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}

// IsValid checks if the role is one of the predefined valid roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleContentManager, RoleAdmin:
		return true
	default:
		return false
	}
}

// IsAtLeast checks if this role meets the minimum required level.
func (r Role) IsAtLeast(minRole Role) bool {
	roleHierarchy := map[Role]int{
		RoleUser:           0,
		RoleContentManager: 1,
		RoleAdmin:          2,
	}

	currentLevel, exists := roleHierarchy[r]
	if !exists {
		return false
	}

	minLevel, exists := roleHierarchy[minRole]
	if !exists {
		return false
	}

	return currentLevel >= minLevel
}

// GetAllRoles returns all predefined roles in hierarchical order.
func GetAllRoles() []Role {
	return []Role{RoleUser, RoleContentManager, RoleAdmin}
}

// ParseRole safely parses a string into a Role.
func ParseRole(roleStr string) (Role, bool) {
	role := Role(roleStr)
	return role, role.IsValid()
}
