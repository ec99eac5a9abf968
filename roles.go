package membership

// RoleName is the closed set of member roles.
type RoleName string

const (
	// RoleUser is a regular member (read only)
	RoleUser RoleName = "user"
	// RoleModerator can create, read and update records
	RoleModerator RoleName = "moderator"
	// RoleAdmin has full access including user management
	RoleAdmin RoleName = "admin"
)

// Permission is a label granted by a role.
type Permission string

const (
	PermissionCreate      Permission = "create"
	PermissionRead        Permission = "read"
	PermissionUpdate      Permission = "update"
	PermissionDelete      Permission = "delete"
	PermissionManageUsers Permission = "manage_users"
)

// IsValid checks if the role is one of the predefined roles
func (r RoleName) IsValid() bool {
	switch r {
	case RoleUser, RoleModerator, RoleAdmin:
		return true
	default:
		return false
	}
}

// Description is the human readable label stored with the role row.
func (r RoleName) Description() string {
	switch r {
	case RoleUser:
		return "Regular member"
	case RoleModerator:
		return "Moderator, can manage records"
	case RoleAdmin:
		return "System administrator, full access"
	default:
		return ""
	}
}

// PermissionsForRole returns a fresh copy of the fixed permission list.
// Unknown roles get an empty set.
func PermissionsForRole(r RoleName) []Permission {
	switch r {
	case RoleAdmin:
		return []Permission{PermissionCreate, PermissionRead, PermissionUpdate, PermissionDelete, PermissionManageUsers}
	case RoleModerator:
		return []Permission{PermissionCreate, PermissionRead, PermissionUpdate}
	case RoleUser:
		return []Permission{PermissionRead}
	default:
		return []Permission{}
	}
}

// DefaultRoles are the roles bootstrapped by SeedRoles.
func DefaultRoles() []RoleName {
	return []RoleName{RoleUser, RoleAdmin, RoleModerator}
}

// ParseRole safely parses a string into a RoleName.
func ParseRole(s string) (RoleName, bool) {
	role := RoleName(s)
	return role, role.IsValid()
}
