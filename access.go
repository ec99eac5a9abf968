package membership

// RequireRole checks the identity's live role by exact, case sensitive
// name. The role snapshot in SessionClaims is never consulted.
func RequireRole(identity *Identity, role RoleName) error {
	if identity == nil {
		return newForbiddenError(map[string]any{"required_role": string(role)})
	}
	if identity.RoleName() != role {
		return newForbiddenError(map[string]any{
			"required_role": string(role),
			"identity_id":   identity.ID,
		})
	}
	return nil
}

// PermissionsFor returns the fixed permission set of the identity's role.
func PermissionsFor(identity *Identity) []Permission {
	return PermissionsForRole(identity.RoleName())
}

// Can reports whether the identity's role grants permission.
func Can(identity *Identity, permission Permission) bool {
	for _, p := range PermissionsFor(identity) {
		if p == permission {
			return true
		}
	}
	return false
}

// AuthorizeTarget lets a caller act on a record owned by ownerID when the
// caller is the owner or an admin.
func AuthorizeTarget(caller *Identity, ownerID int64) error {
	if caller != nil && caller.ID != 0 && caller.ID == ownerID {
		return nil
	}
	if err := RequireRole(caller, RoleAdmin); err != nil {
		return newForbiddenError(map[string]any{
			"reason":   "not owner or admin",
			"owner_id": ownerID,
		})
	}
	return nil
}
