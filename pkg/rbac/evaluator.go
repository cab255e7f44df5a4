package rbac

// Evaluator answers permission queries for a single actor. The
// super-admin flag is checked before any set lookup; it is a platform
// operator escape hatch that bypasses the grant tables entirely.
type Evaluator struct {
	IsSuperAdmin bool
}

// HasPermission reports whether the actor may perform (module, action)
func (e Evaluator) HasPermission(set PermissionSet, p Permission) bool {
	if e.IsSuperAdmin {
		return true
	}
	return set.Contains(p)
}

// HasAnyPermission reports whether any of the listed grants is held
func (e Evaluator) HasAnyPermission(set PermissionSet, perms ...Permission) bool {
	if e.IsSuperAdmin {
		return true
	}
	for _, p := range perms {
		if set.Contains(p) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether every listed grant is held
func (e Evaluator) HasAllPermissions(set PermissionSet, perms ...Permission) bool {
	if e.IsSuperAdmin {
		return true
	}
	for _, p := range perms {
		if !set.Contains(p) {
			return false
		}
	}
	return true
}

// CanViewModule reports whether the actor holds any action on the
// module. Holding any grant implies the module is visible.
func (e Evaluator) CanViewModule(set PermissionSet, module string) bool {
	if e.IsSuperAdmin {
		return true
	}
	return set.ContainsModule(module)
}
