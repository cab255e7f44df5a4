package rbac

import (
	"errors"
	"regexp"
	"sort"
	"time"
)

// AdminRoleName is the reserved role name. The row exists for display
// and legacy compatibility only; it grants nothing by itself and the
// registry refuses to edit or delete it. All-permission behavior comes
// from the user-level super-admin flag.
const AdminRoleName = "admin"

var (
	// ErrRoleNotFound indicates the role does not exist
	ErrRoleNotFound = errors.New("role not found")
	// ErrRoleNameTaken indicates a role with that name already exists
	ErrRoleNameTaken = errors.New("role name already exists")
	// ErrInvalidRoleName indicates the name key is not lowercase/underscore
	ErrInvalidRoleName = errors.New("role name must be lowercase letters, digits and underscores")
	// ErrSystemRole indicates the operation is forbidden on a system role
	ErrSystemRole = errors.New("system roles cannot be deleted")
	// ErrRoleInUse indicates the role is referenced by active memberships
	ErrRoleInUse = errors.New("role is assigned to active members")
	// ErrAdminImmutable indicates an attempt to modify the reserved admin role
	ErrAdminImmutable = errors.New("the admin role cannot be modified")
	// ErrUnknownPermission indicates a grant names a permission that is
	// not in the catalog
	ErrUnknownPermission = errors.New("unknown permission")
)

var roleNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{1,99}$`)

// ValidateRoleName checks the immutable role name key
func ValidateRoleName(name string) error {
	if !roleNamePattern.MatchString(name) {
		return ErrInvalidRoleName
	}
	return nil
}

// Permission is a (module, action) capability grant, e.g. (projects, delete)
type Permission struct {
	Module string `json:"module"`
	Action string `json:"action"`
}

// String returns the canonical module:action form
func (p Permission) String() string {
	return p.Module + ":" + p.Action
}

// PermissionSet is a flattened set of grants for membership tests
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from a list of grants
func NewPermissionSet(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// Contains reports whether the exact (module, action) pair is granted
func (s PermissionSet) Contains(p Permission) bool {
	_, ok := s[p]
	return ok
}

// ContainsModule reports whether any action on the module is granted
func (s PermissionSet) ContainsModule(module string) bool {
	for p := range s {
		if p.Module == module {
			return true
		}
	}
	return false
}

// List returns the grants in a stable module:action order. The login
// and session responses expose this list so the page layer can gate UI
// affordances; the server re-checks every action regardless.
func (s PermissionSet) List() []Permission {
	perms := make([]Permission, 0, len(s))
	for p := range s {
		perms = append(perms, p)
	}
	sort.Slice(perms, func(i, j int) bool {
		if perms[i].Module != perms[j].Module {
			return perms[i].Module < perms[j].Module
		}
		return perms[i].Action < perms[j].Action
	})
	return perms
}

// Role is a named permission bundle assignable to workspace members
type Role struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	DisplayName  string `json:"display_name"`
	Description  string `json:"description"`
	IsSystemRole bool   `json:"is_system_role"`

	// UserCount and PermissionCount are derived on every read, never
	// stored.
	UserCount       int `json:"user_count"`
	PermissionCount int `json:"permission_count"`

	Permissions []Permission `json:"permissions,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// PermissionRecord is a catalog row
type PermissionRecord struct {
	ID          int64  `json:"id"`
	Module      string `json:"module"`
	Action      string `json:"action"`
	Description string `json:"description"`
}

// ModulePermissions groups catalog rows by module for presentation
type ModulePermissions struct {
	Module      string             `json:"module"`
	Permissions []PermissionRecord `json:"permissions"`
}

// Standard actions available on most modules
const (
	ActionView   = "view"
	ActionCreate = "create"
	ActionEdit   = "edit"
	ActionDelete = "delete"
)

// PermissionCatalog returns the full (module, action) catalog the
// registry manages. Modules mirror the business areas of the platform.
func PermissionCatalog() []Permission {
	modules := []string{
		"clients",
		"projects",
		"quotations",
		"invoices",
		"credentials",
		"conversations",
		"backlog",
		"reports",
	}
	actions := []string{ActionView, ActionCreate, ActionEdit, ActionDelete}

	catalog := make([]Permission, 0, len(modules)*len(actions)+4)
	for _, m := range modules {
		for _, a := range actions {
			catalog = append(catalog, Permission{Module: m, Action: a})
		}
	}
	// Workspace administration surfaces
	catalog = append(catalog,
		Permission{Module: "members", Action: ActionView},
		Permission{Module: "members", Action: "invite"},
		Permission{Module: "members", Action: "remove"},
		Permission{Module: "roles", Action: ActionView},
		Permission{Module: "roles", Action: ActionCreate},
		Permission{Module: "roles", Action: ActionEdit},
		Permission{Module: "roles", Action: ActionDelete},
		Permission{Module: "settings", Action: ActionEdit},
	)
	return catalog
}

// RoleSeed describes a role created at bootstrap
type RoleSeed struct {
	Name         string
	DisplayName  string
	Description  string
	IsSystemRole bool
	Permissions  []Permission
}

// DefaultRoles returns the roles seeded on a fresh database. The admin
// role carries no grants; see AdminRoleName.
func DefaultRoles() []RoleSeed {
	viewGrants := make([]Permission, 0)
	for _, p := range PermissionCatalog() {
		if p.Action == ActionView {
			viewGrants = append(viewGrants, p)
		}
	}

	editorGrants := make([]Permission, 0)
	for _, p := range PermissionCatalog() {
		switch p.Action {
		case ActionView, ActionCreate, ActionEdit:
			if p.Module != "settings" {
				editorGrants = append(editorGrants, p)
			}
		}
	}

	return []RoleSeed{
		{
			Name:         AdminRoleName,
			DisplayName:  "Administrator",
			Description:  "Reserved role label for workspace owners",
			IsSystemRole: true,
		},
		{
			Name:         "editor",
			DisplayName:  "Editor",
			Description:  "Can view, create and edit business records",
			IsSystemRole: true,
			Permissions:  editorGrants,
		},
		{
			Name:         "viewer",
			DisplayName:  "Viewer",
			Description:  "Read-only access to business records",
			IsSystemRole: true,
			Permissions:  viewGrants,
		},
	}
}
