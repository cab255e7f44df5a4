package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

const roleColumns = `r.id, r.name, r.display_name, r.description, r.is_system_role,
	r.created_at, r.updated_at,
	(SELECT COUNT(*) FROM workspace_members m WHERE m.role_id = r.id AND m.status = 'active') AS user_count,
	(SELECT COUNT(*) FROM role_permissions rp WHERE rp.role_id = r.id) AS permission_count`

// Store manages roles and their permission grants in Postgres
type Store struct {
	db *sql.DB
}

// NewStore creates an RBAC store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateRole creates a role with an optional initial grant set. The
// name key is immutable after creation; the reserved admin name is
// rejected as taken.
func (s *Store) CreateRole(ctx context.Context, name, displayName, description string, grants []Permission) (*Role, error) {
	name = strings.TrimSpace(name)
	if err := ValidateRoleName(name); err != nil {
		return nil, err
	}
	if name == AdminRoleName {
		return nil, ErrRoleNameTaken
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	var role Role
	err = tx.QueryRowContext(ctx, `
		INSERT INTO roles (name, display_name, description)
		VALUES ($1, $2, $3)
		RETURNING id, name, display_name, description, is_system_role, created_at, updated_at`,
		name, displayName, description,
	).Scan(&role.ID, &role.Name, &role.DisplayName, &role.Description,
		&role.IsSystemRole, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrRoleNameTaken
		}
		return nil, fmt.Errorf("failed to create role: %w", err)
	}

	if err := insertGrants(ctx, tx, role.ID, grants); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit role creation: %w", err)
	}

	role.Permissions = NewPermissionSet(grants...).List()
	role.PermissionCount = len(role.Permissions)
	return &role, nil
}

// GetRole fetches a role with its grants and derived counts
func (s *Store) GetRole(ctx context.Context, id int64) (*Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles r WHERE r.id = $1`

	role, err := scanRole(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	role.Permissions, err = s.GetRolePermissions(ctx, role.ID)
	if err != nil {
		return nil, err
	}
	return role, nil
}

// GetRoleByName fetches a role by its immutable name key
func (s *Store) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles r WHERE r.name = $1`

	role, err := scanRole(s.db.QueryRowContext(ctx, query, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	role.Permissions, err = s.GetRolePermissions(ctx, role.ID)
	if err != nil {
		return nil, err
	}
	return role, nil
}

// ListRoles returns every role with derived user and permission counts
func (s *Store) ListRoles(ctx context.Context) ([]Role, error) {
	query := `SELECT ` + roleColumns + ` FROM roles r ORDER BY r.name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, *role)
	}
	return roles, rows.Err()
}

// UpdateRole changes a role's display name and description. The name
// key never changes; the admin role is immutable entirely.
func (s *Store) UpdateRole(ctx context.Context, id int64, displayName, description string) (*Role, error) {
	if err := s.guardMutable(ctx, id); err != nil {
		return nil, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE roles SET display_name = $2, description = $3, updated_at = NOW()
		WHERE id = $1`,
		id, displayName, description,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update role: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rows == 0 {
		return nil, ErrRoleNotFound
	}
	return s.GetRole(ctx, id)
}

// DeleteRole removes a role and returns the removed row. System roles
// and roles still referenced by an active membership are rejected; the
// role and memberships stay untouched.
func (s *Store) DeleteRole(ctx context.Context, id int64) (*Role, error) {
	role, err := s.GetRole(ctx, id)
	if err != nil {
		return nil, err
	}
	if role.Name == AdminRoleName {
		return nil, ErrAdminImmutable
	}
	if role.IsSystemRole {
		return nil, ErrSystemRole
	}
	if role.UserCount > 0 {
		return nil, ErrRoleInUse
	}

	_, err = s.db.ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to delete role: %w", err)
	}
	return role, nil
}

// ListPermissions returns the permission catalog grouped by module
func (s *Store) ListPermissions(ctx context.Context) ([]ModulePermissions, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, module, action, COALESCE(description, '')
		FROM permissions
		ORDER BY module, action`)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	var grouped []ModulePermissions
	for rows.Next() {
		var rec PermissionRecord
		if err := rows.Scan(&rec.ID, &rec.Module, &rec.Action, &rec.Description); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		if len(grouped) == 0 || grouped[len(grouped)-1].Module != rec.Module {
			grouped = append(grouped, ModulePermissions{Module: rec.Module})
		}
		last := &grouped[len(grouped)-1]
		last.Permissions = append(last.Permissions, rec)
	}
	return grouped, rows.Err()
}

// GetRolePermissions returns a role's grants ordered by module, action
func (s *Store) GetRolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.module, p.action
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1
		ORDER BY p.module, p.action`, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to get role permissions: %w", err)
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.Module, &p.Action); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// PermissionSetForRole returns a role's grants as a set for the
// evaluator. Called on every request; never cached.
func (s *Store) PermissionSetForRole(ctx context.Context, roleID int64) (PermissionSet, error) {
	perms, err := s.GetRolePermissions(ctx, roleID)
	if err != nil {
		return nil, err
	}
	return NewPermissionSet(perms...), nil
}

// ReplaceRolePermissions swaps a role's entire grant set in one
// transaction so concurrent evaluator reads never observe a role with
// the set half applied. Setting the same set twice is a no-op.
func (s *Store) ReplaceRolePermissions(ctx context.Context, roleID int64, grants []Permission) error {
	if err := s.guardMutable(ctx, roleID); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return fmt.Errorf("failed to clear role permissions: %w", err)
	}
	if err := insertGrants(ctx, tx, roleID, grants); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit permission replacement: %w", err)
	}
	return nil
}

// guardMutable rejects mutations of the reserved admin role and maps a
// missing role to ErrRoleNotFound.
func (s *Store) guardMutable(ctx context.Context, roleID int64) error {
	var name string
	err := s.db.QueryRowContext(ctx, `SELECT name FROM roles WHERE id = $1`, roleID).Scan(&name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRoleNotFound
		}
		return fmt.Errorf("failed to look up role: %w", err)
	}
	if name == AdminRoleName {
		return ErrAdminImmutable
	}
	return nil
}

func insertGrants(ctx context.Context, tx *sql.Tx, roleID int64, grants []Permission) error {
	for _, p := range NewPermissionSet(grants...).List() {
		result, err := tx.ExecContext(ctx, `
			INSERT INTO role_permissions (role_id, permission_id)
			SELECT $1, id FROM permissions WHERE module = $2 AND action = $3`,
			roleID, p.Module, p.Action,
		)
		if err != nil {
			return fmt.Errorf("failed to grant %s: %w", p, err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check grant %s: %w", p, err)
		}
		if rows == 0 {
			return fmt.Errorf("%w: %s", ErrUnknownPermission, p)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRole(row rowScanner) (*Role, error) {
	var role Role
	err := row.Scan(
		&role.ID,
		&role.Name,
		&role.DisplayName,
		&role.Description,
		&role.IsSystemRole,
		&role.CreatedAt,
		&role.UpdatedAt,
		&role.UserCount,
		&role.PermissionCount,
	)
	if err != nil {
		return nil, err
	}
	return &role, nil
}
