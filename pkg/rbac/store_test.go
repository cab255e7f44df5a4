package rbac

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock, *sql.DB) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewStore(db), mock, db
}

func roleRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "name", "display_name", "description", "is_system_role",
		"created_at", "updated_at", "user_count", "permission_count",
	})
}

func permissionRows(perms ...Permission) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"module", "action"})
	for _, p := range perms {
		rows.AddRow(p.Module, p.Action)
	}
	return rows
}

func TestStore_CreateRole(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()

	ctx := context.Background()
	now := time.Now()

	t.Run("creates role with initial grants", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO roles \(name, display_name, description\)`).
			WithArgs("project_manager", "Project Manager", "Runs projects").
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "name", "display_name", "description", "is_system_role", "created_at", "updated_at",
			}).AddRow(7, "project_manager", "Project Manager", "Runs projects", false, now, now))
		mock.ExpectExec(`INSERT INTO role_permissions \(role_id, permission_id\)`).
			WithArgs(int64(7), "projects", ActionEdit).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO role_permissions \(role_id, permission_id\)`).
			WithArgs(int64(7), "projects", ActionView).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		role, err := store.CreateRole(ctx, "project_manager", "Project Manager", "Runs projects", []Permission{
			{Module: "projects", Action: ActionView},
			{Module: "projects", Action: ActionEdit},
		})
		require.NoError(t, err)
		assert.Equal(t, int64(7), role.ID)
		assert.Equal(t, 2, role.PermissionCount)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects invalid name key", func(t *testing.T) {
		_, err := store.CreateRole(ctx, "Not Valid", "x", "", nil)
		assert.ErrorIs(t, err, ErrInvalidRoleName)
	})

	t.Run("reserved admin name reads as taken", func(t *testing.T) {
		_, err := store.CreateRole(ctx, AdminRoleName, "Admin", "", nil)
		assert.ErrorIs(t, err, ErrRoleNameTaken)
	})

	t.Run("duplicate name maps to ErrRoleNameTaken", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO roles \(name, display_name, description\)`).
			WithArgs("editor", "Editor", "").
			WillReturnError(&pq.Error{Code: "23505"})
		mock.ExpectRollback()

		_, err := store.CreateRole(ctx, "editor", "Editor", "", nil)
		assert.ErrorIs(t, err, ErrRoleNameTaken)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown permission rolls back", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(`INSERT INTO roles \(name, display_name, description\)`).
			WithArgs("auditor", "Auditor", "").
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "name", "display_name", "description", "is_system_role", "created_at", "updated_at",
			}).AddRow(8, "auditor", "Auditor", "", false, now, now))
		mock.ExpectExec(`INSERT INTO role_permissions \(role_id, permission_id\)`).
			WithArgs(int64(8), "nonexistent", ActionView).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		_, err := store.CreateRole(ctx, "auditor", "Auditor", "", []Permission{
			{Module: "nonexistent", Action: ActionView},
		})
		assert.ErrorIs(t, err, ErrUnknownPermission)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_GetRole(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()

	ctx := context.Background()
	now := time.Now()

	t.Run("returns role with grants and derived counts", func(t *testing.T) {
		mock.ExpectQuery(`FROM roles r WHERE r.id = \$1`).
			WithArgs(int64(3)).
			WillReturnRows(roleRows().AddRow(3, "editor", "Editor", "", true, now, now, 4, 2))
		mock.ExpectQuery(`JOIN permissions p ON p.id = rp.permission_id`).
			WithArgs(int64(3)).
			WillReturnRows(permissionRows(
				Permission{Module: "projects", Action: ActionEdit},
				Permission{Module: "projects", Action: ActionView},
			))

		role, err := store.GetRole(ctx, 3)
		require.NoError(t, err)
		assert.Equal(t, "editor", role.Name)
		assert.Equal(t, 4, role.UserCount)
		assert.Equal(t, 2, role.PermissionCount)
		assert.Len(t, role.Permissions, 2)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing role", func(t *testing.T) {
		mock.ExpectQuery(`FROM roles r WHERE r.id = \$1`).
			WithArgs(int64(99)).
			WillReturnError(sql.ErrNoRows)

		_, err := store.GetRole(ctx, 99)
		assert.ErrorIs(t, err, ErrRoleNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_ListRoles(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`FROM roles r ORDER BY r.name`).
		WillReturnRows(roleRows().
			AddRow(1, "admin", "Administrator", "", true, now, now, 1, 0).
			AddRow(2, "editor", "Editor", "", true, now, now, 3, 25))

	roles, err := store.ListRoles(context.Background())
	require.NoError(t, err)
	require.Len(t, roles, 2)
	assert.Equal(t, "admin", roles[0].Name)
	assert.Equal(t, 25, roles[1].PermissionCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpdateRole(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()

	ctx := context.Background()

	t.Run("admin role is immutable", func(t *testing.T) {
		mock.ExpectQuery(`SELECT name FROM roles WHERE id = \$1`).
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("admin"))

		_, err := store.UpdateRole(ctx, 1, "Renamed", "")
		assert.ErrorIs(t, err, ErrAdminImmutable)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing role", func(t *testing.T) {
		mock.ExpectQuery(`SELECT name FROM roles WHERE id = \$1`).
			WithArgs(int64(42)).
			WillReturnError(sql.ErrNoRows)

		_, err := store.UpdateRole(ctx, 42, "X", "")
		assert.ErrorIs(t, err, ErrRoleNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_DeleteRole(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()

	ctx := context.Background()
	now := time.Now()

	expectGet := func(id int64, name string, system bool, userCount int) {
		mock.ExpectQuery(`FROM roles r WHERE r.id = \$1`).
			WithArgs(id).
			WillReturnRows(roleRows().AddRow(id, name, name, "", system, now, now, userCount, 0))
		mock.ExpectQuery(`JOIN permissions p ON p.id = rp.permission_id`).
			WithArgs(id).
			WillReturnRows(permissionRows())
	}

	t.Run("deletes unused custom role", func(t *testing.T) {
		expectGet(9, "auditor", false, 0)
		mock.ExpectExec(`DELETE FROM roles WHERE id = \$1`).
			WithArgs(int64(9)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		role, err := store.DeleteRole(ctx, 9)
		require.NoError(t, err)
		assert.Equal(t, "auditor", role.Name)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("system role rejected", func(t *testing.T) {
		expectGet(2, "editor", true, 0)
		_, err := store.DeleteRole(ctx, 2)
		assert.ErrorIs(t, err, ErrSystemRole)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("role in use rejected, memberships untouched", func(t *testing.T) {
		expectGet(5, "auditor", false, 3)
		_, err := store.DeleteRole(ctx, 5)
		assert.ErrorIs(t, err, ErrRoleInUse)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("admin rejected before system check", func(t *testing.T) {
		expectGet(1, "admin", true, 1)
		_, err := store.DeleteRole(ctx, 1)
		assert.ErrorIs(t, err, ErrAdminImmutable)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_ReplaceRolePermissions(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()

	ctx := context.Background()

	t.Run("replaces grants in one transaction", func(t *testing.T) {
		mock.ExpectQuery(`SELECT name FROM roles WHERE id = \$1`).
			WithArgs(int64(3)).
			WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("editor"))
		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM role_permissions WHERE role_id = \$1`).
			WithArgs(int64(3)).
			WillReturnResult(sqlmock.NewResult(0, 5))
		mock.ExpectExec(`INSERT INTO role_permissions \(role_id, permission_id\)`).
			WithArgs(int64(3), "invoices", ActionView).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := store.ReplaceRolePermissions(ctx, 3, []Permission{
			{Module: "invoices", Action: ActionView},
		})
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("admin grants cannot be edited", func(t *testing.T) {
		mock.ExpectQuery(`SELECT name FROM roles WHERE id = \$1`).
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("admin"))

		err := store.ReplaceRolePermissions(ctx, 1, nil)
		assert.ErrorIs(t, err, ErrAdminImmutable)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty set revokes everything", func(t *testing.T) {
		mock.ExpectQuery(`SELECT name FROM roles WHERE id = \$1`).
			WithArgs(int64(3)).
			WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("editor"))
		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM role_permissions WHERE role_id = \$1`).
			WithArgs(int64(3)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, store.ReplaceRolePermissions(ctx, 3, nil))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure rolls back", func(t *testing.T) {
		mock.ExpectQuery(`SELECT name FROM roles WHERE id = \$1`).
			WithArgs(int64(3)).
			WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("editor"))
		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM role_permissions WHERE role_id = \$1`).
			WithArgs(int64(3)).
			WillReturnError(fmt.Errorf("connection lost"))
		mock.ExpectRollback()

		err := store.ReplaceRolePermissions(ctx, 3, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to clear role permissions")
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStore_ListPermissions(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()

	mock.ExpectQuery(`FROM permissions`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "module", "action", "description"}).
			AddRow(1, "clients", "create", "").
			AddRow(2, "clients", "view", "").
			AddRow(3, "projects", "view", ""))

	grouped, err := store.ListPermissions(context.Background())
	require.NoError(t, err)
	require.Len(t, grouped, 2)
	assert.Equal(t, "clients", grouped[0].Module)
	assert.Len(t, grouped[0].Permissions, 2)
	assert.Equal(t, "projects", grouped[1].Module)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_PermissionSetForRole(t *testing.T) {
	store, mock, db := newMockStore(t)
	defer db.Close()

	mock.ExpectQuery(`JOIN permissions p ON p.id = rp.permission_id`).
		WithArgs(int64(3)).
		WillReturnRows(permissionRows(
			Permission{Module: "projects", Action: ActionView},
		))

	set, err := store.PermissionSetForRole(context.Background(), 3)
	require.NoError(t, err)
	assert.True(t, set.Contains(Permission{Module: "projects", Action: ActionView}))
	assert.False(t, set.Contains(Permission{Module: "projects", Action: ActionEdit}))
	require.NoError(t, mock.ExpectationsWereMet())
}
