package rbac

import (
	"context"
	"database/sql"
	"fmt"
)

// Seed inserts the permission catalog and default roles. It is
// idempotent and safe to run on every startup; existing rows and
// grants are left alone so operator edits survive restarts.
func Seed(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start seed transaction: %w", err)
	}
	defer tx.Rollback()

	for _, p := range PermissionCatalog() {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO permissions (module, action)
			VALUES ($1, $2)
			ON CONFLICT (module, action) DO NOTHING`,
			p.Module, p.Action,
		); err != nil {
			return fmt.Errorf("failed to seed permission %s: %w", p, err)
		}
	}

	for _, seed := range DefaultRoles() {
		var roleID int64
		var created bool
		err := tx.QueryRowContext(ctx, `
			INSERT INTO roles (name, display_name, description, is_system_role)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id, (xmax = 0)`,
			seed.Name, seed.DisplayName, seed.Description, seed.IsSystemRole,
		).Scan(&roleID, &created)
		if err != nil {
			return fmt.Errorf("failed to seed role %s: %w", seed.Name, err)
		}

		// Grants only on first creation; later edits through the
		// registry are authoritative.
		if !created {
			continue
		}
		for _, p := range seed.Permissions {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO role_permissions (role_id, permission_id)
				SELECT $1, id FROM permissions WHERE module = $2 AND action = $3
				ON CONFLICT DO NOTHING`,
				roleID, p.Module, p.Action,
			); err != nil {
				return fmt.Errorf("failed to seed grant %s for %s: %w", p, seed.Name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seed: %w", err)
	}
	return nil
}
