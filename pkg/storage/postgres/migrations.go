package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all schema migrations in order
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id UUID PRIMARY KEY,
					email VARCHAR(255) NOT NULL UNIQUE,
					password_hash TEXT NOT NULL,
					display_name VARCHAR(255) NOT NULL,
					role VARCHAR(50) NOT NULL DEFAULT 'member',
					is_super_admin BOOLEAN NOT NULL DEFAULT FALSE,
					email_verified BOOLEAN NOT NULL DEFAULT FALSE,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_users_email ON users(LOWER(email));
			`,
		},
		{
			Version:     2,
			Description: "Create workspaces table",
			SQL: `
				CREATE TABLE IF NOT EXISTS workspaces (
					id UUID PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					slug VARCHAR(255) NOT NULL UNIQUE,
					owner_id UUID NOT NULL REFERENCES users(id),
					plan_type VARCHAR(50) NOT NULL DEFAULT 'trial',
					status VARCHAR(20) NOT NULL DEFAULT 'active',
					subscription_id VARCHAR(255),
					trial_ends_at TIMESTAMPTZ,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_workspaces_slug ON workspaces(slug);
				CREATE INDEX idx_workspaces_owner_id ON workspaces(owner_id);
			`,
		},
		{
			Version:     3,
			Description: "Create roles and permissions tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS roles (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(100) NOT NULL UNIQUE,
					display_name VARCHAR(255) NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					is_system_role BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS permissions (
					id BIGSERIAL PRIMARY KEY,
					module VARCHAR(100) NOT NULL,
					action VARCHAR(100) NOT NULL,
					description TEXT,
					UNIQUE(module, action)
				);

				CREATE INDEX idx_permissions_module ON permissions(module);

				CREATE TABLE IF NOT EXISTS role_permissions (
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					permission_id BIGINT NOT NULL REFERENCES permissions(id) ON DELETE CASCADE,
					PRIMARY KEY (role_id, permission_id)
				);

				CREATE INDEX idx_role_permissions_role_id ON role_permissions(role_id);
			`,
		},
		{
			Version:     4,
			Description: "Create workspace_members table",
			SQL: `
				CREATE TABLE IF NOT EXISTS workspace_members (
					id BIGSERIAL PRIMARY KEY,
					workspace_id UUID NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
					user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE RESTRICT,
					status VARCHAR(20) NOT NULL DEFAULT 'active',
					joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					UNIQUE(workspace_id, user_id)
				);

				CREATE INDEX idx_workspace_members_user_id ON workspace_members(user_id);
				CREATE INDEX idx_workspace_members_workspace_id ON workspace_members(workspace_id);
				CREATE INDEX idx_workspace_members_joined_at ON workspace_members(user_id, joined_at DESC);
			`,
		},
		{
			Version:     5,
			Description: "Create workspace_invitations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS workspace_invitations (
					id UUID PRIMARY KEY,
					workspace_id UUID NOT NULL REFERENCES workspaces(id) ON DELETE CASCADE,
					email VARCHAR(255) NOT NULL,
					role_id BIGINT REFERENCES roles(id) ON DELETE SET NULL,
					token VARCHAR(255) NOT NULL UNIQUE,
					invited_by UUID REFERENCES users(id) ON DELETE SET NULL,
					status VARCHAR(20) NOT NULL DEFAULT 'pending',
					expires_at TIMESTAMPTZ NOT NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_workspace_invitations_token ON workspace_invitations(token);
				CREATE INDEX idx_workspace_invitations_expires_at ON workspace_invitations(expires_at);
				CREATE UNIQUE INDEX idx_workspace_invitations_pending
					ON workspace_invitations(workspace_id, email)
					WHERE status = 'pending';
			`,
		},
		{
			Version:     6,
			Description: "Create audit_log table",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_log (
					id BIGSERIAL PRIMARY KEY,
					occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					actor_id UUID,
					workspace_id UUID,
					event VARCHAR(100) NOT NULL,
					detail JSONB NOT NULL DEFAULT '{}',
					request_id VARCHAR(64),
					remote_ip VARCHAR(64)
				);

				CREATE INDEX idx_audit_log_occurred_at ON audit_log(occurred_at);
				CREATE INDEX idx_audit_log_actor_id ON audit_log(actor_id);
				CREATE INDEX idx_audit_log_workspace_id ON audit_log(workspace_id);
			`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	// Create migration tracking table
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	// Get applied migrations
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	// Run pending migrations
	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
