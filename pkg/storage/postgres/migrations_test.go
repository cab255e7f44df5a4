package postgres

import (
	"strings"
	"testing"
)

func TestGetMigrations(t *testing.T) {
	migrations := GetMigrations()

	if len(migrations) == 0 {
		t.Fatal("Expected at least one migration")
	}

	t.Run("versions are sequential starting at 1", func(t *testing.T) {
		for i, m := range migrations {
			want := i + 1
			if m.Version != want {
				t.Errorf("Migration %d has version %d, want %d", i, m.Version, want)
			}
		}
	})

	t.Run("every migration has description and SQL", func(t *testing.T) {
		for _, m := range migrations {
			if m.Description == "" {
				t.Errorf("Migration %d has empty description", m.Version)
			}
			if strings.TrimSpace(m.SQL) == "" {
				t.Errorf("Migration %d has empty SQL", m.Version)
			}
		}
	})

	t.Run("creates all expected tables", func(t *testing.T) {
		allSQL := ""
		for _, m := range migrations {
			allSQL += m.SQL
		}

		expectedTables := []string{
			"users",
			"workspaces",
			"roles",
			"permissions",
			"role_permissions",
			"workspace_members",
			"workspace_invitations",
			"audit_log",
		}

		for _, table := range expectedTables {
			if !strings.Contains(allSQL, "CREATE TABLE IF NOT EXISTS "+table) {
				t.Errorf("Expected migration creating table %s", table)
			}
		}
	})

	t.Run("membership resolution index exists", func(t *testing.T) {
		// Workspace resolution orders by joined_at DESC per user; the
		// composite index backs that query.
		found := false
		for _, m := range migrations {
			if strings.Contains(m.SQL, "workspace_members(user_id, joined_at DESC)") {
				found = true
			}
		}
		if !found {
			t.Error("Expected composite index on workspace_members(user_id, joined_at DESC)")
		}
	})
}
