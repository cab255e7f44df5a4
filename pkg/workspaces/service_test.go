package workspaces

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockService(t *testing.T) (*Service, sqlmock.Sqlmock, *sql.DB) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewService(db, 14*24*time.Hour), mock, db
}

func contextRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "name", "slug", "owner_id", "plan_type", "status",
		"subscription_id", "trial_ends_at", "created_at", "updated_at",
		"m_id", "role_id", "role_name", "m_status", "joined_at",
	})
}

func TestResolveContext(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()

	ctx := context.Background()
	now := time.Now()

	t.Run("resolves the newest active membership", func(t *testing.T) {
		trialEnd := now.Add(24 * time.Hour)
		mock.ExpectQuery(`ORDER BY m.joined_at DESC\s+LIMIT 1`).
			WithArgs("user-1").
			WillReturnRows(contextRows().AddRow(
				"ws-1", "Acme", "acme", "user-1", "trial", "active",
				nil, trialEnd, now, now,
				int64(10), int64(2), "editor", "active", now,
			))

		wc, err := service.ResolveContext(ctx, "user-1")
		require.NoError(t, err)
		require.NotNil(t, wc)
		assert.Equal(t, "ws-1", wc.Workspace.ID)
		assert.Equal(t, "editor", wc.Member.RoleName)
		assert.Equal(t, "user-1", wc.Member.UserID)
		assert.Equal(t, "ws-1", wc.Member.WorkspaceID)
		require.NotNil(t, wc.Workspace.TrialEndsAt)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no active membership resolves to nil without error", func(t *testing.T) {
		mock.ExpectQuery(`ORDER BY m.joined_at DESC\s+LIMIT 1`).
			WithArgs("user-2").
			WillReturnRows(contextRows())

		wc, err := service.ResolveContext(ctx, "user-2")
		require.NoError(t, err)
		assert.Nil(t, wc)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("store errors propagate", func(t *testing.T) {
		mock.ExpectQuery(`ORDER BY m.joined_at DESC\s+LIMIT 1`).
			WithArgs("user-3").
			WillReturnError(fmt.Errorf("connection refused"))

		_, err := service.ResolveContext(ctx, "user-3")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to resolve workspace context")
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetWorkspace(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()

	now := time.Now()
	subscription := "sub_123"

	t.Run("found with subscription", func(t *testing.T) {
		mock.ExpectQuery(`FROM workspaces WHERE id = \$1`).
			WithArgs("ws-1").
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "name", "slug", "owner_id", "plan_type", "status",
				"subscription_id", "trial_ends_at", "created_at", "updated_at",
			}).AddRow("ws-1", "Acme", "acme", "u1", "pro", "active", subscription, nil, now, now))

		ws, err := service.GetWorkspace(context.Background(), "ws-1")
		require.NoError(t, err)
		require.NotNil(t, ws.SubscriptionID)
		assert.Equal(t, subscription, *ws.SubscriptionID)
		assert.Nil(t, ws.TrialEndsAt)
	})

	t.Run("missing", func(t *testing.T) {
		mock.ExpectQuery(`FROM workspaces WHERE id = \$1`).
			WithArgs("nope").
			WillReturnError(sql.ErrNoRows)

		_, err := service.GetWorkspace(context.Background(), "nope")
		assert.ErrorIs(t, err, ErrWorkspaceNotFound)
	})
}

func TestSuspendWorkspace(t *testing.T) {
	service, mock, db := newMockService(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE workspaces SET status = \$2`).
		WithArgs("ws-1", "suspended").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, service.SuspendWorkspace(context.Background(), "ws-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGenerateSlug(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Acme Corp", "acme-corp"},
		{"  Spaced  Out  ", "spaced--out"},
		{"Ümlauts & Symbols!", "mlauts--symbols"},
		{"already-fine-42", "already-fine-42"},
		{"---", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, GenerateSlug(tt.name), "input %q", tt.name)
	}
}
