package workspaces

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/workbasehq/workbase/pkg/auth"
	"github.com/workbasehq/workbase/pkg/rbac"
)

// Register creates a user, their workspace and the owning membership in
// a single transaction. A failure at any step leaves no partial state;
// the owner can resolve a workspace context immediately afterwards.
func (s *Service) Register(ctx context.Context, email, passwordHash, displayName, workspaceName string) (*auth.User, *Workspace, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start registration: %w", err)
	}
	defer tx.Rollback()

	// The owner carries the legacy admin label for display. It grants
	// nothing; effective permissions come from the membership role.
	user, err := auth.CreateInTx(ctx, tx, email, passwordHash, displayName, "admin")
	if err != nil {
		return nil, nil, err
	}

	ws, err := s.insertWorkspace(ctx, tx, workspaceName, user.ID)
	if err != nil {
		return nil, nil, err
	}

	var roleID int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM roles WHERE name = $1`, rbac.AdminRoleName,
	).Scan(&roleID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up owner role: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO workspace_members (workspace_id, user_id, role_id, status)
		VALUES ($1, $2, $3, 'active')`,
		ws.ID, user.ID, roleID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit registration: %w", err)
	}
	return user, ws, nil
}

func (s *Service) insertWorkspace(ctx context.Context, tx querier, name, ownerID string) (*Workspace, error) {
	slug := GenerateSlug(name)
	if slug == "" {
		slug = "workspace"
	}

	// A unique violation would abort the whole transaction, so the slug
	// is disambiguated up front instead of on conflict.
	var taken bool
	err := tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM workspaces WHERE slug = $1)`, slug,
	).Scan(&taken)
	if err != nil {
		return nil, fmt.Errorf("failed to check slug: %w", err)
	}
	if taken {
		slug = slug + "-" + newID()[:8]
	}

	var trialEndsAt *time.Time
	if s.trialPeriod > 0 {
		t := time.Now().UTC().Add(s.trialPeriod)
		trialEndsAt = &t
	}

	var ws Workspace
	err = tx.QueryRowContext(ctx, `
		INSERT INTO workspaces (id, name, slug, owner_id, trial_ends_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+workspaceColumns,
		newID(), name, slug, ownerID, trialEndsAt,
	).Scan(
		&ws.ID, &ws.Name, &ws.Slug, &ws.OwnerID, &ws.PlanType, &ws.Status,
		&ws.SubscriptionID, &ws.TrialEndsAt, &ws.CreatedAt, &ws.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSlugTaken
		}
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	return &ws, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
