package workspaces

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const workspaceColumns = `id, name, slug, owner_id, plan_type, status,
	subscription_id, trial_ends_at, created_at, updated_at`

// Service manages workspaces and memberships in Postgres
type Service struct {
	db          *sql.DB
	trialPeriod time.Duration
}

// NewService creates a workspace service. trialPeriod is the trial
// window granted to newly registered workspaces; zero disables trials
// (trial_ends_at stays NULL, which the entitlement gate treats as a
// legacy always-allowed tenant).
func NewService(db *sql.DB, trialPeriod time.Duration) *Service {
	return &Service{db: db, trialPeriod: trialPeriod}
}

// GetWorkspace fetches a workspace by ID
func (s *Service) GetWorkspace(ctx context.Context, id string) (*Workspace, error) {
	query := `SELECT ` + workspaceColumns + ` FROM workspaces WHERE id = $1`

	ws, err := scanWorkspace(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWorkspaceNotFound
		}
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}
	return ws, nil
}

// GetWorkspaceBySlug fetches a workspace by its unique slug
func (s *Service) GetWorkspaceBySlug(ctx context.Context, slug string) (*Workspace, error) {
	query := `SELECT ` + workspaceColumns + ` FROM workspaces WHERE slug = $1`

	ws, err := scanWorkspace(s.db.QueryRowContext(ctx, query, slug))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWorkspaceNotFound
		}
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}
	return ws, nil
}

// SuspendWorkspace marks a tenant suspended. Members lose access on
// their next request because the resolver only joins active workspaces.
func (s *Service) SuspendWorkspace(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, WorkspaceStatusSuspended)
}

// ReactivateWorkspace restores a suspended tenant
func (s *Service) ReactivateWorkspace(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, WorkspaceStatusActive)
}

func (s *Service) setStatus(ctx context.Context, id string, status WorkspaceStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE workspaces SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, string(status),
	)
	if err != nil {
		return fmt.Errorf("failed to update workspace status: %w", err)
	}
	return checkAffected(result, ErrWorkspaceNotFound)
}

// SetEntitlement records the billing collaborator's view of the tenant:
// the external subscription reference and the trial expiry. Both are
// inputs to the entitlement gate, never computed here.
func (s *Service) SetEntitlement(ctx context.Context, id string, subscriptionID *string, trialEndsAt *time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE workspaces
		SET subscription_id = $2, trial_ends_at = $3, updated_at = NOW()
		WHERE id = $1`,
		id, subscriptionID, trialEndsAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update workspace entitlement: %w", err)
	}
	return checkAffected(result, ErrWorkspaceNotFound)
}

// ResolveContext determines the single workspace the user currently
// operates in: the most recently joined active membership in an active
// workspace. Returns (nil, nil) when the user has no such membership;
// that is a legitimate state, not an error. The resolver re-reads on
// every call and is the sole source of truth for tenant context.
func (s *Service) ResolveContext(ctx context.Context, userID string) (*WorkspaceContext, error) {
	query := `
		SELECT w.id, w.name, w.slug, w.owner_id, w.plan_type, w.status,
		       w.subscription_id, w.trial_ends_at, w.created_at, w.updated_at,
		       m.id, m.role_id, r.name, m.status, m.joined_at
		FROM workspace_members m
		JOIN workspaces w ON w.id = m.workspace_id
		JOIN roles r ON r.id = m.role_id
		WHERE m.user_id = $1 AND m.status = 'active' AND w.status = 'active'
		ORDER BY m.joined_at DESC
		LIMIT 1`

	var wc WorkspaceContext
	err := s.db.QueryRowContext(ctx, query, userID).Scan(
		&wc.Workspace.ID,
		&wc.Workspace.Name,
		&wc.Workspace.Slug,
		&wc.Workspace.OwnerID,
		&wc.Workspace.PlanType,
		&wc.Workspace.Status,
		&wc.Workspace.SubscriptionID,
		&wc.Workspace.TrialEndsAt,
		&wc.Workspace.CreatedAt,
		&wc.Workspace.UpdatedAt,
		&wc.Member.ID,
		&wc.Member.RoleID,
		&wc.Member.RoleName,
		&wc.Member.Status,
		&wc.Member.JoinedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace context: %w", err)
	}

	wc.Member.WorkspaceID = wc.Workspace.ID
	wc.Member.UserID = userID
	return &wc, nil
}

// ListWorkspaces returns every active workspace the user belongs to,
// newest membership first. The first entry is what ResolveContext picks.
func (s *Service) ListWorkspaces(ctx context.Context, userID string) ([]*Workspace, error) {
	query := `
		SELECT w.id, w.name, w.slug, w.owner_id, w.plan_type, w.status,
		       w.subscription_id, w.trial_ends_at, w.created_at, w.updated_at
		FROM workspace_members m
		JOIN workspaces w ON w.id = m.workspace_id
		WHERE m.user_id = $1 AND m.status = 'active' AND w.status = 'active'
		ORDER BY m.joined_at DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	defer rows.Close()

	var out []*Workspace
	for rows.Next() {
		ws, err := scanWorkspace(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workspace: %w", err)
		}
		out = append(out, ws)
	}
	return out, rows.Err()
}

func checkAffected(result sql.Result, missing error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rows == 0 {
		return missing
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func generateInviteToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func newID() string {
	return uuid.NewString()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkspace(row rowScanner) (*Workspace, error) {
	var ws Workspace
	err := row.Scan(
		&ws.ID,
		&ws.Name,
		&ws.Slug,
		&ws.OwnerID,
		&ws.PlanType,
		&ws.Status,
		&ws.SubscriptionID,
		&ws.TrialEndsAt,
		&ws.CreatedAt,
		&ws.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ws, nil
}
