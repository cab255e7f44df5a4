package workspaces

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/workbasehq/workbase/pkg/observability"
)

// InvitationTTL is how long an invitation token stays redeemable
const InvitationTTL = 7 * 24 * time.Hour

const invitationColumns = `id, workspace_id, email, role_id, token, invited_by,
	status, expires_at, created_at`

// CreateInvitation issues a single-use membership offer for an email
// address. The returned Invitation carries the redeem token; it is the
// caller's job to deliver it (email delivery is outside this core).
func (s *Service) CreateInvitation(ctx context.Context, workspaceID, email string, roleID int64, invitedBy string) (*Invitation, error) {
	token, err := generateInviteToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate invitation token: %w", err)
	}

	var inv Invitation
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO workspace_invitations (id, workspace_id, email, role_id, token, invited_by, expires_at)
		VALUES ($1, $2, LOWER($3), $4, $5, $6, $7)
		RETURNING `+invitationColumns,
		newID(), workspaceID, email, roleID, token, invitedBy, time.Now().UTC().Add(InvitationTTL),
	).Scan(
		&inv.ID, &inv.WorkspaceID, &inv.Email, &inv.RoleID, &inv.Token,
		&inv.InvitedBy, &inv.Status, &inv.ExpiresAt, &inv.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrInvitePending
		}
		return nil, fmt.Errorf("failed to create invitation: %w", err)
	}
	return &inv, nil
}

// ListInvitations returns a workspace's invitations, pending first
func (s *Service) ListInvitations(ctx context.Context, workspaceID string) ([]Invitation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+invitationColumns+`
		FROM workspace_invitations
		WHERE workspace_id = $1
		ORDER BY status, created_at DESC`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	var invs []Invitation
	for rows.Next() {
		var inv Invitation
		err := rows.Scan(
			&inv.ID, &inv.WorkspaceID, &inv.Email, &inv.RoleID, &inv.Token,
			&inv.InvitedBy, &inv.Status, &inv.ExpiresAt, &inv.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		invs = append(invs, inv)
	}
	return invs, rows.Err()
}

// AcceptInvitation redeems a token for the given user, creating (or
// reactivating) an active membership with the invited role. The
// invitation row is locked so a token can only be redeemed once.
func (s *Service) AcceptInvitation(ctx context.Context, token, userID string) (*Member, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start acceptance: %w", err)
	}
	defer tx.Rollback()

	var inv Invitation
	err = tx.QueryRowContext(ctx, `
		SELECT id, workspace_id, role_id
		FROM workspace_invitations
		WHERE token = $1 AND status = 'pending' AND expires_at > NOW()
		FOR UPDATE`, token,
	).Scan(&inv.ID, &inv.WorkspaceID, &inv.RoleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInviteNotFound
		}
		return nil, fmt.Errorf("failed to look up invitation: %w", err)
	}

	// An earlier revoked membership for the same workspace is
	// reactivated with the invited role and a fresh join time.
	var m Member
	err = tx.QueryRowContext(ctx, `
		INSERT INTO workspace_members (workspace_id, user_id, role_id, status)
		VALUES ($1, $2, $3, 'active')
		ON CONFLICT (workspace_id, user_id)
		DO UPDATE SET role_id = EXCLUDED.role_id, status = 'active', joined_at = NOW()
		RETURNING id, workspace_id, user_id, role_id, status, joined_at`,
		inv.WorkspaceID, userID, inv.RoleID,
	).Scan(&m.ID, &m.WorkspaceID, &m.UserID, &m.RoleID, &m.Status, &m.JoinedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create membership: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE workspace_invitations SET status = 'accepted' WHERE id = $1`, inv.ID,
	); err != nil {
		return nil, fmt.Errorf("failed to mark invitation accepted: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit acceptance: %w", err)
	}
	return &m, nil
}

// RevokeInvitation withdraws a pending invitation
func (s *Service) RevokeInvitation(ctx context.Context, workspaceID, invitationID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE workspace_invitations SET status = 'revoked'
		WHERE id = $1 AND workspace_id = $2 AND status = 'pending'`,
		invitationID, workspaceID,
	)
	if err != nil {
		return fmt.Errorf("failed to revoke invitation: %w", err)
	}
	return checkAffected(result, ErrInviteNotFound)
}

// SweepExpiredInvitations marks lapsed pending invitations expired and
// returns how many were swept.
func (s *Service) SweepExpiredInvitations(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE workspace_invitations SET status = 'expired'
		WHERE status = 'pending' AND expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep invitations: %w", err)
	}
	return result.RowsAffected()
}

// StartInvitationSweeper runs SweepExpiredInvitations hourly until the
// returned cron is stopped.
func (s *Service) StartInvitationSweeper(logger *observability.Logger) *cron.Cron {
	c := cron.New()
	c.AddFunc("@hourly", func() {
		defer observability.RecoverPanic(logger, "sweepInvitations")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		swept, err := s.SweepExpiredInvitations(ctx)
		if err != nil {
			logger.WithError(err).Error("Invitation sweep failed")
			return
		}
		if swept > 0 {
			logger.WithField("count", swept).Info("Expired invitations swept")
		}
	})
	c.Start()
	return c
}
