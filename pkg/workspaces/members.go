package workspaces

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ListMembers returns every membership in a workspace with user display
// fields, active first, then by join time.
func (s *Service) ListMembers(ctx context.Context, workspaceID string) ([]MemberDetail, error) {
	query := `
		SELECT m.id, m.workspace_id, m.user_id, m.role_id, r.name, m.status, m.joined_at,
		       u.email, u.display_name, u.is_active
		FROM workspace_members m
		JOIN roles r ON r.id = m.role_id
		JOIN users u ON u.id = m.user_id
		WHERE m.workspace_id = $1
		ORDER BY m.status, m.joined_at ASC`

	rows, err := s.db.QueryContext(ctx, query, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []MemberDetail
	for rows.Next() {
		var md MemberDetail
		err := rows.Scan(
			&md.ID, &md.WorkspaceID, &md.UserID, &md.RoleID, &md.RoleName,
			&md.Status, &md.JoinedAt,
			&md.Email, &md.DisplayName, &md.IsActive,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, md)
	}
	return members, rows.Err()
}

// GetMember fetches one membership row in a workspace
func (s *Service) GetMember(ctx context.Context, workspaceID, userID string) (*Member, error) {
	query := `
		SELECT m.id, m.workspace_id, m.user_id, m.role_id, r.name, m.status, m.joined_at
		FROM workspace_members m
		JOIN roles r ON r.id = m.role_id
		WHERE m.workspace_id = $1 AND m.user_id = $2`

	var m Member
	err := s.db.QueryRowContext(ctx, query, workspaceID, userID).Scan(
		&m.ID, &m.WorkspaceID, &m.UserID, &m.RoleID, &m.RoleName, &m.Status, &m.JoinedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return &m, nil
}

// AddMember creates an active membership with the given role. Used by
// invitation acceptance; registration inserts the owner row itself.
func (s *Service) AddMember(ctx context.Context, workspaceID, userID string, roleID int64) (*Member, error) {
	var m Member
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO workspace_members (workspace_id, user_id, role_id, status)
		VALUES ($1, $2, $3, 'active')
		RETURNING id, workspace_id, user_id, role_id, status, joined_at`,
		workspaceID, userID, roleID,
	).Scan(&m.ID, &m.WorkspaceID, &m.UserID, &m.RoleID, &m.Status, &m.JoinedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyMember
		}
		return nil, fmt.Errorf("failed to add member: %w", err)
	}
	return &m, nil
}

// ChangeMemberRole reassigns a member's registry role. The member's
// permission set changes on their very next request; no token refresh
// is needed.
func (s *Service) ChangeMemberRole(ctx context.Context, workspaceID, userID string, roleID int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE workspace_members SET role_id = $3
		WHERE workspace_id = $1 AND user_id = $2`,
		workspaceID, userID, roleID,
	)
	if err != nil {
		return fmt.Errorf("failed to change member role: %w", err)
	}
	return checkAffected(result, ErrMemberNotFound)
}

// DeactivateMember revokes a membership without deleting the row, so
// join history survives. The user loses the workspace on their next
// request.
func (s *Service) DeactivateMember(ctx context.Context, workspaceID, userID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE workspace_members SET status = 'inactive'
		WHERE workspace_id = $1 AND user_id = $2 AND status = 'active'`,
		workspaceID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to deactivate member: %w", err)
	}
	return checkAffected(result, ErrMemberNotFound)
}

// ReactivateMember restores a previously revoked membership
func (s *Service) ReactivateMember(ctx context.Context, workspaceID, userID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE workspace_members SET status = 'active', joined_at = NOW()
		WHERE workspace_id = $1 AND user_id = $2 AND status = 'inactive'`,
		workspaceID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to reactivate member: %w", err)
	}
	return checkAffected(result, ErrMemberNotFound)
}
