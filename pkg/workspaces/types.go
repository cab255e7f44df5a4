package workspaces

import (
	"errors"
	"strings"
	"time"
)

// WorkspaceStatus is the lifecycle state of a tenant
type WorkspaceStatus string

const (
	WorkspaceStatusActive    WorkspaceStatus = "active"
	WorkspaceStatusSuspended WorkspaceStatus = "suspended"
)

// MemberStatus is the lifecycle state of a membership
type MemberStatus string

const (
	MemberStatusActive   MemberStatus = "active"
	MemberStatusInactive MemberStatus = "inactive"
)

// Invitation statuses
const (
	InviteStatusPending  = "pending"
	InviteStatusAccepted = "accepted"
	InviteStatusRevoked  = "revoked"
	InviteStatusExpired  = "expired"
)

var (
	// ErrWorkspaceNotFound indicates the workspace does not exist
	ErrWorkspaceNotFound = errors.New("workspace not found")
	// ErrMemberNotFound indicates the membership does not exist
	ErrMemberNotFound = errors.New("member not found")
	// ErrSlugTaken indicates the workspace slug is already in use
	ErrSlugTaken = errors.New("workspace slug already exists")
	// ErrAlreadyMember indicates the user already has a membership row
	ErrAlreadyMember = errors.New("user is already a member of this workspace")
	// ErrInviteNotFound covers unknown, revoked, already-accepted and
	// expired invitation tokens uniformly
	ErrInviteNotFound = errors.New("invitation not found or no longer valid")
	// ErrInvitePending indicates the email already has a pending invite
	ErrInvitePending = errors.New("an invitation for this email is already pending")
)

// Workspace is an isolated customer tenant. All business data is scoped
// to exactly one workspace.
type Workspace struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Slug     string          `json:"slug"`
	OwnerID  string          `json:"owner_id"`
	PlanType string          `json:"plan_type"`
	Status   WorkspaceStatus `json:"status"`

	// SubscriptionID and TrialEndsAt are entitlement inputs maintained
	// by the billing collaborator. A non-nil SubscriptionID entitles
	// the tenant regardless of TrialEndsAt.
	SubscriptionID *string    `json:"subscription_id,omitempty"`
	TrialEndsAt    *time.Time `json:"trial_ends_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Member binds a user to a workspace with a registry role
type Member struct {
	ID          int64        `json:"id"`
	WorkspaceID string       `json:"workspace_id"`
	UserID      string       `json:"user_id"`
	RoleID      int64        `json:"role_id"`
	RoleName    string       `json:"role_name"`
	Status      MemberStatus `json:"status"`
	JoinedAt    time.Time    `json:"joined_at"`
}

// MemberDetail is a member row joined with user display fields for
// list views.
type MemberDetail struct {
	Member
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	IsActive    bool   `json:"is_active"`
}

// WorkspaceContext is the resolved tenant context for one user: the
// workspace they currently operate in and their membership within it.
type WorkspaceContext struct {
	Workspace Workspace `json:"workspace"`
	Member    Member    `json:"member"`
}

// Invitation is a pending offer of membership, redeemed by token
type Invitation struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	Email       string    `json:"email"`
	RoleID      int64     `json:"role_id"`
	Token       string    `json:"-"`
	InvitedBy   *string   `json:"invited_by,omitempty"`
	Status      string    `json:"status"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// GenerateSlug derives a URL-safe slug from a workspace name
func GenerateSlug(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.ReplaceAll(slug, " ", "-")
	slug = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, slug)
	slug = strings.Trim(slug, "-")
	return slug
}
