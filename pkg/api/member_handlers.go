package api

import (
	"errors"
	"net/http"

	"github.com/workbasehq/workbase/pkg/audit"
	"github.com/workbasehq/workbase/pkg/httputil"
	"github.com/workbasehq/workbase/pkg/middleware"
	"github.com/workbasehq/workbase/pkg/rbac"
	"github.com/workbasehq/workbase/pkg/workspaces"
)

type changeRoleRequest struct {
	RoleID int64 `json:"role_id"`
}

type createInvitationRequest struct {
	Email  string `json:"email"`
	RoleID int64  `json:"role_id"`
}

type acceptInvitationRequest struct {
	Token string `json:"token"`
}

// invitationResponse carries the redeem token alongside the stored row.
// The token appears only here, once, at creation time; delivery is the
// caller's job.
type invitationResponse struct {
	Invitation *workspaces.Invitation `json:"invitation"`
	Token      string                 `json:"token"`
}

// handleListMembers returns every membership in the caller's workspace
func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	wc := middleware.GetAuthContext(r).Workspace

	members, err := s.tenants.ListMembers(r.Context(), wc.Workspace.ID)
	if err != nil {
		s.logger.WithError(err).Error("failed to list members")
		httputil.WriteInternalError(w)
		return
	}
	if members == nil {
		members = []workspaces.MemberDetail{}
	}
	httputil.WriteSuccess(w, members)
}

// handleChangeMemberRole reassigns a member's role. The change is live
// on the member's next request.
func (s *Server) handleChangeMemberRole(w http.ResponseWriter, r *http.Request) {
	wc := middleware.GetAuthContext(r).Workspace
	userID, ok := httputil.ParsePathStringOrError(w, r, "userID")
	if !ok {
		return
	}

	var req changeRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.RoleID <= 0 {
		httputil.WriteBadRequest(w, "role_id is required")
		return
	}
	if userID == wc.Workspace.OwnerID {
		httputil.WriteConflict(w, "the workspace owner's role cannot be changed")
		return
	}

	role, err := s.lookupAssignableRole(w, r, req.RoleID)
	if err != nil {
		return
	}

	if err := s.tenants.ChangeMemberRole(r.Context(), wc.Workspace.ID, userID, role.ID); err != nil {
		if errors.Is(err, workspaces.ErrMemberNotFound) {
			httputil.WriteNotFound(w, "member not found")
			return
		}
		s.logger.WithError(err).Error("failed to change member role")
		httputil.WriteInternalError(w)
		return
	}

	s.record(r, audit.NewEntry(r.Context(), audit.EventMemberRoleChanged).
		WithActor(actorID(r)).
		WithWorkspace(wc.Workspace.ID).
		WithDetail("user_id", userID).
		WithDetail("role", role.Name))
	httputil.WriteSuccessMessage(w, "member role updated", nil)
}

// handleDeactivateMember revokes a membership without deleting the row
func (s *Server) handleDeactivateMember(w http.ResponseWriter, r *http.Request) {
	wc := middleware.GetAuthContext(r).Workspace
	userID, ok := httputil.ParsePathStringOrError(w, r, "userID")
	if !ok {
		return
	}
	if userID == wc.Workspace.OwnerID {
		httputil.WriteConflict(w, "the workspace owner cannot be removed")
		return
	}

	if err := s.tenants.DeactivateMember(r.Context(), wc.Workspace.ID, userID); err != nil {
		if errors.Is(err, workspaces.ErrMemberNotFound) {
			httputil.WriteNotFound(w, "member not found")
			return
		}
		s.logger.WithError(err).Error("failed to deactivate member")
		httputil.WriteInternalError(w)
		return
	}

	s.record(r, audit.NewEntry(r.Context(), audit.EventMemberDeactivated).
		WithActor(actorID(r)).
		WithWorkspace(wc.Workspace.ID).
		WithDetail("user_id", userID))
	httputil.WriteSuccessMessage(w, "member deactivated", nil)
}

// handleReactivateMember restores a previously revoked membership
func (s *Server) handleReactivateMember(w http.ResponseWriter, r *http.Request) {
	wc := middleware.GetAuthContext(r).Workspace
	userID, ok := httputil.ParsePathStringOrError(w, r, "userID")
	if !ok {
		return
	}

	if err := s.tenants.ReactivateMember(r.Context(), wc.Workspace.ID, userID); err != nil {
		if errors.Is(err, workspaces.ErrMemberNotFound) {
			httputil.WriteNotFound(w, "member not found")
			return
		}
		s.logger.WithError(err).Error("failed to reactivate member")
		httputil.WriteInternalError(w)
		return
	}

	s.record(r, audit.NewEntry(r.Context(), audit.EventMemberReactivated).
		WithActor(actorID(r)).
		WithWorkspace(wc.Workspace.ID).
		WithDetail("user_id", userID))
	httputil.WriteSuccessMessage(w, "member reactivated", nil)
}

// handleListInvitations returns the workspace's invitations, pending
// first. Tokens are never included.
func (s *Server) handleListInvitations(w http.ResponseWriter, r *http.Request) {
	wc := middleware.GetAuthContext(r).Workspace

	invs, err := s.tenants.ListInvitations(r.Context(), wc.Workspace.ID)
	if err != nil {
		s.logger.WithError(err).Error("failed to list invitations")
		httputil.WriteInternalError(w)
		return
	}
	if invs == nil {
		invs = []workspaces.Invitation{}
	}
	httputil.WriteSuccess(w, invs)
}

// handleCreateInvitation issues a single-use membership offer
func (s *Server) handleCreateInvitation(w http.ResponseWriter, r *http.Request) {
	wc := middleware.GetAuthContext(r).Workspace

	var req createInvitationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Email, "email") {
		return
	}
	if req.RoleID <= 0 {
		httputil.WriteBadRequest(w, "role_id is required")
		return
	}

	role, err := s.lookupAssignableRole(w, r, req.RoleID)
	if err != nil {
		return
	}

	inv, err := s.tenants.CreateInvitation(r.Context(), wc.Workspace.ID, req.Email, role.ID, actorID(r))
	if err != nil {
		if errors.Is(err, workspaces.ErrInvitePending) {
			httputil.WriteConflict(w, workspaces.ErrInvitePending.Error())
			return
		}
		s.logger.WithError(err).Error("failed to create invitation")
		httputil.WriteInternalError(w)
		return
	}

	s.record(r, audit.NewEntry(r.Context(), audit.EventInviteCreated).
		WithActor(actorID(r)).
		WithWorkspace(wc.Workspace.ID).
		WithDetail("email", inv.Email).
		WithDetail("role", role.Name))
	httputil.WriteCreated(w, invitationResponse{Invitation: inv, Token: inv.Token})
}

// handleRevokeInvitation withdraws a pending invitation
func (s *Server) handleRevokeInvitation(w http.ResponseWriter, r *http.Request) {
	wc := middleware.GetAuthContext(r).Workspace
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}

	if err := s.tenants.RevokeInvitation(r.Context(), wc.Workspace.ID, id); err != nil {
		if errors.Is(err, workspaces.ErrInviteNotFound) {
			httputil.WriteNotFound(w, workspaces.ErrInviteNotFound.Error())
			return
		}
		s.logger.WithError(err).Error("failed to revoke invitation")
		httputil.WriteInternalError(w)
		return
	}

	s.record(r, audit.NewEntry(r.Context(), audit.EventInviteRevoked).
		WithActor(actorID(r)).
		WithWorkspace(wc.Workspace.ID).
		WithDetail("invitation_id", id))
	httputil.WriteSuccessMessage(w, "invitation revoked", nil)
}

// handleAcceptInvitation redeems an invitation token for the caller.
// Account-level: the caller may have no workspace yet, and the unknown
// and expired token cases are indistinguishable in the response.
func (s *Server) handleAcceptInvitation(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)
	if authCtx == nil {
		httputil.WriteUnauthorized(w, "invalid or expired session")
		return
	}

	var req acceptInvitationRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Token, "token") {
		return
	}

	member, err := s.tenants.AcceptInvitation(r.Context(), req.Token, authCtx.User.ID)
	if err != nil {
		if errors.Is(err, workspaces.ErrInviteNotFound) {
			httputil.WriteNotFound(w, workspaces.ErrInviteNotFound.Error())
			return
		}
		s.logger.WithError(err).Error("failed to accept invitation")
		httputil.WriteInternalError(w)
		return
	}

	s.record(r, audit.NewEntry(r.Context(), audit.EventInviteAccepted).
		WithActor(authCtx.User.ID).
		WithWorkspace(member.WorkspaceID))
	httputil.WriteSuccess(w, member)
}

// lookupAssignableRole loads a role referenced by a request body and
// rejects the reserved admin role, which only the registration
// transaction assigns. Writes the response on error.
func (s *Server) lookupAssignableRole(w http.ResponseWriter, r *http.Request, roleID int64) (*rbac.Role, error) {
	role, err := s.roles.GetRole(r.Context(), roleID)
	if err != nil {
		if errors.Is(err, rbac.ErrRoleNotFound) {
			httputil.WriteBadRequest(w, "unknown role")
			return nil, err
		}
		s.logger.WithError(err).Error("failed to load role")
		httputil.WriteInternalError(w)
		return nil, err
	}
	if role.Name == rbac.AdminRoleName {
		httputil.WriteConflict(w, "the admin role is reserved for the workspace owner")
		return nil, rbac.ErrAdminImmutable
	}
	return role, nil
}

func actorID(r *http.Request) string {
	if authCtx := middleware.GetAuthContext(r); authCtx != nil && authCtx.User != nil {
		return authCtx.User.ID
	}
	return ""
}
