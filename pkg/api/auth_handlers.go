package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/workbasehq/workbase/pkg/audit"
	"github.com/workbasehq/workbase/pkg/auth"
	"github.com/workbasehq/workbase/pkg/entitlement"
	"github.com/workbasehq/workbase/pkg/httputil"
	"github.com/workbasehq/workbase/pkg/middleware"
	"github.com/workbasehq/workbase/pkg/rbac"
	"github.com/workbasehq/workbase/pkg/workspaces"
)

// loginFailedMessage is the single message for every credential failure
// mode so responses cannot be used to enumerate accounts.
const loginFailedMessage = "invalid email or password"

const minPasswordLength = 8

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Email         string `json:"email"`
	Password      string `json:"password"`
	DisplayName   string `json:"display_name"`
	WorkspaceName string `json:"workspace_name"`
}

// workspacePayload is the workspace as login/me responses present it,
// with the caller's role attached.
type workspacePayload struct {
	workspaces.Workspace
	Role string `json:"role"`
}

type sessionResponse struct {
	User        *auth.User        `json:"user"`
	Token       string            `json:"token"`
	ExpiresAt   time.Time         `json:"expires_at"`
	Workspace   *workspacePayload `json:"workspace,omitempty"`
	Permissions []string          `json:"permissions"`
}

type meResponse struct {
	User        *auth.User        `json:"user"`
	Workspace   *workspacePayload `json:"workspace,omitempty"`
	Permissions []string          `json:"permissions"`
}

// handleLogin verifies credentials and issues a session token. A lapsed
// trial does not block login; the response is annotated and the
// workspace-scoped routes reject instead, so the user can still reach
// account-level pages and the upgrade path.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Email, "email") {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Password, "password") {
		return
	}

	ctx := r.Context()

	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			s.failLogin(w, r, req.Email, "unknown_user")
			return
		}
		s.logger.WithError(err).Error("failed to load user for login")
		s.recordLogin("error")
		httputil.WriteInternalError(w)
		return
	}
	if err := s.hasher.Verify(user.PasswordHash, req.Password); err != nil {
		s.failLogin(w, r, req.Email, "bad_password")
		return
	}
	if !user.IsActive {
		s.failLogin(w, r, req.Email, "inactive_user")
		return
	}
	if !user.EmailVerified && !user.IsSuperAdmin {
		s.recordLogin("unverified")
		httputil.WriteVerificationRequired(w, "please verify your email address before signing in")
		return
	}

	wc, err := s.tenants.ResolveContext(ctx, user.ID)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", user.ID).
			Error("failed to resolve workspace context")
		s.recordLogin("error")
		httputil.WriteInternalError(w)
		return
	}

	session, decision, err := s.buildSession(r, user, wc)
	if err != nil {
		s.recordLogin("error")
		httputil.WriteInternalError(w)
		return
	}

	s.recordLogin("success")
	if s.metrics != nil {
		s.metrics.SessionsIssuedTotal.Inc()
	}

	entry := audit.NewEntry(ctx, audit.EventLogin).
		WithActor(user.ID).
		WithDetail("email", user.Email)
	if wc != nil {
		entry.WithWorkspace(wc.Workspace.ID)
	}
	s.record(r, entry)

	writeSession(w, http.StatusOK, session, decision, user)
}

// handleRegister creates a user, their workspace and the owning
// membership in one transaction, then signs the new owner in.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if !httputil.RequireNonEmpty(w, req.Email, "email") {
		return
	}
	if !strings.Contains(req.Email, "@") {
		httputil.WriteBadRequest(w, "a valid email address is required")
		return
	}
	if len(req.Password) < minPasswordLength {
		httputil.WriteBadRequest(w, "password must be at least 8 characters")
		return
	}
	if !httputil.RequireNonEmpty(w, req.WorkspaceName, "workspace_name") {
		return
	}
	if req.DisplayName == "" {
		req.DisplayName = req.Email[:strings.Index(req.Email, "@")]
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		s.logger.WithError(err).Error("failed to hash password")
		httputil.WriteInternalError(w)
		return
	}

	ctx := r.Context()

	user, ws, err := s.tenants.Register(ctx, req.Email, hash, req.DisplayName, req.WorkspaceName)
	if err != nil {
		if errors.Is(err, auth.ErrEmailTaken) {
			httputil.WriteConflict(w, "email already registered")
			return
		}
		s.logger.WithError(err).Error("registration failed")
		httputil.WriteInternalError(w)
		return
	}

	// Fresh read so the response reflects exactly what the middleware
	// will resolve on the owner's next request.
	wc, err := s.tenants.ResolveContext(ctx, user.ID)
	if err != nil {
		s.logger.WithError(err).WithField("user_id", user.ID).
			Error("failed to resolve workspace context")
		httputil.WriteInternalError(w)
		return
	}

	session, decision, err := s.buildSession(r, user, wc)
	if err != nil {
		httputil.WriteInternalError(w)
		return
	}
	if s.metrics != nil {
		s.metrics.SessionsIssuedTotal.Inc()
	}

	s.record(r, audit.NewEntry(ctx, audit.EventRegister).
		WithActor(user.ID).
		WithWorkspace(ws.ID).
		WithDetail("email", user.Email).
		WithDetail("workspace", ws.Slug))

	writeSession(w, http.StatusCreated, session, decision, user)
}

// handleMe returns the caller's freshly resolved state. Everything here
// was already loaded by the authentication middleware for this request.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	authCtx := middleware.GetAuthContext(r)
	if authCtx == nil {
		httputil.WriteUnauthorized(w, "invalid or expired session")
		return
	}

	resp := meResponse{
		User:        authCtx.User,
		Permissions: permissionStrings(authCtx.Permissions, authCtx.Evaluator()),
	}
	if authCtx.Workspace != nil {
		resp.Workspace = newWorkspacePayload(authCtx.Workspace)
	}

	env := httputil.Envelope{Success: true, Data: resp}
	annotateEntitlement(&env, authCtx.Entitlement)
	httputil.WriteJSON(w, http.StatusOK, env)
}

// buildSession issues a token and assembles the session payload for a
// verified, active user. The entitlement decision is returned separately
// so callers can annotate the envelope.
func (s *Server) buildSession(r *http.Request, user *auth.User, wc *workspaces.WorkspaceContext) (*sessionResponse, entitlement.Decision, error) {
	ctx := r.Context()

	var ws *workspaces.Workspace
	workspaceID := ""
	perms := rbac.PermissionSet{}
	if wc != nil {
		ws = &wc.Workspace
		workspaceID = wc.Workspace.ID

		var err error
		perms, err = s.roles.PermissionSetForRole(ctx, wc.Member.RoleID)
		if err != nil {
			s.logger.WithError(err).WithField("role_id", wc.Member.RoleID).
				Error("failed to load role permissions")
			return nil, entitlement.Decision{}, err
		}
	}
	decision := entitlement.Evaluate(ws, time.Now())

	token, expiresAt, err := s.tokens.Issue(user.ID, workspaceID)
	if err != nil {
		s.logger.WithError(err).Error("failed to issue session token")
		return nil, entitlement.Decision{}, err
	}

	actor := rbac.Actor{UserID: user.ID, IsSuperAdmin: user.IsSuperAdmin, Permissions: perms}
	if wc != nil {
		actor.RoleName = wc.Member.RoleName
	}

	return &sessionResponse{
		User:        user,
		Token:       token,
		ExpiresAt:   expiresAt,
		Workspace:   newWorkspacePayload(wc),
		Permissions: permissionStrings(perms, actor.Evaluator()),
	}, decision, nil
}

func (s *Server) failLogin(w http.ResponseWriter, r *http.Request, email, reason string) {
	s.recordLogin(reason)
	s.record(r, audit.NewEntry(r.Context(), audit.EventLoginFailed).
		WithDetail("email", strings.ToLower(strings.TrimSpace(email))).
		WithDetail("reason", reason))
	httputil.WriteUnauthorized(w, loginFailedMessage)
}

func (s *Server) recordLogin(outcome string) {
	if s.metrics != nil {
		s.metrics.LoginAttemptsTotal.WithLabelValues(outcome).Inc()
	}
}

func newWorkspacePayload(wc *workspaces.WorkspaceContext) *workspacePayload {
	if wc == nil {
		return nil
	}
	return &workspacePayload{Workspace: wc.Workspace, Role: wc.Member.RoleName}
}

// permissionStrings flattens a grant set to module:action strings for
// the page layer. Callers with the evaluator override see the full
// catalog; the server re-checks every action regardless.
func permissionStrings(set rbac.PermissionSet, ev rbac.Evaluator) []string {
	if ev.IsSuperAdmin {
		set = rbac.NewPermissionSet(rbac.PermissionCatalog()...)
	}
	perms := set.List()
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		out = append(out, p.String())
	}
	return out
}

func writeSession(w http.ResponseWriter, status int, session *sessionResponse, decision entitlement.Decision, user *auth.User) {
	env := httputil.Envelope{Success: true, Data: session}
	if !user.EmailVerified {
		env.RequiresVerification = true
	}
	annotateEntitlement(&env, decision)
	httputil.WriteJSON(w, status, env)
}

// annotateEntitlement surfaces a lapsed trial on an otherwise
// successful response. Enforcement happens in the workspace middleware,
// not here.
func annotateEntitlement(env *httputil.Envelope, decision entitlement.Decision) {
	if decision.Reason != entitlement.ReasonTrialExpired {
		return
	}
	env.TrialExpired = true
	if decision.TrialEndsAt != nil {
		expiry := decision.TrialEndsAt.UTC().Format(time.RFC3339)
		env.TrialEndsAt = &expiry
	}
}
