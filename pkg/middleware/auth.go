package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/workbasehq/workbase/pkg/audit"
	"github.com/workbasehq/workbase/pkg/auth"
	"github.com/workbasehq/workbase/pkg/contextkeys"
	"github.com/workbasehq/workbase/pkg/entitlement"
	"github.com/workbasehq/workbase/pkg/httputil"
	"github.com/workbasehq/workbase/pkg/observability"
	"github.com/workbasehq/workbase/pkg/rbac"
	"github.com/workbasehq/workbase/pkg/workspaces"
)

// unauthorizedMessage is the single message returned for every
// authentication failure mode so clients cannot distinguish a missing
// user from a bad signature.
const unauthorizedMessage = "invalid or expired session"

// AuthContext is the fully resolved view of the caller that the
// middleware attaches to the request context. Workspace is nil when the
// user has no active membership; Permissions is empty in that case.
// Everything here was read fresh from the database for this request.
type AuthContext struct {
	User        *auth.User
	Workspace   *workspaces.WorkspaceContext
	Permissions rbac.PermissionSet
	Entitlement entitlement.Decision
}

// Evaluator returns a permission evaluator configured for this caller.
// Workspace owners hold the reserved admin role, which maps to the
// override flag the same way the platform operator flag does.
func (a *AuthContext) Evaluator() rbac.Evaluator {
	return a.actor().Evaluator()
}

// Can reports whether the caller may perform (module, action)
func (a *AuthContext) Can(p rbac.Permission) bool {
	return a.actor().Can(p)
}

func (a *AuthContext) actor() rbac.Actor {
	actor := rbac.Actor{Permissions: a.Permissions}
	if a.User != nil {
		actor.UserID = a.User.ID
		actor.IsSuperAdmin = a.User.IsSuperAdmin
	}
	if a.Workspace != nil {
		actor.RoleName = a.Workspace.Member.RoleName
	}
	return actor
}

// GetAuthContext extracts the auth context set by AuthMiddleware.
// Returns nil on unauthenticated requests.
func GetAuthContext(r *http.Request) *AuthContext {
	v := r.Context().Value(contextkeys.AuthKey)
	if v == nil {
		return nil
	}
	authCtx, ok := v.(*AuthContext)
	if !ok {
		return nil
	}
	return authCtx
}

// AuthMiddleware authenticates requests and resolves the caller's live
// workspace, entitlement and permission state. The token only proves
// identity; everything else is re-read per request so role changes,
// membership changes and trial expiry take effect immediately.
type AuthMiddleware struct {
	tokens  *auth.TokenIssuer
	users   *auth.UserStore
	tenants *workspaces.Service
	roles   *rbac.Store
	logger  *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewAuthMiddleware creates the authentication middleware. metrics may
// be nil in tests.
func NewAuthMiddleware(
	tokens *auth.TokenIssuer,
	users *auth.UserStore,
	tenants *workspaces.Service,
	roles *rbac.Store,
	logger *observability.Logger,
	metrics *observability.Metrics,
) *AuthMiddleware {
	return &AuthMiddleware{
		tokens:  tokens,
		users:   users,
		tenants: tenants,
		roles:   roles,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// WithClock overrides the time source (useful for tests)
func (m *AuthMiddleware) WithClock(fn func() time.Time) *AuthMiddleware {
	if fn != nil {
		m.now = fn
	}
	return m
}

// Handler wraps an HTTP handler with the authentication chain:
// bearer token → user → workspace context → entitlement → permissions.
// The entitlement decision is attached, not enforced; workspace-scoped
// routes add RequireWorkspace to enforce it.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			m.recordValidation("missing")
			httputil.WriteUnauthorized(w, unauthorizedMessage)
			return
		}

		claims, err := m.tokens.Validate(token)
		if err != nil {
			m.recordValidation("invalid")
			rejected := audit.NewEntry(r.Context(), audit.EventTokenRejected).
				WithRemoteIP(ClientIP(r))
			if err := audit.FromContext(r.Context()).Record(r.Context(), rejected); err != nil {
				m.logger.WithError(err).Warn("audit write failed")
			}
			httputil.WriteUnauthorized(w, unauthorizedMessage)
			return
		}

		ctx := r.Context()

		user, err := m.users.GetByID(ctx, claims.Subject)
		if err != nil {
			if errors.Is(err, auth.ErrNotFound) {
				m.recordValidation("unknown_user")
				httputil.WriteUnauthorized(w, unauthorizedMessage)
				return
			}
			m.logger.WithError(err).Error("failed to load user for session")
			m.recordValidation("error")
			httputil.WriteInternalError(w)
			return
		}
		if !user.IsActive {
			m.recordValidation("inactive_user")
			httputil.WriteUnauthorized(w, unauthorizedMessage)
			return
		}

		// The token's workspace hint is ignored from here on. The
		// resolver decides which tenant the user operates in.
		wc, err := m.tenants.ResolveContext(ctx, user.ID)
		if err != nil {
			m.logger.WithError(err).WithField("user_id", user.ID).
				Error("failed to resolve workspace context")
			httputil.WriteInternalError(w)
			return
		}

		var ws *workspaces.Workspace
		if wc != nil {
			ws = &wc.Workspace
		}
		decision := entitlement.Evaluate(ws, m.now())
		if m.metrics != nil {
			m.metrics.EntitlementDecisionsTotal.WithLabelValues(string(decision.Reason)).Inc()
		}

		perms := rbac.PermissionSet{}
		if wc != nil {
			perms, err = m.roles.PermissionSetForRole(ctx, wc.Member.RoleID)
			if err != nil {
				m.logger.WithError(err).WithField("role_id", wc.Member.RoleID).
					Error("failed to load role permissions")
				httputil.WriteInternalError(w)
				return
			}
		}

		m.recordValidation("valid")

		authCtx := &AuthContext{
			User:        user,
			Workspace:   wc,
			Permissions: perms,
			Entitlement: decision,
		}
		actor := rbac.Actor{
			UserID:       user.ID,
			IsSuperAdmin: user.IsSuperAdmin,
			Permissions:  perms,
		}

		ctx = contextkeys.WithAuth(ctx, authCtx)
		ctx = observability.WithUserID(ctx, user.ID)
		if wc != nil {
			actor.RoleName = wc.Member.RoleName
			ctx = contextkeys.WithWorkspace(ctx, wc)
			ctx = observability.WithWorkspaceID(ctx, wc.Workspace.ID)
		}
		ctx = rbac.WithActor(ctx, actor)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireWorkspace enforces the entitlement decision computed by
// Handler. Routes that operate on tenant data mount this after Handler;
// account-level routes (login, me) do not, which is how a user with an
// expired trial can still sign in and see the upgrade prompt.
func (m *AuthMiddleware) RequireWorkspace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCtx := GetAuthContext(r)
		if authCtx == nil {
			httputil.WriteUnauthorized(w, unauthorizedMessage)
			return
		}
		if authCtx.Entitlement.Allowed {
			next.ServeHTTP(w, r)
			return
		}

		switch authCtx.Entitlement.Reason {
		case entitlement.ReasonTrialExpired:
			expiry := ""
			if authCtx.Entitlement.TrialEndsAt != nil {
				expiry = authCtx.Entitlement.TrialEndsAt.UTC().Format(time.RFC3339)
			}
			httputil.WriteTrialExpired(w, "your trial has ended", expiry)
		default:
			httputil.WriteForbidden(w, "no active workspace")
		}
	})
}

func (m *AuthMiddleware) recordValidation(outcome string) {
	if m.metrics != nil {
		m.metrics.TokenValidationsTotal.WithLabelValues(outcome).Inc()
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
