package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/workbasehq/workbase/pkg/audit"
	"github.com/workbasehq/workbase/pkg/auth"
	"github.com/workbasehq/workbase/pkg/middleware"
	"github.com/workbasehq/workbase/pkg/observability"
	"github.com/workbasehq/workbase/pkg/rbac"
	"github.com/workbasehq/workbase/pkg/workspaces"
)

// Deps bundles the collaborators the server needs. Metrics, Auditor and
// the limiters may be nil; the corresponding behavior is skipped.
type Deps struct {
	Logger  *observability.Logger
	Metrics *observability.Metrics

	Users   *auth.UserStore
	Hasher  *auth.PasswordHasher
	Tokens  *auth.TokenIssuer
	Tenants *workspaces.Service
	Roles   *rbac.Store

	Auditor audit.Recorder

	// LoginLimiter bounds credential guessing per instance.
	// DistributedLoginLimiter adds a shared Redis window in front of it
	// when Redis is configured.
	LoginLimiter            *middleware.RateLimitMiddleware
	DistributedLoginLimiter *middleware.DistributedRateLimitMiddleware
}

// Server is the HTTP API server
type Server struct {
	logger  *observability.Logger
	metrics *observability.Metrics

	users   *auth.UserStore
	hasher  *auth.PasswordHasher
	tokens  *auth.TokenIssuer
	tenants *workspaces.Service
	roles   *rbac.Store

	auditor     audit.Recorder
	authMW      *middleware.AuthMiddleware
	rbacMW      *rbac.Middleware
	registry    *rbac.Handlers
	loginLimit  *middleware.RateLimitMiddleware
	sharedLimit *middleware.DistributedRateLimitMiddleware

	router *mux.Router
}

// NewServer creates the API server and builds its route table
func NewServer(d Deps) *Server {
	s := &Server{
		logger:      d.Logger,
		metrics:     d.Metrics,
		users:       d.Users,
		hasher:      d.Hasher,
		tokens:      d.Tokens,
		tenants:     d.Tenants,
		roles:       d.Roles,
		auditor:     d.Auditor,
		loginLimit:  d.LoginLimiter,
		sharedLimit: d.DistributedLoginLimiter,
	}
	s.authMW = middleware.NewAuthMiddleware(d.Tokens, d.Users, d.Tenants, d.Roles, d.Logger, d.Metrics)
	s.rbacMW = rbac.NewMiddleware(d.Metrics)
	s.registry = rbac.NewHandlers(d.Roles, d.Logger)
	s.router = s.buildRouter()
	return s
}

// Router returns the fully wired HTTP handler
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) buildRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(s.logger))
	if s.metrics != nil {
		r.Use(observability.HTTPMetricsMiddleware(s.metrics))
	}
	if s.auditor != nil {
		r.Use(audit.Middleware(s.auditor))
	}

	api := r.PathPrefix("/api").Subrouter()

	// Public credential endpoints, rate limited
	api.Handle("/auth/login", s.limited(http.HandlerFunc(s.handleLogin))).Methods(http.MethodPost)
	api.Handle("/auth/register", s.limited(http.HandlerFunc(s.handleRegister))).Methods(http.MethodPost)

	// Account-level endpoints: authenticated, but reachable without a
	// workspace so expired-trial and workspace-less users can see their
	// own state and redeem invitations.
	api.Handle("/auth/me", s.authMW.Handler(http.HandlerFunc(s.handleMe))).Methods(http.MethodGet)
	api.Handle("/invitations/accept", s.authMW.Handler(http.HandlerFunc(s.handleAcceptInvitation))).Methods(http.MethodPost)

	// Workspace-scoped, permission-gated endpoints
	api.Handle("/members",
		s.tenantRoute("members", rbac.ActionView, s.handleListMembers)).Methods(http.MethodGet)
	api.Handle("/members/{userID}/role",
		s.tenantRoute("members", "invite", s.handleChangeMemberRole)).Methods(http.MethodPut)
	api.Handle("/members/{userID}/reactivate",
		s.tenantRoute("members", "invite", s.handleReactivateMember)).Methods(http.MethodPost)
	api.Handle("/members/{userID}",
		s.tenantRoute("members", "remove", s.handleDeactivateMember)).Methods(http.MethodDelete)
	api.Handle("/invitations",
		s.tenantRoute("members", rbac.ActionView, s.handleListInvitations)).Methods(http.MethodGet)
	api.Handle("/invitations",
		s.tenantRoute("members", "invite", s.handleCreateInvitation)).Methods(http.MethodPost)
	api.Handle("/invitations/{id}",
		s.tenantRoute("members", "invite", s.handleRevokeInvitation)).Methods(http.MethodDelete)

	// Role/permission registry; the rbac handlers gate each route with
	// its own roles:* permission.
	reg := api.NewRoute().Subrouter()
	reg.Use(s.authMW.Handler, s.authMW.RequireWorkspace)
	s.registry.RegisterRoutes(reg, s.rbacMW)

	return r
}

// limited applies the login rate limiters: the shared Redis window
// first when configured, then the in-process bucket.
func (s *Server) limited(h http.Handler) http.Handler {
	if s.loginLimit != nil {
		h = s.loginLimit.Handler(h)
	}
	if s.sharedLimit != nil {
		h = s.sharedLimit.Handler(h)
	}
	return h
}

// tenantRoute builds the full chain for a workspace-scoped endpoint:
// authentication, entitlement enforcement, then the permission gate.
func (s *Server) tenantRoute(module, action string, h http.HandlerFunc) http.Handler {
	return s.authMW.Handler(
		s.authMW.RequireWorkspace(
			s.rbacMW.RequirePermission(module, action)(h)))
}

// record writes an audit entry; failures are logged and never fail the
// request that triggered them.
func (s *Server) record(r *http.Request, entry *audit.Entry) {
	entry.WithRemoteIP(middleware.ClientIP(r))
	if err := audit.FromContext(r.Context()).Record(r.Context(), entry); err != nil {
		s.logger.WithError(err).WithField("event", entry.Event).Warn("audit write failed")
	}
}
