package rbac

import (
	"net/http"

	"github.com/workbasehq/workbase/pkg/audit"
	"github.com/workbasehq/workbase/pkg/httputil"
	"github.com/workbasehq/workbase/pkg/observability"
)

// Middleware provides per-route permission enforcement. It runs after
// the authentication middleware, which attaches the Actor.
type Middleware struct {
	metrics *observability.Metrics
}

// NewMiddleware creates the permission middleware. metrics may be nil.
func NewMiddleware(metrics *observability.Metrics) *Middleware {
	return &Middleware{metrics: metrics}
}

// RequirePermission rejects requests whose actor lacks the exact
// (module, action) grant. The 403 carries no detail about which
// permission was missing.
func (m *Middleware) RequirePermission(module, action string) func(http.Handler) http.Handler {
	perm := Permission{Module: module, Action: action}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}
			if !actor.Can(perm) {
				m.recordCheck(module, action, "denied")
				denied := audit.NewEntry(r.Context(), audit.EventAccessDenied).
					WithActor(actor.UserID).
					WithDetail("module", module).
					WithDetail("action", action)
				_ = audit.FromContext(r.Context()).Record(r.Context(), denied)
				httputil.WriteForbidden(w, "permission denied")
				return
			}
			m.recordCheck(module, action, "allowed")
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAnyPermission passes when the actor holds at least one of the
// listed grants.
func (m *Middleware) RequireAnyPermission(perms ...Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFromContext(r.Context())
			if !ok {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}
			if !actor.Evaluator().HasAnyPermission(actor.Permissions, perms...) {
				m.recordCheck("multiple", "any", "denied")
				httputil.WriteForbidden(w, "permission denied")
				return
			}
			m.recordCheck("multiple", "any", "allowed")
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSuperAdmin restricts a route to platform operators
func (m *Middleware) RequireSuperAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFromContext(r.Context())
		if !ok {
			httputil.WriteUnauthorized(w, "authentication required")
			return
		}
		if !actor.IsSuperAdmin {
			httputil.WriteForbidden(w, "permission denied")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) recordCheck(module, action, outcome string) {
	if m.metrics == nil {
		return
	}
	m.metrics.PermissionChecksTotal.WithLabelValues(module, action, outcome).Inc()
}
