package rbac

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/workbasehq/workbase/pkg/audit"
	"github.com/workbasehq/workbase/pkg/httputil"
	"github.com/workbasehq/workbase/pkg/observability"
)

// Handlers exposes the role/permission registry over REST
type Handlers struct {
	store  *Store
	logger *observability.Logger
}

// NewHandlers creates the registry handlers
func NewHandlers(store *Store, logger *observability.Logger) *Handlers {
	return &Handlers{store: store, logger: logger}
}

// RegisterRoutes mounts the registry under the given (already
// authenticated) router. Every route is additionally permission-gated.
func (h *Handlers) RegisterRoutes(r *mux.Router, mw *Middleware) {
	r.Handle("/roles",
		mw.RequirePermission("roles", ActionView)(http.HandlerFunc(h.ListRoles))).Methods(http.MethodGet)
	r.Handle("/roles",
		mw.RequirePermission("roles", ActionCreate)(http.HandlerFunc(h.CreateRole))).Methods(http.MethodPost)
	r.Handle("/roles/{id:[0-9]+}",
		mw.RequirePermission("roles", ActionView)(http.HandlerFunc(h.GetRole))).Methods(http.MethodGet)
	r.Handle("/roles/{id:[0-9]+}",
		mw.RequirePermission("roles", ActionEdit)(http.HandlerFunc(h.UpdateRole))).Methods(http.MethodPut)
	r.Handle("/roles/{id:[0-9]+}",
		mw.RequirePermission("roles", ActionDelete)(http.HandlerFunc(h.DeleteRole))).Methods(http.MethodDelete)
	r.Handle("/roles/{id:[0-9]+}/permissions",
		mw.RequirePermission("roles", ActionEdit)(http.HandlerFunc(h.ReplacePermissions))).Methods(http.MethodPut)
	r.Handle("/permissions",
		mw.RequirePermission("roles", ActionView)(http.HandlerFunc(h.ListPermissions))).Methods(http.MethodGet)
}

type createRoleRequest struct {
	Name        string       `json:"name"`
	DisplayName string       `json:"display_name"`
	Description string       `json:"description"`
	Permissions []Permission `json:"permissions"`
}

type updateRoleRequest struct {
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
}

type replacePermissionsRequest struct {
	Permissions []Permission `json:"permissions"`
}

// ListRoles returns every role with derived counts for list views
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.store.ListRoles(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list roles")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, roles)
}

// CreateRole creates a role with an optional initial grant set
func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Name, "name") {
		return
	}
	if req.DisplayName == "" {
		req.DisplayName = req.Name
	}

	role, err := h.store.CreateRole(r.Context(), req.Name, req.DisplayName, req.Description, req.Permissions)
	if err != nil {
		h.writeRoleError(w, err, "Failed to create role")
		return
	}
	h.recordChange(r, audit.EventRoleCreated, role.Name)
	httputil.WriteCreated(w, role)
}

// GetRole returns one role with its grants
func (h *Handlers) GetRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	role, err := h.store.GetRole(r.Context(), id)
	if err != nil {
		h.writeRoleError(w, err, "Failed to get role")
		return
	}
	httputil.WriteSuccess(w, role)
}

// UpdateRole changes a role's display name and description. The name
// key is immutable once created.
func (h *Handlers) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req updateRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.DisplayName, "display_name") {
		return
	}

	role, err := h.store.UpdateRole(r.Context(), id, req.DisplayName, req.Description)
	if err != nil {
		h.writeRoleError(w, err, "Failed to update role")
		return
	}
	h.recordChange(r, audit.EventRoleUpdated, role.Name)
	httputil.WriteSuccess(w, role)
}

// DeleteRole removes an unused custom role
func (h *Handlers) DeleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	role, err := h.store.DeleteRole(r.Context(), id)
	if err != nil {
		h.writeRoleError(w, err, "Failed to delete role")
		return
	}
	h.recordChange(r, audit.EventRoleDeleted, role.Name)
	httputil.WriteSuccessMessage(w, "role deleted", nil)
}

// ReplacePermissions swaps a role's grant set. Members holding the role
// see the new set on their very next request.
func (h *Handlers) ReplacePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req replacePermissionsRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.store.ReplaceRolePermissions(r.Context(), id, req.Permissions); err != nil {
		h.writeRoleError(w, err, "Failed to replace role permissions")
		return
	}

	role, err := h.store.GetRole(r.Context(), id)
	if err != nil {
		h.writeRoleError(w, err, "Failed to reload role")
		return
	}
	h.recordChange(r, audit.EventGrantsReplaced, role.Name)
	httputil.WriteSuccess(w, role)
}

// ListPermissions returns the catalog grouped by module
func (h *Handlers) ListPermissions(w http.ResponseWriter, r *http.Request) {
	grouped, err := h.store.ListPermissions(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list permissions")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteSuccess(w, grouped)
}

// recordChange audits a registry mutation; failures are logged and
// never fail the request.
func (h *Handlers) recordChange(r *http.Request, event, role string) {
	entry := audit.NewEntry(r.Context(), event).WithDetail("role", role)
	if actor, ok := ActorFromContext(r.Context()); ok {
		entry.WithActor(actor.UserID)
	}
	if err := audit.FromContext(r.Context()).Record(r.Context(), entry); err != nil {
		h.logger.WithError(err).Warn("audit write failed")
	}
}

func (h *Handlers) writeRoleError(w http.ResponseWriter, err error, logMsg string) {
	switch {
	case errors.Is(err, ErrRoleNotFound):
		httputil.WriteNotFound(w, "role not found")
	case errors.Is(err, ErrRoleNameTaken):
		httputil.WriteConflict(w, "role name already exists")
	case errors.Is(err, ErrInvalidRoleName):
		httputil.WriteBadRequest(w, ErrInvalidRoleName.Error())
	case errors.Is(err, ErrUnknownPermission):
		httputil.WriteBadRequest(w, err.Error())
	case errors.Is(err, ErrAdminImmutable), errors.Is(err, ErrSystemRole), errors.Is(err, ErrRoleInUse):
		httputil.WriteConflict(w, strings.TrimSpace(err.Error()))
	default:
		h.logger.WithError(err).Error(logMsg)
		httputil.WriteInternalError(w)
	}
}
