// Package audit records security-relevant events (logins, registry
// edits, membership changes) to the audit_log table. Recording is best
// effort: a failed audit write is logged and never fails the request
// that triggered it.
package audit

import (
	"context"
	"time"

	"github.com/workbasehq/workbase/pkg/contextkeys"
)

// Event names. Dot-separated, category first, so operators can filter
// with a prefix match.
const (
	EventLogin         = "auth.login"
	EventLoginFailed   = "auth.login_failed"
	EventRegister      = "auth.register"
	EventTokenRejected = "auth.token_rejected"

	EventRoleCreated    = "rbac.role_created"
	EventRoleUpdated    = "rbac.role_updated"
	EventRoleDeleted    = "rbac.role_deleted"
	EventGrantsReplaced = "rbac.grants_replaced"
	EventAccessDenied   = "rbac.access_denied"

	EventMemberAdded       = "workspace.member_added"
	EventMemberRoleChanged = "workspace.member_role_changed"
	EventMemberDeactivated = "workspace.member_deactivated"
	EventMemberReactivated = "workspace.member_reactivated"
	EventInviteCreated     = "workspace.invite_created"
	EventInviteAccepted    = "workspace.invite_accepted"
	EventInviteRevoked     = "workspace.invite_revoked"
)

// Entry is one audit log row. ActorID and WorkspaceID are nullable:
// failed logins have no actor, account-level events have no workspace.
type Entry struct {
	ID          int64          `json:"id"`
	OccurredAt  time.Time      `json:"occurred_at"`
	ActorID     *string        `json:"actor_id,omitempty"`
	WorkspaceID *string        `json:"workspace_id,omitempty"`
	Event       string         `json:"event"`
	Detail      map[string]any `json:"detail,omitempty"`
	RequestID   string         `json:"request_id,omitempty"`
	RemoteIP    string         `json:"remote_ip,omitempty"`
}

// Recorder persists audit entries
type Recorder interface {
	Record(ctx context.Context, entry *Entry) error
}

// WithRecorder attaches the recorder to the context
func WithRecorder(ctx context.Context, rec Recorder) context.Context {
	return contextkeys.WithAuditLogger(ctx, rec)
}

// FromContext retrieves the recorder set by the audit middleware.
// Returns a no-op recorder when none is configured so callers never
// nil-check.
func FromContext(ctx context.Context) Recorder {
	if rec, ok := ctx.Value(contextkeys.AuditLoggerKey).(Recorder); ok {
		return rec
	}
	return noOpRecorder{}
}

type noOpRecorder struct{}

func (noOpRecorder) Record(ctx context.Context, entry *Entry) error { return nil }

// NewEntry builds an entry stamped with the request ID from context
func NewEntry(ctx context.Context, event string) *Entry {
	return &Entry{
		Event:     event,
		Detail:    map[string]any{},
		RequestID: contextkeys.GetRequestID(ctx),
	}
}

// WithActor sets the acting user
func (e *Entry) WithActor(userID string) *Entry {
	if userID != "" {
		e.ActorID = &userID
	}
	return e
}

// WithWorkspace sets the tenant the event happened in
func (e *Entry) WithWorkspace(workspaceID string) *Entry {
	if workspaceID != "" {
		e.WorkspaceID = &workspaceID
	}
	return e
}

// WithDetail adds one key to the detail payload
func (e *Entry) WithDetail(key string, value any) *Entry {
	e.Detail[key] = value
	return e
}

// WithRemoteIP sets the client address
func (e *Entry) WithRemoteIP(ip string) *Entry {
	e.RemoteIP = ip
	return e
}
