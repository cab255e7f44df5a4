// Package entitlement decides whether a tenant may currently be served:
// paid subscription, open trial window, or expired.
//
// Evaluate is a pure function over a workspace snapshot. Callers must
// feed it a fresh read from the workspace resolver on every gated
// request; the decision is never baked into a session token or cached.
package entitlement

import (
	"time"

	"github.com/workbasehq/workbase/pkg/workspaces"
)

// Reason explains a gate decision
type Reason string

const (
	ReasonAllowed      Reason = "allowed"
	ReasonNoWorkspace  Reason = "no_workspace"
	ReasonTrialExpired Reason = "trial_expired"
)

// Decision is the outcome of the entitlement gate. TrialEndsAt is set
// on trial_expired so the client can render the upgrade path.
type Decision struct {
	Allowed     bool       `json:"allowed"`
	Reason      Reason     `json:"reason"`
	TrialEndsAt *time.Time `json:"trial_ends_at,omitempty"`
}

// Evaluate applies the gate's decision table, first match wins:
//
//  1. no workspace: not allowed, no_workspace
//  2. subscription_id present: allowed (paid tenants bypass trial
//     checks forever, even with a long-past trial_ends_at)
//  3. trial_ends_at null: allowed (legacy tenants with no trial
//     recorded)
//  4. trial_ends_at strictly after now: allowed
//  5. otherwise: not allowed, trial_expired, expiry surfaced
func Evaluate(ws *workspaces.Workspace, now time.Time) Decision {
	if ws == nil {
		return Decision{Allowed: false, Reason: ReasonNoWorkspace}
	}
	if ws.SubscriptionID != nil {
		return Decision{Allowed: true, Reason: ReasonAllowed}
	}
	if ws.TrialEndsAt == nil {
		return Decision{Allowed: true, Reason: ReasonAllowed}
	}
	if ws.TrialEndsAt.After(now) {
		return Decision{Allowed: true, Reason: ReasonAllowed}
	}
	return Decision{Allowed: false, Reason: ReasonTrialExpired, TrialEndsAt: ws.TrialEndsAt}
}
