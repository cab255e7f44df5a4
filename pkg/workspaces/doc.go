// Package workspaces manages tenants and memberships: the workspace
// context resolver, registration, member administration and
// invitations.
//
// The resolver is the single source of truth for which tenant a user
// operates in. It re-reads membership and workspace state on every call
// and nothing correctness-critical is cached across requests, so a role
// change, membership revocation or workspace suspension takes effect on
// the affected user's next request.
package workspaces
