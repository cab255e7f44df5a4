// Package middleware wires the per-request authorization chain:
// bearer token validation, fresh workspace resolution, the entitlement
// gate and permission loading, in that order, failing closed on any
// store error. It also carries the ambient request plumbing (request
// IDs, access logging, login rate limiting).
//
// The chain is deliberately stateless between requests. The session
// token proves identity only; workspace, entitlement and permission
// state are re-read from Postgres every time, so suspending a tenant,
// expiring a trial or editing a role takes effect on the very next
// request without invalidating sessions.
package middleware
