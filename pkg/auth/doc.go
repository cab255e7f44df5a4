// Package auth implements credential verification, the user store and
// the session token issuer/validator.
//
// Passwords are verified with bcrypt; every credential failure mode
// collapses to ErrInvalidCredentials so responses cannot be used to
// enumerate accounts. Session tokens are short-lived HS256 JWTs carrying
// only the user id, the workspace id active at issuance and an expiry.
// The token is a routing hint: role and permission state is re-resolved
// from the database on every request, so registry edits and membership
// changes take effect without re-authentication.
package auth
