// Package httputil implements the JSON envelope contract shared with the
// page layer: every response is `{success, message, data}` plus the
// contract flags (`requiresVerification`, `trialExpired`) the login and
// entitlement paths set so clients can render distinct messaging without
// parsing free text.
//
// Response helpers:
//
//	httputil.WriteSuccess(w, data)
//	httputil.WriteUnauthorized(w, "invalid credentials")
//	httputil.WriteTrialExpired(w, "trial period has ended", endsAt)
//
// Request helpers wrap body decoding and gorilla/mux path/query parsing
// with consistent 400 envelopes.
package httputil
