// Package httputil provides HTTP handler utilities for the platform's
// JSON envelope contract, consistent error handling, and request parsing.
package httputil

import (
	"encoding/json"
	"net/http"
)

// Envelope is the response shape every endpoint returns.
// The page layer consuming this API dispatches on the boolean flags
// rather than parsing free-text messages.
type Envelope struct {
	Success              bool        `json:"success"`
	Message              string      `json:"message,omitempty"`
	Data                 interface{} `json:"data,omitempty"`
	RequiresVerification bool        `json:"requiresVerification,omitempty"`
	TrialExpired         bool        `json:"trialExpired,omitempty"`
	TrialEndsAt          *string     `json:"trialEndsAt,omitempty"`
}

// WriteJSON writes an arbitrary JSON payload with the given status code
func WriteJSON(w http.ResponseWriter, status int, payload interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(payload)
}

// WriteSuccess writes a success envelope (200 OK) with data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, Envelope{Success: true, Data: data})
}

// WriteSuccessMessage writes a success envelope with a message and data
func WriteSuccessMessage(w http.ResponseWriter, message string, data interface{}) error {
	return WriteJSON(w, http.StatusOK, Envelope{Success: true, Message: message, Data: data})
}

// WriteCreated writes a success envelope (201 Created) with data
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, Envelope{Success: true, Data: data})
}

// WriteError writes a failure envelope with the given status code
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, Envelope{Success: false, Message: message})
}

// WriteBadRequest writes a malformed-input failure (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message)
}

// WriteUnauthorized writes an authentication failure (401).
// Callers must pass the same uniform message for every authentication
// failure mode so clients cannot distinguish them.
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, message)
}

// WriteForbidden writes an authorization failure (403)
func WriteForbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, message)
}

// WriteNotFound writes a not found failure (404)
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message)
}

// WriteConflict writes a conflict failure (409)
func WriteConflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, message)
}

// WriteTooManyRequests writes a rate limit failure (429)
func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusTooManyRequests, message)
}

// WriteInternalError writes an internal server error (500).
// The underlying error is never surfaced to the client.
func WriteInternalError(w http.ResponseWriter) {
	WriteError(w, http.StatusInternalServerError, "internal server error")
}

// WriteVerificationRequired writes the 403 the login handler returns when
// credentials are valid but the account's email is unverified.
func WriteVerificationRequired(w http.ResponseWriter, message string) {
	WriteJSON(w, http.StatusForbidden, Envelope{
		Success:              false,
		Message:              message,
		RequiresVerification: true,
	})
}

// WriteTrialExpired writes the 403 the middleware returns when the
// workspace's trial window has lapsed. The expiry is surfaced so the
// client can render the upgrade path and clear its session state.
func WriteTrialExpired(w http.ResponseWriter, message string, trialEndsAt string) {
	WriteJSON(w, http.StatusForbidden, Envelope{
		Success:      false,
		Message:      message,
		TrialExpired: true,
		TrialEndsAt:  &trialEndsAt,
	})
}
