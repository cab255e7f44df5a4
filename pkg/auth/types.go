package auth

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the user does not exist
	ErrNotFound = errors.New("user not found")
	// ErrEmailTaken indicates the email is already registered
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials indicates email or password did not match.
	// Handlers translate every credential failure mode to this error so
	// responses cannot be used to enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// User is an account holder. A user exists independently of workspaces;
// membership rows tie users to the workspaces they can operate in.
type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	DisplayName  string `json:"display_name"`

	// Role is the legacy account-level label kept for display. It grants
	// nothing; effective permissions come from the workspace membership
	// role.
	Role string `json:"role"`

	// IsSuperAdmin bypasses all permission checks. It is never derived
	// from any role name.
	IsSuperAdmin bool `json:"is_super_admin"`

	EmailVerified bool      `json:"email_verified"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
