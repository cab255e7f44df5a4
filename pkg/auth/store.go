package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const userColumns = `id, email, password_hash, display_name, role, is_super_admin,
	email_verified, is_active, created_at, updated_at`

// UserStore persists user accounts in Postgres
type UserStore struct {
	db *sql.DB
}

// NewUserStore creates a user store backed by the given database
func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

const insertUserQuery = `
	INSERT INTO users (id, email, password_hash, display_name, role)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING ` + userColumns

// rowQuerier is satisfied by *sql.DB and *sql.Tx
type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// insertUser is the single user INSERT path. The id is generated here;
// the users table declares no column default for it. Emails are
// normalized to lower case before insert; a duplicate maps to
// ErrEmailTaken.
func insertUser(ctx context.Context, q rowQuerier, email, passwordHash, displayName, role string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := scanUser(q.QueryRowContext(ctx, insertUserQuery,
		uuid.NewString(), email, passwordHash, displayName, role))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// Create inserts a new user with the default member role and returns
// the stored row
func (s *UserStore) Create(ctx context.Context, email, passwordHash, displayName string) (*User, error) {
	return insertUser(ctx, s.db, email, passwordHash, displayName, "member")
}

// CreateInTx inserts a user through the caller's open transaction.
// Registration uses this so the user, workspace and owner membership
// commit atomically.
func CreateInTx(ctx context.Context, tx *sql.Tx, email, passwordHash, displayName, role string) (*User, error) {
	return insertUser(ctx, tx, email, passwordHash, displayName, role)
}

// GetByEmail fetches a user by email, matching case-insensitively
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return user, nil
}

// GetByID fetches a user by ID
func (s *UserStore) GetByID(ctx context.Context, id string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// MarkEmailVerified flips the verification flag for a user
func (s *UserStore) MarkEmailVerified(ctx context.Context, id string) error {
	return s.updateFlag(ctx, id, "email_verified", true)
}

// Deactivate disables a user account. Existing tokens keep validating
// but the middleware rejects inactive users on the next request.
func (s *UserStore) Deactivate(ctx context.Context, id string) error {
	return s.updateFlag(ctx, id, "is_active", false)
}

// Reactivate re-enables a previously deactivated account
func (s *UserStore) Reactivate(ctx context.Context, id string) error {
	return s.updateFlag(ctx, id, "is_active", true)
}

// UpdatePassword replaces the stored password hash
func (s *UserStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	query := `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query, id, passwordHash)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return checkAffected(result)
}

// UpdateDisplayName changes the user's display name
func (s *UserStore) UpdateDisplayName(ctx context.Context, id, displayName string) error {
	query := `UPDATE users SET display_name = $2, updated_at = NOW() WHERE id = $1`

	result, err := s.db.ExecContext(ctx, query, id, displayName)
	if err != nil {
		return fmt.Errorf("failed to update display name: %w", err)
	}
	return checkAffected(result)
}

func (s *UserStore) updateFlag(ctx context.Context, id, column string, value bool) error {
	// column comes from a fixed call site, never user input
	query := fmt.Sprintf(`UPDATE users SET %s = $2, updated_at = NOW() WHERE id = $1`, column)

	result, err := s.db.ExecContext(ctx, query, id, value)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return checkAffected(result)
}

func checkAffected(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.DisplayName,
		&u.Role,
		&u.IsSuperAdmin,
		&u.EmailVerified,
		&u.IsActive,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
