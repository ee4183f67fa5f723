package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/procureflow/be-approvals/internal/apperrors"
	"github.com/procureflow/be-approvals/internal/database"
)

// UserRepository reads identity records. Users are created and managed
// outside this service.
type UserRepository struct {
	db *database.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID retrieves a user by primary key.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	query := `
		SELECT id, username, password_hash, role, department
		FROM users
		WHERE id = $1
	`

	user := &User{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.Role,
		&user.Department,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("user", id.String())
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to get user")
	}

	return user, nil
}

// GetByUsername retrieves a user by its unique username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*User, error) {
	query := `
		SELECT id, username, password_hash, role, department
		FROM users
		WHERE username = $1
	`

	user := &User{}
	err := r.db.QueryRow(ctx, query, username).Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.Role,
		&user.Department,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("user", username)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to get user")
	}

	return user, nil
}

// ListByRole returns all users holding the given role, ordered by username.
func (r *UserRepository) ListByRole(ctx context.Context, role string) ([]*User, error) {
	query := `
		SELECT id, username, password_hash, role, department
		FROM users
		WHERE role = $1
		ORDER BY username
	`

	rows, err := r.db.Query(ctx, query, role)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to list users")
	}
	defer rows.Close()

	users := make([]*User, 0)
	for rows.Next() {
		user := &User{}
		if err := rows.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role, &user.Department); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to scan user")
		}
		users = append(users, user)
	}

	return users, rows.Err()
}
