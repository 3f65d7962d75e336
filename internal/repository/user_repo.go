// Package repository provides the data access layer for the QualiTrack
// application. This file handles user accounts, authentication queries and
// role grants.
package repository

import (
	"context"
	"errors"

	"github.com/hyg1997/qualitrack/internal/apperrors"
	"github.com/hyg1997/qualitrack/internal/database"
	"github.com/hyg1997/qualitrack/internal/models"
	"github.com/jackc/pgx/v5"
)

// UserRepository handles user-related database operations.
// Manages accounts, credential lookups and the user_roles join table.
type UserRepository struct{}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository() *UserRepository {
	return &UserRepository{}
}

// FindByEmail retrieves a user by their email address.
// Used during login to validate credentials; inactive accounts are still
// returned so the caller can distinguish "disabled" from "unknown".
//
// Parameters:
//   - ctx: Context for cancellation and timeout control
//   - email: User's email address (unique identifier)
//
// Returns:
//   - *models.User: User object including the password hash
//   - error: Typed not-found if the email is unknown, database error otherwise
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT id, email, name, password_hash, active, created_at FROM users WHERE email = $1`

	var user models.User
	err := database.DB.QueryRow(ctx, query, email).Scan(
		&user.ID, &user.Email, &user.Name, &user.PasswordHash, &user.Active, &user.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("user not found")
	}
	if err != nil {
		return nil, err
	}

	return &user, nil
}

// FindByID retrieves a user by their unique ID.
// Used for session validation on every authenticated request.
func (r *UserRepository) FindByID(ctx context.Context, id int) (*models.User, error) {
	query := `SELECT id, email, name, password_hash, active, created_at FROM users WHERE id = $1`

	var user models.User
	err := database.DB.QueryRow(ctx, query, id).Scan(
		&user.ID, &user.Email, &user.Name, &user.PasswordHash, &user.Active, &user.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("user not found")
	}
	if err != nil {
		return nil, err
	}

	return &user, nil
}

// GetWithRoles retrieves a user together with their granted roles and each
// role's flattened permission set. This is the input for building the
// request principal.
//
// Database: Three queries (user, roles, permissions) rather than one wide
// join; role counts per user are small and the shapes stay mockable.
func (r *UserRepository) GetWithRoles(ctx context.Context, userID int) (*models.UserWithRoles, error) {
	user, err := r.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	rolesQuery := `
		SELECT ro.id, ro.name, ro.display_name, ro.level, ro.is_system, ro.created_at
		FROM roles ro
		JOIN user_roles ur ON ur.role_id = ro.id
		WHERE ur.user_id = $1
		ORDER BY ro.level DESC
	`

	rows, err := database.DB.Query(ctx, rolesQuery, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []models.Role
	for rows.Next() {
		var role models.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.DisplayName, &role.Level, &role.IsSystem, &role.CreatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	rows.Close()

	for i := range roles {
		perms, err := listRolePermissions(ctx, roles[i].ID)
		if err != nil {
			return nil, err
		}
		roles[i].Permissions = perms
	}

	return &models.UserWithRoles{User: *user, Roles: roles}, nil
}

// ListAll retrieves all users with their role names, newest first.
// Used for the user management page; password hashes are not selected.
func (r *UserRepository) ListAll(ctx context.Context) ([]models.UserWithRoles, error) {
	query := `SELECT id, email, name, active, created_at FROM users ORDER BY created_at DESC`

	rows, err := database.DB.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.UserWithRoles
	for rows.Next() {
		var u models.UserWithRoles
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.Active, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	rows.Close()

	rolesQuery := `
		SELECT ro.id, ro.name, ro.display_name, ro.level, ro.is_system, ro.created_at
		FROM roles ro
		JOIN user_roles ur ON ur.role_id = ro.id
		WHERE ur.user_id = $1
		ORDER BY ro.level DESC
	`

	for i := range users {
		roleRows, err := database.DB.Query(ctx, rolesQuery, users[i].ID)
		if err != nil {
			return nil, err
		}
		for roleRows.Next() {
			var role models.Role
			if err := roleRows.Scan(&role.ID, &role.Name, &role.DisplayName, &role.Level, &role.IsSystem, &role.CreatedAt); err != nil {
				roleRows.Close()
				return nil, err
			}
			users[i].Roles = append(users[i].Roles, role)
		}
		roleRows.Close()
	}

	return users, nil
}

// Create inserts a new user account.
// Password must be bcrypt-hashed before calling this method.
//
// Side Effects: Populates user.ID and user.CreatedAt with database values
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (email, name, password_hash, active)
		VALUES ($1, $2, $3, true)
		RETURNING id, created_at
	`

	err := database.DB.QueryRow(ctx, query, user.Email, user.Name, user.PasswordHash).
		Scan(&user.ID, &user.CreatedAt)
	if isUniqueViolation(err) {
		return apperrors.Conflict("email %q is already registered", user.Email)
	}
	return err
}

// UpdatePassword replaces a user's password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, userID int, passwordHash string) error {
	query := `UPDATE users SET password_hash = $1 WHERE id = $2`

	tag, err := database.DB.Exec(ctx, query, passwordHash, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("user not found")
	}
	return nil
}

// SetActive enables or disables an account. Disabled accounts fail login but
// keep their audit and record history.
func (r *UserRepository) SetActive(ctx context.Context, userID int, active bool) error {
	query := `UPDATE users SET active = $1 WHERE id = $2`

	tag, err := database.DB.Exec(ctx, query, active, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("user not found")
	}
	return nil
}

// GrantRole adds a role to a user. Granting an already-held role is a no-op.
func (r *UserRepository) GrantRole(ctx context.Context, userID, roleID int) error {
	query := `
		INSERT INTO user_roles (user_id, role_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, role_id) DO NOTHING
	`

	_, err := database.DB.Exec(ctx, query, userID, roleID)
	return err
}

// RevokeRole removes a role from a user.
func (r *UserRepository) RevokeRole(ctx context.Context, userID, roleID int) error {
	query := `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`

	_, err := database.DB.Exec(ctx, query, userID, roleID)
	return err
}
