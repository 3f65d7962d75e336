// Package repository provides the data access layer for the QualiTrack
// application. This file handles roles and their permission grants.
package repository

import (
	"context"
	"errors"

	"github.com/hyg1997/qualitrack/internal/apperrors"
	"github.com/hyg1997/qualitrack/internal/database"
	"github.com/hyg1997/qualitrack/internal/models"
	"github.com/jackc/pgx/v5"
)

// RoleRepository handles role and permission database operations.
// Protection rules for high-level roles live in the service layer; the
// repository only persists what it is told.
type RoleRepository struct{}

// NewRoleRepository creates a new instance of RoleRepository.
func NewRoleRepository() *RoleRepository {
	return &RoleRepository{}
}

// listRolePermissions loads the permission set granted to one role.
// Shared with the user repository when building principals.
func listRolePermissions(ctx context.Context, roleID int) ([]models.Permission, error) {
	query := `
		SELECT p.id, p.name, p.resource, p.action, p.display_name
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		WHERE rp.role_id = $1
		ORDER BY p.name
	`

	rows, err := database.DB.Query(ctx, query, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []models.Permission
	for rows.Next() {
		var p models.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Resource, &p.Action, &p.DisplayName); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}

	return perms, nil
}

// GetByID retrieves a role with its permission set loaded.
func (r *RoleRepository) GetByID(ctx context.Context, roleID int) (*models.Role, error) {
	query := `SELECT id, name, display_name, level, is_system, created_at FROM roles WHERE id = $1`

	var role models.Role
	err := database.DB.QueryRow(ctx, query, roleID).Scan(
		&role.ID, &role.Name, &role.DisplayName, &role.Level, &role.IsSystem, &role.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("role %d not found", roleID)
	}
	if err != nil {
		return nil, err
	}

	perms, err := listRolePermissions(ctx, role.ID)
	if err != nil {
		return nil, err
	}
	role.Permissions = perms

	return &role, nil
}

// ListAll retrieves every role ordered by authority level (highest first),
// each with its permission set loaded. Used for the role management page
// and the user role-grant form.
func (r *RoleRepository) ListAll(ctx context.Context) ([]models.Role, error) {
	query := `SELECT id, name, display_name, level, is_system, created_at FROM roles ORDER BY level DESC, name`

	rows, err := database.DB.Query(ctx, query)
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

	return roles, nil
}

// Create inserts a new role.
//
// Side Effects: Populates role.ID and role.CreatedAt with database values
func (r *RoleRepository) Create(ctx context.Context, role *models.Role) error {
	query := `
		INSERT INTO roles (name, display_name, level, is_system)
		VALUES ($1, $2, $3, false)
		RETURNING id, created_at
	`

	err := database.DB.QueryRow(ctx, query, role.Name, role.DisplayName, role.Level).
		Scan(&role.ID, &role.CreatedAt)
	if isUniqueViolation(err) {
		return apperrors.Conflict("a role named %q already exists", role.Name)
	}
	return err
}

// Update modifies a role's display name and level. The machine name is
// immutable once created because permission checks and seeds refer to it.
func (r *RoleRepository) Update(ctx context.Context, role *models.Role) error {
	query := `UPDATE roles SET display_name = $1, level = $2 WHERE id = $3`

	tag, err := database.DB.Exec(ctx, query, role.DisplayName, role.Level, role.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("role %d not found", role.ID)
	}
	return nil
}

// Delete removes a role. Grants in user_roles and role_permissions cascade.
// The service layer refuses this for protected and system roles before the
// call ever reaches here.
func (r *RoleRepository) Delete(ctx context.Context, roleID int) error {
	query := `DELETE FROM roles WHERE id = $1`

	tag, err := database.DB.Exec(ctx, query, roleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NotFound("role %d not found", roleID)
	}
	return nil
}

// SetPermissions replaces a role's permission grants with the given set in
// one transaction, so a failed update never leaves a half-granted role.
func (r *RoleRepository) SetPermissions(ctx context.Context, roleID int, permissionIDs []int) error {
	return database.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return err
		}

		query := `INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)`
		for _, permID := range permissionIDs {
			if _, err := tx.Exec(ctx, query, roleID, permID); err != nil {
				return err
			}
		}

		return nil
	})
}

// ListPermissions retrieves the full permission catalog grouped by resource.
// Used to render the role permission editor.
func (r *RoleRepository) ListPermissions(ctx context.Context) ([]models.Permission, error) {
	query := `SELECT id, name, resource, action, display_name FROM permissions ORDER BY resource, action`

	rows, err := database.DB.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []models.Permission
	for rows.Next() {
		var p models.Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Resource, &p.Action, &p.DisplayName); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}

	return perms, nil
}
