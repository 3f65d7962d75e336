// Package services provides the business logic layer for the QualiTrack
// application. This file implements role management with the protection
// rules for high-level roles.
package services

import (
	"context"

	"github.com/hyg1997/qualitrack/internal/apperrors"
	"github.com/hyg1997/qualitrack/internal/authz"
	"github.com/hyg1997/qualitrack/internal/models"
	"github.com/hyg1997/qualitrack/internal/repository"
	"github.com/hyg1997/qualitrack/internal/security"
)

// RoleService implements role and permission grant management.
//
// Protection Rules:
//   - Roles at or above the protected level cannot be edited or deleted,
//     regardless of the actor's permissions
//   - System roles (seeded at install) cannot be deleted
//
// Attempts against protected roles raise a security event before the typed
// authorization error goes back to the caller.
type RoleService struct {
	roles     *repository.RoleRepository
	validator *security.ValidationService
	audit     *auditRecorder
	logger    *security.Logger
	monitor   *security.Monitor
}

// NewRoleService creates and returns a new RoleService instance.
func NewRoleService(cfg *security.Config, logger *security.Logger, monitor *security.Monitor) *RoleService {
	return &RoleService{
		roles:     repository.NewRoleRepository(),
		validator: security.NewValidationService(cfg),
		audit:     newAuditRecorder(logger),
		logger:    logger,
		monitor:   monitor,
	}
}

// guardProtected applies the hard protection rule and raises the monitoring
// event on a violation.
func (s *RoleService) guardProtected(actor *authz.Principal, role *models.Role) error {
	if err := authz.CheckRoleProtected(*role); err != nil {
		s.monitor.ProtectedEntityAccess(actorEmail(actor), "role "+role.Name)
		return err
	}
	return nil
}

// Create adds a new role. Creating at or above the protected level requires
// administrator authority on top of the role:create permission.
func (s *RoleService) Create(ctx context.Context, actor *authz.Principal, role *models.Role, meta RequestMeta) error {
	if err := authz.Require(actor, "role", "create"); err != nil {
		return err
	}
	if err := s.validator.ValidateRoleName(role.Name); err != nil {
		return err
	}
	if err := s.validator.ValidateRoleLevel(role.Level); err != nil {
		return err
	}
	if err := s.validator.ValidateName("display_name", role.DisplayName); err != nil {
		return err
	}
	if role.Level >= models.ProtectedRoleLevel {
		if err := authz.RequireLevel(actor, authz.AdminLevel); err != nil {
			return err
		}
	}

	if err := s.roles.Create(ctx, role); err != nil {
		return err
	}

	s.audit.record(ctx, actor, "role:create", "role", role.ID,
		map[string]any{"name": role.Name, "level": role.Level}, meta)

	return nil
}

// Update edits a role's display name and level. Protected roles are
// immutable.
func (s *RoleService) Update(ctx context.Context, actor *authz.Principal, roleID int, displayName string, level int, meta RequestMeta) error {
	if err := authz.Require(actor, "role", "update"); err != nil {
		return err
	}

	role, err := s.roles.GetByID(ctx, roleID)
	if err != nil {
		return err
	}
	if err := s.guardProtected(actor, role); err != nil {
		return err
	}
	if err := s.validator.ValidateRoleLevel(level); err != nil {
		return err
	}
	if err := s.validator.ValidateName("display_name", displayName); err != nil {
		return err
	}
	if level >= models.ProtectedRoleLevel {
		// Raising a role into the protected band takes admin authority
		if err := authz.RequireLevel(actor, authz.AdminLevel); err != nil {
			return err
		}
	}

	role.DisplayName = displayName
	role.Level = level
	if err := s.roles.Update(ctx, role); err != nil {
		return err
	}

	s.audit.record(ctx, actor, "role:update", "role", roleID,
		map[string]any{"display_name": displayName, "level": level}, meta)

	return nil
}

// Delete removes a role. Protected and system roles are refused.
func (s *RoleService) Delete(ctx context.Context, actor *authz.Principal, roleID int, meta RequestMeta) error {
	if err := authz.Require(actor, "role", "delete"); err != nil {
		return err
	}

	role, err := s.roles.GetByID(ctx, roleID)
	if err != nil {
		return err
	}
	if err := s.guardProtected(actor, role); err != nil {
		return err
	}
	if role.IsSystem {
		return apperrors.Conflict("system role %q cannot be deleted", role.Name)
	}

	if err := s.roles.Delete(ctx, roleID); err != nil {
		return err
	}

	s.audit.record(ctx, actor, "role:delete", "role", roleID,
		map[string]any{"name": role.Name}, meta)

	return nil
}

// SetPermissions replaces a role's permission grants. Protected roles keep
// their grants frozen.
func (s *RoleService) SetPermissions(ctx context.Context, actor *authz.Principal, roleID int, permissionIDs []int, meta RequestMeta) error {
	if err := authz.Require(actor, "role", "update"); err != nil {
		return err
	}

	role, err := s.roles.GetByID(ctx, roleID)
	if err != nil {
		return err
	}
	if err := s.guardProtected(actor, role); err != nil {
		return err
	}

	if err := s.roles.SetPermissions(ctx, roleID, permissionIDs); err != nil {
		return err
	}

	s.audit.record(ctx, actor, "role:set_permissions", "role", roleID,
		map[string]any{"permissions": len(permissionIDs)}, meta)

	return nil
}

// Get retrieves one role with its permissions.
func (s *RoleService) Get(ctx context.Context, roleID int) (*models.Role, error) {
	return s.roles.GetByID(ctx, roleID)
}

// ListAll retrieves every role for the management page.
func (s *RoleService) ListAll(ctx context.Context) ([]models.Role, error) {
	return s.roles.ListAll(ctx)
}

// ListPermissions retrieves the permission catalog for the grant editor.
func (s *RoleService) ListPermissions(ctx context.Context) ([]models.Permission, error) {
	return s.roles.ListPermissions(ctx)
}
