// Package services provides the business logic layer for the QualiTrack
// application. This file implements user account administration with the
// protection rules for users holding high-level roles.
package services

import (
	"context"

	"github.com/hyg1997/qualitrack/internal/authz"
	"github.com/hyg1997/qualitrack/internal/models"
	"github.com/hyg1997/qualitrack/internal/repository"
	"github.com/hyg1997/qualitrack/internal/security"
)

// UserService implements account administration.
//
// Protection Rules:
//   - Users holding a role at or above the protected level cannot be
//     disabled or stripped of roles by another principal; self-service
//     password changes remain allowed
type UserService struct {
	users     *repository.UserRepository
	roles     *repository.RoleRepository
	auth      *AuthService
	validator *security.ValidationService
	audit     *auditRecorder
	logger    *security.Logger
	monitor   *security.Monitor
}

// NewUserService creates and returns a new UserService instance.
func NewUserService(cfg *security.Config, logger *security.Logger, monitor *security.Monitor) *UserService {
	return &UserService{
		users:     repository.NewUserRepository(),
		roles:     repository.NewRoleRepository(),
		auth:      NewAuthService(cfg),
		validator: security.NewValidationService(cfg),
		audit:     newAuditRecorder(logger),
		logger:    logger,
		monitor:   monitor,
	}
}

// guardProtectedUser applies the hard protection rule against the target
// account and raises the monitoring event on a violation.
func (s *UserService) guardProtectedUser(ctx context.Context, actor *authz.Principal, targetID int) error {
	target, err := s.users.GetWithRoles(ctx, targetID)
	if err != nil {
		return err
	}
	if err := authz.CheckUserProtected(actor, *target); err != nil {
		s.monitor.ProtectedEntityAccess(actorEmail(actor), "user "+target.Email)
		return err
	}
	return nil
}

// guardProtectedGrant refuses granting a protected role to anyone unless the
// actor already holds admin authority. Without this, user:update alone would
// be an escalation path into the protected band.
func (s *UserService) guardProtectedGrant(ctx context.Context, actor *authz.Principal, roleID int) error {
	role, err := s.roles.GetByID(ctx, roleID)
	if err != nil {
		return err
	}
	if !role.Protected() {
		return nil
	}
	if err := authz.RequireLevel(actor, authz.AdminLevel); err != nil {
		s.monitor.ProtectedEntityAccess(actorEmail(actor), "role "+role.Name)
		return err
	}
	return nil
}

// Create adds a new account with an initial set of role grants.
//
// Parameters:
//   - ctx: Context for cancellation and timeout control
//   - actor: Acting principal, must hold user:create
//   - email, name, password: Account fields; the password is validated
//     against policy and bcrypt-hashed before storage
//   - roleIDs: Roles to grant immediately
//   - meta: Request context for the audit trail
func (s *UserService) Create(ctx context.Context, actor *authz.Principal, email, name, password string, roleIDs []int, meta RequestMeta) (*models.User, error) {
	if err := authz.Require(actor, "user", "create"); err != nil {
		return nil, err
	}
	if err := s.validator.ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := s.validator.ValidateName("name", name); err != nil {
		return nil, err
	}
	if err := s.validator.ValidatePassword(password); err != nil {
		return nil, err
	}
	for _, roleID := range roleIDs {
		if err := s.guardProtectedGrant(ctx, actor, roleID); err != nil {
			return nil, err
		}
	}

	hash, err := s.auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Email:        email,
		Name:         s.validator.SanitizeString(name),
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	for _, roleID := range roleIDs {
		if err := s.users.GrantRole(ctx, user.ID, roleID); err != nil {
			return nil, err
		}
	}

	s.audit.record(ctx, actor, "user:create", "user", user.ID,
		map[string]any{"email": user.Email, "roles": len(roleIDs)}, meta)

	return user, nil
}

// SetActive enables or disables an account. Protected users cannot be
// disabled by another principal.
func (s *UserService) SetActive(ctx context.Context, actor *authz.Principal, userID int, active bool, meta RequestMeta) error {
	if err := authz.Require(actor, "user", "update"); err != nil {
		return err
	}
	if !active {
		if err := s.guardProtectedUser(ctx, actor, userID); err != nil {
			return err
		}
	}

	if err := s.users.SetActive(ctx, userID, active); err != nil {
		return err
	}

	action := "user:disable"
	if active {
		action = "user:enable"
	}
	s.audit.record(ctx, actor, action, "user", userID, nil, meta)

	return nil
}

// GrantRole grants a role to a user. Granting a protected role requires
// admin authority, not just user:update.
func (s *UserService) GrantRole(ctx context.Context, actor *authz.Principal, userID, roleID int, meta RequestMeta) error {
	if err := authz.Require(actor, "user", "update"); err != nil {
		return err
	}
	if err := s.guardProtectedGrant(ctx, actor, roleID); err != nil {
		return err
	}

	if err := s.users.GrantRole(ctx, userID, roleID); err != nil {
		return err
	}

	s.audit.record(ctx, actor, "user:grant_role", "user", userID,
		map[string]any{"role_id": roleID}, meta)

	return nil
}

// RevokeRole removes a role from a user. Revoking from a protected user is
// a demotion and falls under the protection rule.
func (s *UserService) RevokeRole(ctx context.Context, actor *authz.Principal, userID, roleID int, meta RequestMeta) error {
	if err := authz.Require(actor, "user", "update"); err != nil {
		return err
	}
	if err := s.guardProtectedUser(ctx, actor, userID); err != nil {
		return err
	}

	if err := s.users.RevokeRole(ctx, userID, roleID); err != nil {
		return err
	}

	s.audit.record(ctx, actor, "user:revoke_role", "user", userID,
		map[string]any{"role_id": roleID}, meta)

	return nil
}

// ChangePassword sets a new password for an account. Self-service is exempt
// from the protection rule; changing someone else's password is not.
func (s *UserService) ChangePassword(ctx context.Context, actor *authz.Principal, userID int, newPassword string, meta RequestMeta) error {
	if actor == nil {
		return authz.Require(actor, "user", "update")
	}
	if actor.UserID != userID {
		if err := authz.Require(actor, "user", "update"); err != nil {
			return err
		}
		if err := s.guardProtectedUser(ctx, actor, userID); err != nil {
			return err
		}
	}
	if err := s.validator.ValidatePassword(newPassword); err != nil {
		return err
	}

	hash, err := s.auth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}

	s.audit.record(ctx, actor, "user:change_password", "user", userID, nil, meta)

	return nil
}

// Get retrieves one account with roles loaded.
func (s *UserService) Get(ctx context.Context, userID int) (*models.UserWithRoles, error) {
	return s.users.GetWithRoles(ctx, userID)
}

// ListAll retrieves every account for the management page.
func (s *UserService) ListAll(ctx context.Context) ([]models.UserWithRoles, error) {
	return s.users.ListAll(ctx)
}
