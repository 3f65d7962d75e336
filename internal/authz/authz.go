// Package authz implements the authorization gate for QualiTrack.
// It models the acting identity as an explicit Principal value object with a
// permission set flattened from its roles, computed once per request by the
// auth middleware rather than re-derived at each call site.
package authz

import (
	"fmt"

	"github.com/hyg1997/qualitrack/internal/apperrors"
	"github.com/hyg1997/qualitrack/internal/models"
)

// AdminLevel is the role level threshold treated as administrator.
// It coincides with models.ProtectedRoleLevel: administrative roles are the
// protected ones.
const AdminLevel = models.ProtectedRoleLevel

// Principal is the acting identity for one request: the authenticated user,
// its roles, and the flattened set of permission names those roles grant.
type Principal struct {
	UserID   int
	Name     string
	Email    string
	Roles    []models.Role
	maxLevel int
	perms    map[string]struct{}
}

// NewPrincipal builds a Principal from a user and its loaded roles,
// precomputing the flattened permission set and the maximum role level.
func NewPrincipal(user models.User, roles []models.Role) *Principal {
	p := &Principal{
		UserID: user.ID,
		Name:   user.Name,
		Email:  user.Email,
		Roles:  roles,
		perms:  make(map[string]struct{}),
	}
	for _, role := range roles {
		if role.Level > p.maxLevel {
			p.maxLevel = role.Level
		}
		for _, perm := range role.Permissions {
			p.perms[perm.Name] = struct{}{}
		}
	}
	return p
}

// HasPermission reports whether any held role grants the named permission.
func (p *Principal) HasPermission(name string) bool {
	if p == nil {
		return false
	}
	_, ok := p.perms[name]
	return ok
}

// HasMinimumRoleLevel reports whether the principal's maximum role level
// meets the threshold.
func (p *Principal) HasMinimumRoleLevel(level int) bool {
	return p != nil && p.maxLevel >= level
}

// IsAdmin reports whether the principal holds an administrative role.
func (p *Principal) IsAdmin() bool {
	return p.HasMinimumRoleLevel(AdminLevel)
}

// MaxRoleLevel returns the highest level among the principal's roles.
func (p *Principal) MaxRoleLevel() int {
	if p == nil {
		return 0
	}
	return p.maxLevel
}

// PermissionName composes the conventional "resource:action" permission name.
func PermissionName(resource, action string) string {
	return fmt.Sprintf("%s:%s", resource, action)
}

// CanMutate reports whether the principal may perform action on resource,
// composing HasPermission over the conventional naming. Administrators pass
// regardless of the explicit grant.
func (p *Principal) CanMutate(resource, action string) bool {
	if p == nil {
		return false
	}
	if p.IsAdmin() {
		return true
	}
	return p.HasPermission(PermissionName(resource, action))
}

// Require returns an authorization error unless the principal may perform
// action on resource. Services call this before touching any state.
func Require(p *Principal, resource, action string) error {
	if p.CanMutate(resource, action) {
		return nil
	}
	return apperrors.Authorization("missing permission %q", PermissionName(resource, action))
}

// RequireLevel returns an authorization error unless the principal's role
// level meets the threshold.
func RequireLevel(p *Principal, level int) error {
	if p.HasMinimumRoleLevel(level) {
		return nil
	}
	return apperrors.Authorization("requires role level %d or above", level)
}

// CheckRoleProtected enforces the hard protection rule on roles: a role at
// or above the protected level can never be deleted or have its permission
// set edited through role management, regardless of the caller's own grants.
func CheckRoleProtected(role models.Role) error {
	if role.Protected() {
		return apperrors.Authorization(
			"role %q is protected (level %d) and cannot be modified or deleted", role.Name, role.Level)
	}
	return nil
}

// CheckUserProtected enforces the hard protection rule on users: a user
// holding a protected role cannot be deleted, demoted, or have
// authentication factors stripped by another principal. A user acting on
// their own account is exempt.
func CheckUserProtected(actor *Principal, target models.UserWithRoles) error {
	if actor != nil && actor.UserID == target.ID {
		return nil
	}
	for _, role := range target.Roles {
		if role.Protected() {
			return apperrors.Authorization(
				"user %q holds protected role %q and cannot be modified by another principal",
				target.Email, role.Name)
		}
	}
	return nil
}
