// Package middleware provides HTTP middleware for authentication,
// authorization and request hardening. Authentication middleware loads the
// session user and materializes an authz.Principal for downstream handlers;
// authorization middleware enforces permissions and role levels on route
// groups.
package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"

	"github.com/hyg1997/qualitrack/internal/authz"
	"github.com/hyg1997/qualitrack/internal/repository"
	"github.com/hyg1997/qualitrack/internal/security"
)

// principalKey is the c.Locals key under which AuthRequired stores the
// authenticated principal.
const principalKey = "principal"

// AuthRequired ensures the request carries a valid session for an active
// user. It loads the user with roles and flattened permissions from the
// database on every request so revocations take effect immediately, and
// stores the resulting principal in the request context.
//
// Parameters:
//   - store: Session store for managing user sessions
//
// Returns:
//   - fiber.Handler: Middleware function for app.Use() or route groups
//
// Context Locals Set:
//   - principal: *authz.Principal for the authenticated user
//
// Example:
//
//	app.Use("/records", middleware.AuthRequired(store))
func AuthRequired(store *session.Store) fiber.Handler {
	userRepo := repository.NewUserRepository()

	return func(c *fiber.Ctx) error {
		sess, err := store.Get(c)
		if err != nil {
			return c.Redirect("/login")
		}

		userID, ok := sess.Get("user_id").(int)
		if !ok {
			return c.Redirect("/login")
		}

		user, err := userRepo.GetWithRoles(c.Context(), userID)
		if err != nil || !user.Active {
			// Session refers to a deleted or disabled account.
			_ = sess.Destroy()
			return c.Redirect("/login")
		}

		c.Locals(principalKey, authz.NewPrincipal(user.User, user.Roles))
		return c.Next()
	}
}

// PrincipalFrom extracts the authenticated principal set by AuthRequired.
// Returns nil when the request is unauthenticated.
func PrincipalFrom(c *fiber.Ctx) *authz.Principal {
	p, _ := c.Locals(principalKey).(*authz.Principal)
	return p
}

// PermissionRequired rejects requests whose principal lacks the named
// permission. Must be chained after AuthRequired.
//
// Parameters:
//   - resource: Resource portion of the permission (e.g. "record")
//   - action: Action portion of the permission (e.g. "approve")
//   - logger: Security logger for denial events
//   - monitor: Security monitor tracking denial counts per actor
//
// Example:
//
//	resolve := records.Group("/:id",
//	    middleware.PermissionRequired("record", "approve", logger, monitor))
func PermissionRequired(resource, action string, logger *security.Logger, monitor *security.Monitor) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p := PrincipalFrom(c)
		if p == nil {
			return c.Redirect("/login")
		}

		if err := authz.Require(p, resource, action); err != nil {
			perm := authz.PermissionName(resource, action)
			logger.SecurityEvent(security.EventPermissionDenied,
				&p.UserID, p.Email, c.IP(), c.Get("User-Agent"),
				map[string]any{"permission": perm, "path": c.Path()})
			monitor.PermissionDenied(p.Email, perm)
			return c.Status(fiber.StatusForbidden).SendString("Access denied")
		}

		return c.Next()
	}
}

// MinimumLevel rejects requests whose principal's highest role level is
// below the given threshold. Must be chained after AuthRequired.
func MinimumLevel(level int, logger *security.Logger, monitor *security.Monitor) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p := PrincipalFrom(c)
		if p == nil {
			return c.Redirect("/login")
		}

		if err := authz.RequireLevel(p, level); err != nil {
			logger.SecurityEvent(security.EventPermissionDenied,
				&p.UserID, p.Email, c.IP(), c.Get("User-Agent"),
				map[string]any{"required_level": level, "path": c.Path()})
			monitor.PermissionDenied(p.Email, "role level")
			return c.Status(fiber.StatusForbidden).SendString("Access denied")
		}

		return c.Next()
	}
}
