// Package handlers implements HTTP request handlers for the QualiTrack
// application. This file handles login, logout and session creation.
package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"

	"github.com/hyg1997/qualitrack/internal/middleware"
	"github.com/hyg1997/qualitrack/internal/security"
	"github.com/hyg1997/qualitrack/internal/services"
)

// AuthHandler handles authentication-related HTTP requests: login form,
// credential validation, session lifecycle.
type AuthHandler struct {
	store       *session.Store
	authService *services.AuthService
	secMW       *middleware.SecurityMiddleware
	logger      *security.Logger
}

// NewAuthHandler creates a new instance of AuthHandler.
//
// Parameters:
//   - store: Session store for managing user sessions
//   - cfg: Security configuration (bcrypt cost, lockout thresholds)
//   - secMW: Shared security middleware, used for lockout bookkeeping
//   - logger: Security event logger
func NewAuthHandler(store *session.Store, cfg *security.Config, secMW *middleware.SecurityMiddleware, logger *security.Logger) *AuthHandler {
	return &AuthHandler{
		store:       store,
		authService: services.NewAuthService(cfg),
		secMW:       secMW,
		logger:      logger,
	}
}

// ShowLogin renders the login page for unauthenticated users.
func (h *AuthHandler) ShowLogin(c *fiber.Ctx) error {
	return c.Render("login", fiber.Map{
		"Title": "Login - QualiTrack",
	}, "layouts/blank")
}

// Login authenticates submitted credentials and creates a session.
//
// Form Data:
//   - email: Account email
//   - password: Plain-text password, verified against the bcrypt hash
//
// Side Effects:
//   - Failed attempts feed the per-IP rate limit and per-account lockout
//   - Successful login stores user_id in the session and resets lockout state
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	email := c.FormValue("email")
	password := c.FormValue("password")

	if err := h.secMW.LoginRateLimit(email, c.IP()); err != nil {
		return c.Status(fiber.StatusTooManyRequests).Render("login", fiber.Map{
			"Title": "Login - QualiTrack",
			"Error": err.Error(),
		}, "layouts/blank")
	}

	user, err := h.authService.Authenticate(c.Context(), email, password)
	if err != nil {
		h.secMW.RecordLoginFailure(email, c.IP())

		return c.Status(fiber.StatusUnauthorized).Render("login", fiber.Map{
			"Title": "Login - QualiTrack",
			"Error": "Invalid email or password",
		}, "layouts/blank")
	}

	sess, err := h.store.Get(c)
	if err != nil {
		return fail(c, err)
	}

	// Fresh session id on privilege change
	if err := sess.Regenerate(); err != nil {
		return fail(c, err)
	}

	sess.Set("user_id", user.ID)
	if err := sess.Save(); err != nil {
		return fail(c, err)
	}

	h.secMW.RecordLoginSuccess(user.Email, c.IP(), user.ID)

	return c.Redirect("/records")
}

// Logout destroys the session and redirects to the login page.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	sess, err := h.store.Get(c)
	if err != nil {
		return c.Redirect("/login")
	}

	if userID, ok := sess.Get("user_id").(int); ok {
		h.logger.SecurityEvent(security.EventLogout, &userID, "", c.IP(), c.Get("User-Agent"), nil)
	}

	if err := sess.Destroy(); err != nil {
		return fail(c, err)
	}

	return c.Redirect("/login")
}
