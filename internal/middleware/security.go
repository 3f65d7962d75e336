package middleware

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/google/uuid"

	"github.com/hyg1997/qualitrack/internal/security"
)

// SecurityMiddleware bundles the request-hardening concerns: login rate
// limiting, account lockout, CSRF, secure headers, input screening and
// request logging. One instance is shared across the whole application.
type SecurityMiddleware struct {
	logger         *security.Logger
	config         *security.Config
	loginLimiter   *security.RateLimiter
	accountLockout *security.AccountLockout
	monitor        *security.Monitor
}

// NewSecurityMiddleware creates the shared security middleware instance.
func NewSecurityMiddleware(logger *security.Logger, config *security.Config, monitor *security.Monitor) *SecurityMiddleware {
	return &SecurityMiddleware{
		logger:         logger,
		config:         config,
		loginLimiter:   security.NewRateLimiter(config.LoginRateLimit, 12*time.Second),
		accountLockout: security.NewAccountLockout(config.AccountLockoutThreshold, config.AccountLockoutDuration),
		monitor:        monitor,
	}
}

// SecureSession ensures the session cookie carries the configured security
// attributes on every response.
func (sm *SecurityMiddleware) SecureSession(store *session.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Cookie(&fiber.Cookie{
			Name:     sm.config.SessionCookieName,
			Secure:   sm.config.SessionSecure,
			HTTPOnly: sm.config.SessionHTTPOnly,
			SameSite: sm.config.SessionSameSite,
		})

		return c.Next()
	}
}

// CSRFProtection validates the CSRF token on state-changing requests.
// The token may arrive in the X-CSRF-Token header or the csrf_token form
// field; it must match the one stored in the session.
func (sm *SecurityMiddleware) CSRFProtection(store *session.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		switch c.Method() {
		case fiber.MethodPost, fiber.MethodPut, fiber.MethodDelete:
		default:
			return c.Next()
		}

		sess, err := store.Get(c)
		if err != nil {
			return c.Status(fiber.StatusForbidden).SendString("Invalid session")
		}

		sessionToken := sess.Get("csrf_token")
		if sessionToken == nil {
			token := generateCSRFToken()
			sess.Set("csrf_token", token)
			_ = sess.Save()

			sm.logger.SecurityEvent(security.EventCSRFViolation, nil, "", c.IP(), c.Get("User-Agent"),
				map[string]any{
					"method": c.Method(),
					"path":   c.Path(),
					"reason": "missing_token",
				})

			return c.Status(fiber.StatusForbidden).SendString("CSRF token missing")
		}

		requestToken := c.Get("X-CSRF-Token")
		if requestToken == "" {
			requestToken = c.FormValue("csrf_token")
		}

		if requestToken != sessionToken {
			sm.logger.SecurityEvent(security.EventCSRFViolation, nil, "", c.IP(), c.Get("User-Agent"),
				map[string]any{
					"method": c.Method(),
					"path":   c.Path(),
					"reason": "token_mismatch",
				})

			return c.Status(fiber.StatusForbidden).SendString("CSRF token invalid")
		}

		return c.Next()
	}
}

// SetCSRFToken makes the session's CSRF token available to templates via
// c.Locals, minting one when the session has none yet.
func (sm *SecurityMiddleware) SetCSRFToken(store *session.Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := store.Get(c)
		if err != nil {
			return c.Next()
		}

		token := sess.Get("csrf_token")
		if token == nil {
			token = generateCSRFToken()
			sess.Set("csrf_token", token)
			_ = sess.Save()
		}

		c.Locals("csrf_token", token)
		return c.Next()
	}
}

// LoginRateLimit checks the per-IP login rate limit and account lockout
// state before an authentication attempt. Returns a user-presentable error
// when the attempt must be refused.
func (sm *SecurityMiddleware) LoginRateLimit(email, ipAddress string) error {
	if !sm.loginLimiter.Allow(ipAddress) {
		sm.logger.SecurityEvent(security.EventRateLimitExceeded, nil, email, ipAddress, "",
			map[string]any{
				"endpoint": "/login",
				"limit":    sm.config.LoginRateLimit,
			})

		return fmt.Errorf("too many login attempts, please try again later")
	}

	if sm.accountLockout.IsLocked(email) {
		remaining := sm.accountLockout.LockoutTimeRemaining(email)

		sm.logger.SecurityEvent(security.EventAccountLocked, nil, email, ipAddress, "",
			map[string]any{
				"locked_for": remaining.String(),
			})

		return fmt.Errorf("account is locked due to too many failed attempts, try again in %d minutes", int(remaining.Minutes())+1)
	}

	return nil
}

// RecordLoginFailure records a failed login attempt against the lockout
// tracker and the security monitor.
func (sm *SecurityMiddleware) RecordLoginFailure(email, ipAddress string) {
	locked := sm.accountLockout.RecordFailedAttempt(email)

	sm.logger.SecurityEvent(security.EventLoginFailure, nil, email, ipAddress, "",
		map[string]any{
			"locked": locked,
		})

	sm.monitor.LoginFailure(ipAddress)
}

// RecordLoginSuccess resets lockout counters after a successful login.
func (sm *SecurityMiddleware) RecordLoginSuccess(email, ipAddress string, userID int) {
	sm.accountLockout.ResetAttempts(email)

	sm.logger.SecurityEvent(security.EventLoginSuccess, &userID, email, ipAddress, "",
		map[string]any{
			"success": true,
		})
}

// RateLimit applies a token-bucket limiter to an endpoint. Authenticated
// requests are bucketed per user, anonymous ones per IP.
func (sm *SecurityMiddleware) RateLimit(limiter *security.RateLimiter, endpointName string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identifier := c.IP()
		if p := PrincipalFrom(c); p != nil {
			identifier = fmt.Sprintf("user_%d", p.UserID)
		}

		if !limiter.Allow(identifier) {
			sm.logger.SecurityEvent(security.EventRateLimitExceeded, nil, "", c.IP(), c.Get("User-Agent"),
				map[string]any{
					"endpoint":   endpointName,
					"identifier": identifier,
				})

			c.Set("Retry-After", "60")
			return c.Status(fiber.StatusTooManyRequests).
				SendString("Rate limit exceeded, please try again later")
		}

		return c.Next()
	}
}

// RequestLogger logs every HTTP request with a generated request id.
func (sm *SecurityMiddleware) RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		requestID := uuid.NewString()
		c.Locals("request_id", requestID)

		err := c.Next()

		sm.logger.HTTPRequest(
			c.Method(),
			c.Path(),
			c.IP(),
			c.Get("User-Agent"),
			requestID,
			c.Response().StatusCode(),
			time.Since(start),
		)

		return err
	}
}

// SecureHeaders adds standard hardening headers to every response.
func (sm *SecurityMiddleware) SecureHeaders() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:; font-src 'self'; connect-src 'self'; frame-ancestors 'none'")
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-XSS-Protection", "1; mode=block")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")

		return c.Next()
	}
}

// InputValidation screens request bodies for obvious injection payloads
// before they reach the handlers. Values are additionally validated and
// sanitized field-by-field in the service layer.
func (sm *SecurityMiddleware) InputValidation() fiber.Handler {
	return func(c *fiber.Ctx) error {
		body := string(c.Body())

		if pattern, found := detectSQLInjection(body); found {
			sm.logger.SecurityEvent(security.EventSuspiciousInput, nil, "", c.IP(), c.Get("User-Agent"),
				map[string]any{
					"path":    c.Path(),
					"method":  c.Method(),
					"kind":    "sql_injection",
					"pattern": pattern,
				})

			return c.Status(fiber.StatusBadRequest).SendString("Invalid input detected")
		}

		if pattern, found := detectXSSAttempt(body); found {
			sm.logger.SecurityEvent(security.EventSuspiciousInput, nil, "", c.IP(), c.Get("User-Agent"),
				map[string]any{
					"path":    c.Path(),
					"method":  c.Method(),
					"kind":    "xss",
					"pattern": pattern,
				})

			return c.Status(fiber.StatusBadRequest).SendString("Invalid input detected")
		}

		return c.Next()
	}
}

// detectSQLInjection checks for common SQL injection patterns, returning
// the matched pattern.
func detectSQLInjection(input string) (string, bool) {
	input = strings.ToLower(input)
	patterns := []string{
		"' or '1'='1",
		"' or 1=1",
		"'; drop table",
		"'; delete from",
		"union select",
	}

	for _, pattern := range patterns {
		if strings.Contains(input, pattern) {
			return pattern, true
		}
	}

	return "", false
}

// detectXSSAttempt checks for common XSS payload patterns, returning the
// matched pattern.
func detectXSSAttempt(input string) (string, bool) {
	input = strings.ToLower(input)
	patterns := []string{
		"<script",
		"javascript:",
		"onerror=",
		"onload=",
		"onclick=",
		"<iframe",
	}

	for _, pattern := range patterns {
		if strings.Contains(input, pattern) {
			return pattern, true
		}
	}

	return "", false
}

// generateCSRFToken returns a cryptographically random URL-safe token.
func generateCSRFToken() string {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return base64.URLEncoding.EncodeToString([]byte(fmt.Sprintf("%d", time.Now().UnixNano())))
	}
	return base64.URLEncoding.EncodeToString(bytes)
}
