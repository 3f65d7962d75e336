// Package security provides centralized security configuration and utilities
// for QualiTrack: structured logging, rate limiting, input validation and
// account lockout.
package security

import (
	"time"
)

// Config holds all security-related configuration values.
// Defaults are tuned against OWASP ASVS and NIST guidelines.
type Config struct {
	// Password storage
	BcryptCost int // Cost factor for bcrypt hashing (recommended: 12)

	// Session management
	SessionTimeout    time.Duration // Session inactivity timeout
	SessionCookieName string        // Name of session cookie
	SessionSecure     bool          // Require HTTPS for session cookies
	SessionHTTPOnly   bool          // Prevent JavaScript access to session cookies
	SessionSameSite   string        // CSRF protection via SameSite attribute

	// Brute force protection
	LoginRateLimit          int           // Max login attempts per minute per IP
	AccountLockoutThreshold int           // Failed attempts before account lockout
	AccountLockoutDuration  time.Duration // How long an account stays locked

	// Input validation limits
	MaxNameLength         int           // Template/specification/product names
	MaxLotNumberLength    int           // Internal and supplier lot numbers
	MaxObservationsLength int           // Record observations and control notes
	MaxMeasurementLength  int           // A single submitted measurement value
	MaxImportRows         int           // Bulk specification import rows
	QueryTimeout          time.Duration // Per-request database budget

	// Rate limiting (requests per time window)
	RateLimitRegister int // Record registration endpoint, per hour
	RateLimitSubmit   int // Control submission endpoint, per minute
	RateLimitResolve  int // Approve/reject endpoints, per minute
	RateLimitImport   int // Bulk specification import, per hour

	// Security monitoring
	AlertThresholdFailures int // Failed logins before alerting
	AlertThresholdDenied   int // Permission denials before alerting
}

// DefaultConfig returns security configuration with recommended defaults.
func DefaultConfig() *Config {
	return &Config{
		BcryptCost: 12,

		SessionTimeout:    8 * time.Hour,
		SessionCookieName: "qualitrack_session",
		SessionSecure:     true,
		SessionHTTPOnly:   true,
		SessionSameSite:   "Strict",

		LoginRateLimit:          5,
		AccountLockoutThreshold: 10,
		AccountLockoutDuration:  30 * time.Minute,

		MaxNameLength:         200,
		MaxLotNumberLength:    50,
		MaxObservationsLength: 4000,
		MaxMeasurementLength:  200,
		MaxImportRows:         5000,
		QueryTimeout:          30 * time.Second,

		RateLimitRegister: 60, // per hour
		RateLimitSubmit:   30, // per minute
		RateLimitResolve:  30, // per minute
		RateLimitImport:   5,  // per hour

		AlertThresholdFailures: 5,
		AlertThresholdDenied:   10,
	}
}
