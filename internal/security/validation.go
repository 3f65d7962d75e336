// Package security provides input validation functionality.
// All validation methods return typed validation errors naming the offending
// field, safe to show to users; structural/business validation lives in the
// service layer on top.
package security

import (
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hyg1997/qualitrack/internal/apperrors"
)

var (
	lotNumberPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9\-_/\.]*$`)
	roleNamePattern  = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
	permNamePattern  = regexp.MustCompile(`^[a-z][a-z0-9_]*:[a-z][a-z0-9_]*$`)
	controlChars     = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)
)

// ValidationService provides centralized input validation functions.
type ValidationService struct {
	config *Config
}

// NewValidationService creates a validation service with security configuration.
func NewValidationService(config *Config) *ValidationService {
	return &ValidationService{config: config}
}

// ValidateEmail validates email address format according to RFC 5322.
func (v *ValidationService) ValidateEmail(email string) error {
	if email == "" {
		return apperrors.Validation("email", "email is required")
	}

	if len(email) > 255 {
		return apperrors.Validation("email", "email must be less than 255 characters")
	}

	if _, err := mail.ParseAddress(email); err != nil {
		return apperrors.Validation("email", "invalid email format")
	}

	return nil
}

// ValidatePassword validates password meets minimum security requirements:
// at least 8 characters with uppercase, lowercase and a number.
func (v *ValidationService) ValidatePassword(password string) error {
	if password == "" {
		return apperrors.Validation("password", "password is required")
	}

	if len(password) < 8 {
		return apperrors.Validation("password", "password must be at least 8 characters")
	}

	if len(password) > 128 {
		return apperrors.Validation("password", "password must be less than 128 characters")
	}

	hasUpper := regexp.MustCompile(`[A-Z]`).MatchString(password)
	hasLower := regexp.MustCompile(`[a-z]`).MatchString(password)
	hasNumber := regexp.MustCompile(`[0-9]`).MatchString(password)

	if !hasUpper {
		return apperrors.Validation("password", "password must contain at least one uppercase letter")
	}

	if !hasLower {
		return apperrors.Validation("password", "password must contain at least one lowercase letter")
	}

	if !hasNumber {
		return apperrors.Validation("password", "password must contain at least one number")
	}

	return nil
}

// ValidateLotNumber validates an internal or supplier lot number: length
// bounded, leading alphanumeric, then alphanumerics plus -_/. separators.
func (v *ValidationService) ValidateLotNumber(fieldName, lot string) error {
	lot = strings.TrimSpace(lot)
	if lot == "" {
		return apperrors.Validation(fieldName, "lot number is required")
	}

	if utf8.RuneCountInString(lot) > v.config.MaxLotNumberLength {
		return apperrors.Validation(fieldName, "lot number must be %d characters or less", v.config.MaxLotNumberLength)
	}

	if !lotNumberPattern.MatchString(lot) {
		return apperrors.Validation(fieldName, "lot number may only contain letters, numbers, hyphens, underscores, slashes and dots")
	}

	return nil
}

// ValidateName validates a template, specification or product name.
func (v *ValidationService) ValidateName(fieldName, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return apperrors.Validation(fieldName, "%s is required", fieldName)
	}

	if utf8.RuneCountInString(name) > v.config.MaxNameLength {
		return apperrors.Validation(fieldName, "%s must be %d characters or less", fieldName, v.config.MaxNameLength)
	}

	return nil
}

// ValidateObservations validates free-text observation length.
func (v *ValidationService) ValidateObservations(fieldName, text string) error {
	if len(text) > v.config.MaxObservationsLength {
		return apperrors.Validation(fieldName, "%s must be %d characters or less", fieldName, v.config.MaxObservationsLength)
	}
	return nil
}

// ValidateMeasurement validates a single submitted measurement value length.
// Empty values are allowed: a parameter without a reading is not an error.
func (v *ValidationService) ValidateMeasurement(value string) error {
	if len(value) > v.config.MaxMeasurementLength {
		return apperrors.Validation("value", "measurement must be %d characters or less", v.config.MaxMeasurementLength)
	}
	return nil
}

// ValidateDate validates an ISO 8601 date string (YYYY-MM-DD).
func (v *ValidationService) ValidateDate(fieldName, dateStr string) error {
	if dateStr == "" {
		return apperrors.Validation(fieldName, "date is required")
	}

	if _, err := time.Parse("2006-01-02", dateStr); err != nil {
		return apperrors.Validation(fieldName, "invalid date format (expected: YYYY-MM-DD)")
	}

	return nil
}

// ValidateRoleName validates a role machine name (snake_case).
func (v *ValidationService) ValidateRoleName(name string) error {
	if name == "" {
		return apperrors.Validation("name", "role name is required")
	}

	if utf8.RuneCountInString(name) > 100 {
		return apperrors.Validation("name", "role name must be 100 characters or less")
	}

	if !roleNamePattern.MatchString(name) {
		return apperrors.Validation("name", "role name must be lowercase letters, numbers and underscores, starting with a letter")
	}

	return nil
}

// ValidateRoleLevel validates a role authority level (0-100).
func (v *ValidationService) ValidateRoleLevel(level int) error {
	if level < 0 || level > 100 {
		return apperrors.Validation("level", "role level must be between 0 and 100")
	}
	return nil
}

// ValidatePermissionName validates the "resource:action" permission format.
func (v *ValidationService) ValidatePermissionName(name string) error {
	if name == "" {
		return apperrors.Validation("name", "permission name is required")
	}

	if !permNamePattern.MatchString(name) {
		return apperrors.Validation("name", "permission name must be formatted \"resource:action\"")
	}

	return nil
}

// ValidateImportRowCount validates a bulk specification import row count.
func (v *ValidationService) ValidateImportRowCount(rowCount int) error {
	if rowCount == 0 {
		return apperrors.Validation("rows", "import file is empty")
	}

	if rowCount > v.config.MaxImportRows {
		return apperrors.Validation("rows", "import file exceeds maximum of %d rows", v.config.MaxImportRows)
	}

	return nil
}

// SanitizeString removes control characters and trims surrounding whitespace.
func (v *ValidationService) SanitizeString(input string) string {
	input = controlChars.ReplaceAllString(input, "")
	return strings.TrimSpace(input)
}

// ValidateRequired checks that a required field is present and non-blank.
func (v *ValidationService) ValidateRequired(fieldName, value string) error {
	if strings.TrimSpace(value) == "" {
		return apperrors.Validation(fieldName, "%s is required", fieldName)
	}
	return nil
}
