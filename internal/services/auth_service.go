// Package services provides the business logic layer for the QualiTrack
// application. This file implements authentication: credential verification
// and password hashing using bcrypt.
package services

import (
	"context"

	"github.com/hyg1997/qualitrack/internal/apperrors"
	"github.com/hyg1997/qualitrack/internal/models"
	"github.com/hyg1997/qualitrack/internal/repository"
	"github.com/hyg1997/qualitrack/internal/security"
	"golang.org/x/crypto/bcrypt"
)

// AuthService handles authentication and password management operations.
//
// Security Notes:
//   - bcrypt cost comes from the security configuration (cost 12 by default)
//   - Constant-time password comparison prevents timing attacks
//   - The same generic error covers unknown email, disabled account and
//     wrong password, so login never reveals which users exist
type AuthService struct {
	userRepo *repository.UserRepository // Repository for user database operations
	cfg      *security.Config           // Security configuration (bcrypt cost)
}

// NewAuthService creates and returns a new AuthService instance.
func NewAuthService(cfg *security.Config) *AuthService {
	return &AuthService{
		userRepo: repository.NewUserRepository(),
		cfg:      cfg,
	}
}

// Authenticate verifies user credentials and returns the account with roles
// loaded on success, ready for principal construction.
//
// Parameters:
//   - ctx: Context for cancellation and timeout control
//   - email: User's email address
//   - password: Plaintext password provided by the user
//
// Returns:
//   - *models.UserWithRoles: Authenticated account and its granted roles
//   - error: Typed authorization error on any credential failure
//
// Error Cases:
//   - Unknown email, disabled account and wrong password all produce the
//     same "invalid credentials" authorization error
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*models.UserWithRoles, error) {
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindNotFound) {
			return nil, apperrors.Authorization("invalid credentials")
		}
		return nil, err
	}

	if !user.Active {
		return nil, apperrors.Authorization("invalid credentials")
	}

	// bcrypt.CompareHashAndPassword is constant-time
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, apperrors.Authorization("invalid credentials")
	}

	return s.userRepo.GetWithRoles(ctx, user.ID)
}

// HashPassword generates a bcrypt hash of the provided plaintext password.
// Used when creating accounts or changing passwords.
//
// The cost factor comes from configuration; the default of 12 gives 2^12
// iterations, in line with NIST SP 800-63B recommendations.
func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	return string(hash), err
}
