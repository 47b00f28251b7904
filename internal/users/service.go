package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/VellumResearchLab/vellum/internal/password"
)

const minPasswordLength = 8

var (
	errMissingDatabase = errors.New("users: database handle is required")

	// ErrDuplicateEmail indicates an account already exists for the email.
	ErrDuplicateEmail = errors.New("users: email already registered")
	// ErrInvalidCredentials covers both unknown email and wrong password so
	// responses never reveal which factor failed.
	ErrInvalidCredentials = errors.New("users: invalid credentials")
	// ErrPasswordTooShort indicates the signup password missed the minimum
	// length policy.
	ErrPasswordTooShort = fmt.Errorf("users: password must be at least %d characters", minPasswordLength)
	// ErrUserNotFound indicates no user record matches the identifier.
	ErrUserNotFound = errors.New("users: user not found")
)

// ServiceConfig describes the dependencies of the credential store.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service manages persisted user records and credential checks.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the credential store service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, clock: clock, logger: logger}, nil
}

// SignupParams carries validated signup input. Email format validation is
// the transport layer's responsibility; length policy is enforced here.
type SignupParams struct {
	Name     string
	Email    string
	Password string
}

// Signup creates a new user with the default role. The owner-facing role is
// never taken from the caller.
func (s *Service) Signup(ctx context.Context, params SignupParams) (User, error) {
	if len(params.Password) < minPasswordLength {
		return User{}, ErrPasswordTooShort
	}

	email := NormalizeEmail(params.Email)
	if email == "" {
		return User{}, ErrInvalidCredentials
	}

	var existing User
	err := s.db.WithContext(ctx).Where("email = ?", email).Take(&existing).Error
	if err == nil {
		return User{}, ErrDuplicateEmail
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, err
	}

	digest, err := password.Hash(params.Password)
	if err != nil {
		return User{}, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return User{}, err
	}

	now := s.clock().UTC()
	user := User{
		ID:           id.String(),
		Email:        email,
		PasswordHash: digest,
		Name:         strings.TrimSpace(params.Name),
		Role:         RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		// The unique index is the final safety net against a concurrent
		// signup racing the existence check above.
		if isUniqueViolation(err) {
			return User{}, ErrDuplicateEmail
		}
		return User{}, err
	}

	s.logger.Info("user created", zap.String("user_id", user.ID))
	return user, nil
}

// Authenticate verifies the email and password pair and returns the matching
// user. Unknown emails and wrong passwords are indistinguishable to callers.
func (s *Service) Authenticate(ctx context.Context, email, plaintext string) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("email = ?", NormalizeEmail(email)).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}

	ok, err := password.Verify(plaintext, user.PasswordHash)
	if err != nil {
		s.logger.Error("stored password digest unreadable", zap.String("user_id", user.ID), zap.Error(err))
		return User{}, ErrInvalidCredentials
	}
	if !ok {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

// GetByID loads a single user record.
func (s *Service) GetByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// Rename updates the display name of the user. Name is the only attribute a
// user may change on their own record.
func (s *Service) Rename(ctx context.Context, userID, name string) (User, error) {
	trimmed := strings.TrimSpace(name)
	result := s.db.WithContext(ctx).Model(&User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{"name": trimmed, "updated_at": s.clock().UTC()})
	if result.Error != nil {
		return User{}, result.Error
	}
	if result.RowsAffected == 0 {
		return User{}, ErrUserNotFound
	}
	return s.GetByID(ctx, userID)
}

// SetRole changes a user's role. Callers must have checked that the acting
// identity is an admin; that rule lives in the transport layer.
func (s *Service) SetRole(ctx context.Context, userID string, role Role) (User, error) {
	result := s.db.WithContext(ctx).Model(&User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{"role": role, "updated_at": s.clock().UTC()})
	if result.Error != nil {
		return User{}, result.Error
	}
	if result.RowsAffected == 0 {
		return User{}, ErrUserNotFound
	}
	s.logger.Info("user role changed", zap.String("user_id", userID), zap.String("role", string(role)))
	return s.GetByID(ctx, userID)
}

// EnsureAdmin guarantees at least one admin identity exists, creating one
// with the supplied credentials when absent. Safe to call on every startup.
func (s *Service) EnsureAdmin(ctx context.Context, email, plaintext, name string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&User{}).Where("role = ?", RoleAdmin).Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	digest, err := password.Hash(plaintext)
	if err != nil {
		return false, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return false, err
	}

	now := s.clock().UTC()
	admin := User{
		ID:           id.String(),
		Email:        NormalizeEmail(email),
		PasswordHash: digest,
		Name:         name,
		Role:         RoleAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.db.WithContext(ctx).Create(&admin).Error; err != nil {
		if isUniqueViolation(err) {
			// The email is taken. That is fine when another instance won
			// the bootstrap race, but a regular user holding the admin
			// email would leave the deployment without any admin at all.
			if err := s.db.WithContext(ctx).Model(&User{}).Where("role = ?", RoleAdmin).Count(&count).Error; err != nil {
				return false, err
			}
			if count == 0 {
				return false, fmt.Errorf("admin email %q is held by a non-admin account", NormalizeEmail(email))
			}
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// FindAdmin returns the first admin identity, used by the single-user
// deployment mode to resolve unauthenticated requests.
func (s *Service) FindAdmin(ctx context.Context) (User, error) {
	var admin User
	err := s.db.WithContext(ctx).Where("role = ?", RoleAdmin).Order("created_at").Take(&admin).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	return admin, nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint") || strings.Contains(message, "constraint failed")
}
