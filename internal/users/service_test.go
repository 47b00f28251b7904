package users

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&User{}); err != nil {
		t.Fatalf("failed to migrate user schema: %v", err)
	}
	service, err := NewService(ServiceConfig{
		Database: db,
		Clock: func() time.Time {
			return time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
		},
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service
}

func TestSignupCreatesUserWithDefaultRole(t *testing.T) {
	service := newTestService(t)

	user, err := service.Signup(context.Background(), SignupParams{
		Name:     "Ann",
		Email:    "Ann@X.com",
		Password: "password123",
	})
	if err != nil {
		t.Fatalf("signup failed: %v", err)
	}
	if user.ID == "" {
		t.Fatalf("expected generated user id")
	}
	if user.Email != "ann@x.com" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}
	if user.Role != RoleUser {
		t.Fatalf("expected default role user, got %q", user.Role)
	}
	if user.PasswordHash == "password123" || user.PasswordHash == "" {
		t.Fatalf("expected hashed password, got %q", user.PasswordHash)
	}
}

func TestSignupRejectsDuplicateEmailCaseInsensitively(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	if _, err := service.Signup(ctx, SignupParams{Name: "Ann", Email: "ann@x.com", Password: "password123"}); err != nil {
		t.Fatalf("first signup failed: %v", err)
	}
	_, err := service.Signup(ctx, SignupParams{Name: "Impostor", Email: "ANN@x.com", Password: "password456"})
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestSignupRejectsShortPasswords(t *testing.T) {
	service := newTestService(t)
	_, err := service.Signup(context.Background(), SignupParams{Name: "Ann", Email: "ann@x.com", Password: "short1"})
	if !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}
}

func TestAuthenticateDoesNotRevealWhichFactorFailed(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	if _, err := service.Signup(ctx, SignupParams{Name: "Ann", Email: "ann@x.com", Password: "password123"}); err != nil {
		t.Fatalf("signup failed: %v", err)
	}

	_, wrongPasswordErr := service.Authenticate(ctx, "ann@x.com", "wrong1234")
	if !errors.Is(wrongPasswordErr, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", wrongPasswordErr)
	}

	_, unknownEmailErr := service.Authenticate(ctx, "nobody@x.com", "password123")
	if !errors.Is(unknownEmailErr, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", unknownEmailErr)
	}
	if wrongPasswordErr.Error() != unknownEmailErr.Error() {
		t.Fatalf("expected identical errors for both factors, got %q vs %q", wrongPasswordErr, unknownEmailErr)
	}
}

func TestAuthenticateReturnsUserOnSuccess(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	created, err := service.Signup(ctx, SignupParams{Name: "Ann", Email: "ann@x.com", Password: "password123"})
	if err != nil {
		t.Fatalf("signup failed: %v", err)
	}

	authenticated, err := service.Authenticate(ctx, "Ann@X.com", "password123")
	if err != nil {
		t.Fatalf("authenticate failed: %v", err)
	}
	if authenticated.ID != created.ID {
		t.Fatalf("expected user %q, got %q", created.ID, authenticated.ID)
	}
}

func TestEnsureAdminIsIdempotent(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	created, err := service.EnsureAdmin(ctx, "admin@localhost", "change-me-immediately", "System Administrator")
	if err != nil {
		t.Fatalf("first ensure failed: %v", err)
	}
	if !created {
		t.Fatalf("expected first call to create the admin")
	}

	created, err = service.EnsureAdmin(ctx, "admin@localhost", "change-me-immediately", "System Administrator")
	if err != nil {
		t.Fatalf("second ensure failed: %v", err)
	}
	if created {
		t.Fatalf("expected second call to be a no-op")
	}

	admin, err := service.FindAdmin(ctx)
	if err != nil {
		t.Fatalf("expected admin lookup to succeed: %v", err)
	}
	if admin.Role != RoleAdmin {
		t.Fatalf("expected admin role, got %q", admin.Role)
	}
	var count int64
	if err := service.db.Model(&User{}).Where("role = ?", RoleAdmin).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one admin, got %d", count)
	}
}

func TestEnsureAdminFailsWhenRegularUserHoldsAdminEmail(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	if _, err := service.Signup(ctx, SignupParams{
		Name:     "Squatter",
		Email:    "admin@localhost",
		Password: "not-the-admin",
	}); err != nil {
		t.Fatalf("signup failed: %v", err)
	}

	created, err := service.EnsureAdmin(ctx, "admin@localhost", "change-me-immediately", "System Administrator")
	if err == nil {
		t.Fatalf("expected ensure to fail when the admin email belongs to a regular user")
	}
	if created {
		t.Fatalf("did not expect an admin to be created")
	}

	var count int64
	if err := service.db.Model(&User{}).Where("role = ?", RoleAdmin).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected zero admins, got %d", count)
	}
}

func TestRenameUpdatesOnlyDisplayName(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	user, err := service.Signup(ctx, SignupParams{Name: "Ann", Email: "ann@x.com", Password: "password123"})
	if err != nil {
		t.Fatalf("signup failed: %v", err)
	}

	renamed, err := service.Rename(ctx, user.ID, "  Ann Example  ")
	if err != nil {
		t.Fatalf("rename failed: %v", err)
	}
	if renamed.Name != "Ann Example" {
		t.Fatalf("expected trimmed name, got %q", renamed.Name)
	}
	if renamed.Role != RoleUser || renamed.Email != user.Email {
		t.Fatalf("expected role and email untouched, got %+v", renamed)
	}

	if _, err := service.Rename(ctx, "missing-id", "Nobody"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestSetRolePromotesUser(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	user, err := service.Signup(ctx, SignupParams{Name: "Ann", Email: "ann@x.com", Password: "password123"})
	if err != nil {
		t.Fatalf("signup failed: %v", err)
	}

	promoted, err := service.SetRole(ctx, user.ID, RoleAdmin)
	if err != nil {
		t.Fatalf("set role failed: %v", err)
	}
	if promoted.Role != RoleAdmin {
		t.Fatalf("expected admin role, got %q", promoted.Role)
	}
}
