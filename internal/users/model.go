package users

import (
	"strings"
	"time"
)

// Role enumerates the access levels a user can hold.
type Role string

const (
	// RoleUser is the default role assigned at signup.
	RoleUser Role = "user"
	// RoleAdmin grants full visibility over every owned resource.
	RoleAdmin Role = "admin"
)

// ParseRole maps raw input onto a known role, defaulting unknown values to
// RoleUser so a corrupted record can never silently grant admin access.
func ParseRole(raw string) Role {
	if strings.EqualFold(strings.TrimSpace(raw), string(RoleAdmin)) {
		return RoleAdmin
	}
	return RoleUser
}

// User is the persisted identity record. The password hash embeds its own
// salt and parameters; the role is never taken from client input after
// signup.
type User struct {
	ID           string    `gorm:"column:id;primaryKey;size:190;not null"`
	Email        string    `gorm:"column:email;size:320;not null;uniqueIndex"`
	PasswordHash string    `gorm:"column:password_hash;size:512;not null"`
	Name         string    `gorm:"column:name;size:320;not null"`
	Role         Role      `gorm:"column:role;size:32;not null;default:user"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (User) TableName() string {
	return "users"
}

// NormalizeEmail canonicalizes an email address for storage and lookup.
// Uniqueness is case-insensitive, so everything is stored lower case.
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
