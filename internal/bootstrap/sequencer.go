package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/VellumResearchLab/vellum/internal/database"
	"github.com/VellumResearchLab/vellum/internal/users"
)

// Default administrative credential created on first start. Deployments are
// expected to rotate the password immediately after the first login.
const (
	DefaultAdminEmail    = "admin@localhost"
	DefaultAdminPassword = "change-me-immediately"
	defaultAdminName     = "System Administrator"
)

var (
	errMissingMigrator = errors.New("bootstrap: migrator is required")
	errMissingUsers    = errors.New("bootstrap: users service is required")
)

// SequencerConfig describes the startup dependencies.
type SequencerConfig struct {
	Migrator      *database.Migrator
	Users         *users.Service
	AdminEmail    string
	AdminPassword string
	Logger        *zap.Logger
}

// Sequencer brings the backing store to the latest schema version and
// guarantees an administrative identity exists, in that order, before the
// service accepts any traffic. Run is idempotent across restarts.
type Sequencer struct {
	migrator      *database.Migrator
	users         *users.Service
	adminEmail    string
	adminPassword string
	logger        *zap.Logger
}

// NewSequencer constructs the startup sequencer with defaulted credentials.
func NewSequencer(cfg SequencerConfig) (*Sequencer, error) {
	if cfg.Migrator == nil {
		return nil, errMissingMigrator
	}
	if cfg.Users == nil {
		return nil, errMissingUsers
	}
	email := cfg.AdminEmail
	if email == "" {
		email = DefaultAdminEmail
	}
	adminPassword := cfg.AdminPassword
	if adminPassword == "" {
		adminPassword = DefaultAdminPassword
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sequencer{
		migrator:      cfg.Migrator,
		users:         cfg.Users,
		adminEmail:    email,
		adminPassword: adminPassword,
		logger:        logger,
	}, nil
}

// Run executes the startup sequence. A migration failure is fatal: the
// service must not run against an unknown schema version.
func (s *Sequencer) Run(ctx context.Context) error {
	applied, err := s.migrator.ApplyForward(ctx, 0)
	if err != nil {
		return fmt.Errorf("bootstrap: migrations failed: %w", err)
	}
	version, err := s.migrator.CurrentVersion(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap: reading schema version: %w", err)
	}
	if len(applied) > 0 {
		s.logger.Info("schema migrated", zap.Int64s("applied", applied), zap.Int64("version", version))
	} else {
		s.logger.Info("schema already current", zap.Int64("version", version))
	}

	created, err := s.users.EnsureAdmin(ctx, s.adminEmail, s.adminPassword, defaultAdminName)
	if err != nil {
		return fmt.Errorf("bootstrap: ensuring admin identity: %w", err)
	}
	if created {
		s.logger.Warn("default admin identity created; rotate its password after first login",
			zap.String("email", s.adminEmail))
	}
	return nil
}
