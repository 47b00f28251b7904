package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/VellumResearchLab/vellum/internal/database/migrations"
)

// ErrIrreversibleMigration indicates a revert reached a change-set with no
// backward counterpart. State is left at the last successfully reverted
// version.
var ErrIrreversibleMigration = errors.New("database: migration has no backward change-set")

// MigrationError reports which version a migration operation failed at.
type MigrationError struct {
	Version int64
	Cause   error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("database: migration version %d: %v", e.Version, e.Cause)
}

func (e *MigrationError) Unwrap() error {
	return e.Cause
}

// migrationInfo mirrors one embedded change-set. The manifest is the
// engine's authority on ordering and reversibility; it is checked against
// the embedded files at construction so the two can never drift apart.
type migrationInfo struct {
	version    int64
	title      string
	reversible bool
}

var manifest = []migrationInfo{
	{version: 1, title: "create_users", reversible: true},
	{version: 2, title: "create_notebooks", reversible: true},
	{version: 3, title: "create_notes", reversible: true},
	{version: 4, title: "add_owner_indexes", reversible: true},
	// Email backfill rewrites data in place; the original casing is gone.
	{version: 5, title: "normalize_user_emails", reversible: false},
}

var gooseSetup sync.Once

// Migrator applies and reverts the embedded schema change-sets in version
// order and tracks the current version in the backing store.
type Migrator struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMigrator wires the migration engine to the store behind the gorm
// handle. The embedded change-sets are validated against the manifest:
// missing files, extra files or version gaps fail construction.
func NewMigrator(db *gorm.DB, logger *zap.Logger) (*Migrator, error) {
	if db == nil {
		return nil, fmt.Errorf("database: gorm handle is required")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := validateManifest(); err != nil {
		return nil, err
	}

	var setupErr error
	gooseSetup.Do(func() {
		goose.SetBaseFS(migrations.Files)
		goose.SetLogger(goose.NopLogger())
		setupErr = goose.SetDialect("sqlite3")
	})
	if setupErr != nil {
		return nil, setupErr
	}

	return &Migrator{db: sqlDB, logger: logger}, nil
}

// CurrentVersion reads the persisted schema version; zero means no
// migration has been applied yet.
func (m *Migrator) CurrentVersion(ctx context.Context) (int64, error) {
	return goose.GetDBVersionContext(ctx, m.db)
}

// LatestVersion reports the highest version the binary ships.
func (m *Migrator) LatestVersion() int64 {
	return manifest[len(manifest)-1].version
}

// ApplyForward applies pending change-sets in ascending order up to target;
// a target of zero means latest. Returns the versions applied during this
// call. Calling with nothing pending is a no-op, so startup can always run
// it. On failure the persisted version stays at the last success and the
// same migration is retried on the next start.
func (m *Migrator) ApplyForward(ctx context.Context, target int64) ([]int64, error) {
	before, err := m.CurrentVersion(ctx)
	if err != nil {
		return nil, err
	}

	if target == 0 {
		err = goose.UpContext(ctx, m.db, ".")
	} else {
		err = goose.UpToContext(ctx, m.db, ".", target)
	}
	if err != nil {
		after, versionErr := m.CurrentVersion(ctx)
		if versionErr != nil {
			after = before
		}
		return versionsBetween(before, after), &MigrationError{Version: after + 1, Cause: err}
	}

	after, err := m.CurrentVersion(ctx)
	if err != nil {
		return nil, err
	}

	applied := versionsBetween(before, after)
	for _, version := range applied {
		m.logger.Info("migration applied", zap.Int64("version", version), zap.String("title", titleFor(version)))
	}
	return applied, nil
}

// ApplyBackward reverts the given number of change-sets in descending
// order. A change-set without a backward counterpart stops the revert with
// ErrIrreversibleMigration, leaving state at the last successful step.
func (m *Migrator) ApplyBackward(ctx context.Context, steps int) ([]int64, error) {
	if steps <= 0 {
		steps = 1
	}

	reverted := make([]int64, 0, steps)
	for i := 0; i < steps; i++ {
		current, err := m.CurrentVersion(ctx)
		if err != nil {
			return reverted, err
		}
		if current == 0 {
			break
		}

		info, found := manifestEntry(current)
		if !found {
			return reverted, &MigrationError{Version: current, Cause: fmt.Errorf("version not in manifest")}
		}
		if !info.reversible {
			return reverted, &MigrationError{Version: current, Cause: ErrIrreversibleMigration}
		}

		if err := goose.DownContext(ctx, m.db, "."); err != nil {
			return reverted, &MigrationError{Version: current, Cause: err}
		}
		reverted = append(reverted, current)
		m.logger.Info("migration reverted", zap.Int64("version", current), zap.String("title", info.title))
	}
	return reverted, nil
}

func manifestEntry(version int64) (migrationInfo, bool) {
	for _, info := range manifest {
		if info.version == version {
			return info, true
		}
	}
	return migrationInfo{}, false
}

func titleFor(version int64) string {
	info, _ := manifestEntry(version)
	return info.title
}

func versionsBetween(from, to int64) []int64 {
	versions := make([]int64, 0)
	for _, info := range manifest {
		if info.version > from && info.version <= to {
			versions = append(versions, info.version)
		}
	}
	return versions
}

// validateManifest cross-checks the in-code manifest against the embedded
// SQL files: same versions, same titles, strictly increasing with no gaps.
func validateManifest() error {
	entries, err := fs.Glob(migrations.Files, "*.sql")
	if err != nil {
		return err
	}
	sort.Strings(entries)

	if len(entries) != len(manifest) {
		return fmt.Errorf("database: manifest lists %d migrations, found %d files", len(manifest), len(entries))
	}

	for index, name := range entries {
		base := strings.TrimSuffix(name, ".sql")
		prefix, title, found := strings.Cut(base, "_")
		if !found {
			return fmt.Errorf("database: migration file %q is not NNNNN_title.sql", name)
		}
		version, err := strconv.ParseInt(prefix, 10, 64)
		if err != nil {
			return fmt.Errorf("database: migration file %q has a non-numeric version", name)
		}
		info := manifest[index]
		if version != info.version || title != info.title {
			return fmt.Errorf("database: file %q does not match manifest entry %d (%s)", name, info.version, info.title)
		}
		if version != int64(index)+1 {
			return fmt.Errorf("database: migration versions must be contiguous, got %d at position %d", version, index)
		}
	}
	return nil
}
