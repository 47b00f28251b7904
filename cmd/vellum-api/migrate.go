package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/VellumResearchLab/vellum/internal/config"
	"github.com/VellumResearchLab/vellum/internal/database"
	"github.com/VellumResearchLab/vellum/internal/logging"
)

// newMigrateCommand groups manual schema operations. The server applies
// pending migrations on startup; these subcommands exist for operators who
// need to inspect or roll back outside the serving path.
func newMigrateCommand() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	var targetVersion int64
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), func(ctx context.Context, migrator *database.Migrator) error {
				applied, err := migrator.ApplyForward(ctx, targetVersion)
				if err != nil {
					return err
				}
				if len(applied) == 0 {
					cmd.Println("schema already up to date")
					return nil
				}
				for _, version := range applied {
					cmd.Printf("applied migration %d\n", version)
				}
				return nil
			})
		},
	}
	upCmd.Flags().Int64Var(&targetVersion, "to", 0, "Stop after this version (0 = latest)")

	var steps int
	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Revert applied migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), func(ctx context.Context, migrator *database.Migrator) error {
				reverted, err := migrator.ApplyBackward(ctx, steps)
				if err != nil {
					return err
				}
				for _, version := range reverted {
					cmd.Printf("reverted migration %d\n", version)
				}
				return nil
			})
		},
	}
	downCmd.Flags().IntVar(&steps, "steps", 1, "Number of migrations to revert")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print current and latest schema versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), func(ctx context.Context, migrator *database.Migrator) error {
				current, err := migrator.CurrentVersion(ctx)
				if err != nil {
					return err
				}
				cmd.Printf("current: %d\nlatest:  %d\n", current, migrator.LatestVersion())
				return nil
			})
		},
	}

	migrateCmd.AddCommand(upCmd, downCmd, versionCmd)
	return migrateCmd
}

func withMigrator(ctx context.Context, fn func(context.Context, *database.Migrator) error) error {
	appConfig, err := config.LoadSchemaOnly(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	defer closeDatabase(db, logger)

	migrator, err := database.NewMigrator(db, logger)
	if err != nil {
		return err
	}
	return fn(ctx, migrator)
}

func closeDatabase(db *gorm.DB, logger *zap.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		logger.Warn("database handle unavailable on close", zap.Error(err))
		return
	}
	if err := sqlDB.Close(); err != nil {
		logger.Warn("database close failed", zap.Error(err))
	}
}
