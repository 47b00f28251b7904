package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/VellumResearchLab/vellum/internal/auth"
	"github.com/VellumResearchLab/vellum/internal/bootstrap"
	"github.com/VellumResearchLab/vellum/internal/config"
	"github.com/VellumResearchLab/vellum/internal/database"
	"github.com/VellumResearchLab/vellum/internal/logging"
	"github.com/VellumResearchLab/vellum/internal/notebooks"
	"github.com/VellumResearchLab/vellum/internal/server"
	"github.com/VellumResearchLab/vellum/internal/users"
)

const version = "0.1.0"

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "vellum-api",
		Short: "Vellum notes backend service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newMigrateCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("token-ttl", defaults.GetString("token.ttl"), "Bearer token lifetime (Go duration)")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Token signing secret (overrides env)")
	cmd.PersistentFlags().Bool("auth-disabled", defaults.GetBool("auth.disabled"), "Run in single-user mode without authentication")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "token.ttl", "token-ttl")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "auth.disabled", "auth-disabled")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
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
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	migrator, err := database.NewMigrator(db, logger)
	if err != nil {
		return err
	}

	userService, err := users.NewService(users.ServiceConfig{
		Database: db,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	// Schema and admin account must exist before any request is served.
	sequencer, err := bootstrap.NewSequencer(bootstrap.SequencerConfig{
		Migrator:      migrator,
		Users:         userService,
		AdminEmail:    appConfig.AdminEmail,
		AdminPassword: appConfig.AdminPassword,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	if err := sequencer.Run(ctx); err != nil {
		return err
	}

	notebookService, err := notebooks.NewService(notebooks.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: notebooks.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	var tokenService *auth.TokenService
	if !appConfig.AuthDisabled {
		tokenService, err = auth.NewTokenService(auth.TokenServiceConfig{
			SigningSecret: []byte(appConfig.SigningSecret),
			Issuer:        appConfig.TokenIssuer,
			TokenTTL:      appConfig.TokenTTL,
		})
		if err != nil {
			return err
		}
	}

	deps := server.Dependencies{
		Users:        userService,
		Notebooks:    notebookService,
		Realtime:     server.NewRealtimeDispatcher(),
		Logger:       logger,
		AuthDisabled: appConfig.AuthDisabled,
		Version:      version,
	}
	if tokenService != nil {
		deps.Tokens = tokenService
	}

	handler, err := server.NewHTTPHandler(deps)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
