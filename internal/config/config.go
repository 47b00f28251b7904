package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix            = "VELLUM"
	defaultHTTPAddress   = "0.0.0.0:8080"
	defaultDatabasePath  = "vellum.db"
	defaultLogLevel      = "info"
	defaultTokenTTL      = 7 * 24 * time.Hour
	defaultTokenIssuer   = "vellum-api"
	defaultAdminEmail    = "admin@localhost"
	defaultAdminPassword = "change-me-immediately"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress   string
	DatabasePath  string
	LogLevel      string
	SigningSecret string
	TokenIssuer   string
	TokenTTL      time.Duration
	AuthDisabled  bool
	AdminEmail    string
	AdminPassword string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("token.ttl", defaultTokenTTL.String())
	configViper.SetDefault("token.issuer", defaultTokenIssuer)
	configViper.SetDefault("auth.disabled", false)
	configViper.SetDefault("admin.email", defaultAdminEmail)
	configViper.SetDefault("admin.password", defaultAdminPassword)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := fromViper(configViper)
	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// LoadSchemaOnly parses the subset of configuration the schema commands
// need. Token settings are not validated: nothing on the migration path
// issues or checks tokens.
func LoadSchemaOnly(configViper *viper.Viper) (AppConfig, error) {
	cfg := fromViper(configViper)
	if strings.TrimSpace(cfg.DatabasePath) == "" {
		return AppConfig{}, fmt.Errorf("database.path is required")
	}
	return cfg, nil
}

func fromViper(configViper *viper.Viper) AppConfig {
	return AppConfig{
		HTTPAddress:   configViper.GetString("http.address"),
		DatabasePath:  configViper.GetString("database.path"),
		LogLevel:      configViper.GetString("log.level"),
		SigningSecret: configViper.GetString("auth.signing_secret"),
		TokenIssuer:   configViper.GetString("token.issuer"),
		TokenTTL:      configViper.GetDuration("token.ttl"),
		AuthDisabled:  configViper.GetBool("auth.disabled"),
		AdminEmail:    configViper.GetString("admin.email"),
		AdminPassword: configViper.GetString("admin.password"),
	}
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if !c.AuthDisabled && strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required unless auth.disabled is set")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("token.ttl must be positive")
	}
	return nil
}
