// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Database types
const (
	SQLiteDatabase = "sqlite"
)

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName               string   `mapstructure:"appname"`
	AppPort               string   `mapstructure:"appport"`
	Environment           string   `mapstructure:"environment"`
	LogLevel              LogLevel `mapstructure:"loglevel"`
	PrivateKey            string   `mapstructure:"privatekey"`
	SessionTimeoutSeconds int      `mapstructure:"sessiontimeoutseconds"`
	Domain                string   `mapstructure:"domain"`

	// Visitor classification settings
	ReturningLookbackDays int `mapstructure:"returninglookbackdays"`
	SessionCookieMaxAge   int `mapstructure:"sessioncookiemaxage"`

	// File paths
	DatabasePath          string `mapstructure:"storagepath"`
	DatabaseName          string `mapstructure:"-"` // Derived from other settings
	GeoDBPath             string `mapstructure:"geodbpath"`
	PublicDirectory       string `mapstructure:"publicdir"`
	PublicAssetsUrlPrefix string `mapstructure:"publicassetsurlprefix"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Database settings
	DatabaseType         string `mapstructure:"dbtype"`
	DatabaseMaxOpenConns int    `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int    `mapstructure:"dbmaxidleconns"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		v := viper.New()

		// Set defaults
		v.SetDefault("appname", "findingme")
		v.SetDefault("appport", "3000")
		v.SetDefault("environment", Development)
		v.SetDefault("loglevel", string(LogLevelDebug))
		v.SetDefault("privatekey", "88888888888888888888888888888888")
		v.SetDefault("sessiontimeoutseconds", 1800)
		v.SetDefault("returninglookbackdays", 30)
		v.SetDefault("sessioncookiemaxage", 2592000) // 30 days
		v.SetDefault("storagepath", "storage")
		v.SetDefault("geodbpath", "storage/GeoLite2-City.mmdb")
		v.SetDefault("publicdir", "web")
		v.SetDefault("publicassetsurlprefix", "/assets")
		v.SetDefault("logsdir", "logs")
		v.SetDefault("logsmaxsizeinmb", 20)
		v.SetDefault("logsmaxbackups", 10)
		v.SetDefault("logsmaxageindays", 30)
		v.SetDefault("dbtype", SQLiteDatabase)
		v.SetDefault("dbmaxopenconns", 0)
		v.SetDefault("dbmaxidleconns", 0)

		// Bind environment variables
		v.BindEnv("appname", "FINDINGME_APP_NAME")
		v.BindEnv("appport", "FINDINGME_APP_PORT")
		v.BindEnv("environment", "FINDINGME_ENV")
		v.BindEnv("loglevel", "FINDINGME_LOG_LEVEL")
		v.BindEnv("privatekey", "FINDINGME_PRIVATE_KEY")
		v.BindEnv("sessiontimeoutseconds", "FINDINGME_SESSION_TIMEOUT_SECONDS")
		v.BindEnv("returninglookbackdays", "FINDINGME_RETURNING_LOOKBACK_DAYS")
		v.BindEnv("sessioncookiemaxage", "FINDINGME_SESSION_COOKIE_MAX_AGE")
		v.BindEnv("domain", "FINDINGME_DOMAIN")
		v.BindEnv("storagepath", "FINDINGME_STORAGE_PATH")
		v.BindEnv("geodbpath", "FINDINGME_GEO_DB_PATH")
		v.BindEnv("publicdir", "FINDINGME_PUBLIC_DIR")
		v.BindEnv("publicassetsurlprefix", "FINDINGME_PUBLIC_ASSETS_URL_PREFIX")
		v.BindEnv("logsdir", "FINDINGME_LOGS_DIR")
		v.BindEnv("logsmaxsizeinmb", "FINDINGME_LOGS_MAX_SIZE_IN_MB")
		v.BindEnv("logsmaxbackups", "FINDINGME_LOGS_MAX_BACKUPS")
		v.BindEnv("logsmaxageindays", "FINDINGME_LOGS_MAX_AGE_IN_DAYS")
		v.BindEnv("dbtype", "FINDINGME_DB_TYPE")
		v.BindEnv("dbmaxopenconns", "FINDINGME_DB_MAX_OPEN_CONNS")
		v.BindEnv("dbmaxidleconns", "FINDINGME_DB_MAX_IDLE_CONNS")

		cfg = &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			log.Fatalf("config: failed to unmarshal configuration: %v", err)
		}

		if err := cfg.validate(); err != nil {
			log.Fatalf("config: invalid configuration: %v", err)
		}

		// Set derived values
		cfg.DatabaseName = cfg.GetDatabasePath()

		// Validate private key - in production, must be explicitly set (not empty, not default)
		defaultKey := "88888888888888888888888888888888"
		if cfg.PrivateKey == "" {
			log.Fatal("Private key is required")
		}
		if cfg.IsProduction() && cfg.PrivateKey == defaultKey {
			log.Fatal("Production requires a unique FINDINGME_PRIVATE_KEY (cannot use default)")
		}
	})
	return cfg
}

// validate checks the configuration for errors
func (c *Config) validate() error {
	validEnvs := map[string]bool{
		Development: true,
		Production:  true,
		Test:        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	validDBTypes := map[string]bool{
		SQLiteDatabase: true,
	}
	if !validDBTypes[c.DatabaseType] {
		return fmt.Errorf("invalid database type: %s", c.DatabaseType)
	}

	if c.SessionTimeoutSeconds <= 0 {
		return fmt.Errorf("session timeout must be positive, got %d", c.SessionTimeoutSeconds)
	}

	return nil
}

// GetDatabasePath returns the appropriate database path based on environment
func (c *Config) GetDatabasePath() string {
	if c.DatabaseName == "" {
		c.DatabaseName = filepath.Join(c.DatabasePath,
			fmt.Sprintf("%s-%s.db", c.AppName, c.Environment))
	}
	return c.DatabaseName
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest returns true if the environment is test
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// GetPort returns the HTTP server port (implements cartridge.Config interface).
func (c *Config) GetPort() string {
	return c.AppPort
}

// GetPublicDirectory returns the path to public/static assets (implements cartridge.Config interface).
func (c *Config) GetPublicDirectory() string {
	return c.PublicDirectory
}

// GetAssetsPrefix returns the URL prefix for static assets (implements cartridge.Config interface).
func (c *Config) GetAssetsPrefix() string {
	return c.PublicAssetsUrlPrefix
}

// GetAppName returns the application name (implements cartridge.FactoryConfig interface).
func (c *Config) GetAppName() string {
	return c.AppName
}

// DatabaseDSN returns the database connection string (implements cartridge.FactoryConfig interface).
func (c *Config) DatabaseDSN() string {
	return c.GetDatabasePath()
}

// GetSessionSecret returns the session encryption key (implements cartridge.FactoryConfig interface).
func (c *Config) GetSessionSecret() string {
	return c.PrivateKey
}

// GetSessionTimeout returns the analytics session inactivity window in seconds.
// A session token is reusable only within this window of the session's
// last-seen time; after that a new session is minted.
func (c *Config) GetSessionTimeout() int {
	return c.SessionTimeoutSeconds
}

// GetReturningLookbackDays returns the trailing window, in days, used to
// classify a new session as a returning visitor.
func (c *Config) GetReturningLookbackDays() int {
	return c.ReturningLookbackDays
}

// GetSessionCookieMaxAge returns the max-age in seconds for the session cookie.
func (c *Config) GetSessionCookieMaxAge() int {
	return c.SessionCookieMaxAge
}

// GetMaxOpenConns returns the appropriate MaxOpenConns value based on environment
// If explicitly set via env var, uses that value. Otherwise:
// - Test: 1 (required for test stability)
// - Development/Production: 10 (allows concurrent reads for parallel dashboard queries)
func (c *Config) GetMaxOpenConns() int {
	if c.DatabaseMaxOpenConns > 0 {
		return c.DatabaseMaxOpenConns
	}

	if c.Environment == Test {
		return 1
	}

	return 10
}

// GetMaxIdleConns returns the appropriate MaxIdleConns value based on environment
func (c *Config) GetMaxIdleConns() int {
	if c.DatabaseMaxIdleConns > 0 {
		return c.DatabaseMaxIdleConns
	}

	if c.Environment == Test {
		return 1
	}

	return 5
}

// GetLogLevel returns the log level as a string (implements cartridge.LogConfigProvider).
func (c *Config) GetLogLevel() string {
	return string(c.LogLevel)
}

// GetLogDirectory returns the logs directory (implements cartridge.LogConfigProvider).
func (c *Config) GetLogDirectory() string {
	return c.LogsDirectory
}

// GetLogMaxSizeMB returns the max log file size in MB (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxSizeMB() int {
	return c.LogsMaxSizeInMb
}

// GetLogMaxBackups returns the max number of log backups (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxBackups() int {
	return c.LogsMaxBackups
}

// GetLogMaxAgeDays returns the max age in days for log files (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxAgeDays() int {
	return c.LogsMaxAgeInDays
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}
