// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

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
	AppName     string   `mapstructure:"appname"`
	AppPort     string   `mapstructure:"appport"`
	Environment string   `mapstructure:"environment"`
	LogLevel    LogLevel `mapstructure:"loglevel"`
	PrivateKey  string   `mapstructure:"privatekey"`
	Domain      string   `mapstructure:"domain"`

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

	// Ingestion settings
	IngestBudgetMillis int `mapstructure:"ingestbudgetmillis"`

	// Geolocation provider settings
	GeoProviderTimeoutSeconds int    `mapstructure:"geoprovidertimeoutseconds"`
	IPAPIBaseURL              string `mapstructure:"ipapibaseurl"`
	IPWhoisBaseURL            string `mapstructure:"ipwhoisbaseurl"`

	// Enrichment job settings
	EnrichBatchSize       int `mapstructure:"enrichbatchsize"`
	EnrichSubBatchSize    int `mapstructure:"enrichsubbatchsize"`
	EnrichRatePerSecond   int `mapstructure:"enrichratepersecond"`
	MaxEnrichmentAttempts int `mapstructure:"maxenrichmentattempts"`

	// Job scheduling settings
	JobIntervalSeconds int `mapstructure:"jobintervalseconds"`

	// Data retention settings
	RawDataRetentionDays    int `mapstructure:"rawdataretentiondays"`
	LoginSessionTimeoutSecs int `mapstructure:"loginsessiontimeoutseconds"`
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
		v.SetDefault("appname", "tonelink")
		v.SetDefault("appport", "3000")
		v.SetDefault("environment", Development)
		v.SetDefault("loglevel", string(LogLevelDebug))
		v.SetDefault("privatekey", "88888888888888888888888888888888")
		v.SetDefault("storagepath", "storage")
		v.SetDefault("geodbpath", "storage/GeoLite2-City.mmdb")
		v.SetDefault("publicdir", "web/dist/assets")
		v.SetDefault("publicassetsurlprefix", "/")
		v.SetDefault("logsdir", "logs")
		v.SetDefault("logsmaxsizeinmb", 20)
		v.SetDefault("logsmaxbackups", 10)
		v.SetDefault("logsmaxageindays", 30)
		v.SetDefault("dbtype", SQLiteDatabase)
		v.SetDefault("dbmaxopenconns", 0)
		v.SetDefault("dbmaxidleconns", 0)
		v.SetDefault("ingestbudgetmillis", 300)
		v.SetDefault("geoprovidertimeoutseconds", 3)
		v.SetDefault("ipapibaseurl", "http://ip-api.com/json")
		v.SetDefault("ipwhoisbaseurl", "https://ipwho.is")
		v.SetDefault("enrichbatchsize", 50)
		v.SetDefault("enrichsubbatchsize", 10)
		v.SetDefault("enrichratepersecond", 2)
		v.SetDefault("maxenrichmentattempts", 5)
		v.SetDefault("jobintervalseconds", 60)
		v.SetDefault("rawdataretentiondays", 90)
		v.SetDefault("loginsessiontimeoutseconds", 604800) // 1 week

		// Bind environment variables
		v.BindEnv("appname", "TONELINK_APP_NAME")
		v.BindEnv("appport", "TONELINK_APP_PORT")
		v.BindEnv("environment", "TONELINK_ENV")
		v.BindEnv("loglevel", "TONELINK_LOG_LEVEL")
		v.BindEnv("privatekey", "TONELINK_PRIVATE_KEY")
		v.BindEnv("domain", "TONELINK_DOMAIN")
		v.BindEnv("storagepath", "TONELINK_STORAGE_PATH")
		v.BindEnv("geodbpath", "TONELINK_GEO_DB_PATH")
		v.BindEnv("publicdir", "TONELINK_PUBLIC_DIR")
		v.BindEnv("publicassetsurlprefix", "TONELINK_PUBLIC_ASSETS_URL_PREFIX")
		v.BindEnv("logsdir", "TONELINK_LOGS_DIR")
		v.BindEnv("logsmaxsizeinmb", "TONELINK_LOGS_MAX_SIZE_IN_MB")
		v.BindEnv("logsmaxbackups", "TONELINK_LOGS_MAX_BACKUPS")
		v.BindEnv("logsmaxageindays", "TONELINK_LOGS_MAX_AGE_IN_DAYS")
		v.BindEnv("dbtype", "TONELINK_DB_TYPE")
		v.BindEnv("dbmaxopenconns", "TONELINK_DB_MAX_OPEN_CONNS")
		v.BindEnv("dbmaxidleconns", "TONELINK_DB_MAX_IDLE_CONNS")
		v.BindEnv("ingestbudgetmillis", "TONELINK_INGEST_BUDGET_MILLIS")
		v.BindEnv("geoprovidertimeoutseconds", "TONELINK_GEO_PROVIDER_TIMEOUT_SECONDS")
		v.BindEnv("ipapibaseurl", "TONELINK_IP_API_BASE_URL")
		v.BindEnv("ipwhoisbaseurl", "TONELINK_IP_WHOIS_BASE_URL")
		v.BindEnv("enrichbatchsize", "TONELINK_ENRICH_BATCH_SIZE")
		v.BindEnv("enrichsubbatchsize", "TONELINK_ENRICH_SUB_BATCH_SIZE")
		v.BindEnv("enrichratepersecond", "TONELINK_ENRICH_RATE_PER_SECOND")
		v.BindEnv("maxenrichmentattempts", "TONELINK_MAX_ENRICHMENT_ATTEMPTS")
		v.BindEnv("jobintervalseconds", "TONELINK_JOB_INTERVAL_SECONDS")
		v.BindEnv("rawdataretentiondays", "TONELINK_RAW_DATA_RETENTION_DAYS")
		v.BindEnv("loginsessiontimeoutseconds", "TONELINK_LOGIN_SESSION_TIMEOUT_SECONDS")

		cfg = &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			log.Fatalf("config: failed to unmarshal configuration: %v", err)
		}

		// Validate
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
			log.Fatal("Production requires a unique TONELINK_PRIVATE_KEY (cannot use default)")
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

	if c.IngestBudgetMillis <= 0 {
		return fmt.Errorf("invalid ingest budget: %d", c.IngestBudgetMillis)
	}
	if c.EnrichBatchSize <= 0 || c.EnrichSubBatchSize <= 0 {
		return fmt.Errorf("invalid enrichment batch sizing: batch=%d sub=%d",
			c.EnrichBatchSize, c.EnrichSubBatchSize)
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

// IngestBudget returns the maximum time the ingest path may wait on
// geolocation before responding without it.
func (c *Config) IngestBudget() time.Duration {
	return time.Duration(c.IngestBudgetMillis) * time.Millisecond
}

// GeoProviderTimeout returns the per-provider lookup timeout.
func (c *Config) GeoProviderTimeout() time.Duration {
	return time.Duration(c.GeoProviderTimeoutSeconds) * time.Second
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

// GetSessionTimeout returns the login session timeout in seconds.
func (c *Config) GetSessionTimeout() int {
	return c.LoginSessionTimeoutSecs
}

// GetLoginSessionTimeout returns the login session timeout in seconds.
// Used for admin login cookie duration.
func (c *Config) GetLoginSessionTimeout() int {
	return c.LoginSessionTimeoutSecs
}

// GetMaxOpenConns returns the appropriate MaxOpenConns value based on environment.
// If explicitly set via env var, uses that value. Otherwise:
// - Test: 1 (required for E2E test stability)
// - Development/Production: 10 (allows concurrent reads for parallel analytics queries)
func (c *Config) GetMaxOpenConns() int {
	if c.DatabaseMaxOpenConns > 0 {
		return c.DatabaseMaxOpenConns
	}

	if c.Environment == Test {
		return 1
	}

	return 10
}

// GetMaxIdleConns returns the appropriate MaxIdleConns value based on environment.
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
