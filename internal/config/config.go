package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Supported warehouse drivers
const (
	DriverSnowflake = "snowflake"
	DriverPostgres  = "postgres"
	DriverSQLite    = "sqlite"
)

// DateLayout is the layout of SALES_START_DATE
const DateLayout = "2006-01-02"

// Config holds application configuration
type Config struct {
	Env      string
	LogLevel string

	Warehouse Warehouse
	VaultURL  string

	StartDate    time.Time
	MinYear      int
	AutoCreate   bool
	Schedule     string
	AWSRegion    string
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	SenderEmail  string
	NotifyEmail  string
}

// Warehouse holds data warehouse connection settings
type Warehouse struct {
	Driver    string
	DSN       string // Used by the postgres and sqlite drivers
	Account   string
	User      string
	Password  string // Resolved later when ENV is prod
	Role      string
	Warehouse string
	Database  string
	Schema    string
}

// NewConfig loads configuration from environment variables
func NewConfig() (*Config, error) {
	// A missing .env file is not an error
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "local"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Warehouse: Warehouse{
			Driver:    strings.ToLower(getEnv("WAREHOUSE_DRIVER", DriverSnowflake)),
			DSN:       getEnv("WAREHOUSE_DSN", ""),
			Account:   getEnv("SNOWFLAKE_ACCOUNT", ""),
			User:      getEnv("SNOWFLAKE_USER", ""),
			Password:  getEnv("SNOWFLAKE_PASSWORD", ""),
			Role:      getEnv("SNOWFLAKE_ROLE", ""),
			Warehouse: getEnv("SNOWFLAKE_WAREHOUSE", ""),
			Database:  getEnv("SNOWFLAKE_DATABASE", ""),
			Schema:    getEnv("SNOWFLAKE_SCHEMA", ""),
		},
		VaultURL:     getEnv("VAULT_KEY_URL", ""),
		Schedule:     getEnv("FORECAST_SCHEDULE", ""),
		AWSRegion:    getEnv("AWS_REGION", ""),
		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnv("SMTP_PORT", "587"),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SenderEmail:  getEnv("SENDER_EMAIL", "forecast@localhost"),
		NotifyEmail:  getEnv("NOTIFY_EMAIL", ""),
	}

	startDate, err := time.Parse(DateLayout, getEnv("SALES_START_DATE", "2016-01-01"))
	if err != nil {
		return nil, fmt.Errorf("invalid SALES_START_DATE: %w", err)
	}
	cfg.StartDate = startDate

	minYear, err := strconv.Atoi(getEnv("SALES_MIN_YEAR", "2018"))
	if err != nil {
		return nil, fmt.Errorf("invalid SALES_MIN_YEAR: %w", err)
	}
	cfg.MinYear = minYear

	autoCreate, err := strconv.ParseBool(getEnv("WAREHOUSE_AUTO_CREATE", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid WAREHOUSE_AUTO_CREATE: %w", err)
	}
	cfg.AutoCreate = autoCreate

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the settings required by the selected driver are present
func (c *Config) Validate() error {
	switch c.Warehouse.Driver {
	case DriverSnowflake:
		if c.Warehouse.Account == "" {
			return fmt.Errorf("SNOWFLAKE_ACCOUNT is required")
		}
		if c.Warehouse.User == "" {
			return fmt.Errorf("SNOWFLAKE_USER is required")
		}
	case DriverPostgres, DriverSQLite:
		if c.Warehouse.DSN == "" {
			return fmt.Errorf("WAREHOUSE_DSN is required for driver %s", c.Warehouse.Driver)
		}
	default:
		return fmt.Errorf("unsupported WAREHOUSE_DRIVER: %s", c.Warehouse.Driver)
	}

	if c.IsProd() && c.VaultURL == "" {
		return fmt.Errorf("VAULT_KEY_URL is required when ENV is prod")
	}

	return nil
}

// IsProd reports whether secrets must come from the key vault
func (c *Config) IsProd() bool {
	return c.Env == "prod"
}

// NotificationsEnabled reports whether run e-mails can be sent
func (c *Config) NotificationsEnabled() bool {
	return c.SMTPHost != "" && c.NotifyEmail != ""
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}
