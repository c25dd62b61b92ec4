package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	App      AppConfig
	MT5      MT5Config
	Stripe   StripeConfig
	Push     PushConfig
	Jobs     JobsConfig
	Log      LogConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver     string
	Host       string
	Port       string
	User       string
	Password   string
	DBName     string
	SSLMode    string
	SQLitePath string
}

// ServerConfig holds server settings
type ServerConfig struct {
	Port           string
	FrontendURL    string
	AllowedOrigins []string
}

// AppConfig holds application-specific settings
type AppConfig struct {
	JWTSecret  string
	CronSecret string
}

// MT5Config holds settings for the external trading-account service
type MT5Config struct {
	ServiceURL     string
	Timeout        time.Duration
	RatePerSecond  float64
	Burst          int
	MaxConcurrency int
}

// StripeConfig holds payment gateway settings
type StripeConfig struct {
	SecretKey string
	Currency  string
}

// PushConfig holds VAPID settings for web push
type PushConfig struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subject         string
	TTL             int
}

// JobsConfig holds background job settings
type JobsConfig struct {
	Enabled             bool
	StatusSweepInterval time.Duration
	MT5PollInterval     time.Duration
	TaskWorkers         int
	TaskQueueSize       int
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string
	Format string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "")
	v.SetDefault("DB_NAME", "trading_challenges")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("SQLITE_PATH", "trading_challenges.db")

	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("FRONTEND_URL", "")
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173,http://127.0.0.1:3000,http://127.0.0.1:5173")

	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("CRON_SECRET", "")

	v.SetDefault("MT5_SERVICE_URL", "http://localhost:8000")
	v.SetDefault("MT5_TIMEOUT", "30s")
	v.SetDefault("MT5_RATE_PER_SECOND", 5)
	v.SetDefault("MT5_RATE_BURST", 5)
	v.SetDefault("MT5_MAX_CONCURRENCY", 10)

	v.SetDefault("STRIPE_SECRET_KEY", "")
	v.SetDefault("STRIPE_CURRENCY", "usd")

	v.SetDefault("VAPID_PUBLIC_KEY", "")
	v.SetDefault("VAPID_PRIVATE_KEY", "")
	v.SetDefault("VAPID_SUBJECT", "mailto:support@example.com")
	v.SetDefault("PUSH_TTL", 86400)

	v.SetDefault("JOBS_ENABLED", true)
	v.SetDefault("STATUS_SWEEP_INTERVAL", "1m")
	v.SetDefault("MT5_POLL_INTERVAL", "1h")
	v.SetDefault("TASK_WORKERS", 4)
	v.SetDefault("TASK_QUEUE_SIZE", 256)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
}

// Load loads configuration from the environment, an optional .env file and
// an optional config.yaml in the working directory.
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	config := &Config{
		Database: DatabaseConfig{
			Driver:     v.GetString("DB_DRIVER"),
			Host:       v.GetString("DB_HOST"),
			Port:       v.GetString("DB_PORT"),
			User:       v.GetString("DB_USER"),
			Password:   v.GetString("DB_PASSWORD"),
			DBName:     v.GetString("DB_NAME"),
			SSLMode:    v.GetString("DB_SSLMODE"),
			SQLitePath: v.GetString("SQLITE_PATH"),
		},
		Server: ServerConfig{
			Port:           v.GetString("SERVER_PORT"),
			FrontendURL:    v.GetString("FRONTEND_URL"),
			AllowedOrigins: splitList(v.GetString("ALLOWED_ORIGINS")),
		},
		App: AppConfig{
			JWTSecret:  v.GetString("JWT_SECRET"),
			CronSecret: v.GetString("CRON_SECRET"),
		},
		MT5: MT5Config{
			ServiceURL:     strings.TrimRight(v.GetString("MT5_SERVICE_URL"), "/"),
			Timeout:        v.GetDuration("MT5_TIMEOUT"),
			RatePerSecond:  v.GetFloat64("MT5_RATE_PER_SECOND"),
			Burst:          v.GetInt("MT5_RATE_BURST"),
			MaxConcurrency: v.GetInt("MT5_MAX_CONCURRENCY"),
		},
		Stripe: StripeConfig{
			SecretKey: v.GetString("STRIPE_SECRET_KEY"),
			Currency:  strings.ToLower(v.GetString("STRIPE_CURRENCY")),
		},
		Push: PushConfig{
			VAPIDPublicKey:  v.GetString("VAPID_PUBLIC_KEY"),
			VAPIDPrivateKey: v.GetString("VAPID_PRIVATE_KEY"),
			Subject:         v.GetString("VAPID_SUBJECT"),
			TTL:             v.GetInt("PUSH_TTL"),
		},
		Jobs: JobsConfig{
			Enabled:             v.GetBool("JOBS_ENABLED"),
			StatusSweepInterval: v.GetDuration("STATUS_SWEEP_INTERVAL"),
			MT5PollInterval:     v.GetDuration("MT5_POLL_INTERVAL"),
			TaskWorkers:         v.GetInt("TASK_WORKERS"),
			TaskQueueSize:       v.GetInt("TASK_QUEUE_SIZE"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
	}

	if config.Server.FrontendURL != "" {
		config.Server.AllowedOrigins = append(config.Server.AllowedOrigins, config.Server.FrontendURL)
	}

	// Validate required fields
	if config.App.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if config.Database.Driver != "postgres" && config.Database.Driver != "sqlite" {
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", config.Database.Driver)
	}

	if config.Jobs.StatusSweepInterval <= 0 || config.Jobs.MT5PollInterval <= 0 {
		return nil, fmt.Errorf("job intervals must be positive")
	}

	return config, nil
}

// GetDSN returns the connection string for the configured driver
func (c *Config) GetDSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.SQLitePath
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
		c.Database.SSLMode,
	)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
