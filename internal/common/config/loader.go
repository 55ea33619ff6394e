// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	// Enable ENV override like VOICE_API_KEY
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	// Environment-specific overlay, e.g. config.production.yaml
	viper.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = viper.MergeInConfig() // ignore error if not found

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideFromEnv(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideFromEnv(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile loads .env from the first location that has one, so binaries
// and tests work from different working directories.
func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env",
		"../../../.env",
	}
	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

// applyDefaults sets default values for optional configuration fields
func applyDefaults(cfg *Config) {
	if cfg.App.Timezone == "" {
		cfg.App.Timezone = "UTC"
	}

	// Database defaults
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	// Provider defaults
	if cfg.Voice.BatchChunkSize == 0 {
		cfg.Voice.BatchChunkSize = 50
	}
	if cfg.Voice.Timeout == 0 {
		cfg.Voice.Timeout = 30000
	}
	if cfg.Scoring.MaxTokens == 0 {
		cfg.Scoring.MaxTokens = 1024
	}
	if cfg.Scoring.Timeout == 0 {
		cfg.Scoring.Timeout = 30000
	}
	if cfg.Messaging.Chat.Timeout == 0 {
		cfg.Messaging.Chat.Timeout = 20000
	}

	// Scheduler defaults mirror the documented job cadence.
	if cfg.Scheduler.QueueIntervalMinutes == 0 {
		cfg.Scheduler.QueueIntervalMinutes = 5
	}
	if cfg.Scheduler.StuckSyncIntervalMinutes == 0 {
		cfg.Scheduler.StuckSyncIntervalMinutes = 10
	}
	if cfg.Scheduler.FollowupIntervalMinutes == 0 {
		cfg.Scheduler.FollowupIntervalMinutes = 60
	}
	if cfg.Scheduler.StaleCloseIntervalHours == 0 {
		cfg.Scheduler.StaleCloseIntervalHours = 24
	}
	if cfg.Scheduler.InboxPollIntervalMinutes == 0 {
		cfg.Scheduler.InboxPollIntervalMinutes = 15
	}
	if cfg.Scheduler.StuckCallThresholdMinutes == 0 {
		cfg.Scheduler.StuckCallThresholdMinutes = 15
	}
	if cfg.Scheduler.MetricsAddress == "" {
		cfg.Scheduler.MetricsAddress = ":9102"
	}

	if cfg.Webhooks.ListenAddress == "" {
		cfg.Webhooks.ListenAddress = ":8085"
	}
	if cfg.Storage.CVDir == "" {
		cfg.Storage.CVDir = "data/cvs"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// overrideFromEnv fills secrets from the environment when the YAML left them
// empty; keeps credentials out of config files.
func overrideFromEnv(cfg *Config) {
	if cfg.Voice.APIKey == "" {
		cfg.Voice.APIKey = os.Getenv("VOICE_API_KEY")
	}
	if cfg.Voice.WebhookSecret == "" {
		cfg.Voice.WebhookSecret = os.Getenv("VOICE_WEBHOOK_SECRET")
	}
	if cfg.Scoring.APIKey == "" {
		cfg.Scoring.APIKey = os.Getenv("SCORING_API_KEY")
	}
	if cfg.Messaging.Chat.Token == "" {
		cfg.Messaging.Chat.Token = os.Getenv("CHAT_TOKEN")
	}
	if cfg.Messaging.Chat.WebhookSecret == "" {
		cfg.Messaging.Chat.WebhookSecret = os.Getenv("CHAT_WEBHOOK_SECRET")
	}
	if cfg.Database.Postgres.User == "" {
		cfg.Database.Postgres.User = os.Getenv("DB_USER")
	}
	if cfg.Database.Postgres.Password == "" {
		cfg.Database.Postgres.Password = os.Getenv("DB_PASSWORD")
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	return nil
}
