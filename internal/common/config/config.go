// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Voice     VoiceConfig     `mapstructure:"voice"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	Messaging MessagingConfig `mapstructure:"messaging"`
	Alerts    AlertConfig     `mapstructure:"alerts"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Webhooks  WebhookConfig   `mapstructure:"webhooks"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	// IANA zone the calling-hours gate evaluates in, e.g. "Europe/Bucharest".
	Timezone string `mapstructure:"timezone"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// VoiceConfig holds settings for the outbound call provider.
type VoiceConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	APIKey        string `mapstructure:"api_key"`
	AgentID       string `mapstructure:"agent_id"`
	PhoneNumberID string `mapstructure:"phone_number_id"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	// Maximum recipients per batch submission.
	BatchChunkSize int `mapstructure:"batch_chunk_size"`
	Timeout        int `mapstructure:"timeout"` // milliseconds
}

// ScoringConfig holds settings for the transcript scoring provider and the
// fast extraction model used by the matching cascade.
type ScoringConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	FastModel string `mapstructure:"fast_model"`
	MaxTokens int    `mapstructure:"max_tokens"`
	Timeout   int    `mapstructure:"timeout"` // milliseconds
}

// MessagingConfig holds settings for the outbound channels.
type MessagingConfig struct {
	Chat struct {
		BaseURL       string `mapstructure:"base_url"`
		Token         string `mapstructure:"token"`
		WebhookSecret string `mapstructure:"webhook_secret"`
		Timeout       int    `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"chat"`

	Email struct {
		Enabled   bool   `mapstructure:"enabled"`
		FromEmail string `mapstructure:"from_email"`
	} `mapstructure:"email"`

	AWS struct {
		Region string `mapstructure:"region"`
	} `mapstructure:"aws"`
}

// AlertConfig holds the operator-alert topic used for needs_human escalations
// and fatal verdict-parse failures.
type AlertConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	TopicARN string `mapstructure:"topic_arn"`
}

// SchedulerConfig holds the periodic job intervals and thresholds.
type SchedulerConfig struct {
	QueueIntervalMinutes     int `mapstructure:"queue_interval_minutes"`
	StuckSyncIntervalMinutes int `mapstructure:"stuck_sync_interval_minutes"`
	FollowupIntervalMinutes  int `mapstructure:"followup_interval_minutes"`
	StaleCloseIntervalHours  int `mapstructure:"stale_close_interval_hours"`
	InboxPollIntervalMinutes int `mapstructure:"inbox_poll_interval_minutes"`

	// A call still initiated/in_progress past this age is polled directly.
	StuckCallThresholdMinutes int `mapstructure:"stuck_call_threshold_minutes"`

	MetricsAddress string `mapstructure:"metrics_address"`
}

// WebhookConfig holds the webhook server settings.
type WebhookConfig struct {
	ListenAddress string `mapstructure:"listen_address"`
}

// StorageConfig holds local file storage settings for received CVs.
type StorageConfig struct {
	CVDir string `mapstructure:"cv_dir"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
