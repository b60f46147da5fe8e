package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Email     EmailConfig     `yaml:"email"`
	PriceDrop PriceDropConfig `yaml:"pricedrop"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                  string `yaml:"host"`
	Port                  int    `yaml:"port"`
	PriceChangedTopicName string `yaml:"price_changed_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type EmailConfig struct {
	SendGridBaseURL string `yaml:"sendgrid_base_url"`
	SendGridAPIKey  string `yaml:"sendgrid_api_key"`
	FromEmail       string `yaml:"from_email"`
	FromName        string `yaml:"from_name"`
	AppURL          string `yaml:"app_url"`
}

type PriceDropConfig struct {
	HTTPAddr                 string `yaml:"http_addr"`
	KafkaConsumerGroup       string `yaml:"kafka_consumer_group"`
	CurrentProductTTLSeconds int    `yaml:"current_product_ttl_seconds"`

	// Worker
	WorkerHTTPAddr             string `yaml:"worker_http_addr"`
	CronSecret                 string `yaml:"cron_secret"`
	JobBatchSize               int    `yaml:"job_batch_size"`
	JobItemDelayMillis         int    `yaml:"job_item_delay_millis"`
	JobMaxDurationSeconds      int    `yaml:"job_max_duration_seconds"`
	JobErrorThreshold          int    `yaml:"job_error_threshold"`
	JobErrorWindowHours        int    `yaml:"job_error_window_hours"`
	JobScheduleIntervalSeconds int    `yaml:"job_schedule_interval_seconds"` // 0 = only external cron
	ScrapeTimeoutSeconds       int    `yaml:"scrape_timeout_seconds"`
	ScrapeRetryAttempts        int    `yaml:"scrape_retry_attempts"`
	ScrapeRateLimitPerMinute   int    `yaml:"scrape_rate_limit_per_minute"`
	DigestLookbackHours        int    `yaml:"digest_lookback_hours"`
}

// LoadConfig reads the YAML file, then lets the environment (and a .env file
// in the working directory, if present) override secrets.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	_ = godotenv.Load()
	config.applyEnv()

	return &config, nil
}

func (c *Config) applyEnv() {
	overrideFromEnv(&c.PriceDrop.CronSecret, "CRON_SECRET")
	overrideFromEnv(&c.Email.SendGridAPIKey, "SENDGRID_API_KEY")
	overrideFromEnv(&c.Email.FromEmail, "SENDGRID_FROM_EMAIL")
	overrideFromEnv(&c.Email.AppURL, "APP_URL")
	overrideFromEnv(&c.Database.Password, "DATABASE_PASSWORD")
}

func overrideFromEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
