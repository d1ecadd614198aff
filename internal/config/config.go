package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Env string `envconfig:"ENV" default:"development"`

	// ----------------------------
	// SMTP relay
	// ----------------------------
	SMTPHost     string `envconfig:"SMTP_HOST" default:"localhost"`
	SMTPPort     int    `envconfig:"SMTP_PORT" default:"465"`
	SMTPUser     string `envconfig:"SMTP_USERNAME" default:""`
	SMTPPassword string `envconfig:"SMTP_PASSWORD" default:""`
	SMTPFrom     string `envconfig:"SMTP_MAIL" default:"noreply@mailwright.local"`
	SMTPSSL      bool   `envconfig:"SMTP_SSL" default:"true"`

	// ----------------------------
	// Rendering defaults
	// ----------------------------
	AppName           string `envconfig:"APP_NAME" default:"Mailwright"`
	SupportMail       string `envconfig:"SUPPORT_MAIL" default:"support@mailwright.local"`
	Signature         string `envconfig:"SIGNATURE" default:"The Mailwright Team"`
	PlaceholderPrefix string `envconfig:"PLACEHOLDER_PREFIX" default:"[[{"`
	PlaceholderSuffix string `envconfig:"PLACEHOLDER_SUFFIX" default:"}]]"`

	TemplateCacheTTL time.Duration `envconfig:"TEMPLATE_CACHE_TTL" default:"30s"`

	// ----------------------------
	// Queue
	// ----------------------------
	RedisURL    string        `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`
	QueuePrefix string        `envconfig:"QUEUE_PREFIX" default:"mailwright"`
	QueueName   string        `envconfig:"QUEUE_VERIFY_EMAIL" default:"verify-email"`
	PollTimeout time.Duration `envconfig:"QUEUE_POLL_TIMEOUT" default:"2s"`
	RateLimit   int           `envconfig:"RATE_LIMIT" default:"10"`

	// ConsumerName owns a processing list and must be unique among running
	// processes; a second process started with a held name exits at startup.
	// It defaults to the hostname, so run one server per host or set it.
	ConsumerName string        `envconfig:"CONSUMER_NAME" default:""`
	LeaseTTL     time.Duration `envconfig:"CONSUMER_LEASE_TTL" default:"30s"`

	// ----------------------------
	// HTTP API
	// ----------------------------
	APIPort         string        `envconfig:"API_PORT" default:"8080"`
	MaxCSVRows      int           `envconfig:"MAX_CSV_ROWS" default:"1000"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"5s"`

	// ----------------------------
	// Metrics
	// ----------------------------
	MetricsPort string `envconfig:"METRICS_PORT" default:"9090"`

	// ----------------------------
	// Database
	// ----------------------------
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	AutoMigrate bool   `envconfig:"AUTO_MIGRATE" default:"true"`
}

// Load reads environments/.env.<ENV> and .env when present, then the process
// environment. Values already set in the environment win over the files.
func Load() (*Config, error) {
	env := os.Getenv("ENV")
	if env == "" {
		env = "development"
	}
	if err := loadEnvFiles(filepath.Join("environments", ".env."+env), ".env"); err != nil {
		return nil, err
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must not be empty")
	}
	if c.PlaceholderPrefix == "" || c.PlaceholderSuffix == "" {
		return fmt.Errorf("placeholder prefix and suffix must not be empty")
	}
	if c.SMTPPort <= 0 {
		return fmt.Errorf("invalid SMTP_PORT %d", c.SMTPPort)
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("RATE_LIMIT must be positive")
	}
	if c.LeaseTTL < 3*time.Second {
		return fmt.Errorf("CONSUMER_LEASE_TTL must be at least 3s")
	}
	return nil
}

// Development reports whether the process runs with ENV=development.
func (c *Config) Development() bool {
	return c.Env == "development"
}

func loadEnvFiles(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}
