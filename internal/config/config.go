package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App struct {
		Name     string `envconfig:"APP_NAME" default:"Almsbox"`
		Port     int    `envconfig:"PORT" default:"8080"`
		LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	}

	DB struct {
		Driver   string `envconfig:"DB_DRIVER" default:"postgres"` // postgres or memory
		Host     string `envconfig:"DB_HOST" default:"localhost"`
		Port     int    `envconfig:"DB_PORT" default:"5432"`
		User     string `envconfig:"DB_USER" default:"postgres"`
		Password string `envconfig:"DB_PASSWORD" default:""`
		Name     string `envconfig:"DB_NAME" default:"almsbox"`
		Migrate  bool   `envconfig:"DB_MIGRATE" default:"true"`
	}

	Server struct {
		Timeout         time.Duration `envconfig:"SERVER_TIMEOUT" default:"30s"`
		ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"10s"`
	}

	Auth struct {
		JWTSecret string        `envconfig:"JWT_SECRET" required:"true"`
		Issuer    string        `envconfig:"JWT_ISSUER" default:"almsbox"`
		TokenTTL  time.Duration `envconfig:"JWT_TTL" default:"720h"`
	}

	CORS struct {
		AllowedOrigins []string `envconfig:"CLIENT_URL" default:"http://localhost:3000"`
	}

	Proof struct {
		Backend       string `envconfig:"PROOF_BACKEND" default:"disk"` // disk or s3
		Dir           string `envconfig:"PROOF_DIR" default:"uploads"`
		Bucket        string `envconfig:"PROOF_S3_BUCKET"`
		Prefix        string `envconfig:"PROOF_S3_PREFIX" default:"proofs"`
		Region        string `envconfig:"PROOF_S3_REGION"`
		MaxUploadSize int64  `envconfig:"PROOF_MAX_UPLOAD_SIZE" default:"10485760"`
	}

	Events struct {
		QueueURL string `envconfig:"EVENTS_SQS_QUEUE_URL"`
		Region   string `envconfig:"EVENTS_SQS_REGION"`
	}
}

func (c *Config) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name)
}

func (c *Config) validate() error {
	switch c.DB.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.DB.Driver)
	}

	switch c.Proof.Backend {
	case "disk":
	case "s3":
		if c.Proof.Bucket == "" {
			return fmt.Errorf("PROOF_S3_BUCKET is required for the s3 proof backend")
		}
	default:
		return fmt.Errorf("unknown PROOF_BACKEND %q", c.Proof.Backend)
	}

	if c.Proof.MaxUploadSize <= 0 {
		return fmt.Errorf("PROOF_MAX_UPLOAD_SIZE must be positive")
	}

	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}
