package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	EnvLocal = "local"
	EnvDev   = "dev"
	EnvProd  = "prod"
)

type Config struct {
	Env         string           `yaml:"env" env:"MINDTRACK_ENV" env-default:"local"`
	DatabaseUrl string           `yaml:"database_url" env:"DATABASE_URL"`
	Server      ServerConfig     `yaml:"http"`
	JWT         JWTConfig        `yaml:"jwt"`
	Invitations InvitationConfig `yaml:"invitations"`
	SMTP        SMTPConfig       `yaml:"smtp"`
	Email       EmailConfig      `yaml:"email"`
	Scheduler   SchedulerConfig  `yaml:"scheduler"`
	Cron        CronConfig       `yaml:"cron"`
	RateLimit   RateLimitConfig  `yaml:"rate_limit"`
	Storage     StorageConfig    `yaml:"storage"`
}

type ServerConfig struct {
	Port           string        `yaml:"port" env:"PORT" env-default:"8080"`
	ReadTimeout    time.Duration `yaml:"read_timeout" env-default:"15s"`
	WriteTimeout   time.Duration `yaml:"write_timeout" env-default:"15s"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" env-default:"60s"`
	AllowedOrigins []string      `yaml:"allowed_origins" env:"ALLOWED_ORIGINS" env-default:"http://localhost:3000"`
}

type JWTConfig struct {
	Secret     string        `yaml:"secret" env:"JWT_SECRET"`
	AccessTTL  time.Duration `yaml:"access_ttl" env-default:"15m"`
	RefreshTTL time.Duration `yaml:"refresh_ttl" env-default:"168h"`
}

type InvitationConfig struct {
	TTL           time.Duration `yaml:"ttl" env-default:"360h"`
	PublicBaseURL string        `yaml:"public_base_url" env:"PUBLIC_BASE_URL" env-default:"http://localhost:3000"`
	APIBaseURL    string        `yaml:"api_base_url" env:"API_BASE_URL" env-default:"http://localhost:8080"`
}

type SMTPConfig struct {
	Sender   string `yaml:"sender" env:"SMTP_SENDER" env-default:"log"`
	Host     string `yaml:"host" env:"SMTP_HOST"`
	Port     int    `yaml:"port" env:"SMTP_PORT" env-default:"587"`
	Username string `yaml:"username" env:"SMTP_USERNAME"`
	Password string `yaml:"password" env:"SMTP_PASSWORD"`
	From     string `yaml:"from" env:"SMTP_FROM" env-default:"MindTrack <no-reply@mindtrack.local>"`
}

type EmailConfig struct {
	BatchSize   int `yaml:"batch_size" env-default:"50"`
	MaxAttempts int `yaml:"max_attempts" env-default:"3"`
}

type SchedulerConfig struct {
	Enabled         bool   `yaml:"enabled" env:"SCHEDULER_ENABLED" env-default:"true"`
	DispatchSpec    string `yaml:"dispatch_spec" env-default:"@every 1m"`
	RemindersSpec   string `yaml:"reminders_spec" env-default:"@every 15m"`
	ExpirationsSpec string `yaml:"expirations_spec" env-default:"@every 1h"`
}

type CronConfig struct {
	Secret string `yaml:"secret" env:"CRON_SECRET"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"rps" env-default:"5"`
	Burst             int     `yaml:"burst" env-default:"20"`

	// TrustedProxies may set X-Forwarded-For. Empty means the peer address is used.
	TrustedProxies []string `yaml:"trusted_proxies" env:"RATE_LIMIT_TRUSTED_PROXIES" env-separator:","`
}

// StorageConfig selects the questionnaire store. The memory store is seeded with the
// standard instruments owned by SeedOwnerID in SeedOrganizationID.
type StorageConfig struct {
	Questionnaires     string `yaml:"questionnaires" env:"QUESTIONNAIRE_STORE" env-default:"postgres"`
	SeedOrganizationID int64  `yaml:"seed_organization_id" env-default:"1"`
	SeedOwnerID        int64  `yaml:"seed_owner_id" env-default:"1"`
}

func MustLoad() *Config {
	path := fetchConfigPath()

	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env", "err", err)
	}

	if path == "" {
		return nil, errors.New("config path is empty")
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	var config Config
	slog.Info("loading config", "path", path)
	if err := cleanenv.ReadConfig(path, &config); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret is required")
	}
	if c.Storage.Questionnaires != "postgres" && c.Storage.Questionnaires != "memory" {
		return fmt.Errorf("storage.questionnaires must be postgres or memory, got %q", c.Storage.Questionnaires)
	}
	if c.SMTP.Sender != "smtp" && c.SMTP.Sender != "log" {
		return fmt.Errorf("smtp.sender must be smtp or log, got %q", c.SMTP.Sender)
	}
	if c.SMTP.Sender == "smtp" && c.SMTP.Host == "" {
		return errors.New("smtp.host is required when smtp.sender is smtp")
	}
	if c.Email.MaxAttempts <= 0 {
		c.Email.MaxAttempts = 1
	}
	if c.Email.BatchSize <= 0 {
		c.Email.BatchSize = 50
	}
	return nil
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "config path")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}
	if res == "" {
		res = "./config/local.yaml"
	}

	return res
}
