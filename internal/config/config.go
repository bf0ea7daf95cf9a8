// Package config reads the site's settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Docstore backends.
const (
	StoreSQLite = "sqlite"
	StoreFile   = "file"
	StoreMemory = "memory"
)

// Config holds every runtime setting.
type Config struct {
	Port     string `env:"PORT" envDefault:"8080"`
	GinMode  string `env:"GIN_MODE" envDefault:"debug"`
	Database string `env:"DATABASE_PATH" envDefault:"portfolio.db"`

	Docstore     string        `env:"DOCSTORE" envDefault:"sqlite"`
	DocstoreFile string        `env:"DOCSTORE_FILE" envDefault:"projects.json"`
	PollInterval time.Duration `env:"DOCSTORE_POLL_INTERVAL" envDefault:"1s"`

	ContentFile   string   `env:"CONTENT_FILE"`
	StaticDir     string   `env:"STATIC_DIR" envDefault:"./static"`
	TemplateGlob  string   `env:"TEMPLATE_GLOB" envDefault:"templates/*"`
	ResumeFormats []string `env:"RESUME_FORMATS" envDefault:"pdf,docx" envSeparator:","`

	Contact Contact
	SMTP    SMTP
	Admin   Admin
	Privacy Privacy
}

// Contact configures the contact form.
type Contact struct {
	// Endpoint is the remote receiver. Empty means the site's own inbox.
	Endpoint      string        `env:"CONTACT_ENDPOINT"`
	RevertDelay   time.Duration `env:"CONTACT_REVERT_DELAY" envDefault:"5s"`
	RatePerMinute int           `env:"CONTACT_RATE_PER_MINUTE" envDefault:"5"`
	SessionIdle   time.Duration `env:"CONTACT_SESSION_IDLE" envDefault:"30m"`
}

// SMTP configures outgoing mail for the inbox.
type SMTP struct {
	Host string `env:"SMTP_HOST" envDefault:"smtp.gmail.com"`
	Port string `env:"SMTP_PORT" envDefault:"587"`
	User string `env:"SMTP_USER"`
	Pass string `env:"SMTP_PASS"`
	To   string `env:"TO_EMAIL"`
}

// Admin configures the admin area.
type Admin struct {
	// PasswordHash is a bcrypt hash. When empty a one-time token is
	// generated at startup and logged in debug mode.
	PasswordHash string        `env:"ADMIN_PASSWORD_HASH"`
	JWTSecret    string        `env:"ADMIN_JWT_SECRET"`
	SessionTTL   time.Duration `env:"ADMIN_SESSION_TTL" envDefault:"12h"`
	// LoginPerMinute throttles login attempts per client, apart from the
	// contact form's limit.
	LoginPerMinute int `env:"ADMIN_LOGIN_RATE_PER_MINUTE" envDefault:"5"`
}

// Privacy configures visitor tracking.
type Privacy struct {
	Tracking  bool          `env:"VISITOR_TRACKING" envDefault:"true"`
	Retention time.Duration `env:"VISITOR_RETENTION" envDefault:"8760h"`
	Salt      string        `env:"VISITOR_SALT"`
}

// Load reads an optional .env file, then the environment. Variables already
// set win over the file.
func Load(dotenv ...string) (Config, error) {
	if err := godotenv.Load(dotenv...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load dotenv: %w", err)
	}
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values the env tags cannot express.
func (c Config) Validate() error {
	var errs []error
	switch c.Docstore {
	case StoreSQLite, StoreFile, StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("DOCSTORE must be sqlite, file or memory, got %q", c.Docstore))
	}
	if c.Docstore == StoreFile && strings.TrimSpace(c.DocstoreFile) == "" {
		errs = append(errs, errors.New("DOCSTORE_FILE is required for the file docstore"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("DOCSTORE_POLL_INTERVAL must be positive"))
	}
	if c.Contact.RevertDelay <= 0 {
		errs = append(errs, errors.New("CONTACT_REVERT_DELAY must be positive"))
	}
	if c.Contact.RatePerMinute < 0 {
		errs = append(errs, errors.New("CONTACT_RATE_PER_MINUTE must not be negative"))
	}
	if (c.SMTP.User != "" || c.SMTP.Pass != "") && strings.TrimSpace(c.SMTP.To) == "" {
		errs = append(errs, errors.New("TO_EMAIL is required when SMTP_USER or SMTP_PASS is set"))
	}
	if c.Admin.LoginPerMinute <= 0 {
		errs = append(errs, errors.New("ADMIN_LOGIN_RATE_PER_MINUTE must be positive"))
	}
	if c.Admin.SessionTTL <= 0 {
		errs = append(errs, errors.New("ADMIN_SESSION_TTL must be positive"))
	}
	return errors.Join(errs...)
}

// Addr is the listen address.
func (c Config) Addr() string {
	return ":" + c.Port
}
