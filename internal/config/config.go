// Package config loads the site configuration from the environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sethvargo/go-envconfig"
)

const (
	DispatcherEmailJS = "emailjs"
	DispatcherSMTP    = "smtp"
	DispatcherLog     = "log"
)

type Config struct {
	Port         string `env:"PORT,default=8080"`
	Mode         string `env:"GIN_MODE,default=debug"`
	LogLevel     string `env:"LOG_LEVEL,default=info"`
	DatabasePath string `env:"DATABASE_PATH,default=portfolio.db"`
	TemplateGlob string `env:"TEMPLATE_GLOB,default=templates/*"`

	Contact ContactConfig `env:",prefix=CONTACT_"`
	EmailJS EmailJSConfig `env:",prefix=EMAILJS_"`
	SMTP    SMTPConfig    `env:",prefix=SMTP_"`
	Admin   AdminConfig   `env:",prefix=ADMIN_"`

	VisitorRetention time.Duration `env:"VISITOR_RETENTION,default=8760h"`
}

type ContactConfig struct {
	// Dispatcher selects the delivery path: emailjs, smtp or log.
	Dispatcher  string        `env:"DISPATCHER,default=emailjs"`
	ResetDelay  time.Duration `env:"RESET_DELAY,default=3s"`
	SessionIdle time.Duration `env:"SESSION_IDLE,default=30m"`
	// MaxSessions caps live visitor sessions; the least recently seen one
	// is evicted first.
	MaxSessions int `env:"MAX_SESSIONS,default=10000"`
	// RatePerMinute bounds submissions per client IP.
	RatePerMinute int `env:"RATE_PER_MINUTE,default=5"`
}

// EmailJSConfig carries the opaque identifiers issued by EmailJS. Server
// side calls need "Allow EmailJS API for non-browser applications" enabled
// on the account.
type EmailJSConfig struct {
	ServiceID   string        `env:"SERVICE_ID"`
	TemplateID  string        `env:"TEMPLATE_ID"`
	PublicKey   string        `env:"PUBLIC_KEY"`
	AccessToken string        `env:"ACCESS_TOKEN"`
	Endpoint    string        `env:"ENDPOINT,default=https://api.emailjs.com/api/v1.0/email/send"`
	Timeout     time.Duration `env:"TIMEOUT,default=10s"`
}

type SMTPConfig struct {
	Host string `env:"HOST,default=smtp.gmail.com"`
	Port string `env:"PORT,default=587"`
	User string `env:"USER"`
	Pass string `env:"PASS"`
	To   string `env:"TO"`
}

type AdminConfig struct {
	Username     string `env:"USERNAME,default=admin"`
	PasswordHash string `env:"PASSWORD_HASH"`
	// Password is accepted in debug mode only, when no hash is configured.
	Password string `env:"PASSWORD"`
}

// Load reads the process environment. The binary imports
// godotenv/autoload, so a local .env file is already applied.
func Load(ctx context.Context) (*Config, error) {
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom decodes the configuration from an arbitrary lookuper.
func LoadFrom(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &cfg, l); err != nil {
		return nil, fmt.Errorf("parsing env vars: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the selected dispatcher has what it needs.
func (c *Config) Validate() error {
	var errs []error
	switch c.Mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
	default:
		errs = append(errs, fmt.Errorf("GIN_MODE must be %s, %s or %s, got %q", gin.DebugMode, gin.ReleaseMode, gin.TestMode, c.Mode))
	}
	switch c.Contact.Dispatcher {
	case DispatcherEmailJS:
		if c.EmailJS.ServiceID == "" || c.EmailJS.TemplateID == "" || c.EmailJS.PublicKey == "" {
			errs = append(errs, errors.New("EMAILJS_SERVICE_ID, EMAILJS_TEMPLATE_ID and EMAILJS_PUBLIC_KEY are required for the emailjs dispatcher"))
		}
	case DispatcherSMTP:
		if c.SMTP.User == "" || c.SMTP.Pass == "" {
			errs = append(errs, errors.New("SMTP_USER and SMTP_PASS are required for the smtp dispatcher"))
		}
	case DispatcherLog:
	default:
		errs = append(errs, fmt.Errorf("unknown CONTACT_DISPATCHER %q", c.Contact.Dispatcher))
	}
	if c.Contact.ResetDelay <= 0 {
		errs = append(errs, errors.New("CONTACT_RESET_DELAY must be positive"))
	}
	if c.Contact.RatePerMinute <= 0 {
		errs = append(errs, errors.New("CONTACT_RATE_PER_MINUTE must be positive"))
	}
	if c.Contact.MaxSessions <= 0 {
		errs = append(errs, errors.New("CONTACT_MAX_SESSIONS must be positive"))
	}
	return errors.Join(errs...)
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func (c *Config) IsDebug() bool {
	return c.Mode == gin.DebugMode
}
