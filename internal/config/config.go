// Package config loads courier configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/dmitrymomot/courier/internal/store"
	"github.com/dmitrymomot/courier/pkg/attachment"
	"github.com/dmitrymomot/courier/pkg/logger"
	"github.com/dmitrymomot/courier/pkg/mailer"
	"github.com/dmitrymomot/courier/pkg/mailer/gmail"
	"github.com/dmitrymomot/courier/pkg/mailer/mime"
	"github.com/dmitrymomot/courier/pkg/mailer/resend"
	"github.com/dmitrymomot/courier/pkg/mailer/smtp"
	"github.com/dmitrymomot/courier/pkg/redis"
)

// Provider names.
const (
	ProviderGmail  = "gmail"
	ProviderResend = "resend"
	ProviderSMTP   = "smtp"
)

// MaxProjectKeyLength bounds the project key.
const MaxProjectKeyLength = 50

var projectKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Config is the complete service configuration.
type Config struct {
	Log         logger.Config
	Server      Server
	Email       Email
	Gmail       gmail.Config
	Resend      resend.Config
	SMTP        smtp.Config
	Templates   Templates
	Database    store.Config
	Redis       redis.Config
	Attachments Attachments
	Retry       Retry
	Provider    string `env:"EMAIL_PROVIDER" envDefault:"gmail"`
}

// Server holds HTTP listener settings.
type Server struct {
	Addr            string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	MaxBodySize     int64         `env:"HTTP_MAX_BODY_SIZE" envDefault:"1048576"`
}

// Email holds the project identity and global sender defaults.
type Email struct {
	ProjectKey         string `env:"EMAIL_PROJECT_KEY" envDefault:"default"`
	DefaultSenderName  string `env:"EMAIL_DEFAULT_SENDER_NAME"`
	DefaultSenderEmail string `env:"EMAIL_DEFAULT_SENDER_EMAIL"`
	DefaultReplyTo     string `env:"EMAIL_DEFAULT_REPLY_TO"`
}

// Defaults returns the global sender defaults.
func (e Email) Defaults() mailer.Defaults {
	return mailer.Defaults{
		SenderEmail: e.DefaultSenderEmail,
		SenderName:  e.DefaultSenderName,
		ReplyTo:     e.DefaultReplyTo,
	}
}

// Templates selects the template sources. Sources load in order: built-in,
// manifest, directory, database. Later sources win.
type Templates struct {
	Dir            string `env:"TEMPLATES_DIR"`
	Manifest       string `env:"TEMPLATES_MANIFEST"`
	ReloadSchedule string `env:"TEMPLATES_RELOAD_SCHEDULE"`
	ButtonColor    string `env:"TEMPLATES_BUTTON_COLOR" envDefault:"#2563eb"`
	Builtin        bool   `env:"TEMPLATES_BUILTIN" envDefault:"true"`
}

// Attachments configures where attachment references are resolved.
type Attachments struct {
	S3  attachment.S3Config
	Dir string `env:"ATTACHMENTS_DIR"`
}

// Retry tunes the provider client.
type Retry struct {
	MaxAttempts       int           `env:"EMAIL_RETRY_MAX_ATTEMPTS" envDefault:"3"`
	BaseDelay         time.Duration `env:"EMAIL_RETRY_BASE_DELAY" envDefault:"1s"`
	DefaultRetryAfter time.Duration `env:"EMAIL_DEFAULT_RETRY_AFTER" envDefault:"60s"`
}

// Load reads the given dotenv files, when they exist, then parses the
// environment and validates the result. Variables already set in the
// environment take precedence over dotenv values.
func Load(files ...string) (*Config, error) {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return Parse(env.Options{})
}

// Parse parses configuration with the given env options and validates it.
// Tests pass opts.Environment to avoid touching the process environment.
func Parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error

	key := strings.TrimSpace(c.Email.ProjectKey)
	switch {
	case key == "":
		errs = append(errs, mailer.NewInvalidConfiguration("Project key is required."))
	case len(key) > MaxProjectKeyLength:
		errs = append(errs, mailer.NewInvalidConfiguration(fmt.Sprintf("Project key must be at most %d characters.", MaxProjectKeyLength)))
	case !projectKeyPattern.MatchString(key):
		errs = append(errs, mailer.NewInvalidConfiguration("Project key may contain only letters, digits, '-' and '_'."))
	}

	if c.Email.DefaultSenderEmail != "" {
		if _, ok := mime.ParseAddress(c.Email.DefaultSenderEmail); !ok {
			errs = append(errs, mailer.NewInvalidConfiguration("Default sender email must be a valid email address."))
		}
	}
	if c.Email.DefaultReplyTo != "" {
		if _, ok := mime.ParseAddress(c.Email.DefaultReplyTo); !ok {
			errs = append(errs, mailer.NewInvalidConfiguration("Default reply-to must be a valid email address."))
		}
	}

	switch c.Provider {
	case ProviderGmail:
		errs = append(errs, c.Gmail.Validate())
	case ProviderResend:
		errs = append(errs, c.Resend.Validate())
	case ProviderSMTP:
		errs = append(errs, c.SMTP.Validate())
	default:
		errs = append(errs, mailer.NewInvalidConfiguration("Email provider must be 'gmail', 'resend' or 'smtp'."))
	}

	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, mailer.NewInvalidConfiguration("Retry max attempts must be at least 1."))
	}

	return errors.Join(errs...)
}
