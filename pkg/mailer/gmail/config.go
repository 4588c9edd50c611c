package gmail

import (
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/dmitrymomot/courier/pkg/mailer"
)

// AuthMethod selects how credentials are obtained.
type AuthMethod string

const (
	// AuthOAuth uses OAuth client secrets plus a stored user token.
	AuthOAuth AuthMethod = "oauth"
	// AuthServiceAccount uses a service account key with domain-wide delegation.
	AuthServiceAccount AuthMethod = "service_account"
)

// DefaultBaseURL is the Gmail REST endpoint.
const DefaultBaseURL = "https://gmail.googleapis.com"

// Config holds Gmail provider configuration.
// Embed this in your app config for env parsing with caarlos0/env.
type Config struct {
	CredentialsPath string        `env:"GMAIL_CREDENTIALS_PATH"`
	TokenPath       string        `env:"GMAIL_TOKEN_PATH" envDefault:"token.json"`
	SenderEmail     string        `env:"GMAIL_SENDER_EMAIL"`
	SenderName      string        `env:"GMAIL_SENDER_NAME"`
	AuthMethod      AuthMethod    `env:"GMAIL_AUTH_METHOD" envDefault:"oauth"`
	ApplicationName string        `env:"GMAIL_APPLICATION_NAME" envDefault:"courier"`
	BaseURL         string        `env:"GMAIL_BASE_URL" envDefault:"https://gmail.googleapis.com"`
	Timeout         time.Duration `env:"GMAIL_TIMEOUT" envDefault:"30s"`
}

// Validate reports every configuration problem at once.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.CredentialsPath) == "" {
		errs = append(errs, mailer.NewInvalidConfiguration("CredentialsPath is required."))
	}
	if strings.TrimSpace(c.SenderEmail) == "" {
		errs = append(errs, mailer.NewInvalidConfiguration("SenderEmail is required."))
	} else if a, err := mail.ParseAddress(c.SenderEmail); err != nil || a.Address != c.SenderEmail {
		errs = append(errs, mailer.NewInvalidConfiguration("SenderEmail must be a valid email address."))
	}
	if strings.TrimSpace(c.ApplicationName) == "" {
		errs = append(errs, mailer.NewInvalidConfiguration("ApplicationName is required."))
	}
	switch c.AuthMethod {
	case AuthOAuth, AuthServiceAccount, "":
	default:
		errs = append(errs, mailer.NewInvalidConfiguration("AuthMethod must be 'oauth' or 'service_account'."))
	}
	return errors.Join(errs...)
}

func (c Config) withDefaults() Config {
	if c.AuthMethod == "" {
		c.AuthMethod = AuthOAuth
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.ApplicationName == "" {
		c.ApplicationName = "courier"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}
