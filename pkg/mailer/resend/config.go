package resend

import (
	"errors"
	"strings"

	"github.com/dmitrymomot/courier/pkg/mailer"
)

// Config holds Resend email provider configuration.
// Embed this in your app config for env parsing with caarlos0/env.
type Config struct {
	APIKey      string `env:"RESEND_API_KEY"`
	SenderEmail string `env:"RESEND_FROM_EMAIL"`
	SenderName  string `env:"RESEND_FROM_NAME"`
	BaseURL     string `env:"RESEND_BASE_URL"`
}

// Validate reports missing settings.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.APIKey) == "" {
		errs = append(errs, mailer.NewInvalidConfiguration("Resend API key is required."))
	}
	if strings.TrimSpace(c.SenderEmail) == "" {
		errs = append(errs, mailer.NewInvalidConfiguration("Resend sender email is required."))
	}
	return errors.Join(errs...)
}
