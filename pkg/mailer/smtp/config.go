package smtp

import (
	"errors"
	"strings"
	"time"

	"github.com/dmitrymomot/courier/pkg/mailer"
)

// TLSMode selects how the connection is secured.
type TLSMode string

const (
	// TLSAuto uses implicit TLS on port 465 and STARTTLS elsewhere when the
	// server offers it.
	TLSAuto TLSMode = "auto"
	// TLSStartTLS upgrades a plain connection when the server offers it.
	TLSStartTLS TLSMode = "starttls"
	// TLSImplicit connects over TLS from the first byte.
	TLSImplicit TLSMode = "ssl"
)

// Config holds SMTP relay configuration.
// Embed this in your app config for env parsing with caarlos0/env.
type Config struct {
	Host               string        `env:"SMTP_HOST"`
	Username           string        `env:"SMTP_USERNAME"`
	Password           string        `env:"SMTP_PASSWORD"`
	SenderEmail        string        `env:"SMTP_FROM_EMAIL"`
	SenderName         string        `env:"SMTP_FROM_NAME"`
	LocalName          string        `env:"SMTP_LOCAL_NAME"`
	TLSMode            TLSMode       `env:"SMTP_TLS_MODE" envDefault:"auto"`
	Port               int           `env:"SMTP_PORT" envDefault:"587"`
	Timeout            time.Duration `env:"SMTP_TIMEOUT" envDefault:"30s"`
	InsecureSkipVerify bool          `env:"SMTP_INSECURE_SKIP_VERIFY" envDefault:"false"`
}

// Validate reports every configuration problem at once.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Host) == "" {
		errs = append(errs, mailer.NewInvalidConfiguration("SMTP host is required."))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, mailer.NewInvalidConfiguration("SMTP port must be between 1 and 65535."))
	}
	if strings.TrimSpace(c.SenderEmail) == "" {
		errs = append(errs, mailer.NewInvalidConfiguration("SMTP sender email is required."))
	}
	switch c.TLSMode {
	case TLSAuto, TLSStartTLS, TLSImplicit, "":
	default:
		errs = append(errs, mailer.NewInvalidConfiguration("SMTP TLS mode must be 'auto', 'starttls' or 'ssl'."))
	}
	return errors.Join(errs...)
}
