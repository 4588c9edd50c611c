package mime

import (
	"net/mail"
	"strings"

	"github.com/dmitrymomot/courier/pkg/mailer"
)

type addresses struct {
	from    *mail.Address
	replyTo *mail.Address
	to      []*mail.Address
	cc      []*mail.Address
	bcc     []*mail.Address
}

// Validate checks the sender and every recipient of msg.
// A missing or malformed sender yields InvalidSender; no recipients or a
// malformed To, Cc or Bcc address yields InvalidRecipient.
func Validate(msg *mailer.Message) error {
	_, err := parseAddresses(msg)
	return err
}

// ParseAddress parses a single address, accepting both "user@host" and
// "Name <user@host>" forms.
func ParseAddress(s string) (*mail.Address, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	a, err := mail.ParseAddress(s)
	if err != nil {
		return nil, false
	}
	return a, true
}

func parseAddresses(msg *mailer.Message) (addresses, error) {
	var out addresses

	from, ok := ParseAddress(msg.From)
	if !ok {
		return out, mailer.NewInvalidSender(msg.From)
	}
	out.from = from

	if msg.ReplyTo != "" {
		r, ok := ParseAddress(msg.ReplyTo)
		if !ok {
			return out, mailer.NewInvalidSender(msg.ReplyTo)
		}
		out.replyTo = r
	}

	if len(msg.To) == 0 {
		return out, mailer.NewInvalidRecipient("no recipients")
	}

	var err error
	if out.to, err = parseList(msg.To); err != nil {
		return out, err
	}
	if out.cc, err = parseList(msg.CC); err != nil {
		return out, err
	}
	if out.bcc, err = parseList(msg.BCC); err != nil {
		return out, err
	}
	return out, nil
}

func parseList(list []string) ([]*mail.Address, error) {
	if len(list) == 0 {
		return nil, nil
	}
	out := make([]*mail.Address, 0, len(list))
	for _, s := range list {
		a, ok := ParseAddress(s)
		if !ok {
			return nil, mailer.NewInvalidRecipient(s)
		}
		out = append(out, a)
	}
	return out, nil
}
