package dnsverify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	ErrDNSLookupFailed   = errors.New("dnsverify: dns lookup failed")
	ErrDomainNotVerified = errors.New("dnsverify: domain not verified")
	ErrSPFNotFound       = errors.New("dnsverify: spf record not found")
	ErrSPFIncludeMissing = errors.New("dnsverify: spf record does not include provider")
	ErrDMARCNotFound     = errors.New("dnsverify: dmarc record not found")
	ErrInvalidInput      = errors.New("dnsverify: invalid domain or token")
)

const (
	spfPrefix   = "v=spf1"
	dmarcPrefix = "v=dmarc1"
	dmarcLabel  = "_dmarc."
)

// Resolver looks up TXT records. *net.Resolver satisfies it.
type Resolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// Verifier runs DNS checks through a resolver.
type Verifier struct {
	resolver Resolver
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithResolver replaces the resolver. Default: net.DefaultResolver.
func WithResolver(r Resolver) Option {
	return func(v *Verifier) {
		if r != nil {
			v.resolver = r
		}
	}
}

// New creates a verifier.
func New(opts ...Option) *Verifier {
	v := &Verifier{resolver: net.DefaultResolver}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Report holds the policy records found for a domain. Empty fields mean
// the record was not found.
type Report struct {
	Domain string `json:"domain"`
	SPF    string `json:"spf,omitempty"`
	DMARC  string `json:"dmarc,omitempty"`
}

// CheckSender looks up the SPF and DMARC policies of domain. When includes
// are given, the SPF policy must name each of them in an include mechanism.
// The report is filled as far as the lookups succeed, also on error.
func (v *Verifier) CheckSender(ctx context.Context, domain string, includes ...string) (Report, error) {
	domain = normalize(domain)
	report := Report{Domain: domain}
	if domain == "" {
		return report, ErrInvalidInput
	}

	var errs []error

	spf, err := v.SPF(ctx, domain)
	switch {
	case err != nil:
		errs = append(errs, err)
	default:
		report.SPF = spf
		for _, inc := range includes {
			if !spfIncludes(spf, inc) {
				errs = append(errs, fmt.Errorf("%w: %s", ErrSPFIncludeMissing, inc))
			}
		}
	}

	dmarc, err := v.DMARC(ctx, domain)
	if err != nil {
		errs = append(errs, err)
	} else {
		report.DMARC = dmarc
	}

	return report, errors.Join(errs...)
}

// SPF returns the SPF policy published on domain.
func (v *Verifier) SPF(ctx context.Context, domain string) (string, error) {
	return v.find(ctx, normalize(domain), spfPrefix, ErrSPFNotFound)
}

// DMARC returns the DMARC policy published on _dmarc.<domain>.
func (v *Verifier) DMARC(ctx context.Context, domain string) (string, error) {
	return v.find(ctx, dmarcLabel+normalize(domain), dmarcPrefix, ErrDMARCNotFound)
}

// VerifyOwnership checks that a TXT record on domain contains token.
func (v *Verifier) VerifyOwnership(ctx context.Context, domain, token string) error {
	domain = normalize(domain)
	token = strings.TrimSpace(token)
	if domain == "" || token == "" {
		return ErrInvalidInput
	}

	records, err := v.lookup(ctx, domain, ErrDomainNotVerified)
	if err != nil {
		return err
	}
	for _, record := range records {
		if strings.Contains(record, token) {
			return nil
		}
	}
	return ErrDomainNotVerified
}

func (v *Verifier) find(ctx context.Context, name, prefix string, notFound error) (string, error) {
	records, err := v.lookup(ctx, name, notFound)
	if err != nil {
		return "", err
	}
	for _, record := range records {
		r := strings.TrimSpace(record)
		if len(r) >= len(prefix) && strings.EqualFold(r[:len(prefix)], prefix) &&
			(len(r) == len(prefix) || r[len(prefix)] == ' ' || r[len(prefix)] == ';') {
			return r, nil
		}
	}
	return "", notFound
}

func (v *Verifier) lookup(ctx context.Context, name string, notFound error) ([]string, error) {
	if name == "" {
		return nil, ErrInvalidInput
	}
	records, err := v.resolver.LookupTXT(ctx, name)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return nil, notFound
		}
		return nil, fmt.Errorf("%w: %v", ErrDNSLookupFailed, err)
	}
	return records, nil
}

func spfIncludes(spf, domain string) bool {
	want := "include:" + normalize(domain)
	for field := range strings.FieldsSeq(strings.ToLower(spf)) {
		if strings.TrimLeft(field, "+~?") == want {
			return true
		}
	}
	return false
}

func normalize(domain string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(domain)), ".")
}
