package dnsverify_test

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/courier/pkg/dnsverify"
)

type fakeResolver map[string][]string

func (f fakeResolver) LookupTXT(_ context.Context, name string) ([]string, error) {
	if name == "broken.test" || name == "_dmarc.broken.test" {
		return nil, errors.New("connection refused")
	}
	records, ok := f[name]
	if !ok {
		return nil, &net.DNSError{Err: "no such host", Name: name, IsNotFound: true}
	}
	return records, nil
}

var zone = fakeResolver{
	"acme.test":        {"google-site-verification=abc", "v=spf1 include:_spf.google.com ~all", "courier-verify=acme"},
	"_dmarc.acme.test": {"v=DMARC1; p=quarantine"},
	"spfonly.test":     {"V=SPF1 -all"},
	"spfish.test":      {"v=spf10 nope"},
}

func TestCheckSender(t *testing.T) {
	t.Parallel()

	v := dnsverify.New(dnsverify.WithResolver(zone))

	tests := []struct {
		name     string
		domain   string
		includes []string
		want     []error
		spf      string
		dmarc    string
	}{
		{name: "complete", domain: " ACME.test. ", includes: []string{"_spf.google.com"}, spf: "v=spf1 include:_spf.google.com ~all", dmarc: "v=DMARC1; p=quarantine"},
		{name: "missing include", domain: "acme.test", includes: []string{"amazonses.com"}, want: []error{dnsverify.ErrSPFIncludeMissing}, spf: "v=spf1 include:_spf.google.com ~all", dmarc: "v=DMARC1; p=quarantine"},
		{name: "no dmarc", domain: "spfonly.test", want: []error{dnsverify.ErrDMARCNotFound}, spf: "V=SPF1 -all"},
		{name: "prefix lookalike", domain: "spfish.test", want: []error{dnsverify.ErrSPFNotFound, dnsverify.ErrDMARCNotFound}},
		{name: "nothing published", domain: "void.test", want: []error{dnsverify.ErrSPFNotFound, dnsverify.ErrDMARCNotFound}},
		{name: "resolver failure", domain: "broken.test", want: []error{dnsverify.ErrDNSLookupFailed}},
		{name: "empty", domain: "  ", want: []error{dnsverify.ErrInvalidInput}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			report, err := v.CheckSender(context.Background(), tt.domain, tt.includes...)
			if len(tt.want) == 0 {
				require.NoError(t, err)
			}
			for _, want := range tt.want {
				require.ErrorIs(t, err, want)
			}
			require.Equal(t, tt.spf, report.SPF)
			require.Equal(t, tt.dmarc, report.DMARC)
		})
	}
}

func TestVerifyOwnership(t *testing.T) {
	t.Parallel()

	v := dnsverify.New(dnsverify.WithResolver(zone))
	ctx := context.Background()

	require.NoError(t, v.VerifyOwnership(ctx, "acme.test", "courier-verify=acme"))
	require.ErrorIs(t, v.VerifyOwnership(ctx, "acme.test", "courier-verify=globex"), dnsverify.ErrDomainNotVerified)
	require.ErrorIs(t, v.VerifyOwnership(ctx, "void.test", "x"), dnsverify.ErrDomainNotVerified)
	require.ErrorIs(t, v.VerifyOwnership(ctx, "broken.test", "x"), dnsverify.ErrDNSLookupFailed)
	require.ErrorIs(t, v.VerifyOwnership(ctx, "", "x"), dnsverify.ErrInvalidInput)
	require.ErrorIs(t, v.VerifyOwnership(ctx, "acme.test", " "), dnsverify.ErrInvalidInput)
}
