// Package dnsverify checks the DNS records a sending domain needs before
// mail from it is accepted by receivers.
//
// Three checks are available: an SPF policy on the domain itself, a DMARC
// policy on _dmarc.<domain>, and an ownership token published as a TXT
// record. CheckSender runs the first two and reports every problem at once:
//
//	v := dnsverify.New()
//	report, err := v.CheckSender(ctx, "acme.com", "_spf.google.com")
//	if err != nil {
//		// errors.Is(err, dnsverify.ErrSPFNotFound), ...
//	}
//	fmt.Println(report.SPF, report.DMARC)
//
// Errors:
//
//   - ErrInvalidInput: empty domain or token
//   - ErrDNSLookupFailed: resolver or network failure
//   - ErrSPFNotFound, ErrDMARCNotFound: the policy record is missing
//   - ErrSPFIncludeMissing: the SPF policy does not authorise a provider
//   - ErrDomainNotVerified: TXT records exist but none contains the token
package dnsverify
