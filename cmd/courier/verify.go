package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/courier/pkg/dnsverify"
)

func newVerifyCommand(open opener, resolver dnsverify.Resolver) *cobra.Command {
	var (
		domain   string
		includes []string
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check the provider credentials without sending",
		Long: "Check the provider credentials without sending. With --domain, also check " +
			"that the sending domain publishes SPF and DMARC policies.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if err := a.Client().Verify(cmd.Context()); err != nil {
				return fmt.Errorf("provider verification failed: %w", err)
			}
			fmt.Fprintln(out, "provider: ok")

			if domain == "" {
				return nil
			}
			report, err := dnsverify.New(dnsverify.WithResolver(resolver)).CheckSender(cmd.Context(), domain, includes...)
			fmt.Fprintf(out, "spf: %s\n", orMissing(report.SPF))
			fmt.Fprintf(out, "dmarc: %s\n", orMissing(report.DMARC))
			if err != nil {
				return fmt.Errorf("domain %s: %w", report.Domain, err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&domain, "domain", "", "sending domain to check")
	cmd.Flags().StringSliceVar(&includes, "spf-include", nil, "domain the SPF policy must include, repeatable")
	return cmd
}

func orMissing(s string) string {
	if s == "" {
		return "missing"
	}
	return s
}
