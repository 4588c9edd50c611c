package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/courier/pkg/mailer"
)

func newTemplatesCommand(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Inspect loaded templates",
	}
	cmd.AddCommand(newTemplatesListCommand(open), newTemplatesRenderCommand(open))
	return cmd
}

func newTemplatesListCommand(open opener) *cobra.Command {
	var tenant string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tenants and their template types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			reg := a.Service().Registry()
			tenants := reg.ListTenants()
			if tenant != "" {
				tenants = []string{tenant}
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TENANT\tTYPE\tPRIORITY\tFORMAT\tPLACEHOLDERS")
			for _, t := range tenants {
				for _, typ := range reg.ListTypes(t) {
					tpl, ok := reg.TryGet(t, typ)
					if !ok {
						continue
					}
					format := "text"
					if tpl.IsHTML() {
						format = "html"
					}
					names := mailer.Placeholders(tpl.Subject() + "\n" + tpl.Body())
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t, typ, tpl.Priority(), format, strings.Join(names, ","))
				}
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&tenant, "tenant", "", "only list this tenant")
	return cmd
}

func newTemplatesRenderCommand(open opener) *cobra.Command {
	var f messageFlags

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Print the message a send would deliver",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			model, err := parseData(f.data)
			if err != nil {
				return err
			}
			opts, err := f.options()
			if err != nil {
				return err
			}

			a, err := open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			msg, err := a.Service().Preview(f.tenant, f.template, f.to, model, opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "From: %s\n", msg.From)
			if len(msg.To) > 0 {
				fmt.Fprintf(out, "To: %s\n", strings.Join(msg.To, ", "))
			}
			fmt.Fprintf(out, "Subject: %s\n", msg.Subject)
			fmt.Fprintf(out, "Priority: %s\n\n", msg.Priority)
			fmt.Fprintln(out, msg.Body)
			return nil
		},
	}
	f.bind(cmd)
	return cmd
}
