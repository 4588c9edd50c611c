package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/courier/pkg/mailer"
)

type messageFlags struct {
	tenant   string
	template string
	priority string
	to       []string
	data     []string
}

func (f *messageFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.tenant, "tenant", "", "tenant key (required)")
	cmd.Flags().StringVar(&f.template, "template", "", "template type (required)")
	cmd.Flags().StringSliceVar(&f.to, "to", nil, "recipient address, repeatable")
	cmd.Flags().StringArrayVar(&f.data, "data", nil, "model value as key=value, repeatable")
	cmd.Flags().StringVar(&f.priority, "priority", "", "priority override: low, normal, high or urgent")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("template")
}

func (f *messageFlags) options() (*mailer.SendOptions, error) {
	if f.priority == "" {
		return nil, nil
	}
	p, err := mailer.ParsePriority(f.priority)
	if err != nil {
		return nil, err
	}
	return &mailer.SendOptions{Priority: &p}, nil
}

// parseData turns key=value pairs into a model. Values that parse as JSON
// numbers or booleans keep that type so format specifiers apply to them.
func parseData(pairs []string) (mailer.Map, error) {
	m := make(mailer.Map, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --data %q: expected key=value", pair)
		}
		m[key] = typed(value)
	}
	return m, nil
}

func typed(v string) any {
	if v == "true" || v == "false" {
		return v == "true"
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return v
}

func newSendCommand(open opener) *cobra.Command {
	var f messageFlags

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Render a template and deliver it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(f.to) == 0 {
				return fmt.Errorf("at least one --to recipient is required")
			}
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

			result := a.Service().SendTemplate(cmd.Context(), f.tenant, f.template, f.to, model, opts)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return err
			}
			if !result.OK() {
				return fmt.Errorf("send failed: %s", result.Code())
			}
			return nil
		},
	}
	f.bind(cmd)
	return cmd
}
