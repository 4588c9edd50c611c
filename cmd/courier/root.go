package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/courier/internal/app"
	"github.com/dmitrymomot/courier/internal/config"
	"github.com/dmitrymomot/courier/pkg/dnsverify"
	"github.com/dmitrymomot/courier/pkg/logger"
)

// cli carries what commands share. Zero values select the defaults.
type cli struct {
	resolver dnsverify.Resolver
	envFile  string
	appOpts  []app.Option
}

func newRootCommand(c cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "courier",
		Short:         "Templated multi-tenant email service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "dotenv file loaded before the environment")

	open := c.open
	root.AddCommand(
		newServeCommand(open),
		newSendCommand(open),
		newTemplatesCommand(open),
		newVerifyCommand(open, c.resolver),
	)
	return root
}

type opener func(cmd *cobra.Command) (*app.App, error)

// open loads the configuration and builds the application. Logs go to
// stderr so command output stays machine readable.
func (c *cli) open(cmd *cobra.Command) (*app.App, error) {
	var files []string
	if c.envFile != "" {
		files = append(files, c.envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return nil, err
	}

	log, err := logger.NewFromConfig(cfg.Log, cmd.ErrOrStderr(), logger.DefaultExtractors()...)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	opts := append([]app.Option{app.WithLogger(log)}, c.appOpts...)
	return app.New(cmd.Context(), cfg, opts...)
}

func newServeCommand(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)

			a, err := open(cmd)
			if err != nil {
				return err
			}
			return a.Run(ctx)
		},
	}
}
