// Command contextbot watches chat channels and asks for context when a thread
// runs long.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"contextbot/internal/app"
	"contextbot/internal/clock"
	"contextbot/internal/config"
	"contextbot/internal/rules"
)

var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var cfgPath string

	cmd := &cobra.Command{
		Use:           "contextbot",
		Short:         "Ask chat channels to contextualize long threads",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./config.yaml", "config file (YAML or JSON)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the bot until interrupted",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return run(cmd.Context(), cfgPath)
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Check the config and print the rule tree",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return validate(cmd.OutOrStdout(), cfgPath)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "contextbot version %s (build: %s)\n", Version, BuildTime)
			},
		},
	)
	return cmd
}

func run(parent context.Context, cfgPath string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgPath)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}

func validate(w io.Writer, cfgPath string) error {
	cfg, err := config.NewManager(cfgPath).Parse()
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return errors.Join(errors.New("config is invalid"), err)
	}
	spec, err := cfg.Rules.Spec()
	if err != nil {
		return err
	}
	rule, err := rules.Build(spec, clock.System(), clock.NewRand(1))
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "config ok: %d channel(s), %d reply message(s)\nrules: %s\n",
		len(cfg.Channels), len(cfg.Replies()), rule)
	return nil
}
