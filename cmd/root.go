// Package cmd defines the CLI commands for the infograph executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/research-infograph/internal/app"
	"github.com/JakeFAU/research-infograph/internal/config"
	"github.com/JakeFAU/research-infograph/internal/logging"
)

type appKeyType string

const appKey appKeyType = "app"

// newApp is the application factory; tests swap it to observe wiring.
var newApp = app.New

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:           "infograph",
		Short:         "Research assistant that turns a prompt into a sourced infographic.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `infograph searches the web for a research prompt, fetches and summarizes
the most relevant sources, and renders a deterministic SVG infographic that
cites them. Run "serve" for the HTTP API and worker pool, or "research" for a
single job in the foreground.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newResearchCmd())
	return cmd
}

// withApp resolves the App built by the root pre-run hook and closes it once
// run returns, whether or not run failed.
func withApp(run func(cmd *cobra.Command, a *app.App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) (err error) {
		appInstance, err := resolveApp(cmd.Context())
		if err != nil {
			return err
		}
		defer func() {
			err = errors.Join(err, appInstance.Close())
			_ = appInstance.Logger.Sync() //nolint:errcheck // stderr sync fails on some terminals
		}()
		return run(cmd, appInstance)
	}
}

func resolveApp(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "infograph: %v\n", err)
		os.Exit(1)
	}
}
