// Package cmd defines the ingestor command-line interface.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/award-ingestor/internal/config"
	"github.com/JakeFAU/award-ingestor/internal/logging"
	"github.com/JakeFAU/award-ingestor/internal/server"
)

type appKeyType string

const appKey appKeyType = "app"

// builder constructs the application; tests replace it.
var builder = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*server.App, error) {
	return server.Build(ctx, cfg, logger)
}

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	var cfgFile, envFile string

	cmd := &cobra.Command{
		Use:   "ingestor",
		Short: "Ingests grant awards into monthly JSON and Parquet snapshots.",
		Long: `ingestor pulls award records from the grants API one last-modified day at a
time, buckets them by month, writes raw JSON and Parquet copies to object
storage, and upserts a run audit log.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// cobra checks required flags only after this hook returns.
			if err := cmd.ValidateRequiredFlags(); err != nil {
				return err //nolint:wrapcheck
			}
			if err := loadEnvFile(envFile); err != nil {
				return err
			}
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			zap.ReplaceGlobals(logger)

			app, err := builder(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, app))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, JSON or TOML)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before configuration; missing is ignored")

	cmd.AddCommand(newServeCmd(), newRunCmd())
	return cmd
}

// loadEnvFile loads path into the process environment without overriding
// variables that are already set.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func resolveApp(ctx context.Context) (*server.App, error) {
	app, ok := ctx.Value(appKey).(*server.App)
	if !ok || app == nil {
		return nil, errors.New("application services not initialized")
	}
	return app, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
