// Package cmd defines the sitekb-crawler command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitekb-crawler/internal/config"
	"github.com/JakeFAU/sitekb-crawler/internal/logging"
)

// Build metadata, set with -ldflags "-X github.com/JakeFAU/sitekb-crawler/cmd.Version=...".
var (
	Version   = "dev"
	GitSHA    = "unknown"
	BuildTime = "unknown"
)

type runtimeKeyType struct{}

// runtime is what every subcommand receives from the root pre-run hook.
type runtime struct {
	cfg    config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	var (
		cfgFile  string
		logLevel string
		devLogs  bool
	)

	cmd := &cobra.Command{
		Use:   "sitekb-crawler",
		Short: "Crawl documentation sites into Markdown knowledge bases.",
		Long: `sitekb-crawler walks a site from a seed URL, extracts the readable content
of each page as Markdown and bundles the result as a single document or a
zip archive. It runs as an HTTP service or as one-shot commands.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Logging.Level = logLevel
			}
			if cmd.Flags().Changed("dev-logs") {
				cfg.Logging.Development = devLogs
			}
			logger, err := logging.New(logging.Options{
				Development: cfg.Logging.Development,
				Level:       cfg.Logging.Level,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			ctx := context.WithValue(cmd.Context(), runtimeKeyType{}, &runtime{cfg: cfg, logger: logger})
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if rt, err := resolveRuntime(cmd.Context()); err == nil {
				_ = rt.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&devLogs, "dev-logs", false, "human-friendly console logs")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newGenerateCmd())
	cmd.AddCommand(newPreviewCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func resolveRuntime(ctx context.Context) (*runtime, error) {
	if ctx == nil {
		return nil, errors.New("command context not initialized")
	}
	rt, ok := ctx.Value(runtimeKeyType{}).(*runtime)
	if !ok || rt == nil {
		return nil, errors.New("command runtime not initialized")
	}
	return rt, nil
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
