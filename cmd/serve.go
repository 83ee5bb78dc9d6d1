package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitekb-crawler/internal/api"
	"github.com/JakeFAU/sitekb-crawler/internal/app"
	"github.com/JakeFAU/sitekb-crawler/internal/config"
	"github.com/JakeFAU/sitekb-crawler/internal/metrics"
)

func newServeCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Starts the HTTP API. The listen port comes from --port, then the PORT
environment variable, then server.port in the configuration.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			cfg := rt.cfg
			if p := os.Getenv("PORT"); p != "" && !cmd.Flags().Changed("port") {
				parsed, err := strconv.Atoi(p)
				if err != nil {
					return fmt.Errorf("invalid PORT %q: %w", p, err)
				}
				cfg.Server.Port = parsed
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			return runServer(cmd.Context(), cfg, rt.logger)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port")
	return cmd
}

func runServer(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	svc, err := app.New(ctx, cfg, logger.Named("app"))
	if err != nil {
		return fmt.Errorf("init application: %w", err)
	}
	defer func() {
		if cerr := svc.Close(); cerr != nil {
			logger.Warn("failed to close application", zap.Error(cerr))
		}
	}()

	apiServer := api.NewServer(svc, serverOptions(cfg), logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server started",
			zap.Int("port", cfg.Server.Port),
			zap.String("version", Version),
			zap.String("storage", cfg.Storage.Backend),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}

func serverOptions(cfg config.Config) api.Options {
	opts := api.Options{
		Defaults:          cfg.DefaultRequest(),
		APIKey:            cfg.API.APIKey,
		BlockPrivateHosts: cfg.API.BlockPrivateHosts,
		MaxUploadBytes:    int64(cfg.API.MaxUploadMB) << 20,
		Build: api.BuildInfo{
			Version:   Version,
			GitSHA:    GitSHA,
			BuildTime: BuildTime,
		},
	}
	if cfg.API.BlockPrivateHosts {
		opts.Resolver = net.DefaultResolver
	}
	// Leave room for bundling after the longest allowed crawl.
	if budget := cfg.Limits().MaxBudget; budget > 0 {
		opts.RequestTimeout = budget + time.Minute
	}
	return opts
}
