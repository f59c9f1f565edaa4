package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/MrEthical07/idpcore/internal/httpapi"
	"github.com/MrEthical07/idpcore/metrics/export/prometheus"
	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the admin HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTP.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := openRuntime(ctx, cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()

			var metrics http.Handler
			if cfg.Metrics.Enabled {
				metrics = prometheus.NewPrometheusExporter(rt.engine).
					WithErrorHandler(func(err error) {
						rt.log.Warn(ctx, "metrics scrape write failed", "error", err)
					}).
					Handler()
			}
			srv := &http.Server{
				Addr:              cfg.HTTP.Addr,
				Handler:           httpapi.NewRouter(httpapi.NewHandler(rt.engine, rt.log, metrics)),
				ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
			}

			errCh := make(chan error, 1)
			go func() {
				rt.log.Info(ctx, "admin api listening", "addr", cfg.HTTP.Addr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
			defer cancel()
			rt.log.Info(shutdownCtx, "shutting down")
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides HTTP.Addr)")
	return cmd
}
