package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/treeverse/commitgraph/pkg/logging"
)

const metricsShutdownTimeout = 5 * time.Second

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Update every locally known repository from its masters",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		ctx = logging.AddFields(ctx, logging.Fields{
			logging.ServiceNameFieldKey: "sync",
			logging.ServerIDFieldKey:    cfg.Node.ServerID.String(),
		})
		logger := logging.FromContext(ctx)

		_, n, _, closeStore := openNode(ctx, cfg)
		defer closeStore()

		loop := mustFlagBool(cmd.Flags(), "loop")
		if !loop {
			if err := n.Sync(ctx); err != nil {
				logger.WithError(err).Error("Sync failed")
				closeStore()
				os.Exit(1)
			}
			return
		}

		if addr := mustFlagString(cmd.Flags(), "metrics-address"); addr != "" {
			srv := serveMetrics(ctx, addr)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}
		logger.WithField("interval", cfg.Node.SyncInterval).Info("Sync loop started")
		err := n.Run(ctx, cfg.Node.SyncInterval)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).Error("Sync loop failed")
			return
		}
		logger.Info("Sync loop stopped")
	},
}

func serveMetrics(ctx context.Context, addr string) *http.Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: time.Minute,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.FromContext(ctx).WithError(err).WithField("address", addr).Error("Metrics server failed")
		}
	}()
	return srv
}

//nolint:gochecknoinits
func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().Bool("loop", false, "keep syncing every node.sync_interval until interrupted")
	syncCmd.Flags().String("metrics-address", "", "serve prometheus metrics on this address while looping")
}
