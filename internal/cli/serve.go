package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prakashgbid/confledger/internal/pkg/metrics"
	"github.com/prakashgbid/confledger/internal/worker"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the retention worker and metrics listener until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			var retention *worker.RetentionWorker
			if app.cfg.Ledger.CleanupSchedule != "" {
				retention = worker.NewRetentionWorker(
					app.ledger,
					app.cfg.Ledger.CleanupSchedule,
					app.cfg.Ledger.RetentionKeep,
					app.cfg.Ledger.RetentionDays,
					app.log,
				)
				if err := retention.Start(ctx); err != nil {
					return fmt.Errorf("start retention worker: %w", err)
				}
				defer retention.Stop()
			}

			var srv *http.Server
			if app.cfg.Metrics.Enabled {
				srv = &http.Server{
					Addr:         app.cfg.Metrics.Addr,
					Handler:      metrics.Handler(),
					ReadTimeout:  10 * time.Second,
					WriteTimeout: 10 * time.Second,
				}
				go func() {
					app.log.WithFields(map[string]interface{}{
						"addr": srv.Addr,
					}).Info("Metrics listener started")
					if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						app.log.ErrorWithErr(err, "Metrics listener failed")
						cancel()
					}
				}()
			}

			if retention == nil && srv == nil {
				return fmt.Errorf("nothing to serve, set LEDGER_CLEANUP_SCHEDULE or METRICS_ENABLED")
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			select {
			case sig := <-sigCh:
				app.log.WithFields(map[string]interface{}{
					"signal": sig.String(),
				}).Info("Shutting down")
			case <-ctx.Done():
			}

			if srv != nil {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					app.log.ErrorWithErr(err, "Metrics listener shutdown failed")
				}
			}
			return nil
		},
	}
}
