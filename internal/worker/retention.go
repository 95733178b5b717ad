package worker

import (
	"context"

	"github.com/prakashgbid/confledger/internal/domain/version"
	"github.com/prakashgbid/confledger/internal/pkg/logger"
	"github.com/robfig/cron/v3"
)

// RetentionWorker periodically prunes old versions from the ledger on a cron
// schedule. The current version, tagged versions and recent versions are
// always preserved by the cleanup itself.
type RetentionWorker struct {
	ledger   version.Service
	schedule string
	keep     int
	days     int
	cron     *cron.Cron
	logger   *logger.Logger
}

// NewRetentionWorker creates a retention worker. schedule is a standard cron
// expression; keep is the minimum number of recent versions retained and days
// the minimum age before a version is eligible for removal.
func NewRetentionWorker(ledger version.Service, schedule string, keep, days int, log *logger.Logger) *RetentionWorker {
	return &RetentionWorker{
		ledger:   ledger,
		schedule: schedule,
		keep:     keep,
		days:     days,
		cron:     cron.New(),
		logger:   log.With("worker", "retention"),
	}
}

// Start registers the cleanup job and starts the scheduler
func (w *RetentionWorker) Start(ctx context.Context) error {
	_, err := w.cron.AddFunc(w.schedule, func() {
		w.runOnce(ctx)
	})
	if err != nil {
		return err
	}
	w.cron.Start()
	w.logger.WithFields(map[string]interface{}{
		"schedule": w.schedule,
		"keep":     w.keep,
		"days":     w.days,
	}).Info("Retention worker started")
	return nil
}

// Stop stops the scheduler and waits for a running job to finish
func (w *RetentionWorker) Stop() {
	stopCtx := w.cron.Stop()
	<-stopCtx.Done()
	w.logger.Info("Retention worker stopped")
}

// RunOnce triggers a single cleanup outside the schedule
func (w *RetentionWorker) RunOnce(ctx context.Context) (int, error) {
	return w.ledger.CleanupVersions(ctx, w.keep, w.days)
}

func (w *RetentionWorker) runOnce(ctx context.Context) {
	removed, err := w.ledger.CleanupVersions(ctx, w.keep, w.days)
	if err != nil {
		w.logger.ErrorWithErr(err, "Scheduled cleanup failed")
		return
	}
	if removed > 0 {
		w.logger.WithFields(map[string]interface{}{
			"removed": removed,
		}).Info("Scheduled cleanup removed versions")
	}
}
