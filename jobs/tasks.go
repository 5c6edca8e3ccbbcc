package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/archivault/archivault/internal/audit"
	"github.com/archivault/archivault/internal/rbac"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskCatalogCheck re-validates the permission catalog against the
	// seeded table, surfacing drift as configuration warnings.
	TaskCatalogCheck = "rbac:catalog_check"
	// TaskAuditScan checks that the best-effort audit pipeline kept
	// writing recently; a silent pipeline means dropped events.
	TaskAuditScan = "audit:pipeline_scan"
)

// NewCatalogCheckTask constructs the catalog check task.
func NewCatalogCheckTask() *asynq.Task {
	return asynq.NewTask(TaskCatalogCheck, nil)
}

// NewAuditScanTask constructs the audit pipeline scan task.
func NewAuditScanTask() *asynq.Task {
	return asynq.NewTask(TaskAuditScan, nil)
}

// CatalogCheckHandler runs the permission catalog validation.
func CatalogCheckHandler(svc *rbac.Service) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		return svc.ValidateCatalog(ctx)
	}
}

// AuditScanHandler logs per-kind audit volumes over the scan window and
// warns when nothing was written at all.
func AuditScanHandler(repo *audit.Repository, window time.Duration, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		counts, err := repo.KindCountsSince(ctx, time.Now().Add(-window))
		if err != nil {
			return err
		}
		var total int64
		for kind, n := range counts {
			total += n
			logger.Info("audit volume", slog.String("kind", kind), slog.Int64("count", n))
		}
		if total == 0 {
			logger.Warn("no audit events written in scan window",
				slog.Duration("window", window))
		}
		return nil
	}
}
