package tasks

import (
	"context"
	"fmt"
	"time"
)

const retentionTimeout = 2 * time.Minute

// newMessageRetentionTask deletes recorded messages older than
// database.retention_days. A zero retention keeps everything.
func newMessageRetentionTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "message_retention")

	return func(ctx context.Context) error {
		days := deps.Config.Database.RetentionDays
		if days <= 0 {
			log.DebugContext(ctx, "Message retention disabled")
			return nil
		}

		timeoutCtx, cancel := context.WithTimeout(ctx, retentionTimeout)
		defer cancel()

		cutoff := time.Now().AddDate(0, 0, -days)
		deleted, err := deps.Store.DeleteMessagesBefore(timeoutCtx, cutoff)
		if err != nil {
			log.ErrorContext(ctx, "Message retention task failed", "error", err)
			return fmt.Errorf("message retention failed: %w", err)
		}

		log.InfoContext(ctx, "Message retention task completed", "deleted", deleted, "cutoff", cutoff.Format(time.RFC3339))
		return nil
	}
}
