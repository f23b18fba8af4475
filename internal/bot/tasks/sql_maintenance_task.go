package tasks

import (
	"context"
	"fmt"
	"time"
)

const maintenanceTimeout = 10 * time.Minute

// newSQLMaintenanceTask compacts the message store. Retention deletes leave
// free pages behind, so this runs after message_retention in the default
// schedule.
func newSQLMaintenanceTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "sql_maintenance")

	return func(ctx context.Context) error {
		timeoutCtx, cancel := context.WithTimeout(ctx, maintenanceTimeout)
		defer cancel()

		started := time.Now()
		if err := deps.Store.RunSQLMaintenance(timeoutCtx); err != nil {
			log.ErrorContext(ctx, "Message store compaction failed", "error", err, "duration", time.Since(started))
			return fmt.Errorf("sql maintenance failed: %w", err)
		}

		log.InfoContext(ctx, "Message store compacted", "duration", time.Since(started))
		return nil
	}
}
