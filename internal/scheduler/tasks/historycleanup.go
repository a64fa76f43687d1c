package tasks

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/kikootwo/readmeabook/internal/history"
	"github.com/kikootwo/readmeabook/internal/orchestrator"
	"github.com/kikootwo/readmeabook/internal/scheduler"
)

// retention windows in days.
const (
	eventRetentionDays = 90
	jobRetentionDays   = 30
)

// NewHistoryCleanupTask prunes old request events and finished jobs.
func NewHistoryCleanupTask(historyStore *history.Store, jobStore *orchestrator.JobStore, logger zerolog.Logger) scheduler.TaskConfig {
	log := logger.With().Str("component", "cleanup").Logger()

	return scheduler.TaskConfig{
		ID:          "history-cleanup",
		Name:        "History Cleanup",
		Description: "Prunes old request events and finished jobs",
		Cron:        "0 4 * * *",
		Func: func(ctx context.Context) error {
			events, err := historyStore.DeleteEventsOlderThan(ctx, eventRetentionDays)
			if err != nil {
				return err
			}
			jobs, err := jobStore.DeleteFinishedOlderThan(ctx, jobRetentionDays)
			if err != nil {
				return err
			}
			if events > 0 || jobs > 0 {
				log.Info().Int64("events", events).Int64("jobs", jobs).
					Msg("Pruned history")
			}
			return nil
		},
	}
}
