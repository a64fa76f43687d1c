// Package tasks contains the scheduled maintenance tasks.
package tasks

import (
	"context"

	"github.com/kikootwo/readmeabook/internal/orchestrator"
	"github.com/kikootwo/readmeabook/internal/scheduler"
)

// NewRecoveryTask periodically re-enqueues work for requests that are stuck
// in an in-progress status with no job in flight, catching anything the
// startup recovery pass missed.
func NewRecoveryTask(orch *orchestrator.Orchestrator) scheduler.TaskConfig {
	return scheduler.TaskConfig{
		ID:          "pipeline-recovery",
		Name:        "Pipeline Recovery",
		Description: "Re-enqueues in-progress requests that have no active job",
		Cron:        "*/15 * * * *",
		Func: func(ctx context.Context) error {
			return orch.Recover(ctx)
		},
	}
}
