package tasks

import (
	"context"

	"github.com/rs/zerolog"

	downloadtypes "github.com/kikootwo/readmeabook/internal/downloader/types"
	"github.com/kikootwo/readmeabook/internal/indexer"
	"github.com/kikootwo/readmeabook/internal/scheduler"
)

// NewClientHealthTask checks connectivity to the download client and every
// indexer source, logging failures so operators see broken integrations
// before a request trips over them.
func NewClientHealthTask(client downloadtypes.Client, aggregator *indexer.Aggregator, logger zerolog.Logger) scheduler.TaskConfig {
	log := logger.With().Str("component", "health").Logger()

	return scheduler.TaskConfig{
		ID:          "client-health",
		Name:        "Client Health Check",
		Description: "Verifies connectivity to the download client and indexer sources",
		Cron:        "*/30 * * * *",
		RunOnStart:  true,
		Func: func(ctx context.Context) error {
			if client != nil {
				if err := client.Test(ctx); err != nil {
					log.Warn().Err(err).
						Str("client", string(client.Type())).
						Msg("Download client health check failed")
				}
			}

			for source, err := range aggregator.TestSources(ctx) {
				if err != nil {
					log.Warn().Err(err).Str("source", source).
						Msg("Indexer source health check failed")
				}
			}
			return nil
		},
	}
}
