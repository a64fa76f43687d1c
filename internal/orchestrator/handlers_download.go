package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	downloadtypes "github.com/kikootwo/readmeabook/internal/downloader/types"
	"github.com/kikootwo/readmeabook/internal/history"
	"github.com/kikootwo/readmeabook/internal/request"
)

// handleDownload submits the selected release to the download client and
// polls it to completion. Re-runs are idempotent: a previously submitted
// download is resumed by its stored external ID instead of submitted again.
func (o *Orchestrator) handleDownload(ctx context.Context, job *Job, req *request.Request) (request.Outcome, error) {
	if o.client == nil {
		return request.Outcome{
			Stage:   job.Type,
			Kind:    request.OutcomeFailed,
			Message: downloadtypes.ErrNotConfigured.Error(),
		}, nil
	}

	entry, err := o.history.GetSelected(ctx, req.ID)
	if err != nil {
		if errors.Is(err, history.ErrNoSelection) {
			return request.Outcome{
				Stage:   job.Type,
				Kind:    request.OutcomeFailed,
				Message: "no candidate selected for download",
			}, nil
		}
		return request.Outcome{}, err
	}

	externalID := entry.ExternalID
	if externalID == "" {
		// Direct downloads carry no indexer; the user's URL is grab-ready.
		grabURL := entry.DownloadURL
		if entry.IndexerID != 0 {
			grabURL, err = o.aggregator.Resolve(ctx, entry.IndexerID, entry.DownloadURL)
			if err != nil {
				return request.Outcome{}, fmt.Errorf("failed to resolve download url: %w", err)
			}
		}

		externalID, err = o.client.Submit(ctx, downloadtypes.SubmitRequest{
			URL:  grabURL,
			Name: entry.Title,
		})
		if err != nil {
			return request.Outcome{}, fmt.Errorf("failed to submit download: %w", err)
		}
		if err := o.history.SetExternalID(ctx, entry.ID, externalID); err != nil {
			return request.Outcome{}, err
		}
	}

	deadline := time.Now().Add(o.cfg.DownloadTimeout)
	for {
		select {
		case <-ctx.Done():
			return request.Outcome{}, ctx.Err()
		case <-time.After(o.cfg.DownloadPollInterval):
		}

		// A cancel action may have landed while we were polling.
		current, err := o.requests.Get(ctx, req.ID)
		if err != nil {
			return request.Outcome{}, err
		}
		if current.Status == request.StatusCancelled {
			if err := o.client.Remove(ctx, externalID, true); err != nil {
				o.logger.Warn().Err(err).Int64("requestId", req.ID).
					Msg("Failed to remove download for cancelled request")
			}
			return request.Outcome{Stage: job.Type, Kind: request.OutcomeCancelled}, nil
		}

		state, err := o.client.Status(ctx, externalID)
		if err != nil {
			return request.Outcome{}, fmt.Errorf("failed to poll download: %w", err)
		}

		if state.Errored {
			return request.Outcome{
				Stage:   job.Type,
				Kind:    request.OutcomeFailed,
				Message: fmt.Sprintf("download failed: %s", state.Error),
			}, nil
		}

		progress := int(state.Progress)
		if err := o.requests.UpdateProgress(ctx, req.ID, progress); err != nil {
			o.logger.Warn().Err(err).Int64("requestId", req.ID).Msg("Failed to update progress")
		}
		o.broadcastProgress(req.ID, progress)

		if state.Done {
			if state.SavePath != "" {
				if err := o.history.SetSavePath(ctx, entry.ID, state.SavePath); err != nil {
					return request.Outcome{}, err
				}
			}
			return request.Outcome{Stage: job.Type, Kind: request.OutcomeSucceeded}, nil
		}

		if time.Now().After(deadline) {
			return request.Outcome{
				Stage:   job.Type,
				Kind:    request.OutcomeFailed,
				Message: fmt.Sprintf("download timed out after %s", o.cfg.DownloadTimeout),
			}, nil
		}
	}
}
