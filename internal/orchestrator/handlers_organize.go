package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kikootwo/readmeabook/internal/history"
	"github.com/kikootwo/readmeabook/internal/organizer"
	"github.com/kikootwo/readmeabook/internal/request"
)

// handleOrganize moves the finished download into the library and triggers a
// library rescan. On an awaiting_import retry the download path is looked up
// fresh from the client, since the stored path may predate a client-side
// move.
func (o *Orchestrator) handleOrganize(ctx context.Context, job *Job, req *request.Request) (request.Outcome, error) {
	item, err := o.media.Get(ctx, req.MediaItemID)
	if err != nil {
		return request.Outcome{}, fmt.Errorf("failed to load media item: %w", err)
	}

	entry, err := o.history.GetSelected(ctx, req.ID)
	if err != nil {
		if errors.Is(err, history.ErrNoSelection) {
			return request.Outcome{
				Stage:   request.StageOrganize,
				Kind:    request.OutcomeFailed,
				Message: "no download on record to organize",
			}, nil
		}
		return request.Outcome{}, err
	}

	savePath := entry.SavePath
	if o.client != nil && entry.ExternalID != "" {
		if state, err := o.client.Status(ctx, entry.ExternalID); err == nil && state.SavePath != "" {
			savePath = state.SavePath
			if savePath != entry.SavePath {
				if err := o.history.SetSavePath(ctx, entry.ID, savePath); err != nil {
					return request.Outcome{}, err
				}
			}
		}
	}

	if err := o.requests.IncrementImportAttempts(ctx, req.ID); err != nil {
		return request.Outcome{}, err
	}

	kind := organizer.KindAudiobook
	if req.Type == request.MediaTypeEbook {
		kind = organizer.KindEbook
	}

	result, err := o.organizer.Organize(ctx, organizer.Input{
		Author:   item.Author,
		Title:    item.Title,
		SavePath: savePath,
		Kind:     kind,
	})
	if err != nil {
		if errors.Is(err, organizer.ErrNoMediaFiles) || errors.Is(err, organizer.ErrNoSavePath) {
			return request.Outcome{
				Stage:   request.StageOrganize,
				Kind:    request.OutcomeFilesMissing,
				Message: err.Error(),
			}, nil
		}
		return request.Outcome{}, fmt.Errorf("organize failed: %w", err)
	}

	o.recordEvent(ctx, req.ID, history.EventTypeImported, map[string]any{
		"destDir": result.DestDir,
		"files":   result.MovedFiles,
	})

	if !o.abs.Configured() {
		return request.Outcome{Stage: request.StageOrganize, Kind: request.OutcomeSucceeded}, nil
	}

	// A rescan failure is not an import failure; the files are in place.
	rescanCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := o.abs.Rescan(rescanCtx); err != nil {
		o.logger.Warn().Err(err).Int64("requestId", req.ID).Msg("Library rescan failed")
	}

	return request.Outcome{Stage: request.StageOrganize, Kind: request.OutcomeImported}, nil
}
