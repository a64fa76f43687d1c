package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"

	notifytypes "github.com/kikootwo/readmeabook/internal/notification/types"
	"github.com/kikootwo/readmeabook/internal/request"
)

// handleNotify delivers the notification carried in the job payload.
func (o *Orchestrator) handleNotify(ctx context.Context, job *Job, req *request.Request) (request.Outcome, error) {
	var payload NotifyPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return request.Outcome{}, fmt.Errorf("failed to decode notify payload: %w", err)
	}

	item, err := o.media.Get(ctx, req.MediaItemID)
	if err != nil {
		return request.Outcome{}, fmt.Errorf("failed to load media item: %w", err)
	}

	if err := o.notifier.Dispatch(ctx, notifytypes.Event{
		Type:      string(payload.Event),
		RequestID: req.ID,
		Title:     item.Title,
		Author:    item.Author,
		Message:   payload.Message,
	}); err != nil {
		return request.Outcome{}, err
	}

	return request.Outcome{Stage: request.StageNotify, Kind: request.OutcomeSucceeded}, nil
}
