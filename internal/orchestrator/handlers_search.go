package orchestrator

import (
	"context"
	"fmt"

	"github.com/kikootwo/readmeabook/internal/history"
	"github.com/kikootwo/readmeabook/internal/indexer"
	"github.com/kikootwo/readmeabook/internal/ranking"
	"github.com/kikootwo/readmeabook/internal/request"
)

// handleSearch runs the aggregated search, ranks the results, and either
// auto-selects the top candidate or parks the request for manual selection.
func (o *Orchestrator) handleSearch(ctx context.Context, job *Job, req *request.Request) (request.Outcome, error) {
	item, err := o.media.Get(ctx, req.MediaItemID)
	if err != nil {
		return request.Outcome{}, fmt.Errorf("failed to load media item: %w", err)
	}

	result, err := o.aggregator.Search(ctx, indexer.Query{
		Title:  item.Title,
		Author: item.Author,
	})
	if err != nil {
		return request.Outcome{}, fmt.Errorf("search failed: %w", err)
	}

	kind := ranking.KindAudiobook
	if req.Type == request.MediaTypeEbook {
		kind = ranking.KindEbook
	}

	candidates := make([]ranking.Candidate, 0, len(result.Releases))
	for _, r := range result.Releases {
		candidates = append(candidates, ranking.Candidate{
			GUID:        r.GUID,
			Title:       r.Title,
			Indexer:     r.Indexer,
			IndexerID:   r.IndexerID,
			Size:        r.Size,
			Seeders:     r.Seeders,
			Protocol:    r.Protocol,
			DownloadURL: r.DownloadURL,
			Flags:       r.Flags,
		})
	}

	ranked := o.engine.Rank(ranking.Query{
		Title:          item.Title,
		Author:         item.Author,
		RuntimeMinutes: item.RuntimeMinutes,
		Kind:           kind,
	}, candidates, o.aggregator.Priorities())

	if err := o.requests.SetSearchResults(ctx, req.ID, ranked); err != nil {
		return request.Outcome{}, err
	}

	if len(ranked) == 0 {
		message := "no candidates found"
		if len(result.Errors) > 0 {
			message = fmt.Sprintf("no candidates found (%d indexer group(s) failed)", len(result.Errors))
		}
		return request.Outcome{
			Stage:   request.StageSearch,
			Kind:    request.OutcomeNoCandidates,
			Message: message,
		}, nil
	}

	if !o.cfg.AutoGrab {
		return request.Outcome{Stage: request.StageSearch, Kind: request.OutcomeCandidatesFound}, nil
	}

	top := ranked[0]
	if _, err := o.history.SelectCandidate(ctx, req.ID, history.SelectInput{
		GUID:         top.GUID,
		Title:        top.Title,
		Indexer:      top.Indexer,
		IndexerID:    top.IndexerID,
		Size:         top.Size,
		Seeders:      top.Seeders,
		Protocol:     top.Protocol,
		DownloadURL:  top.DownloadURL,
		QualityScore: top.TotalScore,
	}); err != nil {
		return request.Outcome{}, err
	}
	o.recordEvent(ctx, req.ID, history.EventTypeGrabbed, map[string]any{
		"title":   top.Title,
		"indexer": top.Indexer,
		"score":   top.TotalScore,
	})

	return request.Outcome{Stage: request.StageSearch, Kind: request.OutcomeSelected}, nil
}
