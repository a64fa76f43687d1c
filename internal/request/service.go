package request

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/kikootwo/readmeabook/internal/history"
	"github.com/kikootwo/readmeabook/internal/media"
	"github.com/kikootwo/readmeabook/internal/ranking"
)

// Service sentinel errors.
var (
	ErrDuplicateRequest  = errors.New("an active request already exists for this title")
	ErrCandidateNotFound = errors.New("candidate not found in search results")
)

// DecisionApplier persists a state machine decision: the status change, the
// follow-up job, and the notification, atomically. Implemented by the
// orchestrator.
type DecisionApplier interface {
	Apply(ctx context.Context, req *Request, d Decision) error
}

// Broadcaster pushes request events to connected clients.
type Broadcaster interface {
	Broadcast(eventType string, payload any)
}

// Config holds the request policy knobs.
type Config struct {
	ApprovalRequired bool
	AutoSearch       bool
	CompanionEbooks  bool
}

// Service coordinates request actions: creation, approval, cancellation,
// retry, and manual candidate selection.
type Service struct {
	cfg     Config
	store   *Store
	media   *media.Store
	history *history.Store
	logger  zerolog.Logger

	applier     DecisionApplier
	broadcaster Broadcaster
}

// NewService creates the request service.
func NewService(cfg Config, store *Store, mediaStore *media.Store, historyStore *history.Store, logger zerolog.Logger) *Service {
	return &Service{
		cfg:     cfg,
		store:   store,
		media:   mediaStore,
		history: historyStore,
		logger:  logger.With().Str("component", "requests").Logger(),
	}
}

// SetDecisionApplier wires the orchestrator in after construction; the
// orchestrator depends on this package's types, so the dependency runs this
// way around.
func (s *Service) SetDecisionApplier(a DecisionApplier) { s.applier = a }

// SetBroadcaster wires the websocket hub in after construction.
func (s *Service) SetBroadcaster(b Broadcaster) { s.broadcaster = b }

// Get returns a request by ID.
func (s *Service) Get(ctx context.Context, id int64) (*Request, error) {
	return s.store.Get(ctx, id)
}

// List returns requests matching the filters.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]*Request, error) {
	return s.store.List(ctx, filters)
}

// History returns the download history for a request.
func (s *Service) History(ctx context.Context, id int64) ([]*history.Entry, error) {
	return s.history.ListByRequest(ctx, id)
}

// Events returns the event trail for a request.
func (s *Service) Events(ctx context.Context, id int64) ([]*history.Event, error) {
	return s.history.ListEvents(ctx, id)
}

// Create registers a new acquisition request. At most one active request may
// exist per user and media item; a re-request after a terminal outcome
// recycles the existing row instead of stacking a duplicate.
func (s *Service) Create(ctx context.Context, userID int64, input CreateInput) (*Request, error) {
	if input.Type == "" {
		input.Type = MediaTypeAudiobook
	}

	item, err := s.media.Upsert(ctx, media.UpsertInput{
		Title:          input.Title,
		Author:         input.Author,
		ExternalID:     input.ExternalID,
		RuntimeMinutes: input.RuntimeMinutes,
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.store.GetActive(ctx, userID, item.ID, input.Type); err == nil {
		return nil, ErrDuplicateRequest
	} else if !errors.Is(err, ErrRequestNotFound) {
		return nil, err
	}

	decision := OnCreate(s.cfg.ApprovalRequired, s.cfg.AutoSearch)

	var req *Request
	latest, err := s.store.GetLatest(ctx, userID, item.ID, input.Type)
	switch {
	case err == nil && latest.Status.IsTerminal():
		req, err = s.store.Recycle(ctx, latest.ID, decision.Status)
		if err != nil {
			return nil, err
		}
	case err == nil || errors.Is(err, ErrRequestNotFound):
		req, err = s.store.Create(ctx, userID, item.ID, input.Type, decision.Status, nil)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	s.logger.Info().
		Int64("requestId", req.ID).
		Int64("userId", userID).
		Str("title", item.Title).
		Str("status", string(req.Status)).
		Msg("Created request")

	if err := s.applier.Apply(ctx, req, decision); err != nil {
		return nil, err
	}
	s.broadcast(EventRequestCreated, req.ID, decision.Status, 0, "")

	if decision.Status != StatusAwaitingApproval {
		s.createSidecar(ctx, req)
	}
	return s.store.Get(ctx, req.ID)
}

// CreateDirect registers a request for a user-supplied magnet or torrent/NZB
// URL, bypassing search: the URL is recorded as the selected candidate and the
// download starts immediately. Duplicate and recycle rules match Create.
func (s *Service) CreateDirect(ctx context.Context, userID int64, input DirectCreateInput) (*Request, error) {
	if input.Type == "" {
		input.Type = MediaTypeAudiobook
	}
	if input.Protocol == "" {
		input.Protocol = "torrent"
	}

	item, err := s.media.Upsert(ctx, media.UpsertInput{
		Title:          input.Title,
		Author:         input.Author,
		ExternalID:     input.ExternalID,
		RuntimeMinutes: input.RuntimeMinutes,
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.store.GetActive(ctx, userID, item.ID, input.Type); err == nil {
		return nil, ErrDuplicateRequest
	} else if !errors.Is(err, ErrRequestNotFound) {
		return nil, err
	}

	decision := OnDirectCreate()

	var req *Request
	latest, err := s.store.GetLatest(ctx, userID, item.ID, input.Type)
	switch {
	case err == nil && latest.Status.IsTerminal():
		req, err = s.store.Recycle(ctx, latest.ID, decision.Status)
		if err != nil {
			return nil, err
		}
	case err == nil || errors.Is(err, ErrRequestNotFound):
		req, err = s.store.Create(ctx, userID, item.ID, input.Type, decision.Status, nil)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	if _, err := s.history.SelectCandidate(ctx, req.ID, history.SelectInput{
		GUID:        input.URL,
		Title:       item.Title,
		Indexer:     "direct",
		Protocol:    input.Protocol,
		DownloadURL: input.URL,
	}); err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("requestId", req.ID).
		Int64("userId", userID).
		Str("title", item.Title).
		Msg("Created direct download request")

	if err := s.applier.Apply(ctx, req, decision); err != nil {
		return nil, err
	}
	s.broadcast(EventRequestCreated, req.ID, decision.Status, 0, "")
	return s.store.Get(ctx, req.ID)
}

// createSidecar creates the companion ebook request for an audiobook request.
// Sidecar failures never fail the primary; they are logged and dropped.
func (s *Service) createSidecar(ctx context.Context, parent *Request) {
	if !s.cfg.CompanionEbooks || parent.Type != MediaTypeAudiobook {
		return
	}
	if _, err := s.store.GetActive(ctx, parent.UserID, parent.MediaItemID, MediaTypeEbook); err == nil {
		return
	}

	decision := OnCreate(false, s.cfg.AutoSearch)
	child, err := s.store.Create(ctx, parent.UserID, parent.MediaItemID, MediaTypeEbook, decision.Status, &parent.ID)
	if err != nil {
		s.logger.Warn().Err(err).Int64("parentRequestId", parent.ID).
			Msg("Failed to create companion ebook request")
		return
	}
	if err := s.applier.Apply(ctx, child, decision); err != nil {
		s.logger.Warn().Err(err).Int64("requestId", child.ID).
			Msg("Failed to start companion ebook request")
		return
	}
	s.logger.Info().Int64("requestId", child.ID).Int64("parentRequestId", parent.ID).
		Msg("Created companion ebook request")
}

// Approve moves an awaiting_approval request into the pipeline.
func (s *Service) Approve(ctx context.Context, id int64) (*Request, error) {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	decision, err := OnApprove(req.Status, s.cfg.AutoSearch)
	if err != nil {
		return nil, err
	}
	if err := s.applier.Apply(ctx, req, decision); err != nil {
		return nil, err
	}
	s.broadcast(EventRequestUpdated, req.ID, decision.Status, req.Progress, "")

	s.createSidecar(ctx, req)
	return s.store.Get(ctx, id)
}

// Deny rejects an awaiting_approval request.
func (s *Service) Deny(ctx context.Context, id int64) (*Request, error) {
	return s.act(ctx, id, func(req *Request) (Decision, error) {
		return OnDeny(req.Status)
	})
}

// Cancel cancels a request from any non-terminal state. Running jobs observe
// the cancellation and abort.
func (s *Service) Cancel(ctx context.Context, id int64) (*Request, error) {
	return s.act(ctx, id, func(req *Request) (Decision, error) {
		return OnCancel(req.Status)
	})
}

// Retry resumes the pipeline from a recoverable state.
func (s *Service) Retry(ctx context.Context, id int64) (*Request, error) {
	return s.act(ctx, id, func(req *Request) (Decision, error) {
		return OnRetry(req.Status)
	})
}

// Candidates returns the ranked search results stored for a request.
func (s *Service) Candidates(ctx context.Context, id int64) ([]ranking.RankedCandidate, error) {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(req.SearchResults) == 0 {
		return nil, nil
	}
	var candidates []ranking.RankedCandidate
	if err := json.Unmarshal(req.SearchResults, &candidates); err != nil {
		return nil, fmt.Errorf("failed to decode search results: %w", err)
	}
	return candidates, nil
}

// Select records a manual candidate choice and starts the download.
func (s *Service) Select(ctx context.Context, id int64, guid string) (*Request, error) {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	decision, err := OnSelect(req.Status)
	if err != nil {
		return nil, err
	}

	candidates, err := s.Candidates(ctx, id)
	if err != nil {
		return nil, err
	}
	var chosen *ranking.RankedCandidate
	for i := range candidates {
		if candidates[i].GUID == guid {
			chosen = &candidates[i]
			break
		}
	}
	if chosen == nil {
		return nil, ErrCandidateNotFound
	}

	if _, err := s.history.SelectCandidate(ctx, id, history.SelectInput{
		GUID:         chosen.GUID,
		Title:        chosen.Title,
		Indexer:      chosen.Indexer,
		IndexerID:    chosen.IndexerID,
		Size:         chosen.Size,
		Seeders:      chosen.Seeders,
		Protocol:     chosen.Protocol,
		DownloadURL:  chosen.DownloadURL,
		QualityScore: chosen.TotalScore,
	}); err != nil {
		return nil, err
	}

	if err := s.applier.Apply(ctx, req, decision); err != nil {
		return nil, err
	}
	s.broadcast(EventRequestUpdated, req.ID, decision.Status, 0, "")
	return s.store.Get(ctx, id)
}

// Delete soft-deletes a request, cancelling it first if still in flight.
func (s *Service) Delete(ctx context.Context, id int64) error {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !req.Status.IsTerminal() {
		if _, err := s.Cancel(ctx, id); err != nil {
			return err
		}
	}
	if err := s.store.SoftDelete(ctx, id); err != nil {
		return err
	}
	s.broadcast(EventRequestDeleted, id, req.Status, req.Progress, "")
	return nil
}

func (s *Service) act(ctx context.Context, id int64, decide func(*Request) (Decision, error)) (*Request, error) {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	decision, err := decide(req)
	if err != nil {
		return nil, err
	}
	if err := s.applier.Apply(ctx, req, decision); err != nil {
		return nil, err
	}
	s.broadcast(EventRequestUpdated, req.ID, decision.Status, req.Progress, decision.ErrorMessage)
	return s.store.Get(ctx, id)
}

func (s *Service) broadcast(eventType string, id int64, status Status, progress int, errMsg string) {
	if s.broadcaster == nil {
		return
	}
	s.broadcaster.Broadcast(eventType, StatusEvent{
		RequestID:    id,
		Status:       status,
		Progress:     progress,
		ErrorMessage: errMsg,
	})
}
