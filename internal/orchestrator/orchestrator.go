package orchestrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kikootwo/readmeabook/internal/audiobookshelf"
	downloadtypes "github.com/kikootwo/readmeabook/internal/downloader/types"
	"github.com/kikootwo/readmeabook/internal/history"
	"github.com/kikootwo/readmeabook/internal/indexer"
	"github.com/kikootwo/readmeabook/internal/media"
	"github.com/kikootwo/readmeabook/internal/notification"
	"github.com/kikootwo/readmeabook/internal/organizer"
	"github.com/kikootwo/readmeabook/internal/ranking"
	"github.com/kikootwo/readmeabook/internal/request"
)

// Orchestrator owns the worker pool and implements request.DecisionApplier.
type Orchestrator struct {
	cfg        Config
	db         *sql.DB
	jobs       *JobStore
	requests   *request.Store
	media      *media.Store
	history    *history.Store
	aggregator *indexer.Aggregator
	engine     *ranking.Engine
	organizer  *organizer.Organizer
	notifier   *notification.Dispatcher
	logger     zerolog.Logger

	// client may be nil when no download client is configured.
	client downloadtypes.Client
	// abs may be nil when no Audiobookshelf server is configured.
	abs *audiobookshelf.Client
	// broadcaster may be nil in tests.
	broadcaster request.Broadcaster

	locks  *requestLocks
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	DB         *sql.DB
	Jobs       *JobStore
	Requests   *request.Store
	Media      *media.Store
	History    *history.Store
	Aggregator *indexer.Aggregator
	Engine     *ranking.Engine
	Organizer  *organizer.Organizer
	Notifier   *notification.Dispatcher
}

// New creates an orchestrator.
func New(cfg Config, deps Deps, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg.withDefaults(),
		db:         deps.DB,
		jobs:       deps.Jobs,
		requests:   deps.Requests,
		media:      deps.Media,
		history:    deps.History,
		aggregator: deps.Aggregator,
		engine:     deps.Engine,
		organizer:  deps.Organizer,
		notifier:   deps.Notifier,
		logger:     logger.With().Str("component", "orchestrator").Logger(),
		locks:      newRequestLocks(),
	}
}

// SetDownloadClient wires the download client in; nil means none configured.
func (o *Orchestrator) SetDownloadClient(c downloadtypes.Client) { o.client = c }

// SetAudiobookshelf wires the library server client in.
func (o *Orchestrator) SetAudiobookshelf(c *audiobookshelf.Client) { o.abs = c }

// SetBroadcaster wires the websocket hub in.
func (o *Orchestrator) SetBroadcaster(b request.Broadcaster) { o.broadcaster = b }

// Start launches the worker pool.
func (o *Orchestrator) Start(ctx context.Context) {
	ctx, o.cancel = context.WithCancel(ctx)
	for i := 0; i < o.cfg.Workers; i++ {
		o.wg.Add(1)
		go o.worker(ctx, i)
	}
	o.logger.Info().Int("workers", o.cfg.Workers).Msg("Orchestrator started")
}

// Stop signals the workers and waits for in-flight jobs to finish.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	o.wg.Wait()
	o.logger.Info().Msg("Orchestrator stopped")
}

func (o *Orchestrator) worker(ctx context.Context, id int) {
	defer o.wg.Done()
	logger := o.logger.With().Int("worker", id).Logger()

	for {
		job, err := o.jobs.ClaimNext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error().Err(err).Msg("Failed to claim job")
		}

		if job == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(o.cfg.PollInterval):
			}
			continue
		}

		if !o.locks.TryAcquire(job.RequestID) {
			// Another worker holds this request; push the job back briefly.
			if err := o.jobs.Requeue(ctx, job.ID, "", 2*time.Second); err != nil {
				logger.Error().Err(err).Int64("jobId", job.ID).Msg("Failed to requeue contended job")
			}
			continue
		}

		o.execute(ctx, logger, job)
		o.locks.Release(job.RequestID)
	}
}

// execute runs one claimed job through its stage handler and feeds the
// outcome back through the state machine.
func (o *Orchestrator) execute(ctx context.Context, logger zerolog.Logger, job *Job) {
	logger = logger.With().
		Int64("jobId", job.ID).
		Str("jobType", string(job.Type)).
		Int64("requestId", job.RequestID).
		Str("correlationId", job.CorrelationID).
		Logger()

	req, err := o.requests.Get(ctx, job.RequestID)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load request for job")
		o.failJob(ctx, job, err.Error())
		return
	}

	// Notify jobs are the one stage that legitimately runs after a request
	// settled; everything else gets absorbed when a terminal outcome raced it.
	if req.Status.IsTerminal() && job.Type != request.StageNotify {
		o.completeAndApply(ctx, logger, job, req,
			request.Outcome{Stage: job.Type, Kind: request.OutcomeCancelled}, false)
		return
	}

	o.markInProgress(ctx, req, job.Type)

	logger.Info().Int("attempt", job.Attempts).Msg("Executing job")
	outcome, err := o.runHandler(ctx, job, req)
	if err != nil {
		if job.Attempts < job.MaxAttempts {
			delay := retryDelay(job.Attempts, o.cfg.RetryInitial, o.cfg.RetryMax)
			logger.Warn().Err(err).Dur("retryIn", delay).Msg("Job failed, scheduling retry")
			if rqErr := o.jobs.Requeue(ctx, job.ID, err.Error(), delay); rqErr != nil {
				logger.Error().Err(rqErr).Msg("Failed to requeue job")
			}
			return
		}
		logger.Error().Err(err).Msg("Job failed, retries exhausted")
		outcome = request.Outcome{Stage: job.Type, Kind: request.OutcomeFailed, Message: err.Error()}
		o.completeAndApply(ctx, logger, job, req, outcome, true)
		return
	}

	o.completeAndApply(ctx, logger, job, req, outcome, false)
}

func (o *Orchestrator) runHandler(ctx context.Context, job *Job, req *request.Request) (request.Outcome, error) {
	switch job.Type {
	case request.StageSearch:
		return o.handleSearch(ctx, job, req)
	case request.StageDownload, request.StageDirectDownload:
		return o.handleDownload(ctx, job, req)
	case request.StageOrganize:
		return o.handleOrganize(ctx, job, req)
	case request.StageNotify:
		return o.handleNotify(ctx, job, req)
	default:
		return request.Outcome{}, fmt.Errorf("unknown job type %q", job.Type)
	}
}

// markInProgress moves the request into the stage's in-progress status if it
// is not already there.
func (o *Orchestrator) markInProgress(ctx context.Context, req *request.Request, stage request.Stage) {
	status := request.InProgressStatus(stage)
	if status == "" || req.Status == status || !request.CanTransition(req.Status, status) {
		return
	}
	if err := o.requests.UpdateStatus(ctx, o.db, req.ID, status, "", nil); err != nil {
		o.logger.Error().Err(err).Int64("requestId", req.ID).Msg("Failed to mark request in progress")
		return
	}
	req.Status = status
	o.broadcastStatus(req.ID, status, req.Progress, "")
}

// completeAndApply finishes the job and applies the state machine's decision
// for its outcome in a single transaction, so a crash can never record the
// status change without the follow-up job or vice versa.
func (o *Orchestrator) completeAndApply(ctx context.Context, logger zerolog.Logger, job *Job, req *request.Request, outcome request.Outcome, jobFailed bool) {
	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to begin completion transaction")
		return
	}
	defer tx.Rollback()

	// A cancel (or another terminal transition) may have landed while the
	// handler was running; decide against the row as it is now, not the
	// snapshot the job started from.
	current, err := o.requests.GetStatus(ctx, tx, req.ID)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to re-read request status")
		return
	}

	decision, err := request.Next(current, outcome)
	if err != nil {
		logger.Error().Err(err).Str("outcome", string(outcome.Kind)).
			Msg("State machine rejected outcome")
		tx.Rollback()
		o.failJob(ctx, job, err.Error())
		return
	}

	if jobFailed {
		err = o.jobs.MarkFailed(ctx, tx, job.ID, outcome.Message)
	} else {
		err = o.jobs.MarkCompleted(ctx, tx, job.ID)
	}
	if err != nil {
		logger.Error().Err(err).Msg("Failed to finish job")
		return
	}

	// An absorbed outcome decides nothing: leave the row alone so the stale
	// in-progress status cannot overwrite the settled one.
	absorbed := decision.Status == current && decision.Enqueue == nil &&
		decision.Notify == "" && decision.Progress == nil && decision.ErrorMessage == ""
	if !absorbed {
		if err := o.applyDecision(ctx, tx, job.CorrelationID, req, decision); err != nil {
			logger.Error().Err(err).Msg("Failed to apply decision")
			return
		}
	}

	if err := tx.Commit(); err != nil {
		logger.Error().Err(err).Msg("Failed to commit completion")
		return
	}

	eventType := history.EventTypeJobCompleted
	if jobFailed {
		eventType = history.EventTypeJobFailed
	}
	o.recordEvent(ctx, req.ID, eventType, map[string]any{
		"jobType": string(job.Type),
		"outcome": string(outcome.Kind),
		"status":  string(decision.Status),
	})

	if !absorbed {
		progress := req.Progress
		if decision.Progress != nil {
			progress = *decision.Progress
		}
		o.broadcastStatus(req.ID, decision.Status, progress, decision.ErrorMessage)
	}

	logger.Info().
		Str("outcome", string(outcome.Kind)).
		Str("status", string(decision.Status)).
		Msg("Job finished")
}

// Apply implements request.DecisionApplier for user actions: the status
// change and any follow-up job are committed atomically.
func (o *Orchestrator) Apply(ctx context.Context, req *request.Request, d request.Decision) error {
	tx, err := o.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := o.applyDecision(ctx, tx, uuid.NewString(), req, d); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit decision: %w", err)
	}

	o.recordEvent(ctx, req.ID, history.EventTypeStatusChanged, map[string]any{
		"from": string(req.Status),
		"to":   string(d.Status),
	})
	return nil
}

// applyDecision writes a decision's effects into the given transaction.
func (o *Orchestrator) applyDecision(ctx context.Context, tx *sql.Tx, correlationID string, req *request.Request, d request.Decision) error {
	if err := o.requests.UpdateStatus(ctx, tx, req.ID, d.Status, d.ErrorMessage, d.Progress); err != nil {
		return err
	}

	if d.Status == request.StatusCancelled {
		if err := o.jobs.CancelPending(ctx, tx, req.ID); err != nil {
			return err
		}
	}

	if d.Enqueue != nil {
		if err := o.jobs.Enqueue(ctx, tx, correlationID, *d.Enqueue, req.ID, nil, o.cfg.MaxAttempts); err != nil {
			return err
		}
	}

	if d.Notify != "" {
		payload := NotifyPayload{Event: d.Notify, Message: d.ErrorMessage}
		if err := o.jobs.Enqueue(ctx, tx, correlationID, request.StageNotify, req.ID, payload, o.cfg.MaxAttempts); err != nil {
			return err
		}
	}
	return nil
}

// Recover requeues jobs orphaned by an unclean shutdown and re-enqueues work
// for in-flight requests that lost their job entirely.
func (o *Orchestrator) Recover(ctx context.Context) error {
	reset, err := o.jobs.ResetRunning(ctx)
	if err != nil {
		return err
	}
	if reset > 0 {
		o.logger.Info().Int64("jobs", reset).Msg("Requeued jobs from unclean shutdown")
	}

	stale, err := o.requests.ListByStatuses(ctx,
		request.StatusPending, request.StatusSearching,
		request.StatusDownloading, request.StatusProcessing)
	if err != nil {
		return err
	}

	for _, req := range stale {
		if _, err := o.jobs.GetActiveByRequest(ctx, req.ID); err == nil {
			continue
		} else if !errors.Is(err, ErrJobNotFound) {
			return err
		}

		var stage request.Stage
		switch req.Status {
		case request.StatusPending, request.StatusSearching:
			stage = request.StageSearch
		case request.StatusDownloading:
			stage = request.StageDownload
		case request.StatusProcessing:
			stage = request.StageOrganize
		}

		err := o.jobs.Enqueue(ctx, o.db, uuid.NewString(), stage, req.ID, nil, o.cfg.MaxAttempts)
		if err != nil && !errors.Is(err, ErrJobAlreadyQueued) {
			return err
		}
		o.logger.Info().
			Int64("requestId", req.ID).
			Str("stage", string(stage)).
			Msg("Re-enqueued orphaned request")
	}
	return nil
}

func (o *Orchestrator) failJob(ctx context.Context, job *Job, message string) {
	if err := o.jobs.MarkFailed(ctx, o.db, job.ID, message); err != nil {
		o.logger.Error().Err(err).Int64("jobId", job.ID).Msg("Failed to mark job failed")
	}
}

func (o *Orchestrator) recordEvent(ctx context.Context, requestID int64, eventType history.EventType, data map[string]any) {
	if err := o.history.AddEvent(ctx, requestID, eventType, data); err != nil {
		o.logger.Warn().Err(err).Int64("requestId", requestID).Msg("Failed to record request event")
	}
}

func (o *Orchestrator) broadcastStatus(requestID int64, status request.Status, progress int, errMsg string) {
	if o.broadcaster == nil {
		return
	}
	o.broadcaster.Broadcast(request.EventRequestUpdated, request.StatusEvent{
		RequestID:    requestID,
		Status:       status,
		Progress:     progress,
		ErrorMessage: errMsg,
	})
}

func (o *Orchestrator) broadcastProgress(requestID int64, progress int) {
	if o.broadcaster == nil {
		return
	}
	o.broadcaster.Broadcast(request.EventRequestProgress, request.ProgressEvent{
		RequestID: requestID,
		Progress:  progress,
	})
}
