package request

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned when an action or outcome would move a
// request along an edge the transition table does not contain.
var ErrInvalidTransition = errors.New("invalid status transition")

// Stage is one pipeline step, corresponding to one job type.
type Stage string

const (
	StageSearch         Stage = "search"
	StageDownload       Stage = "download"
	StageOrganize       Stage = "organize"
	StageNotify         Stage = "notify"
	StageDirectDownload Stage = "direct_download"
)

// OutcomeKind classifies how a stage finished.
type OutcomeKind string

const (
	// OutcomeSelected: search found candidates and auto-selected the top one.
	OutcomeSelected OutcomeKind = "selected"
	// OutcomeCandidatesFound: search found candidates, manual selection pending.
	OutcomeCandidatesFound OutcomeKind = "candidates_found"
	// OutcomeNoCandidates: search completed but nothing matched.
	OutcomeNoCandidates OutcomeKind = "no_candidates"
	// OutcomeSucceeded: the stage completed normally.
	OutcomeSucceeded OutcomeKind = "succeeded"
	// OutcomeImported: organize completed and the library rescan was triggered.
	OutcomeImported OutcomeKind = "imported"
	// OutcomeFilesMissing: organize found no usable files at the download path.
	OutcomeFilesMissing OutcomeKind = "files_missing"
	// OutcomeFailed: the stage failed and automatic retries are exhausted.
	OutcomeFailed OutcomeKind = "failed"
	// OutcomeCancelled: the stage observed the request was cancelled and aborted.
	OutcomeCancelled OutcomeKind = "cancelled"
)

// Outcome is the typed event a stage handler emits when it finishes.
// The state machine consumes outcomes and decides the next job to enqueue.
type Outcome struct {
	Stage   Stage
	Kind    OutcomeKind
	Message string
}

// NotifyEvent identifies a user-facing notification trigger.
type NotifyEvent string

const (
	NotifyApproved  NotifyEvent = "request_approved"
	NotifyDenied    NotifyEvent = "request_denied"
	NotifyAvailable NotifyEvent = "request_available"
	NotifyFailed    NotifyEvent = "request_failed"
)

// Decision is the state machine's answer to an action or outcome: the status
// to record, the job to enqueue (if any), and the notification to fire.
type Decision struct {
	Status       Status
	Enqueue      *Stage
	Notify       NotifyEvent
	ErrorMessage string // recorded verbatim; empty clears the stored message
	Progress     *int   // nil leaves progress untouched
}

func stagePtr(s Stage) *Stage { return &s }
func intPtr(i int) *int       { return &i }

// transitions is the authoritative edge set. A status maps to every status
// it may legally move to; terminal statuses map to nothing.
var transitions = map[Status][]Status{
	StatusPending:          {StatusSearching, StatusAwaitingSearch, StatusCancelled},
	StatusAwaitingApproval: {StatusPending, StatusSearching, StatusAwaitingSearch, StatusDenied, StatusCancelled},
	StatusSearching:        {StatusDownloading, StatusAwaitingSearch, StatusFailed, StatusCancelled},
	StatusAwaitingSearch:   {StatusSearching, StatusDownloading, StatusCancelled},
	StatusDownloading:      {StatusProcessing, StatusAwaitingSearch, StatusFailed, StatusCancelled},
	StatusProcessing:       {StatusAvailable, StatusDownloaded, StatusWarn, StatusAwaitingImport, StatusCancelled},
	StatusAwaitingImport:   {StatusProcessing, StatusCancelled},
	StatusWarn:             {StatusProcessing, StatusCancelled},
	StatusFailed:           {StatusSearching, StatusCancelled},
	StatusAvailable:        {},
	StatusDownloaded:       {},
	StatusCancelled:        {},
	StatusDenied:           {},
}

// CanTransition reports whether from → to is a legal edge.
// A self-transition is always allowed (status unchanged).
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// InProgressStatus returns the status a request holds while the given
// pipeline stage is executing.
func InProgressStatus(stage Stage) Status {
	switch stage {
	case StageSearch:
		return StatusSearching
	case StageDownload, StageDirectDownload:
		return StatusDownloading
	case StageOrganize:
		return StatusProcessing
	default:
		return ""
	}
}

// OnCreate decides the initial state of a freshly created request.
func OnCreate(approvalRequired, autoSearch bool) Decision {
	if approvalRequired {
		return Decision{Status: StatusAwaitingApproval}
	}
	if autoSearch {
		return Decision{Status: StatusPending, Enqueue: stagePtr(StageSearch)}
	}
	return Decision{Status: StatusAwaitingSearch}
}

// OnDirectCreate starts a request from a user-supplied download URL,
// bypassing search and approval.
func OnDirectCreate() Decision {
	return Decision{Status: StatusDownloading, Enqueue: stagePtr(StageDirectDownload)}
}

// OnApprove moves an awaiting_approval request into the pipeline.
func OnApprove(current Status, autoSearch bool) (Decision, error) {
	if current != StatusAwaitingApproval {
		return Decision{}, fmt.Errorf("%w: approve from %s", ErrInvalidTransition, current)
	}
	d := OnCreate(false, autoSearch)
	d.Notify = NotifyApproved
	return d, nil
}

// OnDeny denies an awaiting_approval request.
func OnDeny(current Status) (Decision, error) {
	if current != StatusAwaitingApproval {
		return Decision{}, fmt.Errorf("%w: deny from %s", ErrInvalidTransition, current)
	}
	return Decision{Status: StatusDenied, Notify: NotifyDenied}, nil
}

// OnCancel cancels a request. Legal from every non-terminal state.
func OnCancel(current Status) (Decision, error) {
	if current.IsTerminal() {
		return Decision{}, fmt.Errorf("%w: cancel from terminal state %s", ErrInvalidTransition, current)
	}
	return Decision{Status: StatusCancelled}, nil
}

// OnRetry resumes the pipeline from a recoverable state. The stage re-entered
// depends on where the request stalled: search states re-enter search,
// import states re-enter organize using the already-selected candidate.
func OnRetry(current Status) (Decision, error) {
	switch current {
	case StatusFailed, StatusAwaitingSearch:
		return Decision{
			Status:   StatusSearching,
			Enqueue:  stagePtr(StageSearch),
			Progress: intPtr(0),
		}, nil
	case StatusWarn, StatusAwaitingImport:
		return Decision{
			Status:   StatusProcessing,
			Enqueue:  stagePtr(StageOrganize),
			Progress: intPtr(0),
		}, nil
	default:
		return Decision{}, fmt.Errorf("%w: retry from %s", ErrInvalidTransition, current)
	}
}

// OnSelect handles a manual candidate selection while awaiting search results.
func OnSelect(current Status) (Decision, error) {
	if current != StatusAwaitingSearch {
		return Decision{}, fmt.Errorf("%w: select from %s", ErrInvalidTransition, current)
	}
	return Decision{
		Status:   StatusDownloading,
		Enqueue:  stagePtr(StageDownload),
		Progress: intPtr(0),
	}, nil
}

// Next consumes a stage outcome and decides the request's next state and the
// follow-up job. Outcomes arriving after the request reached a terminal state
// (a cancel raced the job) are absorbed without effect.
func Next(current Status, o Outcome) (Decision, error) {
	if current.IsTerminal() || o.Kind == OutcomeCancelled {
		return Decision{Status: current}, nil
	}

	var d Decision
	switch o.Stage {
	case StageSearch:
		d = nextAfterSearch(o)
	case StageDownload, StageDirectDownload:
		d = nextAfterDownload(o)
	case StageOrganize:
		d = nextAfterOrganize(o)
	case StageNotify:
		return Decision{Status: current}, nil
	default:
		return Decision{}, fmt.Errorf("unknown stage %q", o.Stage)
	}

	if !CanTransition(current, d.Status) {
		return Decision{}, fmt.Errorf("%w: %s -> %s (stage %s, outcome %s)",
			ErrInvalidTransition, current, d.Status, o.Stage, o.Kind)
	}
	return d, nil
}

func nextAfterSearch(o Outcome) Decision {
	switch o.Kind {
	case OutcomeSelected:
		return Decision{Status: StatusDownloading, Enqueue: stagePtr(StageDownload), Progress: intPtr(0)}
	case OutcomeCandidatesFound:
		return Decision{Status: StatusAwaitingSearch}
	case OutcomeNoCandidates:
		return Decision{Status: StatusAwaitingSearch, ErrorMessage: orDefault(o.Message, "no candidates found")}
	default: // OutcomeFailed
		return Decision{Status: StatusAwaitingSearch, ErrorMessage: orDefault(o.Message, "search failed")}
	}
}

func nextAfterDownload(o Outcome) Decision {
	switch o.Kind {
	case OutcomeSucceeded:
		return Decision{Status: StatusProcessing, Enqueue: stagePtr(StageOrganize)}
	default: // OutcomeFailed
		return Decision{
			Status:       StatusFailed,
			Notify:       NotifyFailed,
			ErrorMessage: orDefault(o.Message, "download failed"),
		}
	}
}

func nextAfterOrganize(o Outcome) Decision {
	switch o.Kind {
	case OutcomeImported:
		return Decision{Status: StatusAvailable, Notify: NotifyAvailable, Progress: intPtr(100)}
	case OutcomeSucceeded:
		return Decision{Status: StatusDownloaded, Notify: NotifyAvailable, Progress: intPtr(100)}
	case OutcomeFilesMissing:
		return Decision{Status: StatusAwaitingImport, ErrorMessage: orDefault(o.Message, "no media files found at download path")}
	default: // OutcomeFailed
		return Decision{
			Status:       StatusWarn,
			Notify:       NotifyFailed,
			ErrorMessage: orDefault(o.Message, "import failed"),
		}
	}
}

func orDefault(msg, fallback string) string {
	if msg != "" {
		return msg
	}
	return fallback
}
