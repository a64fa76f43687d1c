package request

import (
	"errors"
	"testing"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusSearching, true},
		{StatusPending, StatusDownloading, false},
		{StatusAwaitingApproval, StatusDenied, true},
		{StatusSearching, StatusDownloading, true},
		{StatusSearching, StatusAwaitingSearch, true},
		{StatusAwaitingSearch, StatusDownloading, true},
		{StatusDownloading, StatusProcessing, true},
		{StatusDownloading, StatusAvailable, false},
		{StatusProcessing, StatusAvailable, true},
		{StatusProcessing, StatusDownloaded, true},
		{StatusProcessing, StatusAwaitingImport, true},
		{StatusAwaitingImport, StatusProcessing, true},
		{StatusWarn, StatusProcessing, true},
		{StatusFailed, StatusSearching, true},
		{StatusAvailable, StatusPending, false},
		{StatusCancelled, StatusSearching, false},
		{StatusDenied, StatusPending, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestCanTransition_SelfAlwaysAllowed(t *testing.T) {
	for _, s := range AllStatuses {
		if !CanTransition(s, s) {
			t.Errorf("CanTransition(%s, %s) = false, want true", s, s)
		}
	}
}

func TestTerminalStatesHaveNoEdges(t *testing.T) {
	for _, s := range AllStatuses {
		if !s.IsTerminal() {
			continue
		}
		for _, to := range AllStatuses {
			if to != s && CanTransition(s, to) {
				t.Errorf("terminal status %s has edge to %s", s, to)
			}
		}
	}
}

func TestOnCreate(t *testing.T) {
	tests := []struct {
		name             string
		approvalRequired bool
		autoSearch       bool
		wantStatus       Status
		wantEnqueue      *Stage
	}{
		{"approval gates everything", true, true, StatusAwaitingApproval, nil},
		{"auto search starts pipeline", false, true, StatusPending, stagePtr(StageSearch)},
		{"manual mode parks request", false, false, StatusAwaitingSearch, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := OnCreate(tt.approvalRequired, tt.autoSearch)
			if d.Status != tt.wantStatus {
				t.Errorf("Status = %s, want %s", d.Status, tt.wantStatus)
			}
			if (d.Enqueue == nil) != (tt.wantEnqueue == nil) {
				t.Fatalf("Enqueue = %v, want %v", d.Enqueue, tt.wantEnqueue)
			}
			if d.Enqueue != nil && *d.Enqueue != *tt.wantEnqueue {
				t.Errorf("Enqueue = %s, want %s", *d.Enqueue, *tt.wantEnqueue)
			}
		})
	}
}

func TestOnApprove(t *testing.T) {
	d, err := OnApprove(StatusAwaitingApproval, true)
	if err != nil {
		t.Fatalf("OnApprove() error = %v", err)
	}
	if d.Status != StatusPending {
		t.Errorf("Status = %s, want %s", d.Status, StatusPending)
	}
	if d.Enqueue == nil || *d.Enqueue != StageSearch {
		t.Errorf("Enqueue = %v, want search", d.Enqueue)
	}
	if d.Notify != NotifyApproved {
		t.Errorf("Notify = %s, want %s", d.Notify, NotifyApproved)
	}

	if _, err := OnApprove(StatusPending, true); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("OnApprove(pending) error = %v, want ErrInvalidTransition", err)
	}
}

func TestOnDeny(t *testing.T) {
	d, err := OnDeny(StatusAwaitingApproval)
	if err != nil {
		t.Fatalf("OnDeny() error = %v", err)
	}
	if d.Status != StatusDenied || d.Notify != NotifyDenied {
		t.Errorf("OnDeny() = %+v, want denied with notification", d)
	}

	if _, err := OnDeny(StatusSearching); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("OnDeny(searching) error = %v, want ErrInvalidTransition", err)
	}
}

func TestOnCancel(t *testing.T) {
	for _, s := range AllStatuses {
		d, err := OnCancel(s)
		if s.IsTerminal() {
			if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("OnCancel(%s) error = %v, want ErrInvalidTransition", s, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("OnCancel(%s) error = %v", s, err)
			continue
		}
		if d.Status != StatusCancelled {
			t.Errorf("OnCancel(%s) status = %s, want cancelled", s, d.Status)
		}
	}
}

func TestOnRetry(t *testing.T) {
	tests := []struct {
		from      Status
		wantStage Stage
	}{
		{StatusFailed, StageSearch},
		{StatusAwaitingSearch, StageSearch},
		{StatusWarn, StageOrganize},
		{StatusAwaitingImport, StageOrganize},
	}

	for _, tt := range tests {
		d, err := OnRetry(tt.from)
		if err != nil {
			t.Errorf("OnRetry(%s) error = %v", tt.from, err)
			continue
		}
		if d.Enqueue == nil || *d.Enqueue != tt.wantStage {
			t.Errorf("OnRetry(%s) enqueue = %v, want %s", tt.from, d.Enqueue, tt.wantStage)
		}
		if d.Progress == nil || *d.Progress != 0 {
			t.Errorf("OnRetry(%s) progress = %v, want reset to 0", tt.from, d.Progress)
		}
	}

	for _, s := range []Status{StatusPending, StatusSearching, StatusDownloading, StatusAvailable, StatusCancelled} {
		if _, err := OnRetry(s); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("OnRetry(%s) error = %v, want ErrInvalidTransition", s, err)
		}
	}
}

func TestOnSelect(t *testing.T) {
	d, err := OnSelect(StatusAwaitingSearch)
	if err != nil {
		t.Fatalf("OnSelect() error = %v", err)
	}
	if d.Status != StatusDownloading {
		t.Errorf("Status = %s, want downloading", d.Status)
	}
	if d.Enqueue == nil || *d.Enqueue != StageDownload {
		t.Errorf("Enqueue = %v, want download", d.Enqueue)
	}

	if _, err := OnSelect(StatusDownloading); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("OnSelect(downloading) error = %v, want ErrInvalidTransition", err)
	}
}

func TestNext_SearchOutcomes(t *testing.T) {
	tests := []struct {
		name        string
		outcome     Outcome
		wantStatus  Status
		wantEnqueue *Stage
		wantMessage string
	}{
		{
			name:        "auto selected moves to download",
			outcome:     Outcome{Stage: StageSearch, Kind: OutcomeSelected},
			wantStatus:  StatusDownloading,
			wantEnqueue: stagePtr(StageDownload),
		},
		{
			name:       "candidates found parks for manual selection",
			outcome:    Outcome{Stage: StageSearch, Kind: OutcomeCandidatesFound},
			wantStatus: StatusAwaitingSearch,
		},
		{
			name:        "no candidates records message",
			outcome:     Outcome{Stage: StageSearch, Kind: OutcomeNoCandidates},
			wantStatus:  StatusAwaitingSearch,
			wantMessage: "no candidates found",
		},
		{
			name:        "search failure preserves its message",
			outcome:     Outcome{Stage: StageSearch, Kind: OutcomeFailed, Message: "all indexer groups failed"},
			wantStatus:  StatusAwaitingSearch,
			wantMessage: "all indexer groups failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Next(StatusSearching, tt.outcome)
			if err != nil {
				t.Fatalf("Next() error = %v", err)
			}
			if d.Status != tt.wantStatus {
				t.Errorf("Status = %s, want %s", d.Status, tt.wantStatus)
			}
			if (d.Enqueue == nil) != (tt.wantEnqueue == nil) {
				t.Fatalf("Enqueue = %v, want %v", d.Enqueue, tt.wantEnqueue)
			}
			if d.Enqueue != nil && *d.Enqueue != *tt.wantEnqueue {
				t.Errorf("Enqueue = %s, want %s", *d.Enqueue, *tt.wantEnqueue)
			}
			if d.ErrorMessage != tt.wantMessage {
				t.Errorf("ErrorMessage = %q, want %q", d.ErrorMessage, tt.wantMessage)
			}
		})
	}
}

func TestNext_DownloadOutcomes(t *testing.T) {
	d, err := Next(StatusDownloading, Outcome{Stage: StageDownload, Kind: OutcomeSucceeded})
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if d.Status != StatusProcessing {
		t.Errorf("Status = %s, want processing", d.Status)
	}
	if d.Enqueue == nil || *d.Enqueue != StageOrganize {
		t.Errorf("Enqueue = %v, want organize", d.Enqueue)
	}

	d, err = Next(StatusDownloading, Outcome{Stage: StageDownload, Kind: OutcomeFailed, Message: "tracker timeout"})
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if d.Status != StatusFailed {
		t.Errorf("Status = %s, want failed", d.Status)
	}
	if d.Notify != NotifyFailed {
		t.Errorf("Notify = %s, want %s", d.Notify, NotifyFailed)
	}
	if d.ErrorMessage != "tracker timeout" {
		t.Errorf("ErrorMessage = %q, want tracker timeout", d.ErrorMessage)
	}
}

func TestNext_OrganizeOutcomes(t *testing.T) {
	tests := []struct {
		name       string
		kind       OutcomeKind
		wantStatus Status
		wantNotify NotifyEvent
	}{
		{"imported with rescan", OutcomeImported, StatusAvailable, NotifyAvailable},
		{"organized without library server", OutcomeSucceeded, StatusDownloaded, NotifyAvailable},
		{"files missing parks for retry", OutcomeFilesMissing, StatusAwaitingImport, ""},
		{"failure warns", OutcomeFailed, StatusWarn, NotifyFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Next(StatusProcessing, Outcome{Stage: StageOrganize, Kind: tt.kind})
			if err != nil {
				t.Fatalf("Next() error = %v", err)
			}
			if d.Status != tt.wantStatus {
				t.Errorf("Status = %s, want %s", d.Status, tt.wantStatus)
			}
			if d.Notify != tt.wantNotify {
				t.Errorf("Notify = %q, want %q", d.Notify, tt.wantNotify)
			}
		})
	}

	d, _ := Next(StatusProcessing, Outcome{Stage: StageOrganize, Kind: OutcomeImported})
	if d.Progress == nil || *d.Progress != 100 {
		t.Errorf("imported progress = %v, want 100", d.Progress)
	}
}

func TestNext_TerminalAbsorbsOutcomes(t *testing.T) {
	// A cancel can land while a job is running; the late outcome must not
	// resurrect the request or enqueue follow-up work.
	for _, s := range []Status{StatusCancelled, StatusAvailable, StatusDownloaded, StatusDenied} {
		d, err := Next(s, Outcome{Stage: StageDownload, Kind: OutcomeSucceeded})
		if err != nil {
			t.Errorf("Next(%s) error = %v", s, err)
			continue
		}
		if d.Status != s {
			t.Errorf("Next(%s) status = %s, want unchanged", s, d.Status)
		}
		if d.Enqueue != nil {
			t.Errorf("Next(%s) enqueued %s, want nothing", s, *d.Enqueue)
		}
	}
}

func TestNext_CancelledOutcomeAbsorbed(t *testing.T) {
	d, err := Next(StatusDownloading, Outcome{Stage: StageDownload, Kind: OutcomeCancelled})
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if d.Status != StatusDownloading || d.Enqueue != nil {
		t.Errorf("Next() = %+v, want no-op decision", d)
	}
}

func TestNext_UnknownStage(t *testing.T) {
	if _, err := Next(StatusSearching, Outcome{Stage: "mystery", Kind: OutcomeSucceeded}); err == nil {
		t.Error("Next() with unknown stage: error = nil, want error")
	}
}

func TestIsRecoverable(t *testing.T) {
	recoverable := map[Status]bool{
		StatusFailed: true, StatusWarn: true,
		StatusAwaitingSearch: true, StatusAwaitingImport: true,
	}
	for _, s := range AllStatuses {
		if got := s.IsRecoverable(); got != recoverable[s] {
			t.Errorf("IsRecoverable(%s) = %v, want %v", s, got, recoverable[s])
		}
	}
}
