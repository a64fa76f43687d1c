// Package orchestrator runs the acquisition pipeline: a durable job queue
// backed by SQLite, a worker pool executing stage handlers, and the glue that
// feeds stage outcomes back through the request state machine.
package orchestrator

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/kikootwo/readmeabook/internal/request"
)

// Orchestrator sentinel errors.
var (
	ErrJobNotFound      = errors.New("job not found")
	ErrJobAlreadyQueued = errors.New("a job is already in flight for this request")
)

// JobStatus is the lifecycle state of a queued job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Job is one unit of pipeline work for one request.
type Job struct {
	ID            int64           `json:"id"`
	CorrelationID string          `json:"correlationId"`
	Type          request.Stage   `json:"type"`
	RequestID     int64           `json:"requestId"`
	Payload       json.RawMessage `json:"payload"`
	Status        JobStatus       `json:"status"`
	Attempts      int             `json:"attempts"`
	MaxAttempts   int             `json:"maxAttempts"`
	NextRunAt     time.Time       `json:"nextRunAt"`
	LastError     *string         `json:"lastError,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// NotifyPayload is the payload carried by notify jobs.
type NotifyPayload struct {
	Event   request.NotifyEvent `json:"event"`
	Message string              `json:"message,omitempty"`
}

// Config tunes the orchestrator.
type Config struct {
	// Workers is the worker pool size.
	Workers int
	// MaxAttempts is the default automatic retry budget per job.
	MaxAttempts int
	// PollInterval is how often idle workers check for claimable jobs.
	PollInterval time.Duration
	// RetryInitial and RetryMax bound the exponential retry backoff.
	RetryInitial time.Duration
	RetryMax     time.Duration
	// DownloadPollInterval is how often a running download is polled.
	DownloadPollInterval time.Duration
	// DownloadTimeout fails a download stage that never completes.
	DownloadTimeout time.Duration
	// AutoGrab selects the top-ranked candidate automatically after a search.
	AutoGrab bool
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.RetryInitial <= 0 {
		c.RetryInitial = 15 * time.Second
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 15 * time.Minute
	}
	if c.DownloadPollInterval <= 0 {
		c.DownloadPollInterval = 5 * time.Second
	}
	if c.DownloadTimeout <= 0 {
		c.DownloadTimeout = 6 * time.Hour
	}
	return c
}
