// Package request owns the acquisition request lifecycle: the request model,
// its state machine, and the actions users and jobs take against it.
package request

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a request.
type Status string

const (
	StatusPending          Status = "pending"
	StatusAwaitingApproval Status = "awaiting_approval"
	StatusSearching        Status = "searching"
	StatusAwaitingSearch   Status = "awaiting_search"
	StatusDownloading      Status = "downloading"
	StatusProcessing       Status = "processing"
	StatusAwaitingImport   Status = "awaiting_import"
	StatusWarn             Status = "warn"
	StatusAvailable        Status = "available"
	StatusDownloaded       Status = "downloaded"
	StatusFailed           Status = "failed"
	StatusCancelled        Status = "cancelled"
	StatusDenied           Status = "denied"
)

// AllStatuses lists every status the state machine knows about.
var AllStatuses = []Status{
	StatusPending, StatusAwaitingApproval, StatusSearching, StatusAwaitingSearch,
	StatusDownloading, StatusProcessing, StatusAwaitingImport, StatusWarn,
	StatusAvailable, StatusDownloaded, StatusFailed, StatusCancelled, StatusDenied,
}

// IsTerminal reports whether the status is final. Terminal requests never
// transition again; re-requesting recycles the row.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusAvailable, StatusDownloaded, StatusCancelled, StatusDenied:
		return true
	}
	return false
}

// IsRecoverable reports whether an explicit retry action can resume the
// pipeline from this status.
func (s Status) IsRecoverable() bool {
	switch s {
	case StatusFailed, StatusWarn, StatusAwaitingSearch, StatusAwaitingImport:
		return true
	}
	return false
}

// MediaType distinguishes the primary audiobook from a companion sidecar.
type MediaType string

const (
	MediaTypeAudiobook MediaType = "audiobook"
	MediaTypeEbook     MediaType = "ebook"
)

// Request is one acquisition attempt for one media item by one user.
type Request struct {
	ID              int64           `json:"id"`
	UserID          int64           `json:"userId"`
	MediaItemID     int64           `json:"mediaItemId"`
	Type            MediaType       `json:"type"`
	Status          Status          `json:"status"`
	Progress        int             `json:"progress"`
	ErrorMessage    *string         `json:"errorMessage,omitempty"`
	ImportAttempts  int             `json:"importAttempts"`
	ParentRequestID *int64          `json:"parentRequestId,omitempty"`
	SearchResults   json.RawMessage `json:"searchResults,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
	DeletedAt       *time.Time      `json:"deletedAt,omitempty"`
}

// CreateInput contains fields for creating a request.
type CreateInput struct {
	Title          string
	Author         string
	ExternalID     string
	RuntimeMinutes int
	Type           MediaType
}

// DirectCreateInput contains fields for creating a direct download request.
type DirectCreateInput struct {
	CreateInput
	URL      string
	Protocol string // torrent or usenet; defaults to torrent
}

// ListFilters narrows request listings.
type ListFilters struct {
	Status *Status
	UserID *int64
}
