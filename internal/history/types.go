// Package history records which candidate was chosen for a request and the
// event trail of the request's lifecycle.
package history

import "time"

// EventType represents the type of request event.
type EventType string

const (
	EventTypeGrabbed       EventType = "grabbed"
	EventTypeImported      EventType = "imported"
	EventTypeFailed        EventType = "failed"
	EventTypeStatusChanged EventType = "status_changed"
	EventTypeJobCompleted  EventType = "job_completed"
	EventTypeJobFailed     EventType = "job_failed"
)

// Entry is one download-history row: the record of which candidate was
// chosen for a request. At most one row per request has Selected set.
type Entry struct {
	ID           int64     `json:"id"`
	RequestID    int64     `json:"requestId"`
	GUID         string    `json:"guid"`
	Title        string    `json:"title"`
	Indexer      string    `json:"indexer"`
	IndexerID    int64     `json:"indexerId"`
	Size         int64     `json:"size"`
	Seeders      *int      `json:"seeders,omitempty"`
	Protocol     string    `json:"protocol"`
	DownloadURL  string    `json:"downloadUrl"`
	QualityScore float64   `json:"qualityScore"`
	Selected     bool      `json:"selected"`
	ExternalID   string    `json:"externalId"`
	SavePath     string    `json:"savePath"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// SelectInput contains the candidate fields recorded when a release is chosen.
type SelectInput struct {
	GUID         string
	Title        string
	Indexer      string
	IndexerID    int64
	Size         int64
	Seeders      *int
	Protocol     string
	DownloadURL  string
	QualityScore float64
}

// Event is one lifecycle event on a request.
type Event struct {
	ID        int64          `json:"id"`
	RequestID int64          `json:"requestId"`
	EventType EventType      `json:"eventType"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}
