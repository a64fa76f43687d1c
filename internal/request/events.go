package request

// WebSocket event types broadcast to connected clients as requests move
// through the pipeline.
const (
	EventRequestCreated  = "request:created"
	EventRequestUpdated  = "request:updated"
	EventRequestProgress = "request:progress"
	EventRequestDeleted  = "request:deleted"
)

// StatusEvent is the payload for created/updated broadcasts.
type StatusEvent struct {
	RequestID    int64  `json:"requestId"`
	Status       Status `json:"status"`
	Progress     int    `json:"progress"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// ProgressEvent is the payload for download progress broadcasts.
type ProgressEvent struct {
	RequestID int64 `json:"requestId"`
	Progress  int   `json:"progress"`
}
