// Package types defines shared types for notification delivery.
package types

import (
	"context"
	"time"
)

// Event is one user-facing notification.
type Event struct {
	Type      string    `json:"type"`
	RequestID int64     `json:"requestId"`
	Title     string    `json:"title"`
	Author    string    `json:"author,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier delivers events to one destination.
type Notifier interface {
	Name() string
	Send(ctx context.Context, event Event) error
}
