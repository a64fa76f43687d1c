// Package webhook delivers notification events as JSON to a configured HTTP
// endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/kikootwo/readmeabook/internal/notification/types"
)

const defaultTimeout = 15 * time.Second

// Notifier posts events to a webhook URL.
type Notifier struct {
	url        string
	method     string
	httpClient *http.Client
	logger     zerolog.Logger
}

var _ types.Notifier = (*Notifier)(nil)

// Config contains configuration for the webhook notifier.
type Config struct {
	URL    string
	Method string // defaults to POST
}

// New creates a webhook notifier.
func New(cfg Config, logger zerolog.Logger) *Notifier {
	method := cfg.Method
	if method == "" {
		method = http.MethodPost
	}
	return &Notifier{
		url:        cfg.URL,
		method:     method,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger.With().Str("component", "webhook").Logger(),
	}
}

// Name identifies this notifier in logs.
func (n *Notifier) Name() string { return "webhook" }

// Send posts the event as JSON.
func (n *Notifier) Send(ctx context.Context, event types.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, n.method, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	n.logger.Debug().Str("type", event.Type).Int64("requestId", event.RequestID).
		Msg("Delivered webhook notification")
	return nil
}
