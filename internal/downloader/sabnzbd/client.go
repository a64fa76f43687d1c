// Package sabnzbd implements a SABnzbd JSON API client.
package sabnzbd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/kikootwo/readmeabook/internal/downloader/types"
)

const defaultTimeout = 30 * time.Second

// Client implements types.Client against the SABnzbd API.
type Client struct {
	baseURL    string
	config     types.ClientConfig
	httpClient *http.Client
	logger     zerolog.Logger
}

var _ types.Client = (*Client)(nil)

// New creates a new SABnzbd client.
func New(cfg types.ClientConfig, logger zerolog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("sabnzbd API key is required")
	}
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	return &Client{
		baseURL:    fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port),
		config:     cfg,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger.With().Str("component", "sabnzbd").Logger(),
	}, nil
}

// Type returns the client type.
func (c *Client) Type() types.ClientType { return types.ClientTypeSABnzbd }

// Protocol returns the protocol.
func (c *Client) Protocol() types.Protocol { return types.ProtocolUsenet }

func (c *Client) call(ctx context.Context, params url.Values, result any) error {
	params.Set("apikey", c.config.APIKey)
	params.Set("output", "json")

	reqURL := c.baseURL + "/api?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(result)
}

// Test verifies connectivity and the API key.
func (c *Client) Test(ctx context.Context) error {
	params := url.Values{}
	params.Set("mode", "version")

	var res struct {
		Version string `json:"version"`
	}
	if err := c.call(ctx, params, &res); err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	if res.Version == "" {
		return types.ErrAuthFailed
	}
	return nil
}

// Submit queues an NZB by URL and returns the nzo_id.
func (c *Client) Submit(ctx context.Context, req types.SubmitRequest) (string, error) {
	params := url.Values{}
	params.Set("mode", "addurl")
	params.Set("name", req.URL)
	if req.Name != "" {
		params.Set("nzbname", req.Name)
	}
	if c.config.Category != "" {
		params.Set("cat", c.config.Category)
	}

	var res struct {
		Status bool     `json:"status"`
		NzoIDs []string `json:"nzo_ids"`
		Error  string   `json:"error"`
	}
	if err := c.call(ctx, params, &res); err != nil {
		return "", fmt.Errorf("failed to queue nzb: %w", err)
	}
	if !res.Status || len(res.NzoIDs) == 0 {
		return "", fmt.Errorf("failed to queue nzb: %s", res.Error)
	}

	c.logger.Info().Str("nzoId", res.NzoIDs[0]).Str("name", req.Name).Msg("Queued nzb")
	return res.NzoIDs[0], nil
}

type queueSlot struct {
	NzoID      string `json:"nzo_id"`
	Status     string `json:"status"`
	Percentage string `json:"percentage"`
}

type historySlot struct {
	NzoID   string `json:"nzo_id"`
	Status  string `json:"status"`
	Storage string `json:"storage"`
	FailMsg string `json:"fail_message"`
}

// Status looks a download up in the queue, then in history once it has left
// the queue.
func (c *Client) Status(ctx context.Context, id string) (*types.DownloadState, error) {
	queueParams := url.Values{}
	queueParams.Set("mode", "queue")
	queueParams.Set("nzo_ids", id)

	var queueRes struct {
		Queue struct {
			Slots []queueSlot `json:"slots"`
		} `json:"queue"`
	}
	if err := c.call(ctx, queueParams, &queueRes); err != nil {
		return nil, err
	}
	for _, slot := range queueRes.Queue.Slots {
		if slot.NzoID != id {
			continue
		}
		var pct float64
		fmt.Sscanf(slot.Percentage, "%f", &pct)
		return &types.DownloadState{Progress: pct}, nil
	}

	historyParams := url.Values{}
	historyParams.Set("mode", "history")
	historyParams.Set("nzo_ids", id)

	var historyRes struct {
		History struct {
			Slots []historySlot `json:"slots"`
		} `json:"history"`
	}
	if err := c.call(ctx, historyParams, &historyRes); err != nil {
		return nil, err
	}
	for _, slot := range historyRes.History.Slots {
		if slot.NzoID != id {
			continue
		}
		state := &types.DownloadState{SavePath: slot.Storage}
		switch slot.Status {
		case "Completed":
			state.Done = true
			state.Progress = 100
		case "Failed":
			state.Errored = true
			state.Error = slot.FailMsg
		}
		return state, nil
	}
	return nil, types.ErrNotFound
}

// Remove deletes a download from the queue or history.
func (c *Client) Remove(ctx context.Context, id string, deleteFiles bool) error {
	params := url.Values{}
	params.Set("mode", "queue")
	params.Set("name", "delete")
	params.Set("value", id)
	if deleteFiles {
		params.Set("del_files", "1")
	}

	var res struct {
		Status bool `json:"status"`
	}
	if err := c.call(ctx, params, &res); err != nil {
		return fmt.Errorf("failed to remove download: %w", err)
	}
	if !res.Status {
		// Already out of the queue; try history.
		params.Set("mode", "history")
		if err := c.call(ctx, params, &res); err != nil {
			return fmt.Errorf("failed to remove download: %w", err)
		}
	}
	return nil
}
