// Package qbittorrent implements a qBittorrent Web API (v2) client.
package qbittorrent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kikootwo/readmeabook/internal/downloader/types"
)

const defaultTimeout = 30 * time.Second

// tagPrefix marks torrents submitted by this application so they can be
// located by tag after an async add.
const tagPrefix = "rmab-"

// Client implements types.Client against the qBittorrent Web API.
type Client struct {
	baseURL    string
	config     types.ClientConfig
	httpClient *http.Client
	logger     zerolog.Logger
}

var _ types.Client = (*Client)(nil)

// New creates a new qBittorrent client.
func New(cfg types.ClientConfig, logger zerolog.Logger) (*Client, error) {
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	return &Client{
		baseURL: fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port),
		config:  cfg,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
			Jar:     jar,
		},
		logger: logger.With().Str("component", "qbittorrent").Logger(),
	}, nil
}

// Type returns the client type.
func (c *Client) Type() types.ClientType { return types.ClientTypeQBittorrent }

// Protocol returns the protocol.
func (c *Client) Protocol() types.Protocol { return types.ProtocolTorrent }

// login authenticates and stores the SID cookie in the client's jar.
func (c *Client) login(ctx context.Context) error {
	form := url.Values{}
	form.Set("username", c.config.Username)
	form.Set("password", c.config.Password)

	body, err := c.postForm(ctx, "/api/v2/auth/login", form)
	if err != nil {
		return err
	}
	if strings.TrimSpace(body) != "Ok." {
		return types.ErrAuthFailed
	}
	return nil
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode == http.StatusForbidden {
		return "", types.ErrAuthFailed
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(raw))
	}
	return string(raw), nil
}

func (c *Client) getJSON(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden {
		return types.ErrAuthFailed
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(result)
}

// authed runs fn, logging in and retrying once if the session has expired.
func (c *Client) authed(ctx context.Context, fn func() error) error {
	err := fn()
	if err == nil || !errors.Is(err, types.ErrAuthFailed) {
		return err
	}
	if err := c.login(ctx); err != nil {
		return err
	}
	return fn()
}

// Test verifies connectivity and credentials.
func (c *Client) Test(ctx context.Context) error {
	if err := c.login(ctx); err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// torrentInfo is one row of /api/v2/torrents/info.
type torrentInfo struct {
	Hash        string  `json:"hash"`
	Name        string  `json:"name"`
	Progress    float64 `json:"progress"` // 0-1
	State       string  `json:"state"`
	SavePath    string  `json:"save_path"`
	ContentPath string  `json:"content_path"`
}

// Submit adds the torrent and returns its info hash. qBittorrent's add
// endpoint does not echo the hash back, so the torrent is submitted with a
// unique tag and located by that tag.
func (c *Client) Submit(ctx context.Context, req types.SubmitRequest) (string, error) {
	tag := tagPrefix + uuid.NewString()[:8]

	form := url.Values{}
	form.Set("urls", req.URL)
	form.Set("tags", tag)
	if c.config.Category != "" {
		form.Set("category", c.config.Category)
	}

	err := c.authed(ctx, func() error {
		_, err := c.postForm(ctx, "/api/v2/torrents/add", form)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to add torrent: %w", err)
	}

	// The add is asynchronous; poll briefly for the tagged torrent to appear.
	var hash string
	deadline := time.Now().Add(15 * time.Second)
	for time.Now().Before(deadline) {
		var torrents []torrentInfo
		err := c.authed(ctx, func() error {
			return c.getJSON(ctx, "/api/v2/torrents/info?tag="+url.QueryEscape(tag), &torrents)
		})
		if err != nil {
			return "", fmt.Errorf("failed to locate added torrent: %w", err)
		}
		if len(torrents) > 0 {
			hash = torrents[0].Hash
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Second):
		}
	}
	if hash == "" {
		return "", fmt.Errorf("torrent did not appear after add")
	}

	c.logger.Info().Str("hash", hash).Str("name", req.Name).Msg("Submitted torrent")
	return hash, nil
}

// Status returns the state of a torrent by hash.
func (c *Client) Status(ctx context.Context, id string) (*types.DownloadState, error) {
	var torrents []torrentInfo
	err := c.authed(ctx, func() error {
		return c.getJSON(ctx, "/api/v2/torrents/info?hashes="+url.QueryEscape(id), &torrents)
	})
	if err != nil {
		return nil, err
	}
	if len(torrents) == 0 {
		return nil, types.ErrNotFound
	}

	t := torrents[0]
	state := &types.DownloadState{
		Progress: t.Progress * 100,
		SavePath: t.ContentPath,
	}
	if state.SavePath == "" {
		state.SavePath = t.SavePath
	}

	switch t.State {
	case "uploading", "stalledUP", "pausedUP", "stoppedUP", "queuedUP", "forcedUP", "checkingUP":
		state.Done = true
		state.Progress = 100
	case "error", "missingFiles":
		state.Errored = true
		state.Error = fmt.Sprintf("torrent in state %s", t.State)
	}
	return state, nil
}

// Remove deletes a torrent by hash.
func (c *Client) Remove(ctx context.Context, id string, deleteFiles bool) error {
	form := url.Values{}
	form.Set("hashes", id)
	form.Set("deleteFiles", fmt.Sprint(deleteFiles))

	err := c.authed(ctx, func() error {
		_, err := c.postForm(ctx, "/api/v2/torrents/delete", form)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to remove torrent: %w", err)
	}
	return nil
}
