// Package audiobookshelf implements the small slice of the Audiobookshelf
// REST API this application needs: listing libraries and triggering rescans.
package audiobookshelf

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const defaultTimeout = 30 * time.Second

// Library is one Audiobookshelf library.
type Library struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	MediaType string `json:"mediaType"`
}

// Client talks to an Audiobookshelf server.
type Client struct {
	baseURL    string
	token      string
	libraryID  string
	httpClient *http.Client
	logger     zerolog.Logger
}

// Config contains configuration for creating an Audiobookshelf client.
type Config struct {
	URL       string
	Token     string
	LibraryID string
}

// NewClient creates an Audiobookshelf client, or nil when no server is
// configured. A nil client is safe to call; rescans become no-ops.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	if cfg.URL == "" || cfg.Token == "" {
		return nil
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		token:      cfg.Token,
		libraryID:  cfg.LibraryID,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger.With().Str("component", "audiobookshelf").Logger(),
	}
}

// Configured reports whether a server is wired in.
func (c *Client) Configured() bool { return c != nil }

func (c *Client) do(ctx context.Context, method, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// Libraries lists the server's libraries.
func (c *Client) Libraries(ctx context.Context) ([]Library, error) {
	if c == nil {
		return nil, nil
	}
	var res struct {
		Libraries []Library `json:"libraries"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/libraries", &res); err != nil {
		return nil, fmt.Errorf("failed to list libraries: %w", err)
	}
	return res.Libraries, nil
}

// Rescan triggers a scan of the configured library so newly organized files
// show up. With no library ID configured, every audiobook library is scanned.
func (c *Client) Rescan(ctx context.Context) error {
	if c == nil {
		return nil
	}

	ids := []string{c.libraryID}
	if c.libraryID == "" {
		libraries, err := c.Libraries(ctx)
		if err != nil {
			return err
		}
		ids = ids[:0]
		for _, lib := range libraries {
			if lib.MediaType == "book" {
				ids = append(ids, lib.ID)
			}
		}
	}

	for _, id := range ids {
		if err := c.do(ctx, http.MethodPost, "/api/libraries/"+id+"/scan", nil); err != nil {
			return fmt.Errorf("failed to scan library %s: %w", id, err)
		}
		c.logger.Info().Str("libraryId", id).Msg("Triggered library rescan")
	}
	return nil
}

// Test verifies connectivity and the token.
func (c *Client) Test(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if _, err := c.Libraries(ctx); err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}
