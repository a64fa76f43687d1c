// Package prowlarr implements release search through a Prowlarr server's
// REST API.
package prowlarr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kikootwo/readmeabook/internal/indexer"
)

const (
	defaultTimeout = 90 * time.Second
	//nolint:gosec // header name constant, not a credential
	apiKeyHeader = "X-Api-Key"
)

// Client provides HTTP communication with a Prowlarr server.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     zerolog.Logger
}

// Config contains configuration for creating a Prowlarr client.
type Config struct {
	URL     string
	APIKey  string
	Timeout int
}

// NewClient creates a new Prowlarr HTTP client.
func NewClient(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("prowlarr URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("prowlarr API key is required")
	}

	timeout := defaultTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}

	baseURL := strings.TrimSuffix(cfg.URL, "/")
	return &Client{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With().
			Str("component", "prowlarr").
			Str("url", baseURL).
			Logger(),
	}, nil
}

// doJSON executes a GET with the API key header and decodes the JSON response.
func (c *Client) doJSON(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)

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

// searchResult is one release from Prowlarr's /api/v1/search response.
type searchResult struct {
	GUID         string   `json:"guid"`
	Title        string   `json:"title"`
	Size         int64    `json:"size"`
	IndexerID    int64    `json:"indexerId"`
	Indexer      string   `json:"indexer"`
	PublishDate  string   `json:"publishDate"`
	DownloadURL  string   `json:"downloadUrl"`
	MagnetURL    string   `json:"magnetUrl"`
	Seeders      *int     `json:"seeders"`
	Protocol     string   `json:"protocol"`
	IndexerFlags []string `json:"indexerFlags"`
}

// Search executes a text search through Prowlarr, scoped to the query's
// categories and indexer IDs.
func (c *Client) Search(ctx context.Context, query indexer.Query) ([]indexer.Release, error) {
	term := strings.TrimSpace(query.Title + " " + query.Author)

	params := url.Values{}
	params.Set("query", term)
	params.Set("type", "search")
	for _, cat := range query.Categories {
		params.Add("categories", strconv.Itoa(cat))
	}
	for _, id := range query.IndexerIDs {
		params.Add("indexerIds", strconv.FormatInt(id, 10))
	}

	path := "/api/v1/search?" + params.Encode()
	c.logger.Debug().Str("query", term).Ints("categories", query.Categories).
		Msg("executing Prowlarr search request")

	var results []searchResult
	if err := c.doJSON(ctx, path, &results); err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	releases := make([]indexer.Release, 0, len(results))
	for _, r := range results {
		downloadURL := r.DownloadURL
		if downloadURL == "" {
			downloadURL = r.MagnetURL
		}
		release := indexer.Release{
			GUID:        r.GUID,
			Title:       r.Title,
			Indexer:     r.Indexer,
			IndexerID:   r.IndexerID,
			Size:        r.Size,
			Seeders:     r.Seeders,
			Protocol:    r.Protocol,
			DownloadURL: downloadURL,
			Flags:       r.IndexerFlags,
		}
		if t, err := time.Parse(time.RFC3339, r.PublishDate); err == nil {
			release.PublishDate = t
		}
		releases = append(releases, release)
	}

	c.logger.Debug().Int("results", len(releases)).Msg("Prowlarr search completed")
	return releases, nil
}

// Test verifies connectivity by fetching system status.
func (c *Client) Test(ctx context.Context) error {
	var status struct {
		Version string `json:"version"`
	}
	if err := c.doJSON(ctx, "/api/v1/system/status", &status); err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	c.logger.Debug().Str("version", status.Version).Msg("connection test successful")
	return nil
}
