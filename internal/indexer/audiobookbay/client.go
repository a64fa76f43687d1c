// Package audiobookbay implements release search by scraping the AudioBookBay
// web site. Search results carry the details-page URL; the magnet link is
// resolved from the details page at grab time to keep searches to one fetch.
package audiobookbay

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/kikootwo/readmeabook/internal/indexer"
)

const (
	defaultBaseURL = "https://audiobookbay.lu"
	defaultTimeout = 60 * time.Second
	userAgent      = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36"

	// SourceName is the registration key for this searcher.
	SourceName = "audiobookbay"
)

// trackers appended to resolved magnet links; the site lists its hashes
// without trackers.
var trackers = []string{
	"udp://tracker.opentrackr.org:1337/announce",
	"udp://open.stealth.si:80/announce",
	"udp://tracker.torrent.eu.org:451/announce",
}

var (
	sizePattern     = regexp.MustCompile(`(?i)File Size:\s*([\d.]+)\s*(GB|MB|KB)`)
	infoHashPattern = regexp.MustCompile(`\b[0-9a-fA-F]{40}\b`)
)

// Client scrapes AudioBookBay search pages.
type Client struct {
	baseURL    string
	indexerID  int64
	httpClient *http.Client
	logger     zerolog.Logger
}

// Config contains configuration for creating an AudioBookBay client.
type Config struct {
	BaseURL   string
	IndexerID int64
}

// NewClient creates a new AudioBookBay scraper.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		indexerID:  cfg.IndexerID,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger: logger.With().
			Str("component", "audiobookbay").
			Str("url", baseURL).
			Logger(),
	}
}

func (c *Client) fetch(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request failed with status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}
	return doc, nil
}

// Search scrapes the site's search listing. Seeders are not published on the
// listing page and are left unknown.
func (c *Client) Search(ctx context.Context, query indexer.Query) ([]indexer.Release, error) {
	term := strings.TrimSpace(query.Title + " " + query.Author)
	searchURL := fmt.Sprintf("%s/?s=%s", c.baseURL, url.QueryEscape(strings.ToLower(term)))

	c.logger.Debug().Str("query", term).Msg("scraping search page")

	doc, err := c.fetch(ctx, searchURL)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	var releases []indexer.Release
	doc.Find("div.post").Each(func(_ int, post *goquery.Selection) {
		titleLink := post.Find(".postTitle h2 a").First()
		title := strings.TrimSpace(titleLink.Text())
		href, ok := titleLink.Attr("href")
		if title == "" || !ok {
			return
		}
		detailsURL := c.absoluteURL(href)

		releases = append(releases, indexer.Release{
			GUID:        detailsURL,
			Title:       title,
			Indexer:     "AudioBookBay",
			IndexerID:   c.indexerID,
			Size:        parseSize(post.Find(".postContent").Text()),
			Protocol:    indexer.ProtocolTorrent,
			DownloadURL: detailsURL,
		})
	})

	c.logger.Debug().Int("results", len(releases)).Msg("search page scraped")
	return releases, nil
}

// ResolveDownloadURL fetches a details page and builds the magnet link from
// the info hash listed there.
func (c *Client) ResolveDownloadURL(ctx context.Context, downloadURL string) (string, error) {
	doc, err := c.fetch(ctx, downloadURL)
	if err != nil {
		return "", fmt.Errorf("failed to fetch details page: %w", err)
	}

	var infoHash string
	doc.Find("table tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		label := strings.TrimSpace(row.Find("td").First().Text())
		if !strings.Contains(strings.ToLower(label), "info hash") {
			return true
		}
		value := strings.TrimSpace(row.Find("td").Last().Text())
		if m := infoHashPattern.FindString(value); m != "" {
			infoHash = m
			return false
		}
		return true
	})
	if infoHash == "" {
		// Some page layouts put the hash in free text instead of a table.
		infoHash = infoHashPattern.FindString(doc.Text())
	}
	if infoHash == "" {
		return "", fmt.Errorf("no info hash found on details page %s", downloadURL)
	}

	magnet := "magnet:?xt=urn:btih:" + strings.ToLower(infoHash)
	for _, tr := range trackers {
		magnet += "&tr=" + url.QueryEscape(tr)
	}
	return magnet, nil
}

// Test verifies the site is reachable.
func (c *Client) Test(ctx context.Context) error {
	if _, err := c.fetch(ctx, c.baseURL+"/"); err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

func (c *Client) absoluteURL(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return c.baseURL + "/" + strings.TrimPrefix(href, "/")
}

func parseSize(text string) int64 {
	m := sizePattern.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0
	}
	switch strings.ToUpper(m[2]) {
	case "GB":
		return int64(value * 1024 * 1024 * 1024)
	case "MB":
		return int64(value * 1024 * 1024)
	default:
		return int64(value * 1024)
	}
}
