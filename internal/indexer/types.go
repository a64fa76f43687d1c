// Package indexer aggregates release searches across configured indexers.
// Indexers with identical source and category configuration are grouped so
// each distinct configuration is queried exactly once per search.
package indexer

import (
	"context"
	"time"
)

// Release protocols.
const (
	ProtocolTorrent = "torrent"
	ProtocolUsenet  = "usenet"
)

// Release is one search result from an indexer.
type Release struct {
	GUID        string    `json:"guid"`
	Title       string    `json:"title"`
	Indexer     string    `json:"indexer"`
	IndexerID   int64     `json:"indexerId"`
	Size        int64     `json:"size"`
	Seeders     *int      `json:"seeders,omitempty"`
	Protocol    string    `json:"protocol"`
	DownloadURL string    `json:"downloadUrl"`
	Flags       []string  `json:"flags,omitempty"`
	PublishDate time.Time `json:"publishDate,omitempty"`
}

// Query is one aggregated search request.
type Query struct {
	Title  string
	Author string
	// Categories and IndexerIDs are filled per group by the aggregator.
	Categories []int
	IndexerIDs []int64
}

// Indexer is one configured indexer instance.
type Indexer struct {
	ID         int64
	Name       string
	Source     string
	Priority   int
	Categories []int
	Enabled    bool
}

// Searcher executes a search against one indexer source (Prowlarr,
// AudioBookBay, mock).
type Searcher interface {
	Search(ctx context.Context, query Query) ([]Release, error)
}

// Resolver is implemented by sources whose search results carry an indirect
// download URL (a details page) that must be resolved to a grabbable link.
type Resolver interface {
	ResolveDownloadURL(ctx context.Context, downloadURL string) (string, error)
}

// HealthChecker is implemented by sources that can verify connectivity.
type HealthChecker interface {
	Test(ctx context.Context) error
}
