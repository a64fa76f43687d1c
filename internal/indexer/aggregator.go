package indexer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Aggregator sentinel errors.
var (
	ErrNoIndexers      = errors.New("no enabled indexers configured")
	ErrAllGroupsFailed = errors.New("all indexer groups failed")
	ErrUnknownIndexer  = errors.New("unknown indexer")
)

// GroupError records a failed search group. Other groups' results are still
// returned.
type GroupError struct {
	Source     string
	IndexerIDs []int64
	Err        error
}

func (e GroupError) Error() string {
	return fmt.Sprintf("indexer group %s %v: %v", e.Source, e.IndexerIDs, e.Err)
}

// Result is an aggregated search outcome: the combined releases plus any
// per-group failures.
type Result struct {
	Releases []Release
	Errors   []GroupError
}

// Aggregator fans a search out across indexer groups and merges the results.
type Aggregator struct {
	mu       sync.RWMutex
	sources  map[string]Searcher
	indexers []Indexer
	logger   zerolog.Logger
}

// NewAggregator creates an empty aggregator. Sources and indexer
// configurations are registered afterwards.
func NewAggregator(logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		sources: make(map[string]Searcher),
		logger:  logger.With().Str("component", "indexers").Logger(),
	}
}

// RegisterSource registers the searcher backing a source name.
func (a *Aggregator) RegisterSource(source string, s Searcher) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sources[source] = s
}

// SetIndexers replaces the indexer configuration.
func (a *Aggregator) SetIndexers(indexers []Indexer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.indexers = indexers
}

// Priorities returns the configured priority per indexer ID for ranking.
func (a *Aggregator) Priorities() map[int64]int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	priorities := make(map[int64]int, len(a.indexers))
	for _, idx := range a.indexers {
		priorities[idx.ID] = idx.Priority
	}
	return priorities
}

// group is one distinct (source, category set) search unit.
type group struct {
	source     string
	categories []int
	indexerIDs []int64
}

// groupIndexers buckets enabled indexers by source and category set so each
// distinct configuration is searched once.
func groupIndexers(indexers []Indexer) []group {
	byKey := make(map[string]*group)
	var order []string
	for _, idx := range indexers {
		if !idx.Enabled {
			continue
		}
		cats := append([]int(nil), idx.Categories...)
		sort.Ints(cats)
		parts := make([]string, len(cats))
		for i, c := range cats {
			parts[i] = fmt.Sprint(c)
		}
		key := idx.Source + "|" + strings.Join(parts, ",")

		g, ok := byKey[key]
		if !ok {
			g = &group{source: idx.Source, categories: cats}
			byKey[key] = g
			order = append(order, key)
		}
		g.indexerIDs = append(g.indexerIDs, idx.ID)
	}

	groups := make([]group, 0, len(order))
	for _, key := range order {
		groups = append(groups, *byKey[key])
	}
	return groups
}

type groupResult struct {
	group    group
	releases []Release
	err      error
}

// Search fans the query out to every indexer group concurrently and merges
// the results. Group failures are tolerated: partial results are returned
// with the failures listed in Result.Errors. Only when every group fails is
// an error returned.
func (a *Aggregator) Search(ctx context.Context, query Query) (*Result, error) {
	a.mu.RLock()
	groups := groupIndexers(a.indexers)
	sources := make(map[string]Searcher, len(a.sources))
	for name, s := range a.sources {
		sources[name] = s
	}
	a.mu.RUnlock()

	if len(groups) == 0 {
		return nil, ErrNoIndexers
	}

	a.logger.Info().
		Str("title", query.Title).
		Str("author", query.Author).
		Int("groups", len(groups)).
		Msg("Dispatching search")

	results := make(chan groupResult, len(groups))
	var wg sync.WaitGroup
	for _, g := range groups {
		searcher, ok := sources[g.source]
		if !ok {
			results <- groupResult{group: g, err: fmt.Errorf("source %q not registered", g.source)}
			continue
		}

		wg.Add(1)
		go func(g group, s Searcher) {
			defer wg.Done()
			gq := query
			gq.Categories = g.categories
			gq.IndexerIDs = g.indexerIDs
			releases, err := s.Search(ctx, gq)
			results <- groupResult{group: g, releases: releases, err: err}
		}(g, searcher)
	}
	wg.Wait()
	close(results)

	result := &Result{}
	failed := 0
	for gr := range results {
		if gr.err != nil {
			failed++
			a.logger.Warn().Err(gr.err).
				Str("source", gr.group.source).
				Ints("categories", gr.group.categories).
				Msg("Indexer group search failed")
			result.Errors = append(result.Errors, GroupError{
				Source:     gr.group.source,
				IndexerIDs: gr.group.indexerIDs,
				Err:        gr.err,
			})
			continue
		}
		result.Releases = append(result.Releases, gr.releases...)
	}

	if failed == len(groups) {
		return nil, fmt.Errorf("%w: %d groups", ErrAllGroupsFailed, failed)
	}

	a.logger.Info().
		Int("releases", len(result.Releases)).
		Int("failedGroups", failed).
		Msg("Search complete")
	return result, nil
}

// Resolve turns a release's stored download URL into a grabbable link. For
// sources returning direct URLs this is the identity.
func (a *Aggregator) Resolve(ctx context.Context, indexerID int64, downloadURL string) (string, error) {
	a.mu.RLock()
	var source string
	for _, idx := range a.indexers {
		if idx.ID == indexerID {
			source = idx.Source
			break
		}
	}
	searcher, ok := a.sources[source]
	a.mu.RUnlock()

	if source == "" || !ok {
		return "", fmt.Errorf("%w: id %d", ErrUnknownIndexer, indexerID)
	}
	if resolver, ok := searcher.(Resolver); ok {
		return resolver.ResolveDownloadURL(ctx, downloadURL)
	}
	return downloadURL, nil
}

// TestSources checks connectivity for every registered source that supports
// it. Returns a map of source name to error (nil for healthy).
func (a *Aggregator) TestSources(ctx context.Context) map[string]error {
	a.mu.RLock()
	sources := make(map[string]Searcher, len(a.sources))
	for name, s := range a.sources {
		sources[name] = s
	}
	a.mu.RUnlock()

	status := make(map[string]error, len(sources))
	for name, s := range sources {
		if hc, ok := s.(HealthChecker); ok {
			status[name] = hc.Test(ctx)
		}
	}
	return status
}
