// Package mock provides an in-memory indexer backend for development and
// tests.
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/kikootwo/readmeabook/internal/indexer"
)

// SourceName is the registration key for this searcher.
const SourceName = "mock"

// Backend serves canned releases, filtered by a case-insensitive title match.
type Backend struct {
	mu       sync.RWMutex
	releases []indexer.Release
	err      error
}

// NewBackend creates an empty mock backend.
func NewBackend() *Backend {
	return &Backend{}
}

// SetReleases replaces the canned release list.
func (b *Backend) SetReleases(releases []indexer.Release) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.releases = releases
}

// SetError makes every subsequent search fail with err. Pass nil to clear.
func (b *Backend) SetError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.err = err
}

// Search returns canned releases whose title contains every word of the
// query title.
func (b *Backend) Search(ctx context.Context, query indexer.Query) ([]indexer.Release, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.err != nil {
		return nil, b.err
	}

	words := strings.Fields(strings.ToLower(query.Title))
	var matches []indexer.Release
	for _, r := range b.releases {
		title := strings.ToLower(r.Title)
		matched := true
		for _, w := range words {
			if !strings.Contains(title, w) {
				matched = false
				break
			}
		}
		if matched {
			matches = append(matches, r)
		}
	}
	return matches, nil
}

// Test always succeeds.
func (b *Backend) Test(ctx context.Context) error {
	return ctx.Err()
}
