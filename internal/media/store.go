package media

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// ErrNotFound is returned when a media item does not exist.
var ErrNotFound = errors.New("media item not found")

// Store provides access to media item rows.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewStore creates a new media store.
func NewStore(db *sql.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "media").Logger(),
	}
}

// Get returns a media item by ID.
func (s *Store) Get(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, author, external_id, runtime_minutes, created_at, updated_at
		FROM media_items WHERE id = ?`, id)
	return scanItem(row)
}

// GetByExternalID returns a media item by its catalog identifier.
func (s *Store) GetByExternalID(ctx context.Context, externalID string) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, author, external_id, runtime_minutes, created_at, updated_at
		FROM media_items WHERE external_id = ?`, externalID)
	return scanItem(row)
}

// Upsert finds an existing item by external ID (or title+author when no
// external ID is known) and refreshes its catalog fields, or creates it.
// Repeated calls with the same input are no-ops.
func (s *Store) Upsert(ctx context.Context, input UpsertInput) (*Item, error) {
	var existing *Item
	var err error

	if input.ExternalID != "" {
		existing, err = s.GetByExternalID(ctx, input.ExternalID)
	} else {
		row := s.db.QueryRowContext(ctx, `
			SELECT id, title, author, external_id, runtime_minutes, created_at, updated_at
			FROM media_items WHERE title = ? AND author = ?`, input.Title, input.Author)
		existing, err = scanItem(row)
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if existing != nil {
		runtime := input.RuntimeMinutes
		if runtime == 0 {
			runtime = existing.RuntimeMinutes
		}
		_, err = s.db.ExecContext(ctx, `
			UPDATE media_items
			SET title = ?, author = ?, runtime_minutes = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?`, input.Title, input.Author, runtime, existing.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to update media item: %w", err)
		}
		return s.Get(ctx, existing.ID)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO media_items (title, author, external_id, runtime_minutes)
		VALUES (?, ?, ?, ?)`,
		input.Title, input.Author, input.ExternalID, input.RuntimeMinutes)
	if err != nil {
		return nil, fmt.Errorf("failed to create media item: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get media item id: %w", err)
	}

	s.logger.Info().Int64("mediaItemId", id).Str("title", input.Title).Msg("Created media item")
	return s.Get(ctx, id)
}

func scanItem(row *sql.Row) (*Item, error) {
	var item Item
	err := row.Scan(&item.ID, &item.Title, &item.Author, &item.ExternalID,
		&item.RuntimeMinutes, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan media item: %w", err)
	}
	return &item, nil
}
