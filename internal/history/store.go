package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Store sentinel errors.
var (
	ErrNoSelection = errors.New("no selected download for request")
)

// Store provides access to download history rows and the request event trail.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewStore creates a new history store.
func NewStore(db *sql.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "history").Logger(),
	}
}

const entryColumns = `id, request_id, guid, title, indexer, indexer_id, size, seeders,
	protocol, download_url, quality_score, selected, external_id, save_path,
	created_at, updated_at`

// SelectCandidate records the chosen release for a request. Any previously
// selected row for the request is demoted first so the partial unique index
// on (request_id) WHERE selected holds.
func (s *Store) SelectCandidate(ctx context.Context, requestID int64, input SelectInput) (*Entry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE download_history SET selected = 0, updated_at = CURRENT_TIMESTAMP
		WHERE request_id = ? AND selected = 1`, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to demote previous selection: %w", err)
	}

	var seeders sql.NullInt64
	if input.Seeders != nil {
		seeders = sql.NullInt64{Int64: int64(*input.Seeders), Valid: true}
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO download_history
			(request_id, guid, title, indexer, indexer_id, size, seeders, protocol,
			 download_url, quality_score, selected)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		requestID, input.GUID, input.Title, input.Indexer, input.IndexerID,
		input.Size, seeders, input.Protocol, input.DownloadURL, input.QualityScore)
	if err != nil {
		return nil, fmt.Errorf("failed to record selected candidate: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get history id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit selection: %w", err)
	}

	s.logger.Info().
		Int64("requestId", requestID).
		Str("title", input.Title).
		Str("indexer", input.Indexer).
		Msg("Recorded selected candidate")

	return s.get(ctx, id)
}

// GetSelected returns the currently selected download for a request, or
// ErrNoSelection.
func (s *Store) GetSelected(ctx context.Context, requestID int64) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM download_history
		 WHERE request_id = ? AND selected = 1`, requestID)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoSelection
		}
		return nil, err
	}
	return entry, nil
}

// SetExternalID records the download client's identifier for the selected row.
func (s *Store) SetExternalID(ctx context.Context, id int64, externalID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE download_history SET external_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, externalID, id)
	if err != nil {
		return fmt.Errorf("failed to set external id: %w", err)
	}
	return nil
}

// SetSavePath records where the download client placed the files.
func (s *Store) SetSavePath(ctx context.Context, id int64, savePath string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE download_history SET save_path = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, savePath, id)
	if err != nil {
		return fmt.Errorf("failed to set save path: %w", err)
	}
	return nil
}

// ListByRequest returns the full download history for a request, newest first.
func (s *Store) ListByRequest(ctx context.Context, requestID int64) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM download_history
		 WHERE request_id = ? ORDER BY created_at DESC`, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list download history: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// AddEvent appends one event to a request's trail.
func (s *Store) AddEvent(ctx context.Context, requestID int64, eventType EventType, data map[string]any) error {
	var payload sql.NullString
	if len(data) > 0 {
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to marshal event data: %w", err)
		}
		payload = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO request_events (request_id, event_type, data)
		VALUES (?, ?, ?)`, requestID, string(eventType), payload)
	if err != nil {
		return fmt.Errorf("failed to add request event: %w", err)
	}
	return nil
}

// ListEvents returns a request's event trail, oldest first.
func (s *Store) ListEvents(ctx context.Context, requestID int64) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, event_type, data, created_at
		FROM request_events WHERE request_id = ? ORDER BY created_at ASC, id ASC`, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to list request events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var ev Event
		var evType string
		var data sql.NullString
		if err := rows.Scan(&ev.ID, &ev.RequestID, &evType, &data, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan request event: %w", err)
		}
		ev.EventType = EventType(evType)
		if data.Valid {
			if err := json.Unmarshal([]byte(data.String), &ev.Data); err != nil {
				return nil, fmt.Errorf("failed to decode event data: %w", err)
			}
		}
		events = append(events, &ev)
	}
	return events, rows.Err()
}

// DeleteEventsOlderThan prunes the event trail, keeping the most recent
// retentionDays worth of events. Returns the number of rows removed.
func (s *Store) DeleteEventsOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM request_events
		WHERE created_at < datetime('now', ?)`,
		fmt.Sprintf("-%d days", retentionDays))
	if err != nil {
		return 0, fmt.Errorf("failed to prune request events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Debug().Int64("deleted", n).Msg("Pruned request events")
	}
	return n, nil
}

func (s *Store) get(ctx context.Context, id int64) (*Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM download_history WHERE id = ?`, id)
	return scanEntry(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc rowScanner) (*Entry, error) {
	var e Entry
	var seeders sql.NullInt64
	var externalID, savePath sql.NullString

	err := sc.Scan(&e.ID, &e.RequestID, &e.GUID, &e.Title, &e.Indexer, &e.IndexerID,
		&e.Size, &seeders, &e.Protocol, &e.DownloadURL, &e.QualityScore,
		&e.Selected, &externalID, &savePath, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if seeders.Valid {
		v := int(seeders.Int64)
		e.Seeders = &v
	}
	e.ExternalID = externalID.String
	e.SavePath = savePath.String
	return &e, nil
}
