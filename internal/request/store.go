package request

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Store sentinel errors.
var (
	ErrRequestNotFound = errors.New("request not found")
)

// Execer is the subset of database/sql used by write helpers, satisfied by
// both *sql.DB and *sql.Tx so status updates can join a larger transaction.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Queryer is the read counterpart of Execer.
type Queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store provides access to request rows.
type Store struct {
	db *sql.DB
}

// NewStore creates a new request store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const requestColumns = `id, user_id, media_item_id, type, status, progress, error_message,
	import_attempts, parent_request_id, search_results, created_at, updated_at, deleted_at`

// Get returns a request by ID, including soft-deleted rows.
func (s *Store) Get(ctx context.Context, id int64) (*Request, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM requests WHERE id = ?`, id)
	return scanRequest(row)
}

// GetStatus reads just the current status. It runs against the given Queryer
// so completion paths can re-check the row inside their own transaction and
// see writes that landed while a job was running.
func (s *Store) GetStatus(ctx context.Context, q Queryer, id int64) (Status, error) {
	var status string
	err := q.QueryRowContext(ctx, `SELECT status FROM requests WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrRequestNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read request status: %w", err)
	}
	return Status(status), nil
}

// GetActive returns the active (non-terminal, non-deleted) request for a
// user, media item, and type, or ErrRequestNotFound.
func (s *Store) GetActive(ctx context.Context, userID, mediaItemID int64, mediaType MediaType) (*Request, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+requestColumns+` FROM requests
		WHERE user_id = ? AND media_item_id = ? AND type = ? AND deleted_at IS NULL
		  AND status NOT IN ('available', 'downloaded', 'cancelled', 'denied')`,
		userID, mediaItemID, string(mediaType))
	return scanRequest(row)
}

// GetLatest returns the most recent non-deleted request for a user, media
// item, and type regardless of status, or ErrRequestNotFound.
func (s *Store) GetLatest(ctx context.Context, userID, mediaItemID int64, mediaType MediaType) (*Request, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+requestColumns+` FROM requests
		WHERE user_id = ? AND media_item_id = ? AND type = ? AND deleted_at IS NULL
		ORDER BY created_at DESC, id DESC LIMIT 1`,
		userID, mediaItemID, string(mediaType))
	return scanRequest(row)
}

// List returns requests matching the filters, newest first.
func (s *Store) List(ctx context.Context, filters ListFilters) ([]*Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE deleted_at IS NULL`
	var args []any
	if filters.Status != nil {
		query += ` AND status = ?`
		args = append(args, string(*filters.Status))
	}
	if filters.UserID != nil {
		query += ` AND user_id = ?`
		args = append(args, *filters.UserID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	var result []*Request
	for rows.Next() {
		req, err := scanRequestRows(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, req)
	}
	return result, rows.Err()
}

// ListByStatuses returns non-deleted requests in any of the given statuses.
func (s *Store) ListByStatuses(ctx context.Context, statuses ...Status) ([]*Request, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
	args := make([]any, len(statuses))
	for i, st := range statuses {
		args[i] = string(st)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+requestColumns+` FROM requests
		 WHERE deleted_at IS NULL AND status IN (`+placeholders+`)
		 ORDER BY created_at ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list requests by status: %w", err)
	}
	defer rows.Close()

	var result []*Request
	for rows.Next() {
		req, err := scanRequestRows(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, req)
	}
	return result, rows.Err()
}

// Create inserts a new request row.
func (s *Store) Create(ctx context.Context, userID, mediaItemID int64, mediaType MediaType, status Status, parentRequestID *int64) (*Request, error) {
	var parent sql.NullInt64
	if parentRequestID != nil {
		parent = sql.NullInt64{Int64: *parentRequestID, Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO requests (user_id, media_item_id, type, status, parent_request_id)
		VALUES (?, ?, ?, ?, ?)`,
		userID, mediaItemID, string(mediaType), string(status), parent)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get request id: %w", err)
	}
	return s.Get(ctx, id)
}

// UpdateStatus records the status, error message, and optional progress reset
// for a request. Runs against the given Execer so callers can batch it with a
// job insert in one transaction.
func (s *Store) UpdateStatus(ctx context.Context, ex Execer, id int64, status Status, errorMessage string, progress *int) error {
	var errMsg sql.NullString
	if errorMessage != "" {
		errMsg = sql.NullString{String: errorMessage, Valid: true}
	}

	var err error
	if progress != nil {
		_, err = ex.ExecContext(ctx, `
			UPDATE requests
			SET status = ?, error_message = ?, progress = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?`, string(status), errMsg, *progress, id)
	} else {
		_, err = ex.ExecContext(ctx, `
			UPDATE requests
			SET status = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?`, string(status), errMsg, id)
	}
	if err != nil {
		return fmt.Errorf("failed to update request status: %w", err)
	}
	return nil
}

// UpdateProgress raises the progress percentage. Progress is monotonically
// non-decreasing within a job attempt; lower values are ignored.
func (s *Store) UpdateProgress(ctx context.Context, id int64, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE requests
		SET progress = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND progress < ?`, progress, id, progress)
	if err != nil {
		return fmt.Errorf("failed to update request progress: %w", err)
	}
	return nil
}

// SetSearchResults stores the ranked candidate list surfaced to the user in
// interactive mode.
func (s *Store) SetSearchResults(ctx context.Context, id int64, results any) error {
	data, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("failed to marshal search results: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE requests SET search_results = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, string(data), id)
	if err != nil {
		return fmt.Errorf("failed to store search results: %w", err)
	}
	return nil
}

// IncrementImportAttempts bumps the organize attempt counter.
func (s *Store) IncrementImportAttempts(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE requests SET import_attempts = import_attempts + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to increment import attempts: %w", err)
	}
	return nil
}

// SoftDelete marks a request deleted while preserving its history.
func (s *Store) SoftDelete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE requests SET deleted_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("failed to soft delete request: %w", err)
	}
	return nil
}

// Recycle resets a terminal request row for a fresh acquisition attempt.
func (s *Store) Recycle(ctx context.Context, id int64, status Status) (*Request, error) {
	_, err := s.db.ExecContext(ctx, `
		UPDATE requests
		SET status = ?, progress = 0, error_message = NULL, import_attempts = 0,
		    search_results = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, string(status), id)
	if err != nil {
		return nil, fmt.Errorf("failed to recycle request: %w", err)
	}
	return s.Get(ctx, id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row *sql.Row) (*Request, error) {
	req, err := scanFrom(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	return req, nil
}

func scanRequestRows(rows *sql.Rows) (*Request, error) {
	return scanFrom(rows)
}

func scanFrom(sc rowScanner) (*Request, error) {
	var req Request
	var errMsg sql.NullString
	var parent sql.NullInt64
	var searchResults sql.NullString
	var deletedAt sql.NullTime

	err := sc.Scan(&req.ID, &req.UserID, &req.MediaItemID, &req.Type, &req.Status,
		&req.Progress, &errMsg, &req.ImportAttempts, &parent, &searchResults,
		&req.CreatedAt, &req.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}

	if errMsg.Valid {
		req.ErrorMessage = &errMsg.String
	}
	if parent.Valid {
		req.ParentRequestID = &parent.Int64
	}
	if searchResults.Valid {
		req.SearchResults = json.RawMessage(searchResults.String)
	}
	if deletedAt.Valid {
		req.DeletedAt = &deletedAt.Time
	}
	return &req, nil
}
