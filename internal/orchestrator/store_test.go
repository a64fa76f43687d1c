package orchestrator

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kikootwo/readmeabook/internal/request"
	"github.com/kikootwo/readmeabook/internal/testutil"
)

func createRequestRow(t *testing.T, db *sql.DB, status request.Status) int64 {
	t.Helper()
	res, err := db.Exec(`INSERT INTO media_items (title, author) VALUES ('Dune', 'Frank Herbert')`)
	if err != nil {
		t.Fatalf("failed to insert media item: %v", err)
	}
	itemID, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("failed to get media item id: %v", err)
	}
	res, err = db.Exec(`INSERT INTO requests (user_id, media_item_id, status) VALUES (1, ?, ?)`,
		itemID, string(status))
	if err != nil {
		t.Fatalf("failed to insert request: %v", err)
	}
	reqID, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("failed to get request id: %v", err)
	}
	return reqID
}

func TestJobStore_EnqueueAndClaim(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()

	store := NewJobStore(tdb.Conn)
	ctx := context.Background()
	reqID := createRequestRow(t, tdb.Conn, request.StatusPending)

	correlationID := uuid.NewString()
	if err := store.Enqueue(ctx, tdb.Conn, correlationID, request.StageSearch, reqID, nil, 3); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	job, err := store.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("ClaimNext() error = %v", err)
	}
	if job == nil {
		t.Fatal("ClaimNext() = nil, want the enqueued job")
	}
	if job.Type != request.StageSearch || job.RequestID != reqID {
		t.Errorf("claimed job = %+v, want search job for request %d", job, reqID)
	}
	if job.Status != JobStatusRunning {
		t.Errorf("Status = %s, want running", job.Status)
	}
	if job.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", job.Attempts)
	}
	if job.CorrelationID != correlationID {
		t.Errorf("CorrelationID = %q, want %q", job.CorrelationID, correlationID)
	}

	// Nothing else is claimable.
	again, err := store.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("second ClaimNext() error = %v", err)
	}
	if again != nil {
		t.Errorf("second ClaimNext() = %+v, want nil", again)
	}
}

func TestJobStore_SingleActiveJobPerRequest(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()

	store := NewJobStore(tdb.Conn)
	ctx := context.Background()
	reqID := createRequestRow(t, tdb.Conn, request.StatusPending)

	if err := store.Enqueue(ctx, tdb.Conn, uuid.NewString(), request.StageSearch, reqID, nil, 3); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	err := store.Enqueue(ctx, tdb.Conn, uuid.NewString(), request.StageDownload, reqID, nil, 3)
	if !errors.Is(err, ErrJobAlreadyQueued) {
		t.Errorf("second Enqueue() error = %v, want ErrJobAlreadyQueued", err)
	}

	// Notify jobs are exempt from the single-job rule.
	payload := NotifyPayload{Event: request.NotifyAvailable}
	if err := store.Enqueue(ctx, tdb.Conn, uuid.NewString(), request.StageNotify, reqID, payload, 3); err != nil {
		t.Errorf("notify Enqueue() error = %v, want nil", err)
	}
}

func TestJobStore_EnqueueAfterCompletion(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()

	store := NewJobStore(tdb.Conn)
	ctx := context.Background()
	reqID := createRequestRow(t, tdb.Conn, request.StatusPending)

	if err := store.Enqueue(ctx, tdb.Conn, uuid.NewString(), request.StageSearch, reqID, nil, 3); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	job, err := store.ClaimNext(ctx)
	if err != nil || job == nil {
		t.Fatalf("ClaimNext() = %v, %v", job, err)
	}
	if err := store.MarkCompleted(ctx, tdb.Conn, job.ID); err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}

	if err := store.Enqueue(ctx, tdb.Conn, uuid.NewString(), request.StageDownload, reqID, nil, 3); err != nil {
		t.Errorf("Enqueue() after completion error = %v, want nil", err)
	}
}

func TestJobStore_RequeueDelaysClaim(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()

	store := NewJobStore(tdb.Conn)
	ctx := context.Background()
	reqID := createRequestRow(t, tdb.Conn, request.StatusPending)

	if err := store.Enqueue(ctx, tdb.Conn, uuid.NewString(), request.StageSearch, reqID, nil, 3); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	job, err := store.ClaimNext(ctx)
	if err != nil || job == nil {
		t.Fatalf("ClaimNext() = %v, %v", job, err)
	}

	if err := store.Requeue(ctx, job.ID, "tracker timeout", time.Hour); err != nil {
		t.Fatalf("Requeue() error = %v", err)
	}

	got, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != JobStatusQueued {
		t.Errorf("Status = %s, want queued", got.Status)
	}
	if got.LastError == nil || *got.LastError != "tracker timeout" {
		t.Errorf("LastError = %v, want tracker timeout", got.LastError)
	}

	// Not due for another hour.
	claimed, err := store.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("ClaimNext() error = %v", err)
	}
	if claimed != nil {
		t.Errorf("ClaimNext() = %+v, want nil for delayed job", claimed)
	}
}

func TestJobStore_RequeueKeepsLastErrorOnEmptyMessage(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()

	store := NewJobStore(tdb.Conn)
	ctx := context.Background()
	reqID := createRequestRow(t, tdb.Conn, request.StatusPending)

	if err := store.Enqueue(ctx, tdb.Conn, uuid.NewString(), request.StageSearch, reqID, nil, 3); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	job, err := store.ClaimNext(ctx)
	if err != nil || job == nil {
		t.Fatalf("ClaimNext() = %v, %v", job, err)
	}
	if err := store.Requeue(ctx, job.ID, "tracker timeout", 0); err != nil {
		t.Fatalf("Requeue() error = %v", err)
	}

	// A lock-contention requeue carries no message and must not wipe the
	// failure recorded before it.
	reclaimed, err := store.ClaimNext(ctx)
	if err != nil || reclaimed == nil {
		t.Fatalf("second ClaimNext() = %v, %v", reclaimed, err)
	}
	if err := store.Requeue(ctx, reclaimed.ID, "", 0); err != nil {
		t.Fatalf("empty Requeue() error = %v", err)
	}

	got, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.LastError == nil || *got.LastError != "tracker timeout" {
		t.Errorf("LastError = %v, want tracker timeout preserved", got.LastError)
	}
}

func TestJobStore_GetActiveByRequest(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()

	store := NewJobStore(tdb.Conn)
	ctx := context.Background()
	reqID := createRequestRow(t, tdb.Conn, request.StatusPending)

	if _, err := store.GetActiveByRequest(ctx, reqID); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("GetActiveByRequest() error = %v, want ErrJobNotFound", err)
	}

	// A notify job does not count as pipeline work.
	payload := NotifyPayload{Event: request.NotifyFailed}
	if err := store.Enqueue(ctx, tdb.Conn, uuid.NewString(), request.StageNotify, reqID, payload, 3); err != nil {
		t.Fatalf("Enqueue(notify) error = %v", err)
	}
	if _, err := store.GetActiveByRequest(ctx, reqID); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("GetActiveByRequest() with notify job error = %v, want ErrJobNotFound", err)
	}

	if err := store.Enqueue(ctx, tdb.Conn, uuid.NewString(), request.StageOrganize, reqID, nil, 3); err != nil {
		t.Fatalf("Enqueue(organize) error = %v", err)
	}
	job, err := store.GetActiveByRequest(ctx, reqID)
	if err != nil {
		t.Fatalf("GetActiveByRequest() error = %v", err)
	}
	if job.Type != request.StageOrganize {
		t.Errorf("active job type = %s, want organize", job.Type)
	}
}

func TestJobStore_CancelPending(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()

	store := NewJobStore(tdb.Conn)
	ctx := context.Background()
	reqID := createRequestRow(t, tdb.Conn, request.StatusPending)

	if err := store.Enqueue(ctx, tdb.Conn, uuid.NewString(), request.StageSearch, reqID, nil, 3); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if err := store.CancelPending(ctx, tdb.Conn, reqID); err != nil {
		t.Fatalf("CancelPending() error = %v", err)
	}

	if _, err := store.GetActiveByRequest(ctx, reqID); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("GetActiveByRequest() after cancel error = %v, want ErrJobNotFound", err)
	}
	job, err := store.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("ClaimNext() error = %v", err)
	}
	if job != nil {
		t.Errorf("ClaimNext() = %+v, want nil after cancel", job)
	}
}

func TestJobStore_ResetRunning(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()

	store := NewJobStore(tdb.Conn)
	ctx := context.Background()
	reqID := createRequestRow(t, tdb.Conn, request.StatusPending)

	if err := store.Enqueue(ctx, tdb.Conn, uuid.NewString(), request.StageSearch, reqID, nil, 3); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	job, err := store.ClaimNext(ctx)
	if err != nil || job == nil {
		t.Fatalf("ClaimNext() = %v, %v", job, err)
	}

	// Simulate an unclean shutdown: the job is stuck in running.
	reset, err := store.ResetRunning(ctx)
	if err != nil {
		t.Fatalf("ResetRunning() error = %v", err)
	}
	if reset != 1 {
		t.Errorf("ResetRunning() = %d, want 1", reset)
	}

	reclaimed, err := store.ClaimNext(ctx)
	if err != nil {
		t.Fatalf("ClaimNext() error = %v", err)
	}
	if reclaimed == nil || reclaimed.ID != job.ID {
		t.Errorf("reclaimed = %+v, want job %d back", reclaimed, job.ID)
	}
	if reclaimed.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2 after reclaim", reclaimed.Attempts)
	}
}

func TestJobStore_DeleteFinishedOlderThan(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()

	store := NewJobStore(tdb.Conn)
	ctx := context.Background()
	reqID := createRequestRow(t, tdb.Conn, request.StatusPending)

	// One old completed job, one fresh queued job.
	if _, err := tdb.Conn.Exec(`
		INSERT INTO jobs (correlation_id, type, request_id, status, updated_at)
		VALUES ('old', 'search', ?, 'completed', datetime('now', '-60 days'))`, reqID); err != nil {
		t.Fatalf("failed to insert old job: %v", err)
	}
	if err := store.Enqueue(ctx, tdb.Conn, uuid.NewString(), request.StageSearch, reqID, nil, 3); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	deleted, err := store.DeleteFinishedOlderThan(ctx, 30)
	if err != nil {
		t.Fatalf("DeleteFinishedOlderThan() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
}
