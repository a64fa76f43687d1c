package media

import (
	"context"
	"errors"
	"testing"

	"github.com/kikootwo/readmeabook/internal/testutil"
)

func TestStore_UpsertCreates(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()

	store := NewStore(tdb.Conn, testutil.NopLogger())
	ctx := context.Background()

	item, err := store.Upsert(ctx, UpsertInput{
		Title:          "Project Hail Mary",
		Author:         "Andy Weir",
		ExternalID:     "B08G9PRS1K",
		RuntimeMinutes: 960,
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if item.ID == 0 {
		t.Error("ID = 0, want non-zero")
	}
	if item.RuntimeMinutes != 960 {
		t.Errorf("RuntimeMinutes = %d, want 960", item.RuntimeMinutes)
	}

	got, err := store.GetByExternalID(ctx, "B08G9PRS1K")
	if err != nil {
		t.Fatalf("GetByExternalID() error = %v", err)
	}
	if got.ID != item.ID {
		t.Errorf("GetByExternalID() ID = %d, want %d", got.ID, item.ID)
	}
}

func TestStore_UpsertIdempotent(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()

	store := NewStore(tdb.Conn, testutil.NopLogger())
	ctx := context.Background()
	input := UpsertInput{Title: "Dune", Author: "Frank Herbert", ExternalID: "B0001", RuntimeMinutes: 1260}

	first, err := store.Upsert(ctx, input)
	if err != nil {
		t.Fatalf("first Upsert() error = %v", err)
	}
	second, err := store.Upsert(ctx, input)
	if err != nil {
		t.Fatalf("second Upsert() error = %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("second Upsert() ID = %d, want %d (no duplicate row)", second.ID, first.ID)
	}
}

func TestStore_UpsertPreservesRuntime(t *testing.T) {
	// A later request without runtime data must not erase what we know.
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()

	store := NewStore(tdb.Conn, testutil.NopLogger())
	ctx := context.Background()

	first, err := store.Upsert(ctx, UpsertInput{
		Title: "Dune", Author: "Frank Herbert", ExternalID: "B0001", RuntimeMinutes: 1260,
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	second, err := store.Upsert(ctx, UpsertInput{
		Title: "Dune", Author: "Frank Herbert", ExternalID: "B0001",
	})
	if err != nil {
		t.Fatalf("second Upsert() error = %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("ID = %d, want %d", second.ID, first.ID)
	}
	if second.RuntimeMinutes != 1260 {
		t.Errorf("RuntimeMinutes = %d, want 1260 preserved", second.RuntimeMinutes)
	}
}

func TestStore_UpsertMatchesByTitleAuthor(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()

	store := NewStore(tdb.Conn, testutil.NopLogger())
	ctx := context.Background()

	first, err := store.Upsert(ctx, UpsertInput{Title: "Dune", Author: "Frank Herbert"})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	second, err := store.Upsert(ctx, UpsertInput{Title: "Dune", Author: "Frank Herbert"})
	if err != nil {
		t.Fatalf("second Upsert() error = %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("ID = %d, want %d (matched by title and author)", second.ID, first.ID)
	}

	other, err := store.Upsert(ctx, UpsertInput{Title: "Dune", Author: "Someone Else"})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if other.ID == first.ID {
		t.Error("different author reused the same item, want a new one")
	}
}

func TestStore_GetNotFound(t *testing.T) {
	tdb := testutil.NewTestDB(t)
	defer tdb.Close()

	store := NewStore(tdb.Conn, testutil.NopLogger())
	if _, err := store.Get(context.Background(), 999); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(999) error = %v, want ErrNotFound", err)
	}
}
