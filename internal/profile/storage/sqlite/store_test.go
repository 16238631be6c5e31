package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jsantora/replycore/internal/profile/domain"
	"github.com/jsantora/replycore/internal/profile/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "profiles.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestGetNotFound(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "tenant-missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Get error = %v, want ErrNotFound", err)
	}
}

func TestPutRoundTrip(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	saved, err := store.Put(ctx, domain.Profile{
		TenantID:      "tenant-1",
		BusinessTypes: []string{"cleaning", "plumbing"},
		PrimaryType:   "cleaning",
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if saved.CacheGeneration != 0 {
		t.Fatalf("CacheGeneration = %d, want 0 on create", saved.CacheGeneration)
	}

	got, err := store.Get(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if diff := cmp.Diff(saved, got); diff != "" {
		t.Fatalf("profile mismatch (-put +get):\n%s", diff)
	}
}

func TestPutBumpsCacheGenerationOnChange(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.Put(ctx, domain.Profile{
		TenantID:      "tenant-1",
		BusinessTypes: []string{"cleaning"},
		PrimaryType:   "cleaning",
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	second, err := store.Put(ctx, domain.Profile{
		TenantID:      "tenant-1",
		BusinessTypes: []string{"cleaning", "landscaping"},
		PrimaryType:   "landscaping",
	})
	if err != nil {
		t.Fatalf("Put changed selection: %v", err)
	}
	if second.CacheGeneration != first.CacheGeneration+1 {
		t.Fatalf("CacheGeneration = %d, want %d", second.CacheGeneration, first.CacheGeneration+1)
	}
}

func TestPutSameSelectionKeepsGeneration(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.Put(ctx, domain.Profile{
		TenantID:      "tenant-1",
		BusinessTypes: []string{"cleaning", "plumbing"},
		PrimaryType:   "plumbing",
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	second, err := store.Put(ctx, domain.Profile{
		TenantID:      "tenant-1",
		BusinessTypes: []string{"cleaning", "plumbing"},
		PrimaryType:   "plumbing",
	})
	if err != nil {
		t.Fatalf("Put same selection: %v", err)
	}
	if second.CacheGeneration != first.CacheGeneration {
		t.Fatalf("CacheGeneration = %d, want %d unchanged", second.CacheGeneration, first.CacheGeneration)
	}
}

func TestPutPreservesSelectionOrder(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	want := []string{"plumbing", "cleaning", "hvac"}
	if _, err := store.Put(ctx, domain.Profile{
		TenantID:      "tenant-1",
		BusinessTypes: want,
		PrimaryType:   "plumbing",
	}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := store.Get(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if diff := cmp.Diff(want, got.BusinessTypes); diff != "" {
		t.Fatalf("business types order mismatch (-want +got):\n%s", diff)
	}
}
