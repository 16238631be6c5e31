package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jsantora/replycore/internal/feedback/domain"
	"github.com/jsantora/replycore/internal/feedback/filter"
	"github.com/jsantora/replycore/internal/feedback/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "feedback.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func submit(t *testing.T, store *Store, emailID string, rating int) domain.Feedback {
	t.Helper()
	fb, err := store.Submit(context.Background(), domain.Feedback{
		TenantID: "tenant-1",
		EmailID:  emailID,
		Original: domain.Classification{
			Category:   "SALES",
			Confidence: 0.91,
			AICanReply: true,
		},
		Corrected: domain.Classification{
			Category: "SUPPORT",
			Reason:   "existing customer asking about a past job",
		},
		QualityRating: rating,
		Source:        "web_portal",
	})
	if err != nil {
		t.Fatalf("submit %q: %v", emailID, err)
	}
	return fb
}

func TestSubmitCreatesPendingRow(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	fb := submit(t, store, "e1", 4)
	if fb.Status != domain.StatusPending {
		t.Fatalf("Status = %q, want pending", fb.Status)
	}
	if fb.SupersedesID != "" {
		t.Fatalf("SupersedesID = %q, want empty for first correction", fb.SupersedesID)
	}
	if fb.ID == "" {
		t.Fatal("expected a generated id")
	}

	got, err := store.Get(context.Background(), "tenant-1", fb.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Original.Confidence != 0.91 {
		t.Fatalf("Original.Confidence = %v, want 0.91", got.Original.Confidence)
	}
	if got.Corrected.Category != "SUPPORT" {
		t.Fatalf("Corrected.Category = %q, want SUPPORT", got.Corrected.Category)
	}
}

func TestSubmitSupersedesPriorCorrection(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	first := submit(t, store, "e1", 4)
	second := submit(t, store, "e1", 5)

	if second.SupersedesID != first.ID {
		t.Fatalf("SupersedesID = %q, want %q", second.SupersedesID, first.ID)
	}

	// The prior row is untouched.
	got, err := store.Get(context.Background(), "tenant-1", first.ID)
	if err != nil {
		t.Fatalf("Get prior: %v", err)
	}
	if got.Status != domain.StatusPending || got.QualityRating != 4 {
		t.Fatalf("prior row changed: status=%q rating=%d", got.Status, got.QualityRating)
	}
}

func TestGetScopedToTenant(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	fb := submit(t, store, "e1", 3)
	if _, err := store.Get(context.Background(), "tenant-other", fb.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("cross-tenant Get error = %v, want ErrNotFound", err)
	}
}

func TestTransitionCAS(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	fb := submit(t, store, "e1", 4)

	approved, err := store.Transition(ctx, storage.TransitionParams{
		TenantID:   "tenant-1",
		FeedbackID: fb.ID,
		From:       domain.StatusPending,
		To:         domain.StatusApproved,
		ReviewerID: "reviewer-1",
		Notes:      "good example",
	})
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if approved.Status != domain.StatusApproved || approved.ReviewerID != "reviewer-1" {
		t.Fatalf("approved = %+v", approved)
	}

	// A second reviewer racing on the stale pending status loses.
	_, err = store.Transition(ctx, storage.TransitionParams{
		TenantID:   "tenant-1",
		FeedbackID: fb.ID,
		From:       domain.StatusPending,
		To:         domain.StatusRejected,
		ReviewerID: "reviewer-2",
	})
	if !errors.Is(err, storage.ErrStatusConflict) {
		t.Fatalf("stale transition error = %v, want ErrStatusConflict", err)
	}

	_, err = store.Transition(ctx, storage.TransitionParams{
		TenantID:   "tenant-1",
		FeedbackID: "missing",
		From:       domain.StatusPending,
		To:         domain.StatusApproved,
	})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing row error = %v, want ErrNotFound", err)
	}
}

func TestListWithCondition(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	low := submit(t, store, "e1", 2)
	high := submit(t, store, "e2", 5)
	_ = low

	cond, err := filter.Parse(`status = "pending" AND rating >= 3`)
	if err != nil {
		t.Fatalf("parse filter: %v", err)
	}

	items, err := store.List(ctx, storage.ListParams{
		TenantID:  "tenant-1",
		Condition: cond,
		Limit:     10,
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 || items[0].ID != high.ID {
		t.Fatalf("items = %+v, want only the rating-5 row", items)
	}
}

func TestListForWindow(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	store.clock = func() time.Time { return base }
	inside := submit(t, store, "e1", 4)
	store.clock = func() time.Time { return base.Add(48 * time.Hour) }
	outside := submit(t, store, "e2", 4)
	_ = outside

	dayStart := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	items, err := store.ListForWindow(ctx, "tenant-1", dayStart, dayStart.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("ListForWindow: %v", err)
	}
	if len(items) != 1 || items[0].ID != inside.ID {
		t.Fatalf("items = %+v, want only the in-window row", items)
	}
}

func TestTenantsWithCorrections(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC)
	store.clock = func() time.Time { return base }

	for _, tenantID := range []string{"tenant-b", "tenant-a", "tenant-b"} {
		if _, err := store.Submit(ctx, domain.Feedback{
			TenantID:      tenantID,
			EmailID:       "e1",
			Original:      domain.Classification{Category: "SALES", Confidence: 0.5},
			Corrected:     domain.Classification{Category: "SUPPORT"},
			QualityRating: 3,
		}); err != nil {
			t.Fatalf("submit for %q: %v", tenantID, err)
		}
	}

	dayStart := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	tenants, err := store.TenantsWithCorrections(ctx, dayStart, dayStart.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("TenantsWithCorrections: %v", err)
	}
	if len(tenants) != 2 || tenants[0] != "tenant-a" || tenants[1] != "tenant-b" {
		t.Fatalf("tenants = %v, want [tenant-a tenant-b]", tenants)
	}
}

func TestExportApprovedFlipsToUsed(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	ctx := context.Background()

	lowRated := submit(t, store, "e1", 2)
	highRated := submit(t, store, "e2", 5)
	for _, fb := range []domain.Feedback{lowRated, highRated} {
		if _, err := store.Transition(ctx, storage.TransitionParams{
			TenantID:   "tenant-1",
			FeedbackID: fb.ID,
			From:       domain.StatusPending,
			To:         domain.StatusApproved,
			ReviewerID: "reviewer-1",
		}); err != nil {
			t.Fatalf("approve %q: %v", fb.ID, err)
		}
	}

	exported, err := store.ExportApproved(ctx, "tenant-1", 3, 0)
	if err != nil {
		t.Fatalf("ExportApproved: %v", err)
	}
	if len(exported) != 1 || exported[0].ID != highRated.ID {
		t.Fatalf("exported = %+v, want only the rating-5 row", exported)
	}
	if exported[0].Status != domain.StatusUsed {
		t.Fatalf("exported status = %q, want used", exported[0].Status)
	}

	// Re-running returns nothing: the row is used, not approved.
	again, err := store.ExportApproved(ctx, "tenant-1", 3, 0)
	if err != nil {
		t.Fatalf("ExportApproved rerun: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("rerun exported = %+v, want none", again)
	}

	got, err := store.Get(ctx, "tenant-1", highRated.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != domain.StatusUsed {
		t.Fatalf("persisted status = %q, want used", got.Status)
	}
}
