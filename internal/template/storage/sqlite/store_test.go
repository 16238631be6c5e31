package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/jsantora/replycore/internal/template/domain"
	"github.com/jsantora/replycore/internal/template/storage"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "templates.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func hvacContent() domain.Content {
	return domain.Content{
		InquiryTypes: []domain.InquiryType{
			{Name: "Install", Keywords: []string{"new unit", "quote"}},
			{Name: "Repair", Keywords: []string{"broken", "no heat"}},
		},
		ProtocolText: "Always confirm the service address.",
		SpecialRules: []string{"R1"},
	}
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(""); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestUpsertRejectsUnknownTypeWithoutCreateFlag(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	_, err := store.Upsert(context.Background(), storage.UpsertParams{
		BusinessType: "HVAC",
		Content:      hvacContent(),
	})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("upsert error = %v, want %v", err, storage.ErrNotFound)
	}
}

func TestUpsertCreateStartsAtVersionOne(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	result, err := store.Upsert(context.Background(), storage.UpsertParams{
		BusinessType: "HVAC",
		Content:      hvacContent(),
		AllowCreate:  true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !result.Created || !result.Changed {
		t.Fatalf("result = %+v, want created and changed", result)
	}
	if result.Template.Version != 1 {
		t.Fatalf("version = %d, want 1", result.Template.Version)
	}

	history, err := store.History(context.Background(), result.Template.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected no snapshots after create, got %d", len(history))
	}
}

func TestUpsertNoopLeavesVersionAndHistoryUntouched(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	created, err := store.Upsert(context.Background(), storage.UpsertParams{
		BusinessType: "HVAC",
		Content:      hvacContent(),
		AllowCreate:  true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	repeat, err := store.Upsert(context.Background(), storage.UpsertParams{
		BusinessType: "HVAC",
		Content:      hvacContent(),
	})
	if err != nil {
		t.Fatalf("no-op upsert: %v", err)
	}
	if repeat.Changed {
		t.Fatal("expected unchanged result for identical content")
	}
	if repeat.Template.Version != 1 {
		t.Fatalf("version = %d, want 1", repeat.Template.Version)
	}

	history, err := store.History(context.Background(), created.Template.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected no snapshots after no-op, got %d", len(history))
	}
}

func TestUpsertChangeBumpsVersionAndSnapshotsPriorState(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	original := hvacContent()
	created, err := store.Upsert(context.Background(), storage.UpsertParams{
		BusinessType: "HVAC",
		Content:      original,
		AllowCreate:  true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	changed := hvacContent()
	changed.SpecialRules = []string{"R1", "R2"}
	updated, err := store.Upsert(context.Background(), storage.UpsertParams{
		BusinessType: "HVAC",
		Content:      changed,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Template.Version != 2 {
		t.Fatalf("version = %d, want 2", updated.Template.Version)
	}

	history, err := store.History(context.Background(), created.Template.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected exactly one snapshot, got %d", len(history))
	}
	if history[0].Version != 1 {
		t.Fatalf("snapshot version = %d, want 1", history[0].Version)
	}
	if !domain.ContentEquals(history[0].Content, domain.NormalizeContent(original)) {
		t.Fatal("snapshot content does not match pre-update state")
	}
}

func TestHistoryOrderedVersionDescending(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	content := hvacContent()
	created, err := store.Upsert(context.Background(), storage.UpsertParams{
		BusinessType: "HVAC",
		Content:      content,
		AllowCreate:  true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := range 3 {
		content.ProtocolText = content.ProtocolText + " More."
		if _, err := store.Upsert(context.Background(), storage.UpsertParams{
			BusinessType: "HVAC",
			Content:      content,
		}); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}

	history, err := store.History(context.Background(), created.Template.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(history))
	}
	for i, snapshot := range history {
		if want := 3 - i; snapshot.Version != want {
			t.Fatalf("history[%d].Version = %d, want %d", i, snapshot.Version, want)
		}
	}
}

func TestGetActiveManyReportsAllMissing(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	if _, err := store.Upsert(context.Background(), storage.UpsertParams{
		BusinessType: "HVAC",
		Content:      hvacContent(),
		AllowCreate:  true,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	result, err := store.GetActiveMany(context.Background(), []string{"HVAC", "Plumbing", "Roofing"})
	if err != nil {
		t.Fatalf("get active many: %v", err)
	}
	if len(result.Templates) != 1 {
		t.Fatalf("expected 1 template, got %d", len(result.Templates))
	}
	if len(result.Missing) != 2 || result.Missing[0] != "Plumbing" || result.Missing[1] != "Roofing" {
		t.Fatalf("missing = %v", result.Missing)
	}
}

func TestDeactivateHidesTemplateButKeepsHistory(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	content := hvacContent()
	created, err := store.Upsert(context.Background(), storage.UpsertParams{
		BusinessType: "HVAC",
		Content:      content,
		AllowCreate:  true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	content.SpecialRules = []string{"R1", "R2"}
	if _, err := store.Upsert(context.Background(), storage.UpsertParams{
		BusinessType: "HVAC",
		Content:      content,
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	if err := store.Deactivate(context.Background(), "HVAC"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if _, err := store.GetActive(context.Background(), "HVAC"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get after deactivate = %v, want %v", err, storage.ErrNotFound)
	}

	history, err := store.History(context.Background(), created.Template.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected history preserved, got %d snapshots", len(history))
	}

	names, err := store.ListActiveBusinessTypes(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("expected no active types, got %v", names)
	}
}

func TestGetVersionContentReadsSnapshots(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	original := hvacContent()
	if _, err := store.Upsert(context.Background(), storage.UpsertParams{
		BusinessType: "HVAC",
		Content:      original,
		AllowCreate:  true,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	changed := hvacContent()
	changed.ProtocolText = "Updated protocol."
	if _, err := store.Upsert(context.Background(), storage.UpsertParams{
		BusinessType: "HVAC",
		Content:      changed,
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	v1, err := store.GetVersionContent(context.Background(), "HVAC", 1)
	if err != nil {
		t.Fatalf("get version 1: %v", err)
	}
	if !domain.ContentEquals(v1, domain.NormalizeContent(original)) {
		t.Fatal("version 1 content mismatch")
	}

	v2, err := store.GetVersionContent(context.Background(), "HVAC", 2)
	if err != nil {
		t.Fatalf("get version 2: %v", err)
	}
	if v2.ProtocolText != "Updated protocol." {
		t.Fatalf("version 2 protocol = %q", v2.ProtocolText)
	}

	if _, err := store.GetVersionContent(context.Background(), "HVAC", 9); !errors.Is(err, storage.ErrVersionNotFound) {
		t.Fatalf("missing version error = %v, want %v", err, storage.ErrVersionNotFound)
	}
}
