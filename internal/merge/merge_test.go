package merge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	apperrors "github.com/jsantora/replycore/internal/platform/errors"
	"github.com/jsantora/replycore/internal/template/domain"
	"github.com/jsantora/replycore/internal/template/storage"
)

// fakeReader serves templates from memory within a single "snapshot".
type fakeReader struct {
	templates map[string]domain.Template
}

func (f *fakeReader) GetActiveMany(_ context.Context, businessTypes []string) (storage.MultiReadResult, error) {
	var result storage.MultiReadResult
	for _, name := range businessTypes {
		record, ok := f.templates[name]
		if !ok {
			result.Missing = append(result.Missing, name)
			continue
		}
		result.Templates = append(result.Templates, record)
	}
	return result, nil
}

func testReader() *fakeReader {
	return &fakeReader{templates: map[string]domain.Template{
		"HVAC": {
			ID:           "tpl-hvac",
			BusinessType: "HVAC",
			Version:      3,
			Content: domain.Content{
				InquiryTypes: []domain.InquiryType{
					{Name: "Install", Keywords: []string{"new unit"}},
					{Name: "Repair", Keywords: []string{"no heat"}},
				},
				ProtocolText:  "Confirm the service address.",
				SpecialRules:  []string{"R1"},
				UpsellPrompts: []string{"Offer a maintenance plan."},
			},
		},
		"Plumbing": {
			ID:           "tpl-plumbing",
			BusinessType: "Plumbing",
			Version:      1,
			Content: domain.Content{
				InquiryTypes: []domain.InquiryType{{Name: "LeakFix"}},
				ProtocolText: "Ask whether the water main is shut off.",
				SpecialRules: []string{"R2"},
			},
		},
	}}
}

func fixedClock() time.Time {
	return time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
}

func TestMergeScenarioOrderAndContent(t *testing.T) {
	t.Parallel()

	engine := NewEngineWithClock(testReader(), fixedClock)
	configuration, err := engine.Merge(context.Background(), []string{"HVAC", "Plumbing"})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}

	if configuration.TemplateCount != 2 {
		t.Fatalf("template count = %d, want 2", configuration.TemplateCount)
	}
	wantTypes := []string{"HVAC", "Plumbing"}
	if diff := cmp.Diff(wantTypes, configuration.BusinessTypeList); diff != "" {
		t.Fatalf("business type list mismatch (-want +got):\n%s", diff)
	}

	var names []string
	for _, inquiry := range configuration.InquiryTypes {
		names = append(names, inquiry.Name)
	}
	if diff := cmp.Diff([]string{"Install", "Repair", "LeakFix"}, names); diff != "" {
		t.Fatalf("inquiry order mismatch (-want +got):\n%s", diff)
	}
	if configuration.InquiryTypes[0].BusinessType != "HVAC" || configuration.InquiryTypes[2].BusinessType != "Plumbing" {
		t.Fatal("inquiry types missing source tags")
	}
	if diff := cmp.Diff([]string{"R1", "R2"}, configuration.SpecialRules); diff != "" {
		t.Fatalf("special rules mismatch (-want +got):\n%s", diff)
	}

	wantProtocols := "**HVAC Protocols:**\nConfirm the service address.\n\n**Plumbing Protocols:**\nAsk whether the water main is shut off."
	if configuration.Protocols != wantProtocols {
		t.Fatalf("protocols = %q, want %q", configuration.Protocols, wantProtocols)
	}
}

func TestMergeDeterministic(t *testing.T) {
	t.Parallel()

	engine := NewEngine(testReader())
	first, err := engine.Merge(context.Background(), []string{"HVAC", "Plumbing"})
	if err != nil {
		t.Fatalf("first merge: %v", err)
	}
	second, err := engine.Merge(context.Background(), []string{"HVAC", "Plumbing"})
	if err != nil {
		t.Fatalf("second merge: %v", err)
	}

	ignoreMergedAt := cmpopts.IgnoreFields(Configuration{}, "MergedAt")
	if diff := cmp.Diff(first, second, ignoreMergedAt); diff != "" {
		t.Fatalf("merges differ beyond MergedAt (-first +second):\n%s", diff)
	}
}

func TestMergeOrderSensitive(t *testing.T) {
	t.Parallel()

	engine := NewEngineWithClock(testReader(), fixedClock)
	forward, err := engine.Merge(context.Background(), []string{"HVAC", "Plumbing"})
	if err != nil {
		t.Fatalf("forward merge: %v", err)
	}
	reversed, err := engine.Merge(context.Background(), []string{"Plumbing", "HVAC"})
	if err != nil {
		t.Fatalf("reversed merge: %v", err)
	}

	if forward.BusinessTypeList[0] == reversed.BusinessTypeList[0] {
		t.Fatal("expected business type list order to differ")
	}
	if forward.Protocols == reversed.Protocols {
		t.Fatal("expected protocol section order to differ")
	}
	if forward.SpecialRules[0] == reversed.SpecialRules[0] {
		t.Fatal("expected special rule order to differ")
	}
}

func TestMergeDuplicateInquiryNamesStayDistinct(t *testing.T) {
	t.Parallel()

	reader := testReader()
	reader.templates["Electrical"] = domain.Template{
		ID:           "tpl-electrical",
		BusinessType: "Electrical",
		Version:      1,
		Content: domain.Content{
			InquiryTypes: []domain.InquiryType{{Name: "Install"}},
			ProtocolText: "Check panel capacity.",
		},
	}
	engine := NewEngine(reader)

	configuration, err := engine.Merge(context.Background(), []string{"HVAC", "Electrical"})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}

	var installs []string
	for _, inquiry := range configuration.InquiryTypes {
		if inquiry.Name == "Install" {
			installs = append(installs, inquiry.BusinessType)
		}
	}
	if diff := cmp.Diff([]string{"HVAC", "Electrical"}, installs); diff != "" {
		t.Fatalf("expected two tagged Install entries (-want +got):\n%s", diff)
	}
}

func TestMergeReportsEveryMissingName(t *testing.T) {
	t.Parallel()

	engine := NewEngine(testReader())
	_, err := engine.Merge(context.Background(), []string{"HVAC", "Roofing", "Landscaping"})
	if apperrors.CodeOf(err) != apperrors.CodeMergeTemplatesMissing {
		t.Fatalf("error code = %s, want %s", apperrors.CodeOf(err), apperrors.CodeMergeTemplatesMissing)
	}
	var domainErr *apperrors.Error
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected domain error, got %v", err)
	}
	if domainErr.Metadata["missing"] != "Roofing,Landscaping" {
		t.Fatalf("missing metadata = %q", domainErr.Metadata["missing"])
	}
}

func TestValidateTypeListBounds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []string
		want  apperrors.Code
	}{
		{"empty", nil, apperrors.CodeMergeTypeListEmpty},
		{"thirteen", make13(), apperrors.CodeMergeTypeListTooLong},
		{"duplicate", []string{"HVAC", "HVAC"}, apperrors.CodeMergeDuplicateType},
		{"blank entry", []string{"HVAC", "  "}, apperrors.CodeMergeTypeListEmpty},
	}
	for _, tc := range tests {
		if _, err := ValidateTypeList(tc.input); apperrors.CodeOf(err) != tc.want {
			t.Fatalf("%s: code = %s, want %s", tc.name, apperrors.CodeOf(err), tc.want)
		}
	}

	if _, err := ValidateTypeList([]string{"HVAC"}); err != nil {
		t.Fatalf("single type rejected: %v", err)
	}
	if _, err := ValidateTypeList(make13()[:12]); err != nil {
		t.Fatalf("twelve types rejected: %v", err)
	}
}

func make13() []string {
	names := make([]string, 13)
	for i := range names {
		names[i] = string(rune('A' + i))
	}
	return names
}
