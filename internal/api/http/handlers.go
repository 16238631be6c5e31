package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	feedbackdomain "github.com/jsantora/replycore/internal/feedback/domain"
	feedbackservice "github.com/jsantora/replycore/internal/feedback/service"
	apperrors "github.com/jsantora/replycore/internal/platform/errors"
	profiledomain "github.com/jsantora/replycore/internal/profile/domain"
	templatedomain "github.com/jsantora/replycore/internal/template/domain"
)

// inquiryTypePayload mirrors a template inquiry type on the wire.
type inquiryTypePayload struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	PricingHint string   `json:"pricing_hint,omitempty"`
}

// templateContentPayload mirrors the versioned template fields.
type templateContentPayload struct {
	InquiryTypes  []inquiryTypePayload `json:"inquiry_types"`
	ProtocolText  string               `json:"protocol_text"`
	SpecialRules  []string             `json:"special_rules,omitempty"`
	UpsellPrompts []string             `json:"upsell_prompts,omitempty"`
}

type templatePayload struct {
	ID           string                 `json:"id"`
	BusinessType string                 `json:"business_type"`
	Version      int                    `json:"version"`
	Content      templateContentPayload `json:"content"`
	Active       bool                   `json:"active"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

func toContentPayload(content templatedomain.Content) templateContentPayload {
	payload := templateContentPayload{
		ProtocolText:  content.ProtocolText,
		SpecialRules:  content.SpecialRules,
		UpsellPrompts: content.UpsellPrompts,
	}
	for _, inquiry := range content.InquiryTypes {
		payload.InquiryTypes = append(payload.InquiryTypes, inquiryTypePayload{
			Name:        inquiry.Name,
			Description: inquiry.Description,
			Keywords:    inquiry.Keywords,
			PricingHint: inquiry.PricingHint,
		})
	}
	return payload
}

func fromContentPayload(payload templateContentPayload) templatedomain.Content {
	content := templatedomain.Content{
		ProtocolText:  payload.ProtocolText,
		SpecialRules:  payload.SpecialRules,
		UpsellPrompts: payload.UpsellPrompts,
	}
	for _, inquiry := range payload.InquiryTypes {
		content.InquiryTypes = append(content.InquiryTypes, templatedomain.InquiryType{
			Name:        inquiry.Name,
			Description: inquiry.Description,
			Keywords:    inquiry.Keywords,
			PricingHint: inquiry.PricingHint,
		})
	}
	return content
}

func toTemplatePayload(record templatedomain.Template) templatePayload {
	return templatePayload{
		ID:           record.ID,
		BusinessType: record.BusinessType,
		Version:      record.Version,
		Content:      toContentPayload(record.Content),
		Active:       record.Active,
		CreatedAt:    record.CreatedAt,
		UpdatedAt:    record.UpdatedAt,
	}
}

// classificationPayload mirrors one classification tuple on the wire.
type classificationPayload struct {
	Category    string  `json:"category"`
	Subcategory string  `json:"subcategory,omitempty"`
	Confidence  float64 `json:"confidence,omitempty"`
	AICanReply  bool    `json:"ai_can_reply"`
	Reason      string  `json:"reason,omitempty"`
}

func toClassification(payload classificationPayload) feedbackdomain.Classification {
	return feedbackdomain.Classification{
		Category:    payload.Category,
		Subcategory: payload.Subcategory,
		Confidence:  payload.Confidence,
		AICanReply:  payload.AICanReply,
		Reason:      payload.Reason,
	}
}

func fromClassification(c feedbackdomain.Classification) classificationPayload {
	return classificationPayload{
		Category:    c.Category,
		Subcategory: c.Subcategory,
		Confidence:  c.Confidence,
		AICanReply:  c.AICanReply,
		Reason:      c.Reason,
	}
}

type feedbackPayload struct {
	ID            string                `json:"id"`
	TenantID      string                `json:"tenant_id"`
	EmailID       string                `json:"email_id"`
	Original      classificationPayload `json:"original"`
	Corrected     classificationPayload `json:"corrected"`
	QualityRating int                   `json:"quality_rating"`
	Status        string                `json:"status"`
	Source        string                `json:"source,omitempty"`
	ReviewerID    string                `json:"reviewer_id,omitempty"`
	ReviewNotes   string                `json:"review_notes,omitempty"`
	SupersedesID  string                `json:"supersedes_id,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

func toFeedbackPayload(fb feedbackdomain.Feedback) feedbackPayload {
	return feedbackPayload{
		ID:            fb.ID,
		TenantID:      fb.TenantID,
		EmailID:       fb.EmailID,
		Original:      fromClassification(fb.Original),
		Corrected:     fromClassification(fb.Corrected),
		QualityRating: fb.QualityRating,
		Status:        string(fb.Status),
		Source:        fb.Source,
		ReviewerID:    fb.ReviewerID,
		ReviewNotes:   fb.ReviewNotes,
		SupersedesID:  fb.SupersedesID,
		CreatedAt:     fb.CreatedAt,
		UpdatedAt:     fb.UpdatedAt,
	}
}

func (s *Server) handleSubmitCorrection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EmailID       string                `json:"email_id"`
		Original      classificationPayload `json:"original"`
		Corrected     classificationPayload `json:"corrected"`
		QualityRating int                   `json:"quality_rating"`
		Source        string                `json:"source"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, apperrors.Wrap(apperrors.CodeRequestBodyInvalid, "invalid request body", err))
		return
	}

	fb, err := s.feedback.SubmitCorrection(r.Context(), feedbackservice.SubmitParams{
		TenantID:      chi.URLParam(r, "tenant_id"),
		EmailID:       req.EmailID,
		Original:      toClassification(req.Original),
		Corrected:     toClassification(req.Corrected),
		QualityRating: req.QualityRating,
		Source:        req.Source,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toFeedbackPayload(fb))
}

func (s *Server) handleGetConfiguration(w http.ResponseWriter, r *http.Request) {
	configuration, err := s.resolver.Resolve(r.Context(), chi.URLParam(r, "tenant_id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, configuration)
}

type profilePayload struct {
	TenantID      string    `json:"tenant_id"`
	BusinessTypes []string  `json:"business_types"`
	PrimaryType   string    `json:"primary_type"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toProfilePayload(profile profiledomain.Profile) profilePayload {
	return profilePayload{
		TenantID:      profile.TenantID,
		BusinessTypes: profile.BusinessTypes,
		PrimaryType:   profile.PrimaryType,
		CreatedAt:     profile.CreatedAt,
		UpdatedAt:     profile.UpdatedAt,
	}
}

func (s *Server) handleUpdateBusinessTypes(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BusinessTypes []string `json:"business_types"`
		PrimaryType   string   `json:"primary_type"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, apperrors.Wrap(apperrors.CodeRequestBodyInvalid, "invalid request body", err))
		return
	}

	profile, err := s.resolver.UpdateBusinessTypes(r.Context(), chi.URLParam(r, "tenant_id"), req.BusinessTypes, req.PrimaryType)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toProfilePayload(profile))
}

func (s *Server) handleListFeedback(w http.ResponseWriter, r *http.Request) {
	pageSize := 0
	if raw := r.URL.Query().Get("page_size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, r, apperrors.New(apperrors.CodeFeedbackFilterInvalid, "page_size must be an integer"))
			return
		}
		pageSize = parsed
	}

	result, err := s.feedback.ListFeedback(
		r.Context(),
		chi.URLParam(r, "tenant_id"),
		r.URL.Query().Get("filter"),
		pageSize,
		r.URL.Query().Get("page_token"),
	)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	items := make([]feedbackPayload, 0, len(result.Items))
	for _, fb := range result.Items {
		items = append(items, toFeedbackPayload(fb))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"items":           items,
		"next_page_token": result.NextPageToken,
	})
}

func (s *Server) handleReviewCorrection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
		Notes  string `json:"notes"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, apperrors.Wrap(apperrors.CodeRequestBodyInvalid, "invalid request body", err))
		return
	}

	fb, err := s.feedback.ReviewCorrection(r.Context(), feedbackservice.ReviewParams{
		TenantID:   chi.URLParam(r, "tenant_id"),
		FeedbackID: chi.URLParam(r, "feedback_id"),
		NewStatus:  feedbackdomain.Status(req.Status),
		ReviewerID: r.Header.Get("X-Reviewer-ID"),
		Notes:      req.Notes,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toFeedbackPayload(fb))
}

func (s *Server) handleExportTrainingData(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MinQuality int `json:"min_quality"`
		Limit      int `json:"limit"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, apperrors.Wrap(apperrors.CodeRequestBodyInvalid, "invalid request body", err))
		return
	}

	examples, err := s.exporter.ExportTrainingData(r.Context(), chi.URLParam(r, "tenant_id"), req.MinQuality, req.Limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"examples": examples})
}

type metricsPayload struct {
	TenantID              string         `json:"tenant_id"`
	Date                  string         `json:"date"`
	TotalCorrections      int            `json:"total_corrections"`
	AvgOriginalConfidence float64        `json:"avg_original_confidence"`
	HighConfidenceErrors  int            `json:"high_confidence_errors"`
	CategoryCounts        map[string]int `json:"category_counts"`
	ComputedAt            time.Time      `json:"computed_at"`
}

func (s *Server) handleListMetrics(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")

	snapshots, err := s.metrics.ListMetrics(r.Context(), chi.URLParam(r, "tenant_id"), from, to)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	payload := make([]metricsPayload, 0, len(snapshots))
	for _, snapshot := range snapshots {
		payload = append(payload, metricsPayload{
			TenantID:              snapshot.TenantID,
			Date:                  snapshot.Date,
			TotalCorrections:      snapshot.TotalCorrections,
			AvgOriginalConfidence: snapshot.AvgOriginalConfidence,
			HighConfidenceErrors:  snapshot.HighConfidenceErrors,
			CategoryCounts:        snapshot.CategoryCounts,
			ComputedAt:            snapshot.ComputedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"snapshots": payload})
}

func (s *Server) handleListBusinessTypes(w http.ResponseWriter, r *http.Request) {
	names, err := s.templates.ListActiveBusinessTypes(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"business_types": names})
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	record, err := s.templates.GetActiveTemplate(r.Context(), chi.URLParam(r, "business_type"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toTemplatePayload(record))
}

func (s *Server) handleUpsertTemplate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content     templateContentPayload `json:"content"`
		AllowCreate bool                   `json:"allow_create"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, apperrors.Wrap(apperrors.CodeRequestBodyInvalid, "invalid request body", err))
		return
	}

	result, err := s.templates.UpsertTemplate(r.Context(), chi.URLParam(r, "business_type"), fromContentPayload(req.Content), req.AllowCreate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"template": toTemplatePayload(result.Template),
		"changed":  result.Changed,
		"created":  result.Created,
	})
}

func (s *Server) handleTemplateHistory(w http.ResponseWriter, r *http.Request) {
	record, err := s.templates.GetActiveTemplate(r.Context(), chi.URLParam(r, "business_type"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	snapshots, err := s.templates.GetVersionHistory(r.Context(), record.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	type snapshotPayload struct {
		Version   int                    `json:"version"`
		Content   templateContentPayload `json:"content"`
		CreatedAt time.Time              `json:"created_at"`
	}
	payload := make([]snapshotPayload, 0, len(snapshots))
	for _, snapshot := range snapshots {
		payload = append(payload, snapshotPayload{
			Version:   snapshot.Version,
			Content:   toContentPayload(snapshot.Content),
			CreatedAt: snapshot.CreatedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"business_type":   record.BusinessType,
		"current_version": record.Version,
		"snapshots":       payload,
	})
}

func (s *Server) handleRollbackTemplate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ToVersion int `json:"to_version"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, apperrors.Wrap(apperrors.CodeRequestBodyInvalid, "invalid request body", err))
		return
	}

	result, err := s.templates.RollbackTemplate(r.Context(), chi.URLParam(r, "business_type"), req.ToVersion)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"template": toTemplatePayload(result.Template),
		"changed":  result.Changed,
	})
}

func (s *Server) handleDeactivateTemplate(w http.ResponseWriter, r *http.Request) {
	if err := s.templates.DeactivateTemplate(r.Context(), chi.URLParam(r, "business_type")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
