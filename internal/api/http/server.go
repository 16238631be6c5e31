// Package http exposes the ReplyCore HTTP API: correction intake from
// tenant-facing surfaces, tenant configuration for the deployment
// collaborator, and admin review/export endpoints.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jsantora/replycore/internal/auth"
	"github.com/jsantora/replycore/internal/export"
	feedbackservice "github.com/jsantora/replycore/internal/feedback/service"
	metricsservice "github.com/jsantora/replycore/internal/metrics/service"
	apperrors "github.com/jsantora/replycore/internal/platform/errors"
	profileservice "github.com/jsantora/replycore/internal/profile/service"
	templateservice "github.com/jsantora/replycore/internal/template/service"
)

// Server wires the core services behind a chi router. Admin-only routes
// require a verified grant; authorization never reaches the services
// themselves.
type Server struct {
	templates *templateservice.Service
	resolver  *profileservice.Resolver
	feedback  *feedbackservice.Service
	metrics   *metricsservice.Aggregator
	exporter  *export.Exporter
	grants    auth.VerifierConfig
	logger    *slog.Logger
}

// Config carries the server's collaborators.
type Config struct {
	Templates *templateservice.Service
	Resolver  *profileservice.Resolver
	Feedback  *feedbackservice.Service
	Metrics   *metricsservice.Aggregator
	Exporter  *export.Exporter
	Grants    auth.VerifierConfig
	Logger    *slog.Logger
}

// NewServer creates an HTTP server over the given services.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		templates: cfg.Templates,
		resolver:  cfg.Resolver,
		feedback:  cfg.Feedback,
		metrics:   cfg.Metrics,
		exporter:  cfg.Exporter,
		grants:    cfg.Grants,
		logger:    logger,
	}
}

// Router builds the route tree.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/tenants/{tenant_id}", func(r chi.Router) {
			r.Post("/corrections", s.handleSubmitCorrection)
			r.Get("/configuration", s.handleGetConfiguration)
			r.Get("/metrics", s.handleListMetrics)

			r.Group(func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Put("/business-types", s.handleUpdateBusinessTypes)
				r.Get("/feedback", s.handleListFeedback)
				r.Post("/feedback/{feedback_id}/review", s.handleReviewCorrection)
				r.Post("/training-export", s.handleExportTrainingData)
			})
		})

		r.Route("/templates", func(r chi.Router) {
			r.Get("/", s.handleListBusinessTypes)
			r.Get("/{business_type}", s.handleGetTemplate)

			r.Group(func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Put("/{business_type}", s.handleUpsertTemplate)
				r.Get("/{business_type}/history", s.handleTemplateHistory)
				r.Post("/{business_type}/rollback", s.handleRollbackTemplate)
				r.Delete("/{business_type}", s.handleDeactivateTemplate)
			})
		})
	})

	return r
}

// requestLogger emits one structured line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// requireAdmin verifies the bearer grant on admin-only routes.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		grant := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		claims, err := auth.Verify(grant, s.grants)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		r.Header.Set("X-Reviewer-ID", claims.Subject)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// errorResponse is the wire shape of a failed request.
type errorResponse struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperrors.CodeOf(err)
	status := code.HTTPStatus()
	body := errorResponse{Code: string(code), Message: err.Error()}

	var domainErr *apperrors.Error
	if errors.As(err, &domainErr) {
		body.Metadata = domainErr.Metadata
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		// Internal detail stays in the logs.
		body.Message = "internal error"
	}

	s.writeJSON(w, status, body)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}
