package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"Mailwright/internal/models"
)

type Store interface {
	CreateTemplate(ctx context.Context, t *models.EmailTemplate) error
	GetTemplate(ctx context.Context, id string) (*models.EmailTemplate, error)
	UpdateTemplate(ctx context.Context, t *models.EmailTemplate) error
	DeleteTemplate(ctx context.Context, id string) error

	CreatePlaceholder(ctx context.Context, p *models.PlaceholderMetadata) error
	GetPlaceholder(ctx context.Context, id string) (*models.PlaceholderMetadata, error)
	UpdatePlaceholder(ctx context.Context, p *models.PlaceholderMetadata) error
	DeletePlaceholder(ctx context.Context, id string) ([]string, error)

	Bindings(ctx context.Context, templateID, placeholderID string) ([]models.EmailPlaceholderBinding, error)
	BindPlaceholders(ctx context.Context, templateID string, placeholderIDs []string) ([]models.EmailPlaceholderBinding, error)
	UnbindPlaceholders(ctx context.Context, ids []string) (int64, error)

	GetMessage(ctx context.Context, id string) (*models.EmailMessage, error)
	SendLogs(ctx context.Context, messageID string) ([]models.EmailSendLog, error)
}

// Cache is the resolver cache. Writes that change what a template renders
// invalidate it.
type Cache interface {
	Invalidate(templateType models.TemplateType)
	InvalidateAll()
}

type Publisher interface {
	Publish(ctx context.Context, body []byte) (string, error)
}

type Resender interface {
	Retry(ctx context.Context, id string) (*models.EmailMessage, error)
	Cancel(ctx context.Context, id string) error
}

// Handler serves the admin API.
type Handler struct {
	Store      Store
	Cache      Cache
	Jobs       Publisher
	Resender   Resender
	Log        *zap.Logger
	MaxCSVRows int

	// Checks are run by /healthz, keyed by dependency name.
	Checks map[string]func(context.Context) error
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.requestLog)

	r.Get("/healthz", h.Healthz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/email-templates", func(r chi.Router) {
			r.Post("/", h.CreateTemplate)
			r.Get("/{id}", h.GetTemplate)
			r.Post("/{id}", h.UpdateTemplate)
			r.Delete("/{id}", h.DeleteTemplate)
		})

		r.Route("/metadata-placeholders", func(r chi.Router) {
			r.Post("/", h.CreatePlaceholder)
			r.Get("/{id}", h.GetPlaceholder)
			r.Post("/{id}", h.UpdatePlaceholder)
			r.Delete("/{id}", h.DeletePlaceholder)
		})

		r.Route("/email-placeholders", func(r chi.Router) {
			r.Get("/", h.ListBindings)
			r.Post("/", h.BindPlaceholders)
			r.Delete("/", h.UnbindPlaceholders)
		})

		r.Route("/email-messages/{id}", func(r chi.Router) {
			r.Get("/", h.GetMessage)
			r.Post("/retry", h.RetryMessage)
			r.Post("/cancel", h.CancelMessage)
		})

		r.Post("/verify-email", h.EnqueueVerifyEmail)
		r.Post("/verify-email/bulk", h.EnqueueVerifyEmailBulk)
	})

	return r
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{}
	healthy := true
	for name, check := range h.Checks {
		if err := check(ctx); err != nil {
			status[name] = err.Error()
			healthy = false
			continue
		}
		status[name] = "ok"
	}

	if !healthy {
		writeJSON(w, http.StatusServiceUnavailable, "unhealthy", status)
		return
	}
	writeJSON(w, http.StatusOK, "ok", status)
}

func (h *Handler) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		h.Log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// pathID reads and validates the {id} URL parameter.
func pathID(r *http.Request) (string, error) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		return "", invalid("id", "must be a UUID")
	}
	return id, nil
}

func validUUIDs(field string, ids []string) error {
	if len(ids) == 0 {
		return invalid(field, "must not be empty")
	}
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return invalid(field, "must contain UUIDs only")
		}
	}
	return nil
}
