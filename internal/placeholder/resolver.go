package placeholder

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"Mailwright/internal/models"
)

// Store is the read the resolver needs from persistence.
type Store interface {
	InUseTemplate(ctx context.Context, templateType models.TemplateType) (*models.InUseTemplate, error)
}

// Resolver maps a template type to the in-use template and its placeholder
// bindings. Results are cached for ttl; a zero ttl disables the cache.
type Resolver struct {
	store Store
	cache *cache.Cache
	log   *zap.Logger
}

func NewResolver(store Store, ttl time.Duration, log *zap.Logger) *Resolver {
	r := &Resolver{store: store, log: log}
	if ttl > 0 {
		r.cache = cache.New(ttl, 2*ttl)
	}
	return r
}

// Resolve returns the in-use template of templateType. A missing template is
// reported as an error matching errs.ErrNotFound and is never cached.
func (r *Resolver) Resolve(ctx context.Context, templateType models.TemplateType) (*models.InUseTemplate, error) {
	if r.cache != nil {
		if v, ok := r.cache.Get(string(templateType)); ok {
			return clone(v.(*models.InUseTemplate)), nil
		}
	}

	t, err := r.store.InUseTemplate(ctx, templateType)
	if err != nil {
		return nil, fmt.Errorf("resolve %s template: %w", templateType, err)
	}

	r.log.Debug("template resolved",
		zap.String("template_type", string(templateType)),
		zap.String("template_id", t.Template.ID),
		zap.Int("placeholders", len(t.Placeholders)),
	)

	if r.cache != nil {
		r.cache.SetDefault(string(templateType), clone(t))
	}
	return t, nil
}

// Invalidate drops the cached entry for templateType.
func (r *Resolver) Invalidate(templateType models.TemplateType) {
	if r.cache != nil {
		r.cache.Delete(string(templateType))
	}
}

// InvalidateAll drops every cached entry. Used when a change may touch
// templates of any type, such as deleting a placeholder.
func (r *Resolver) InvalidateAll() {
	if r.cache != nil {
		r.cache.Flush()
	}
}

func clone(t *models.InUseTemplate) *models.InUseTemplate {
	c := &models.InUseTemplate{Template: t.Template}
	if t.Placeholders != nil {
		c.Placeholders = append([]models.ResolvedPlaceholder(nil), t.Placeholders...)
	}
	return c
}
