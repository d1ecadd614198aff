package api

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"Mailwright/internal/models"
)

// placeholder keys end up inside template tokens, so they stay simple
// identifiers.
var keyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.-]*$`)

type placeholderRequest struct {
	Key         string  `json:"key"`
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func (h *Handler) CreatePlaceholder(w http.ResponseWriter, r *http.Request) {
	var req placeholderRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	p := &models.PlaceholderMetadata{Key: strings.TrimSpace(req.Key)}
	if req.Name != nil {
		p.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		p.Description = *req.Description
	}

	switch {
	case !keyPattern.MatchString(p.Key):
		h.writeError(w, r, invalid("key", "must be an identifier"))
		return
	case p.Name == "":
		h.writeError(w, r, invalid("name", "is required"))
		return
	}

	if err := h.Store.CreatePlaceholder(r.Context(), p); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.Log.Info("placeholder created", zap.String("placeholder_id", p.ID), zap.String("key", p.Key))
	writeJSON(w, http.StatusCreated, "placeholder created", p)
}

func (h *Handler) GetPlaceholder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	p, err := h.Store.GetPlaceholder(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, "placeholder found", p)
}

// UpdatePlaceholder changes name and description. Sending a different key
// is rejected.
func (h *Handler) UpdatePlaceholder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req placeholderRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	p, err := h.Store.GetPlaceholder(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Key != "" && req.Key != p.Key {
		h.writeError(w, r, invalid("key", "cannot be changed"))
		return
	}
	if req.Name != nil {
		p.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if p.Name == "" {
		h.writeError(w, r, invalid("name", "is required"))
		return
	}

	if err := h.Store.UpdatePlaceholder(r.Context(), p); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, "placeholder updated", p)
}

func (h *Handler) DeletePlaceholder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	templateIDs, err := h.Store.DeletePlaceholder(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(templateIDs) > 0 {
		h.Cache.InvalidateAll()
	}

	h.Log.Info("placeholder deleted",
		zap.String("placeholder_id", id),
		zap.Strings("unbound_templates", templateIDs),
	)
	writeJSON(w, http.StatusOK, "placeholder deleted", map[string]any{
		"templateIds": templateIDs,
	})
}

// ----------------------------
// Bindings
// ----------------------------

type bindRequest struct {
	TemplateID     string   `json:"templateId"`
	PlaceholderIDs []string `json:"placeholderIds"`
}

type unbindRequest struct {
	IDs []string `json:"ids"`
}

// ListBindings filters by the optional templateId and placeholderId query
// parameters.
func (h *Handler) ListBindings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	templateID, placeholderID := q.Get("templateId"), q.Get("placeholderId")

	for field, v := range map[string]string{"templateId": templateID, "placeholderId": placeholderID} {
		if v == "" {
			continue
		}
		if _, err := uuid.Parse(v); err != nil {
			h.writeError(w, r, invalid(field, "must be a UUID"))
			return
		}
	}

	bindings, err := h.Store.Bindings(r.Context(), templateID, placeholderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if bindings == nil {
		bindings = []models.EmailPlaceholderBinding{}
	}
	writeJSON(w, http.StatusOK, "bindings found", bindings)
}

func (h *Handler) BindPlaceholders(w http.ResponseWriter, r *http.Request) {
	var req bindRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if _, err := uuid.Parse(req.TemplateID); err != nil {
		h.writeError(w, r, invalid("templateId", "must be a UUID"))
		return
	}
	if err := validUUIDs("placeholderIds", req.PlaceholderIDs); err != nil {
		h.writeError(w, r, err)
		return
	}

	bindings, err := h.Store.BindPlaceholders(r.Context(), req.TemplateID, req.PlaceholderIDs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.Cache.InvalidateAll()

	writeJSON(w, http.StatusCreated, "placeholders bound", bindings)
}

func (h *Handler) UnbindPlaceholders(w http.ResponseWriter, r *http.Request) {
	var req unbindRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := validUUIDs("ids", req.IDs); err != nil {
		h.writeError(w, r, err)
		return
	}

	n, err := h.Store.UnbindPlaceholders(r.Context(), req.IDs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.Cache.InvalidateAll()

	writeJSON(w, http.StatusOK, "placeholders unbound", map[string]int64{"deleted": n})
}
