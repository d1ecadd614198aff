package api

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"Mailwright/internal/models"
)

type templateRequest struct {
	TemplateType models.TemplateType `json:"templateType"`
	TemplateName *string             `json:"templateName"`
	Description  *string             `json:"description"`
	Subject      *string             `json:"subject"`
	Body         *string             `json:"body"`
	RetryMax     *int                `json:"retryMax"`
	IsDeleted    *bool               `json:"isDeleted"`
}

// apply copies the fields present in the request onto t.
func (req templateRequest) apply(t *models.EmailTemplate) {
	if req.TemplateName != nil {
		t.TemplateName = strings.TrimSpace(*req.TemplateName)
	}
	if req.Description != nil {
		t.Description = *req.Description
	}
	if req.Subject != nil {
		t.Subject = *req.Subject
	}
	if req.Body != nil {
		t.Body = *req.Body
	}
	if req.RetryMax != nil {
		t.RetryMax = *req.RetryMax
	}
	if req.IsDeleted != nil {
		t.IsDeleted = *req.IsDeleted
	}
}

func validateTemplate(t *models.EmailTemplate) error {
	switch {
	case !t.TemplateType.Valid():
		return invalid("templateType", "is not a known template type")
	case t.TemplateName == "":
		return invalid("templateName", "is required")
	case t.RetryMax < 0:
		return invalid("retryMax", "must not be negative")
	}
	return nil
}

func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	t := &models.EmailTemplate{TemplateType: req.TemplateType}
	req.apply(t)
	t.IsDeleted = false
	if err := validateTemplate(t); err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.Store.CreateTemplate(r.Context(), t); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.Cache.Invalidate(t.TemplateType)

	h.Log.Info("template created", zap.String("template_id", t.ID), zap.String("template_type", string(t.TemplateType)))
	writeJSON(w, http.StatusCreated, "template created", t)
}

func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	t, err := h.Store.GetTemplate(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, "template found", t)
}

// UpdateTemplate applies a partial update. The template type cannot change.
func (h *Handler) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req templateRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	t, err := h.Store.GetTemplate(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.TemplateType != "" && req.TemplateType != t.TemplateType {
		h.writeError(w, r, invalid("templateType", "cannot be changed"))
		return
	}

	req.apply(t)
	if err := validateTemplate(t); err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.Store.UpdateTemplate(r.Context(), t); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.Cache.Invalidate(t.TemplateType)

	writeJSON(w, http.StatusOK, "template updated", t)
}

func (h *Handler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	t, err := h.Store.GetTemplate(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.Store.DeleteTemplate(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.Cache.Invalidate(t.TemplateType)

	h.Log.Info("template deleted", zap.String("template_id", id))
	writeJSON(w, http.StatusOK, "template deleted", nil)
}
