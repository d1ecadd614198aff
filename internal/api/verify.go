package api

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/mail"
	"strings"

	"go.uber.org/zap"

	"Mailwright/internal/csvparser"
	"Mailwright/internal/models"
)

const maxUploadBytes = 10 << 20

func validateJob(job *models.VerifyEmailJob) error {
	job.Email = strings.TrimSpace(job.Email)
	if job.Email == "" {
		return invalid("email", "is required")
	}
	if _, err := mail.ParseAddress(job.Email); err != nil {
		return invalid("email", "is not a valid address")
	}
	return nil
}

func (h *Handler) publish(r *http.Request, job models.VerifyEmailJob) (string, error) {
	body, err := json.Marshal(job)
	if err != nil {
		return "", err
	}
	return h.Jobs.Publish(r.Context(), body)
}

// EnqueueVerifyEmail publishes a single verify-email job.
func (h *Handler) EnqueueVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var job models.VerifyEmailJob
	if err := decodeBody(r, &job); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := validateJob(&job); err != nil {
		h.writeError(w, r, err)
		return
	}

	tag, err := h.publish(r, job)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, "job queued", map[string]string{"tag": tag})
}

type bulkResult struct {
	Queued  int      `json:"queued"`
	Skipped []string `json:"skipped,omitempty"`
}

// EnqueueVerifyEmailBulk publishes one job per CSV row. The CSV comes either
// as the "file" part of a multipart form or as the raw request body.
func (h *Handler) EnqueueVerifyEmailBulk(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	src, closeSrc, err := csvSource(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	defer closeSrc()

	jobs, err := csvparser.ParseVerifyJobs(src, h.MaxCSVRows)
	if err != nil {
		h.writeError(w, r, invalid("file", err.Error()))
		return
	}

	res := bulkResult{}
	for _, job := range jobs {
		if err := validateJob(&job); err != nil {
			res.Skipped = append(res.Skipped, job.Email)
			continue
		}
		if _, err := h.publish(r, job); err != nil {
			h.Log.Error("bulk publish stopped",
				zap.Int("queued", res.Queued),
				zap.Int("rows", len(jobs)),
				zap.Error(err),
			)
			h.writeError(w, r, err)
			return
		}
		res.Queued++
	}

	h.Log.Info("bulk verify-email queued", zap.Int("queued", res.Queued), zap.Int("skipped", len(res.Skipped)))
	writeJSON(w, http.StatusAccepted, "jobs queued", res)
}

func csvSource(r *http.Request) (io.Reader, func(), error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return r.Body, func() {}, nil
	}

	f, _, err := r.FormFile("file")
	if err != nil {
		return nil, nil, invalid("file", "is required")
	}
	return f, func() { f.Close() }, nil
}
