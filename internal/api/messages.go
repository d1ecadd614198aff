package api

import (
	"net/http"

	"Mailwright/internal/errs"
	"Mailwright/internal/models"
)

type messageView struct {
	Message *models.EmailMessage  `json:"message"`
	Logs    []models.EmailSendLog `json:"logs"`
}

func (h *Handler) GetMessage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	msg, err := h.Store.GetMessage(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	logs, err := h.Store.SendLogs(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if logs == nil {
		logs = []models.EmailSendLog{}
	}

	writeJSON(w, http.StatusOK, "message found", messageView{Message: msg, Logs: logs})
}

// RetryMessage answers 200 when the retry was delivered and 502 with the
// message attached when the relay failed again.
func (h *Handler) RetryMessage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	msg, err := h.Resender.Retry(r.Context(), id)
	if errs.IsTransport(err) {
		writeJSON(w, http.StatusBadGateway, err.Error(), msg)
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, "message delivered", msg)
}

func (h *Handler) CancelMessage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.Resender.Cancel(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, "message cancelled", nil)
}
