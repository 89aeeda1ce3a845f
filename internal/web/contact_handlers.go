package web

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/myersendurance/coachd/internal/metrics"
	"github.com/myersendurance/coachd/internal/store"
)

type contactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

type contactResponse struct {
	ID       string `json:"id"`
	Received bool   `json:"received"`
}

// HandleContact stores a contact-form submission. Contact messages are
// independent of users; no upsert happens here.
func HandleContact(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method_not_allowed"})
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, formBodyLimit)
		var req contactRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: "request body must be JSON"})
			return
		}

		email := store.NormalizeEmail(req.Email)
		if email == "" || !strings.Contains(email, "@") {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_email", Message: "a valid email address is required"})
			return
		}
		message := strings.TrimSpace(req.Message)
		if message == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "empty_message", Message: "a message is required"})
			return
		}

		m := &store.ContactMessage{
			Name:    strings.TrimSpace(req.Name),
			Email:   email,
			Message: message,
		}
		if err := deps.Store.InsertContactMessage(m); err != nil {
			log.Error().Err(err).Str("email", email).Msg("Contact message insert failed")
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "storage_error"})
			return
		}

		metrics.ContactMessagesTotal.Inc()
		log.Info().Str("message_id", m.ID).Str("email", email).Msg("Contact message recorded")
		writeJSON(w, http.StatusCreated, contactResponse{ID: m.ID, Received: true})
	}
}
