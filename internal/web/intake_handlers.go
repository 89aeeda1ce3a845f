package web

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/myersendurance/coachd/internal/catalog"
	"github.com/myersendurance/coachd/internal/metrics"
	"github.com/myersendurance/coachd/internal/store"
)

const formBodyLimit = 64 * 1024

type intakeRequest struct {
	Email         string          `json:"email"`
	ProductType   string          `json:"productType"`
	Experience    json.RawMessage `json:"experience"`
	WeeklyMileage string          `json:"weeklyMileage"`
	Goals         json.RawMessage `json:"goals"`
	Availability  json.RawMessage `json:"availability"`
	InjuryHistory json.RawMessage `json:"injuryHistory"`
	CurrentIssues string          `json:"currentIssues"`
}

type intakeResponse struct {
	ID       string `json:"id"`
	Received bool   `json:"received"`
}

// HandleIntake stores an intake questionnaire submission and marks the
// submitting user's intake as complete. Submissions are append-only; a
// runner can re-submit after an injury or a new goal race.
func HandleIntake(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method_not_allowed"})
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, formBodyLimit)
		var req intakeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: "request body must be JSON"})
			return
		}

		email := store.NormalizeEmail(req.Email)
		if email == "" || !strings.Contains(email, "@") {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_email", Message: "a valid email address is required"})
			return
		}
		productType := catalog.Normalize(req.ProductType)

		user, err := deps.Store.UpsertUserOnIntake(email, productType)
		if err != nil {
			log.Error().Err(err).Str("email", email).Msg("Intake user upsert failed")
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "storage_error"})
			return
		}

		intake := &store.Intake{
			UserID:        user.ID,
			Experience:    rawJSONString(req.Experience),
			WeeklyMileage: strings.TrimSpace(req.WeeklyMileage),
			Goals:         rawJSONString(req.Goals),
			Availability:  rawJSONString(req.Availability),
			InjuryHistory: rawJSONString(req.InjuryHistory),
			CurrentIssues: strings.TrimSpace(req.CurrentIssues),
		}
		if err := deps.Store.InsertIntake(intake); err != nil {
			log.Error().Err(err).Str("user_id", user.ID).Msg("Intake insert failed")
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "storage_error"})
			return
		}

		metrics.IntakesTotal.WithLabelValues(intakeKind(deps.Catalog, productType)).Inc()
		log.Info().
			Str("intake_id", intake.ID).
			Str("user_id", user.ID).
			Str("product_type", productType).
			Msg("Intake recorded")
		writeJSON(w, http.StatusCreated, intakeResponse{ID: intake.ID, Received: true})
	}
}

func intakeKind(cat *catalog.Catalog, productType string) string {
	if p, ok := cat.Get(productType); ok {
		return string(p.IntakeKind)
	}
	return "unknown"
}

// rawJSONString stores structured answers verbatim. Anything the client
// sent as valid JSON round-trips unmodified.
func rawJSONString(raw json.RawMessage) string {
	return strings.TrimSpace(string(raw))
}
