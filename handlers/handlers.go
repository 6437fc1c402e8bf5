package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"proof-leaderboard/auth"
	"proof-leaderboard/leaderboard"
	"proof-leaderboard/logger"
	"proof-leaderboard/models"
	"proof-leaderboard/repository"
)

// CycleTrigger requests an out-of-band proof poll cycle
type CycleTrigger interface {
	Trigger()
}

// Handler contains the HTTP handlers for the chip leaderboard API
type Handler struct {
	Auth   auth.Authenticator
	Jobs   repository.ProofRepositoryInterface
	Board  *leaderboard.Service
	Poller CycleTrigger
}

// NewHandler creates and returns a new Handler instance
func NewHandler(a auth.Authenticator, jobs repository.ProofRepositoryInterface, board *leaderboard.Service, poller CycleTrigger) *Handler {
	return &Handler{Auth: a, Jobs: jobs, Board: board, Poller: poller}
}

type submitProofJobRequest struct {
	AuthToken string `json:"authToken"`
	JobID     string `json:"jobId"`
}

type updateLeaderboardEntryRequest struct {
	AuthToken     string                      `json:"authToken"`
	ChipIssuer    models.ChipIssuer           `json:"chipIssuer"`
	EntryType     models.LeaderboardEntryType `json:"entryType"`
	EntryValue    *float64                    `json:"entryValue"`
	EntryUsername string                      `json:"entryUsername"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps domain errors to HTTP statuses
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized, "Invalid auth token"
	case errors.Is(err, leaderboard.ErrMissingEntryUsername):
		return http.StatusBadRequest, "Missing connection username"
	case errors.Is(err, repository.ErrDuplicateJob):
		return http.StatusConflict, err.Error()
	case errors.Is(err, repository.ErrJobNotFound), errors.Is(err, repository.ErrEntryNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, repository.ErrInvalidJob),
		errors.Is(err, leaderboard.ErrInvalidBucket),
		errors.Is(err, leaderboard.ErrDerivedBucket):
		return http.StatusBadRequest, err.Error()
	}
	return http.StatusInternalServerError, err.Error()
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	status, text := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Logger.Error(msg, zap.Error(err))
	} else {
		logger.Logger.Debug(msg, zap.Int("status", status), zap.Error(err))
	}
	writeError(w, status, text)
}

func (h *Handler) user(r *http.Request, token string) (*auth.User, error) {
	return h.Auth.UserByToken(r.Context(), token)
}

// series reads chipIssuer and entryType from the query string
func series(r *http.Request) (models.ChipIssuer, models.LeaderboardEntryType) {
	q := r.URL.Query()
	return models.ChipIssuer(q.Get("chipIssuer")), models.LeaderboardEntryType(q.Get("entryType"))
}

// SubmitProofJob handles POST requests registering a proof job for the caller
func (h *Handler) SubmitProofJob(w http.ResponseWriter, r *http.Request) {
	var req submitProofJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Logger.Debug("Failed to decode proof job", zap.Error(err))
		writeError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	user, err := h.user(r, req.AuthToken)
	if err != nil {
		h.fail(w, "Proof job submission rejected", err)
		return
	}

	job, err := h.Jobs.Submit(user.Username, req.JobID)
	if err != nil {
		h.fail(w, "Failed to submit proof job", err)
		return
	}

	logger.Logger.Info("Proof job submitted",
		zap.String("job_id", job.JobID),
		zap.String("username", job.Username))
	writeJSON(w, http.StatusOK, map[string]interface{}{})
}

// UpdateLeaderboardEntry handles POST requests writing a leaderboard value
func (h *Handler) UpdateLeaderboardEntry(w http.ResponseWriter, r *http.Request) {
	var req updateLeaderboardEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.EntryValue == nil {
		writeError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	user, err := h.user(r, req.AuthToken)
	if err != nil {
		h.fail(w, "Leaderboard update rejected", err)
		return
	}

	if err := h.Board.ClientWrite(user.Username, req.EntryUsername, req.ChipIssuer, req.EntryType, *req.EntryValue); err != nil {
		h.fail(w, "Failed to update leaderboard entry", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{})
}

// GetLeaderboardDetails handles GET requests for the caller's standing in a series
func (h *Handler) GetLeaderboardDetails(w http.ResponseWriter, r *http.Request) {
	user, err := h.user(r, r.URL.Query().Get("authToken"))
	if err != nil {
		h.fail(w, "Leaderboard details rejected", err)
		return
	}

	issuer, entryType := series(r)
	details, err := h.Board.Details(user.Username, issuer, entryType)
	if err != nil {
		h.fail(w, "Failed to get leaderboard details", err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

// GetTopLeaderboardEntries handles GET requests for the ranked head of a series.
// Without count every entry is returned.
func (h *Handler) GetTopLeaderboardEntries(w http.ResponseWriter, r *http.Request) {
	if _, err := h.user(r, r.URL.Query().Get("authToken")); err != nil {
		h.fail(w, "Top leaderboard entries rejected", err)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid count")
			return
		}
		limit = n
	}

	issuer, entryType := series(r)
	entries, err := h.Board.TopN(issuer, entryType, limit)
	if err != nil {
		h.fail(w, "Failed to get top leaderboard entries", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

// GetLeaderboardEntry handles GET requests for the caller's raw value in a series
func (h *Handler) GetLeaderboardEntry(w http.ResponseWriter, r *http.Request) {
	user, err := h.user(r, r.URL.Query().Get("authToken"))
	if err != nil {
		h.fail(w, "Leaderboard entry rejected", err)
		return
	}

	issuer, entryType := series(r)
	value, err := h.Board.Value(user.Username, issuer, entryType)
	if err != nil {
		h.fail(w, "Failed to get leaderboard entry", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"value": value})
}

// GetProofJob handles GET requests for one of the caller's proof jobs. Jobs
// owned by someone else are reported as not found.
func (h *Handler) GetProofJob(w http.ResponseWriter, r *http.Request) {
	user, err := h.user(r, r.URL.Query().Get("authToken"))
	if err != nil {
		h.fail(w, "Proof job lookup rejected", err)
		return
	}

	job, err := h.Jobs.GetJob(r.URL.Query().Get("jobId"))
	if err == nil && job.Username != user.Username {
		err = repository.ErrJobNotFound
	}
	if err != nil {
		h.fail(w, "Failed to get proof job", err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// PollProofResults queues a poll cycle and returns without waiting for it
func (h *Handler) PollProofResults(w http.ResponseWriter, r *http.Request) {
	h.Poller.Trigger()
	writeJSON(w, http.StatusAccepted, map[string]interface{}{})
}

// Healthz reports liveness
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
