package routers

import (
	"net/http"

	gorillahandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"proof-leaderboard/handlers"
	"proof-leaderboard/logger"
)

// RegisterRoutes sets up all the HTTP routes for the chip leaderboard API
func RegisterRoutes(r *mux.Router, h *handlers.Handler) {
	api := r.PathPrefix("/api/chip").Subrouter()

	// Registers a proof job submitted by the caller to the proving service
	api.HandleFunc("/submit_proof_job", h.SubmitProofJob).Methods("POST")

	// Writes a client-reported leaderboard value
	api.HandleFunc("/update_leaderboard_entry", h.UpdateLeaderboardEntry).Methods("POST")

	// Caller's position, value and series totals
	api.HandleFunc("/get_leaderboard_details", h.GetLeaderboardDetails).Methods("GET")

	// Ranked head of a series, optionally limited by count
	api.HandleFunc("/get_top_leaderboard_entries", h.GetTopLeaderboardEntries).Methods("GET")

	api.HandleFunc("/get_leaderboard_entry", h.GetLeaderboardEntry).Methods("GET")
	api.HandleFunc("/proof_job", h.GetProofJob).Methods("GET")

	// Queues a poll cycle without waiting for it
	api.HandleFunc("/poll_proof_results", h.PollProofResults).Methods("POST")

	r.HandleFunc("/healthz", h.Healthz).Methods("GET")
}

// NewRouter builds the full HTTP handler: API routes, /metrics served from
// gatherer, request metrics, access logging and panic recovery.
func NewRouter(h *handlers.Handler, m *handlers.Metrics, gatherer prometheus.Gatherer) http.Handler {
	r := mux.NewRouter()
	RegisterRoutes(r, h)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods("GET")
	r.Use(m.Middleware)

	stdlog := zap.NewStdLog(logger.Logger.Named("http"))
	var out http.Handler = gorillahandlers.LoggingHandler(stdlog.Writer(), r)
	out = gorillahandlers.RecoveryHandler(
		gorillahandlers.RecoveryLogger(stdlog),
		gorillahandlers.PrintRecoveryStack(true),
	)(out)
	return out
}
