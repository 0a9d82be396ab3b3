package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/gitstats/internal/auth"
	"github.com/sakif/gitstats/internal/model"
	"github.com/sakif/gitstats/internal/service"
)

// StatsHandler exposes the repository listing and the stats sync/query API.
//
// All three routes sit behind RequireAuth, so every handler starts from the
// account the middleware resolved — including its current GitHub credential,
// which the service layer needs for upstream calls.
type StatsHandler struct {
	stats  *service.StatsService
	logger *slog.Logger
}

// NewStatsHandler creates a StatsHandler.
func NewStatsHandler(stats *service.StatsService, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{stats: stats, logger: logger}
}

// HandleListRepositories lists the authenticated account's repositories.
//
// HTTP: GET /api/github/repos
//
// This is a pass-through to GitHub (most recently updated first) — nothing
// is read from or written to the local store.
func (h *StatsHandler) HandleListRepositories(w http.ResponseWriter, r *http.Request) {
	account, ok := auth.AccountFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	repos, err := h.stats.ListRepositories(r.Context(), account)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, repos)
}

// HandleSyncRepository syncs one repository's stats and returns the
// persisted row.
//
// HTTP: GET /api/github/stats/{owner}/{repo}
//
// RESPONSE FORMAT:
//
//	{"id":"...","repository":"owner/repo","linesAdded":15,"linesDeleted":3,
//	 "commitCount":7,"lastUpdated":"..."}
//
// The operation is idempotent — calling it twice with unchanged upstream
// data leaves exactly one row with identical counters, so clients are free
// to retry on a 502.
func (h *StatsHandler) HandleSyncRepository(w http.ResponseWriter, r *http.Request) {
	account, ok := auth.AccountFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	// Chi provides r.PathValue for URL parameters: for a request to
	// /api/github/stats/sakif/gitstats, owner is "sakif", repo is "gitstats".
	owner := r.PathValue("owner")
	repo := r.PathValue("repo")

	stat, err := h.stats.SyncRepository(r.Context(), account, owner, repo)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stat)
}

// statsListResponse mirrors the shape the frontend consumes: the ordered
// rows plus the cross-repository totals in one payload.
type statsListResponse struct {
	Stats  []model.RepositoryStat `json:"stats"`
	Totals model.StatTotals       `json:"totals"`
}

// HandleListStats returns all synced stats for the account plus totals.
//
// HTTP: GET /api/github/stats
//
// Pure read — reflects exactly what the most recent syncs persisted, ordered
// most recently updated first.
func (h *StatsHandler) HandleListStats(w http.ResponseWriter, r *http.Request) {
	account, ok := auth.AccountFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	stats, totals, err := h.stats.ListStats(r.Context(), account.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, statsListResponse{
		Stats:  stats,
		Totals: totals,
	})
}
