package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/folio/internal/storage"
)

const defaultStatsWindow = 24 * time.Hour

func handleListInteractions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		items, err := deps.Store.GetRecentInteractions(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "server_error", "listing interactions: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, items)
	}
}

func handleGetInteraction(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		item, err := deps.Store.GetInteraction(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "interaction %s not found", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "server_error", "getting interaction: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, item)
	}
}

func handleInteractionStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		window := defaultStatsWindow
		if s := r.URL.Query().Get("since"); s != "" {
			d, err := time.ParseDuration(s)
			if err != nil || d <= 0 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "since must be a positive duration like 24h")
				return
			}
			window = d
		}
		stats, err := deps.Store.Stats(time.Now().Add(-window))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "server_error", "computing stats: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}
