// Package api exposes the serve-mode status surface: health of the
// destination store and the recent run reports.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"metrika-etl/internal/domain"
	"metrika-etl/internal/service/pipeline"
)

// NewRouter builds the ops router for serve mode.
func NewRouter(store *pipeline.RunStore, dest domain.Destination, logger *slog.Logger) http.Handler {
	h := &handler{store: store, dest: dest, logger: logger.With("component", "api")}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", h.health)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/runs", h.listRuns)
		r.Get("/runs/latest", h.latestRun)
	})
	return r
}

type handler struct {
	store  *pipeline.RunStore
	dest   domain.Destination
	logger *slog.Logger
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	version, err := h.dest.Ping(ctx)
	if err != nil {
		h.logger.Warn("destination unreachable", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":             "ok",
		"clickhouse_version": version,
	})
}

func (h *handler) listRuns(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"runs": h.store.List()})
}

func (h *handler) latestRun(w http.ResponseWriter, _ *http.Request) {
	report, ok := h.store.Latest()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no runs recorded yet"})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
