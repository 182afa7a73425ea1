// Package debugapi serves the operator-facing side channel: pprof and the
// DevTools endpoint metadata of the managed browser. It binds to its own
// listener so the public render API never exposes profiling data.
package debugapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ccheshirecat/renderd/internal/browser"
)

// New constructs the ops router.
func New(logger *slog.Logger, devtools func() browser.DevToolsInfo) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		respondJSON(logger, w, map[string]string{"status": "ok"})
	})

	r.Get("/devtools", func(w http.ResponseWriter, req *http.Request) {
		if devtools == nil {
			http.Error(w, "browser not running", http.StatusServiceUnavailable)
			return
		}
		respondJSON(logger, w, devtools())
	})

	r.Mount("/debug", middleware.Profiler())

	return r
}

func respondJSON(logger *slog.Logger, w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write debug response", "error", err)
	}
}
