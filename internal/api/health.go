package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Check reports whether one backend is reachable.
type Check func(ctx context.Context) error

// ReadyHandler answers 200 when every check passes and 503 naming the first
// failing backend otherwise.
func ReadyHandler(checks map[string]Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		for name, check := range checks {
			if err := check(ctx); err != nil {
				slog.Warn("readiness check failed", "backend", name, "error", err)
				jsonResponse(w, http.StatusServiceUnavailable, map[string]string{
					"status":  "unavailable",
					"backend": name,
				})
				return
			}
		}
		jsonResponse(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
