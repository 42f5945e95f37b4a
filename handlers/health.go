package handlers

import (
	"context"
	"net/http"
	"time"
)

// Pinger reports backend connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HandleHealth is the liveness probe.
func HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// HandleReadiness reports whether both backends answer. Postgres being down
// makes the service unready; Redis being down is degraded but servable since
// every Redis caller fails open.
func HandleReadiness(postgres, redis Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := map[string]string{
			"postgres": "ok",
			"redis":    "ok",
		}
		code := http.StatusOK

		if err := postgres.Ping(ctx); err != nil {
			status["postgres"] = "unavailable"
			code = http.StatusServiceUnavailable
		}
		if redis != nil {
			if err := redis.Ping(ctx); err != nil {
				status["redis"] = "degraded"
			}
		}

		writeJSON(w, code, status)
	}
}
