package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"shortlink-service/middleware"
	"shortlink-service/models"
)

// Reporter builds analytics reports for links owned by the caller.
type Reporter interface {
	GetReport(ctx context.Context, ownerID, slug, timeRange string) (*models.Report, error)
}

// HandleAnalytics handles GET /api/analytics?slug=&timeRange=. The report is
// scoped to the authenticated owner; links owned by others look identical to
// links that do not exist.
func HandleAnalytics(reporter Reporter, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slug := r.URL.Query().Get("slug")
		if slug == "" {
			writeError(w, http.StatusBadRequest, "slug is required")
			return
		}
		timeRange := r.URL.Query().Get("timeRange")
		ownerID := middleware.UserIDFromContext(r.Context())

		report, err := reporter.GetReport(r.Context(), ownerID, slug, timeRange)
		if err != nil {
			var nf *models.NotFoundError
			if errors.As(err, &nf) {
				writeError(w, http.StatusNotFound, "Link not found")
				return
			}
			logger.Error().Str("slug", slug).Err(err).Msg("failed to build analytics report")
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}

		writeJSON(w, http.StatusOK, report)
	}
}
