package handlers

import (
	"context"
	"fmt"
	"html"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"shortlink-service/fingerprint"
	"shortlink-service/models"
	"shortlink-service/resolver"
)

// Redirector decides the outcome for an inbound slug.
type Redirector interface {
	Resolve(ctx context.Context, slug, password string, meta models.RequestMeta) (resolver.Resolution, error)
	VerifyPassword(ctx context.Context, linkID int64, password string, meta models.RequestMeta) resolver.VerifyResult
}

// requestMeta captures the analytics-relevant parts of the request before
// the handler returns, since the request may be reused afterwards.
func requestMeta(r *http.Request) models.RequestMeta {
	return models.RequestMeta{
		IPAddress:        fingerprint.ExtractClientIP(r.Header, r.RemoteAddr),
		UserAgent:        r.UserAgent(),
		Referrer:         r.Referer(),
		OriginalReferrer: r.URL.Query().Get("original_referrer"),
	}
}

// HandleRedirect handles GET /{slug}. The redirect is the SLA: once the
// decision is granted, the response is written regardless of how the
// side effects fared.
func HandleRedirect(svc Redirector, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slug := chi.URLParam(r, "slug")
		if slug == "" {
			http.NotFound(w, r)
			return
		}

		res, err := svc.Resolve(r.Context(), slug, r.URL.Query().Get("key"), requestMeta(r))
		if err != nil {
			logger.Error().Str("slug", slug).Err(err).Msg("slug resolution failed")
			renderStatePage(w, http.StatusInternalServerError, "Something went wrong",
				"The link could not be resolved. Please try again.")
			return
		}

		switch res.Outcome {
		case resolver.OutcomeGranted:
			w.Header().Set("Location", res.DestinationURL)
			w.WriteHeader(http.StatusFound)

		case resolver.OutcomeNotFound:
			renderStatePage(w, http.StatusNotFound, "Link not found",
				"This shortened URL does not exist.")

		case resolver.OutcomeExpired:
			renderStatePage(w, http.StatusGone, "Link expired",
				"This shortened URL has expired and is no longer valid.")

		case resolver.OutcomeLimitReached:
			renderStatePage(w, http.StatusGone, "Usage limit reached",
				"This link has reached its maximum number of allowed uses.")

		case resolver.OutcomePasswordRequired:
			renderChallengePage(w, res, r.Referer())
		}
	}
}

// HandleVerifyPassword handles POST /api/verify-password.
func HandleVerifyPassword(svc Redirector, logger zerolog.Logger) http.HandlerFunc {
	type request struct {
		LinkID   int64  `json:"link_id"`
		Password string `json:"password"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.LinkID == 0 {
			writeError(w, http.StatusBadRequest, "link_id is required")
			return
		}

		result := svc.VerifyPassword(r.Context(), req.LinkID, req.Password, requestMeta(r))
		writeJSON(w, http.StatusOK, result)
	}
}

func renderStatePage(w http.ResponseWriter, status int, title, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>%s</title></head>
<body>
<h1>%s</h1>
<p>%s</p>
<p><a href="/">Create a new shortened URL</a></p>
</body>
</html>`, html.EscapeString(title), html.EscapeString(title), html.EscapeString(message))
}

// renderChallengePage renders the password prompt. The original referrer is
// embedded so the true referrer survives the challenge hop.
func renderChallengePage(w http.ResponseWriter, res resolver.Resolution, referrer string) {
	errorNote := ""
	if res.PasswordMismatch {
		errorNote = "<p>Incorrect password. Please try again.</p>"
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>Password required</title></head>
<body>
<h1>This link is password protected</h1>
%s
<form method="GET" action="/%s">
<input type="password" name="key" placeholder="Password" required>
<input type="hidden" name="original_referrer" value="%s">
<input type="hidden" name="link_id" value="%d">
<button type="submit">Unlock</button>
</form>
</body>
</html>`, errorNote, html.EscapeString(res.Link.Slug), html.EscapeString(referrer), res.Link.ID)
}
