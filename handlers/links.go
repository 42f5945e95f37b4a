package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"shortlink-service/cache"
	"shortlink-service/middleware"
	"shortlink-service/models"
	"shortlink-service/utils"
)

// createRetries bounds collision retries for generated slugs.
const createRetries = 5

// LinkStore is the registry surface the CRUD handlers need.
type LinkStore interface {
	CreateLink(ctx context.Context, link *models.Link) error
	GetLinksByOwner(ctx context.Context, ownerID string) ([]*models.Link, error)
	DeleteLinkForOwner(ctx context.Context, id int64, ownerID string) (bool, error)
}

// CounterReader reads the real-time click counters.
type CounterReader interface {
	GetInt(ctx context.Context, key string) (int64, error)
}

type createLinkRequest struct {
	URL        string `json:"url" validate:"required,url"`
	CustomSlug string `json:"custom_slug,omitempty"`
	ExpiryTime string `json:"expiry_time,omitempty"`
	MaxUses    int64  `json:"max_uses,omitempty"`
	Password   string `json:"password,omitempty"`
}

type createLinkResponse struct {
	Success  bool   `json:"success"`
	Slug     string `json:"slug,omitempty"`
	ShortURL string `json:"short_url,omitempty"`
	Error    string `json:"error,omitempty"`
}

var validate = validator.New()

// HandleCreateLink handles POST /api/links. Anonymous callers may only set
// the destination URL; expiry, click limit and password require an
// authenticated owner and are silently ignored otherwise.
func HandleCreateLink(store LinkStore, baseURL string, clock cache.Clock, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createLinkRequest
		if err := decodeJSON(r, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, createLinkResponse{Success: false, Error: "Invalid request body"})
			return
		}
		if err := validate.Struct(&req); err != nil || !utils.IsValidURL(req.URL) {
			writeJSON(w, http.StatusBadRequest, createLinkResponse{
				Success: false,
				Error:   "Please enter a valid URL including http:// or https://",
			})
			return
		}

		userID := middleware.UserIDFromContext(r.Context())

		link := &models.Link{
			OriginalURL: req.URL,
			UserID:      userID,
		}

		if userID != "" {
			link.ExpiresAt = parseExpiry(req.ExpiryTime, clock.Now())
			if req.MaxUses > 0 {
				maxUses := req.MaxUses
				link.MaxClicks = &maxUses
			}
			if req.Password != "" {
				hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
				if err != nil {
					logger.Error().Err(err).Msg("failed to hash password")
					writeJSON(w, http.StatusInternalServerError, createLinkResponse{Success: false, Error: "Failed to create shortened URL"})
					return
				}
				link.PasswordHash = string(hash)
			}
		}

		if userID != "" && req.CustomSlug != "" {
			if !utils.IsValidSlug(req.CustomSlug) {
				writeJSON(w, http.StatusBadRequest, createLinkResponse{Success: false, Error: "Invalid custom link"})
				return
			}
			link.Slug = req.CustomSlug
			if err := store.CreateLink(r.Context(), link); err != nil {
				var dup *models.DuplicateSlugError
				if errors.As(err, &dup) {
					writeJSON(w, http.StatusConflict, createLinkResponse{Success: false, Error: "Custom link already taken"})
					return
				}
				logger.Error().Err(err).Msg("failed to create link")
				writeJSON(w, http.StatusInternalServerError, createLinkResponse{Success: false, Error: "Failed to create shortened URL"})
				return
			}
		} else {
			// Generated slugs retry on the rare collision.
			var err error
			for i := 0; i < createRetries; i++ {
				link.Slug = utils.GenerateSlug()
				err = store.CreateLink(r.Context(), link)
				if err == nil {
					break
				}
				var dup *models.DuplicateSlugError
				if !errors.As(err, &dup) {
					break
				}
			}
			if err != nil {
				logger.Error().Err(err).Msg("failed to create link")
				writeJSON(w, http.StatusInternalServerError, createLinkResponse{Success: false, Error: "Failed to create shortened URL"})
				return
			}
		}

		writeJSON(w, http.StatusCreated, createLinkResponse{
			Success:  true,
			Slug:     link.Slug,
			ShortURL: strings.TrimSuffix(baseURL, "/") + "/" + link.Slug,
		})
	}
}

// parseExpiry resolves the expiry shorthand into a concrete timestamp.
// Unknown or malformed values yield no expiry.
func parseExpiry(expiry string, now time.Time) *time.Time {
	var t time.Time
	switch expiry {
	case "", "never":
		return nil
	case "1h":
		t = now.Add(time.Hour)
	case "24h":
		t = now.Add(24 * time.Hour)
	case "7d":
		t = now.Add(7 * 24 * time.Hour)
	case "30d":
		t = now.Add(30 * 24 * time.Hour)
	default:
		if !strings.HasPrefix(expiry, "custom:") {
			return nil
		}
		raw := strings.TrimPrefix(expiry, "custom:")
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			parsed, err = time.Parse("2006-01-02T15:04", raw)
		}
		if err != nil {
			return nil
		}
		t = parsed
	}
	return &t
}

type linkInfo struct {
	ID             int64      `json:"id"`
	Slug           string     `json:"slug"`
	OriginalURL    string     `json:"original_url"`
	CreatedAt      time.Time  `json:"created_at"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	MaxClicks      *int64     `json:"max_clicks,omitempty"`
	CurrentClicks  int64      `json:"current_clicks"`
	HasPassword    bool       `json:"has_password"`
	RealtimeClicks int64      `json:"realtime_clicks"`
}

// HandleListLinks handles GET /api/links for the authenticated owner.
func HandleListLinks(store LinkStore, counters CounterReader, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserIDFromContext(r.Context())

		links, err := store.GetLinksByOwner(r.Context(), userID)
		if err != nil {
			logger.Error().Err(err).Msg("failed to list links")
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}

		infos := make([]linkInfo, 0, len(links))
		for _, link := range links {
			info := linkInfo{
				ID:            link.ID,
				Slug:          link.Slug,
				OriginalURL:   link.OriginalURL,
				CreatedAt:     link.CreatedAt,
				ExpiresAt:     link.ExpiresAt,
				MaxClicks:     link.MaxClicks,
				CurrentClicks: link.CurrentClicks,
				HasPassword:   link.PasswordProtected(),
			}
			if counters != nil {
				if n, err := counters.GetInt(r.Context(), "clicks:realtime:"+link.Slug); err == nil {
					info.RealtimeClicks = n
				}
			}
			infos = append(infos, info)
		}

		writeJSON(w, http.StatusOK, map[string]any{"links": infos})
	}
}

// HandleDeleteLink handles DELETE /api/links/{id} for the authenticated owner.
func HandleDeleteLink(store LinkStore, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserIDFromContext(r.Context())

		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid link id")
			return
		}

		deleted, err := store.DeleteLinkForOwner(r.Context(), id, userID)
		if err != nil {
			logger.Error().Err(err).Msg("failed to delete link")
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		if !deleted {
			writeError(w, http.StatusNotFound, "Link not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}
