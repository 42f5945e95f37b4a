// Package resolver implements the slug-resolution state machine: given an
// inbound slug and optional credentials it decides whether the visitor is
// redirected, challenged, or rejected, and orchestrates the click increment
// and visit recording that follow a grant.
package resolver

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"shortlink-service/cache"
	"shortlink-service/metrics"
	"shortlink-service/models"
)

// Outcome is the terminal decision of one slug resolution.
type Outcome int

const (
	OutcomeNotFound Outcome = iota
	OutcomeExpired
	OutcomeLimitReached
	OutcomePasswordRequired
	OutcomeGranted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNotFound:
		return "not_found"
	case OutcomeExpired:
		return "expired"
	case OutcomeLimitReached:
		return "limit_reached"
	case OutcomePasswordRequired:
		return "password_required"
	case OutcomeGranted:
		return "granted"
	}
	return "unknown"
}

// Registry is the link-store contract the resolver depends on.
type Registry interface {
	GetLinkBySlug(ctx context.Context, slug string) (*models.Link, error)
	GetLinkByID(ctx context.Context, id int64) (*models.Link, error)
	IncrementClicks(ctx context.Context, id int64) error
}

// Recorder persists visit analytics; failures are reported as false,
// never as errors.
type Recorder interface {
	Record(ctx context.Context, link *models.Link, meta models.RequestMeta) bool
}

// SideEffects reports the best-effort outcomes that followed a grant.
// The decision itself is carried by Resolution.Outcome; a grant stands even
// when both fields are false.
type SideEffects struct {
	ClickCounted  bool
	VisitRecorded bool
}

// Resolution is the result of one slug-resolution request.
type Resolution struct {
	Outcome          Outcome
	DestinationURL   string
	Link             *models.Link
	PasswordMismatch bool
	SideEffects      SideEffects
}

// VerifyResult is the result of an explicit password verification call.
// AnalyticsRecorded lets the redirect entry point skip a second visit
// record for the same logical visit.
type VerifyResult struct {
	Success           bool   `json:"success"`
	OriginalURL       string `json:"original_url,omitempty"`
	AnalyticsRecorded bool   `json:"analytics_recorded,omitempty"`
}

// Service drives the state machine.
type Service struct {
	registry Registry
	recorder Recorder
	clock    cache.Clock
	log      zerolog.Logger
}

func NewService(registry Registry, recorder Recorder, clock cache.Clock, logger zerolog.Logger) *Service {
	if clock == nil {
		clock = cache.RealClock{}
	}
	return &Service{
		registry: registry,
		recorder: recorder,
		clock:    clock,
		log:      logger.With().Str("component", "resolver").Logger(),
	}
}

// Resolve decides the outcome for slug. password is the inline credential
// from the request, empty when none was supplied. The returned error is
// non-nil only for infrastructure failures during the decision itself;
// side-effect failures after a grant are logged and swallowed.
//
// The click-limit check is deliberately >=: the visit whose increment
// crosses the threshold is honored, and only the following visit is
// rejected.
func (s *Service) Resolve(ctx context.Context, slug, password string, meta models.RequestMeta) (Resolution, error) {
	link, err := s.registry.GetLinkBySlug(ctx, slug)
	if err != nil {
		var notFound *models.NotFoundError
		if errors.As(err, &notFound) {
			metrics.RedirectsTotal.WithLabelValues(OutcomeNotFound.String()).Inc()
			return Resolution{Outcome: OutcomeNotFound}, nil
		}
		return Resolution{}, err
	}

	if link.IsExpired(s.clock.Now()) {
		metrics.RedirectsTotal.WithLabelValues(OutcomeExpired.String()).Inc()
		return Resolution{Outcome: OutcomeExpired, Link: link}, nil
	}

	if link.LimitReached() {
		metrics.RedirectsTotal.WithLabelValues(OutcomeLimitReached.String()).Inc()
		return Resolution{Outcome: OutcomeLimitReached, Link: link}, nil
	}

	if link.PasswordProtected() {
		if password == "" {
			metrics.RedirectsTotal.WithLabelValues(OutcomePasswordRequired.String()).Inc()
			return Resolution{Outcome: OutcomePasswordRequired, Link: link}, nil
		}
		if bcrypt.CompareHashAndPassword([]byte(link.PasswordHash), []byte(password)) != nil {
			metrics.RedirectsTotal.WithLabelValues(OutcomePasswordRequired.String()).Inc()
			return Resolution{Outcome: OutcomePasswordRequired, Link: link, PasswordMismatch: true}, nil
		}
	}

	return s.grant(ctx, link, meta), nil
}

// VerifyPassword handles the explicit verification action for a
// password-protected link. On a match it performs the grant side effects
// exactly once and reports that analytics were recorded, so the subsequent
// page load does not double-record.
func (s *Service) VerifyPassword(ctx context.Context, linkID int64, password string, meta models.RequestMeta) VerifyResult {
	link, err := s.registry.GetLinkByID(ctx, linkID)
	if err != nil {
		var notFound *models.NotFoundError
		if !errors.As(err, &notFound) {
			s.log.Error().Int64("link_id", linkID).Err(err).Msg("password verification lookup failed")
		}
		return VerifyResult{}
	}
	if !link.PasswordProtected() {
		return VerifyResult{}
	}
	if link.IsExpired(s.clock.Now()) || link.LimitReached() {
		return VerifyResult{}
	}
	if bcrypt.CompareHashAndPassword([]byte(link.PasswordHash), []byte(password)) != nil {
		return VerifyResult{}
	}

	res := s.grant(ctx, link, meta)
	return VerifyResult{
		Success:           true,
		OriginalURL:       res.DestinationURL,
		AnalyticsRecorded: res.SideEffects.VisitRecorded,
	}
}

// grant performs the side effects of a granted redirect. The destination
// is already decided; a failing increment or record never turns the grant
// into a failure.
func (s *Service) grant(ctx context.Context, link *models.Link, meta models.RequestMeta) Resolution {
	res := Resolution{
		Outcome:        OutcomeGranted,
		DestinationURL: link.OriginalURL,
		Link:           link,
	}

	if err := s.registry.IncrementClicks(ctx, link.ID); err != nil {
		s.log.Error().Str("slug", link.Slug).Err(err).Msg("click increment failed")
	} else {
		res.SideEffects.ClickCounted = true
	}

	res.SideEffects.VisitRecorded = s.recorder.Record(ctx, link, meta)

	metrics.RedirectsTotal.WithLabelValues(OutcomeGranted.String()).Inc()
	return res
}
