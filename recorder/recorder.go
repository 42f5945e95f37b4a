// Package recorder builds one analytics event per granted redirect and
// hands it to the asynchronous write queue. Recording is best effort:
// every sub-failure is substituted with a safe default and the record is
// written with partial data rather than dropped.
package recorder

import (
	"context"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"shortlink-service/cache"
	"shortlink-service/fingerprint"
	"shortlink-service/models"
)

// internalAnalyticsPath marks referrers originating from our own analytics
// pages; they are suppressed as self-referential noise.
const internalAnalyticsPath = "/api/analytics"

// GeoResolver resolves an IP to a location and never fails.
type GeoResolver interface {
	Resolve(ctx context.Context, ip string) models.Location
}

// Queue accepts visit records for asynchronous persistence.
type Queue interface {
	Enqueue(v models.Visit) bool
}

// Counter increments the real-time click counter for a slug.
// It may be nil when no counter backend is configured.
type Counter interface {
	Incr(ctx context.Context, key string) (int64, error)
}

// Recorder assembles and enqueues visit records.
type Recorder struct {
	geo      GeoResolver
	queue    Queue
	counter  Counter
	selfHost string
	clock    cache.Clock
	log      zerolog.Logger
}

// New creates a Recorder. selfBaseURL is the public base URL of this
// service; referrers pointing back at it are suppressed.
func New(geo GeoResolver, queue Queue, counter Counter, selfBaseURL string, clock cache.Clock, logger zerolog.Logger) *Recorder {
	selfHost := ""
	if u, err := url.Parse(selfBaseURL); err == nil {
		selfHost = u.Host
	}
	if clock == nil {
		clock = cache.RealClock{}
	}
	return &Recorder{
		geo:      geo,
		queue:    queue,
		counter:  counter,
		selfHost: selfHost,
		clock:    clock,
		log:      logger.With().Str("component", "recorder").Logger(),
	}
}

// Record builds a visit record for link from the request metadata and
// enqueues it. Returns true when the record was accepted by the queue.
// Failures never propagate to the caller as errors.
func (r *Recorder) Record(ctx context.Context, link *models.Link, meta models.RequestMeta) bool {
	location := r.geo.Resolve(ctx, meta.IPAddress)

	visit := models.Visit{
		ID:          uuid.NewString(),
		LinkID:      link.ID,
		Slug:        link.Slug,
		Timestamp:   r.clock.Now(),
		VisitorHash: fingerprint.Hash(meta.IPAddress, meta.UserAgent),
		IPAddress:   meta.IPAddress,
		Referrer:    r.effectiveReferrer(meta),
		Facets:      fingerprint.Parse(meta.UserAgent),
		Location:    location,
	}

	ok := r.queue.Enqueue(visit)

	// Real-time counter is independent of the persisted record.
	if r.counter != nil {
		if _, err := r.counter.Incr(ctx, "clicks:realtime:"+link.Slug); err != nil {
			r.log.Warn().Str("slug", link.Slug).Err(err).Msg("failed to increment realtime counter")
		}
	}

	return ok
}

// effectiveReferrer prefers the original-referrer override carried through
// the password-challenge hop over the raw header, and suppresses referrers
// that point back at this service.
func (r *Recorder) effectiveReferrer(meta models.RequestMeta) string {
	referrer := meta.Referrer
	if meta.OriginalReferrer != "" {
		referrer = meta.OriginalReferrer
	}
	if referrer == "" {
		return ""
	}

	u, err := url.Parse(referrer)
	if err != nil {
		// Malformed referrers are kept as-is rather than dropped.
		return referrer
	}
	if u.Host != "" && r.selfHost != "" && u.Host == r.selfHost {
		return ""
	}
	if strings.HasPrefix(u.Path, internalAnalyticsPath) && u.Host == "" {
		return ""
	}
	return referrer
}
