// Package geo resolves visitor IPs to coarse locations via an external
// HTTP geolocation service, with a bounded in-process cache and a fixed
// fallback for every failure path.
package geo

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"shortlink-service/cache"
	"shortlink-service/metrics"
	"shortlink-service/models"
)

// Config holds the tunables of the resolver.
type Config struct {
	BaseURL    string        // e.g. https://ipapi.co
	Timeout    time.Duration // per-request timeout
	Retries    int           // additional attempts on 429 or network error
	RetryDelay time.Duration // fixed backoff between attempts
}

// Resolver maps IPs to locations. Resolve never fails: every error path
// yields the Unknown fallback.
type Resolver struct {
	cfg     Config
	client  *http.Client
	cache   *cache.Cache[models.Location]
	breaker *gobreaker.CircuitBreaker[models.Location]
	sleep   func(time.Duration)
	log     zerolog.Logger
}

// NewResolver creates a resolver using the given location cache. The cache
// owns TTL and capacity policy; the resolver only reads and fills it.
func NewResolver(cfg Config, locationCache *cache.Cache[models.Location], logger zerolog.Logger) *Resolver {
	return &Resolver{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		cache:  locationCache,
		breaker: gobreaker.NewCircuitBreaker[models.Location](gobreaker.Settings{
			Name:    "geolocation",
			Timeout: 30 * time.Second,
		}),
		sleep: time.Sleep,
		log:   logger.With().Str("component", "geo").Logger(),
	}
}

// Resolve returns the location for ip. Local and private addresses
// short-circuit to the fallback without an external call; cache hits bypass
// the external call; every failure resolves to the fallback.
func (r *Resolver) Resolve(ctx context.Context, ip string) models.Location {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return models.UnknownLocation()
	}

	if IsPrivateIP(ip) {
		metrics.GeoLookups.WithLabelValues("private").Inc()
		return models.UnknownLocation()
	}

	if loc, ok := r.cache.Get(ip); ok {
		metrics.GeoLookups.WithLabelValues("cache_hit").Inc()
		return loc
	}

	loc, err := r.breaker.Execute(func() (models.Location, error) {
		return r.lookup(ctx, ip)
	})
	if err != nil {
		metrics.GeoLookups.WithLabelValues("fallback").Inc()
		r.log.Warn().Str("ip", ip).Err(err).Msg("geolocation lookup failed, using fallback")
		loc = models.UnknownLocation()
	} else {
		metrics.GeoLookups.WithLabelValues("resolved").Inc()
	}

	// Fallbacks are cached too, so a misbehaving upstream is not hammered.
	r.cache.Set(ip, loc)
	return loc
}

type apiResponse struct {
	Error       bool   `json:"error"`
	Reason      string `json:"reason"`
	CountryName string `json:"country_name"`
	Region      string `json:"region"`
	City        string `json:"city"`
	Org         string `json:"org"`
}

// lookup queries the external service, retrying on rate limiting and
// transient network errors with a fixed backoff.
func (r *Resolver) lookup(ctx context.Context, ip string) (models.Location, error) {
	url := fmt.Sprintf("%s/%s/json/", strings.TrimSuffix(r.cfg.BaseURL, "/"), ip)

	var lastErr error
	for attempt := 0; attempt <= r.cfg.Retries; attempt++ {
		if attempt > 0 {
			r.sleep(r.cfg.RetryDelay)
		}

		loc, retryable, err := r.fetch(ctx, url)
		if err == nil {
			return loc, nil
		}
		lastErr = err
		if !retryable {
			return models.UnknownLocation(), err
		}
	}
	return models.UnknownLocation(), fmt.Errorf("retries exhausted: %w", lastErr)
}

func (r *Resolver) fetch(ctx context.Context, url string) (models.Location, bool, error) {
	reqCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return models.Location{}, false, err
	}
	req.Header.Set("User-Agent", "shortlink-service/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		// Timeouts and connection errors are worth a retry.
		return models.Location{}, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return models.Location{}, true, fmt.Errorf("rate limited (429)")
	}
	if resp.StatusCode != http.StatusOK {
		return models.Location{}, false, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var data apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return models.Location{}, false, fmt.Errorf("failed to decode response: %w", err)
	}
	if data.Error {
		return models.Location{}, false, fmt.Errorf("api error: %s", data.Reason)
	}

	return models.Location{
		Country: orUnknown(data.CountryName),
		Region:  orUnknown(data.Region),
		City:    orUnknown(data.City),
		ISP:     orUnknown(data.Org),
	}, false, nil
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

// IsPrivateIP reports whether ip is loopback, RFC1918 private, link-local,
// unspecified, or an IPv6-mapped variant of those. Unparseable input is
// treated as private so it never reaches the external service.
func IsPrivateIP(ip string) bool {
	normalized := strings.ToLower(strings.TrimSpace(ip))
	if normalized == "" || strings.Contains(normalized, "localhost") {
		return true
	}

	// Non-standard mapped form seen in some proxy chains.
	normalized = strings.TrimPrefix(normalized, "::ffff:0:")

	parsed := net.ParseIP(normalized)
	if parsed == nil {
		return true
	}
	return parsed.IsLoopback() ||
		parsed.IsPrivate() ||
		parsed.IsUnspecified() ||
		parsed.IsLinkLocalUnicast()
}
