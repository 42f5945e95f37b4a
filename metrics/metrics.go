// Package metrics exposes Prometheus counters for the redirect and
// analytics pipelines.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedirectsTotal counts slug resolutions by outcome
	// (granted, not_found, expired, limit_reached, password_required).
	RedirectsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shortlink_redirects_total",
		Help: "Slug resolutions by outcome.",
	}, []string{"outcome"})

	// VisitsEnqueued counts visit records accepted into the write queue.
	VisitsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shortlink_visits_enqueued_total",
		Help: "Visit records accepted into the analytics write queue.",
	})

	// VisitsDropped counts visit records dropped because the queue was full.
	VisitsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shortlink_visits_dropped_total",
		Help: "Visit records dropped due to a full analytics write queue.",
	})

	// VisitsPersisted counts visit records written to the store.
	VisitsPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shortlink_visits_persisted_total",
		Help: "Visit records written to the store.",
	})

	// GeoLookups counts geolocation resolutions by result
	// (cache_hit, resolved, fallback, private).
	GeoLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shortlink_geo_lookups_total",
		Help: "Geolocation resolutions by result.",
	}, []string{"result"})

	// ReportCache counts analytics report cache lookups by result (hit, miss).
	ReportCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shortlink_report_cache_total",
		Help: "Analytics report cache lookups by result.",
	}, []string{"result"})
)
