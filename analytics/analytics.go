// Package analytics aggregates recorded visits into per-link reports:
// totals, unique visitors, a time series, and ranked breakdowns, with a
// short-lived result cache in front of the store.
package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"shortlink-service/cache"
	"shortlink-service/metrics"
	"shortlink-service/models"
)

// challengePathPrefix identifies referrers coming from the dashboard's
// password-challenge flow; they are folded into one fixed bucket.
const challengePathPrefix = "/dashboard/analytics"

// recentVisitLimit is the size of the recent-activity projection.
const recentVisitLimit = 5

// Registry resolves a link for its owner; ownership failures surface as
// NotFoundError.
type Registry interface {
	GetLinkBySlugForOwner(ctx context.Context, slug, ownerID string) (*models.Link, error)
}

// VisitStore is the read side of the recorded visits.
type VisitStore interface {
	CountVisits(ctx context.Context, linkID int64, start, end time.Time) (int64, error)
	CountUniqueVisitors(ctx context.Context, linkID int64, start, end time.Time) (int64, error)
	VisitsOverTime(ctx context.Context, linkID int64, start, end time.Time, bucket string) ([]models.TimePoint, error)
	TopBreakdown(ctx context.Context, linkID int64, start, end time.Time, dimension string) ([]models.BreakdownRow, error)
	RecentVisits(ctx context.Context, linkID int64, start, end time.Time, limit int) ([]models.RecentVisit, error)
}

// Aggregator computes analytics reports.
type Aggregator struct {
	registry Registry
	visits   VisitStore
	cache    *cache.Cache[*models.Report]
	clock    cache.Clock
	log      zerolog.Logger
}

func NewAggregator(registry Registry, visits VisitStore, reportCache *cache.Cache[*models.Report], clock cache.Clock, logger zerolog.Logger) *Aggregator {
	if clock == nil {
		clock = cache.RealClock{}
	}
	return &Aggregator{
		registry: registry,
		visits:   visits,
		cache:    reportCache,
		clock:    clock,
		log:      logger.With().Str("component", "analytics").Logger(),
	}
}

// GetReport returns the aggregated report for the owner's link over the
// requested range (24h, 7d, 30d, 90d, all; anything else falls back to 7d).
// Ownership failures propagate as NotFoundError; a single failing metric
// degrades to an empty value instead of failing the report.
func (a *Aggregator) GetReport(ctx context.Context, ownerID, slug, timeRange string) (*models.Report, error) {
	timeRange = normalizeRange(timeRange)
	cacheKey := fmt.Sprintf("%s:%s:%s", slug, timeRange, ownerID)

	if report, ok := a.cache.Get(cacheKey); ok {
		metrics.ReportCache.WithLabelValues("hit").Inc()
		return report, nil
	}
	metrics.ReportCache.WithLabelValues("miss").Inc()

	link, err := a.registry.GetLinkBySlugForOwner(ctx, slug, ownerID)
	if err != nil {
		return nil, err
	}

	start, end, bucket := Window(timeRange, link.CreatedAt, a.clock.Now())

	report := &models.Report{
		Slug:             slug,
		TimeRange:        timeRange,
		TotalViews:       link.CurrentClicks,
		TimeSeries:       []models.TimePoint{},
		Countries:        []models.MetricEntry{},
		Regions:          []models.MetricEntry{},
		Referrers:        []models.MetricEntry{},
		Browsers:         []models.MetricEntry{},
		OperatingSystems: []models.MetricEntry{},
		Devices:          []models.MetricEntry{},
		RecentVisits:     []models.RecentVisit{},
	}

	report.TotalVisits = a.count(ctx, "total_visits", func() (int64, error) {
		return a.visits.CountVisits(ctx, link.ID, start, end)
	})

	// With zero visits every metric is trivially empty; skip the queries.
	if report.TotalVisits > 0 {
		report.UniqueVisitors = a.count(ctx, "unique_visitors", func() (int64, error) {
			return a.visits.CountUniqueVisitors(ctx, link.ID, start, end)
		})

		if points, err := a.visits.VisitsOverTime(ctx, link.ID, start, end, bucket); err != nil {
			a.log.Error().Str("slug", slug).Err(err).Msg("time series query failed")
		} else if points != nil {
			report.TimeSeries = points
		}

		report.Countries = a.breakdown(ctx, link.ID, start, end, "country")
		report.Regions = a.breakdown(ctx, link.ID, start, end, "region")
		report.Referrers = a.breakdown(ctx, link.ID, start, end, "referrer")
		report.Browsers = a.breakdown(ctx, link.ID, start, end, "browser")
		report.OperatingSystems = a.breakdown(ctx, link.ID, start, end, "os")
		report.Devices = a.breakdown(ctx, link.ID, start, end, "device")

		if recent, err := a.visits.RecentVisits(ctx, link.ID, start, end, recentVisitLimit); err != nil {
			a.log.Error().Str("slug", slug).Err(err).Msg("recent visits query failed")
		} else if recent != nil {
			report.RecentVisits = labelRecent(recent)
		}
	}

	a.cache.Set(cacheKey, report)
	return report, nil
}

func (a *Aggregator) count(ctx context.Context, name string, query func() (int64, error)) int64 {
	n, err := query()
	if err != nil {
		a.log.Error().Str("metric", name).Err(err).Msg("count query failed")
		return 0
	}
	return n
}

// breakdown fetches, labels, merges and ranks one dimension. Failures yield
// an empty list.
func (a *Aggregator) breakdown(ctx context.Context, linkID int64, start, end time.Time, dimension string) []models.MetricEntry {
	rows, err := a.visits.TopBreakdown(ctx, linkID, start, end, dimension)
	if err != nil {
		a.log.Error().Str("dimension", dimension).Err(err).Msg("breakdown query failed")
		return []models.MetricEntry{}
	}
	return RankBreakdown(rows, dimension)
}

// RankBreakdown turns raw category counts into labeled, ranked entries with
// integer percentages of the total. Empty categories become "Unknown"
// ("Direct" for referrers), and challenge-page referrers are folded into a
// fixed password-protected bucket. Entries sharing a label after relabeling
// are merged.
func RankBreakdown(rows []models.BreakdownRow, dimension string) []models.MetricEntry {
	merged := make(map[string]int64)
	order := make([]string, 0, len(rows))
	var total int64

	for _, row := range rows {
		label := labelCategory(row.Name, dimension)
		if _, seen := merged[label]; !seen {
			order = append(order, label)
		}
		merged[label] += row.Count
		total += row.Count
	}

	entries := make([]models.MetricEntry, 0, len(merged))
	for _, label := range order {
		count := merged[label]
		percentage := 0
		if total > 0 {
			percentage = int(math.Round(float64(count) / float64(total) * 100))
		}
		entries = append(entries, models.MetricEntry{Name: label, Count: count, Percentage: percentage})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Count > entries[j].Count
	})
	return entries
}

func labelCategory(name, dimension string) string {
	if dimension == "referrer" {
		switch {
		case name == "":
			return "Direct"
		case strings.HasPrefix(name, challengePathPrefix):
			return "Password Protected Link"
		}
		return name
	}
	if name == "" {
		return "Unknown"
	}
	return name
}

func labelRecent(visits []models.RecentVisit) []models.RecentVisit {
	out := make([]models.RecentVisit, len(visits))
	for i, v := range visits {
		v.Country = labelCategory(v.Country, "country")
		v.Browser = labelCategory(v.Browser, "browser")
		v.OS = labelCategory(v.OS, "os")
		v.Device = labelCategory(v.Device, "device")
		v.Referrer = labelCategory(v.Referrer, "referrer")
		out[i] = v
	}
	return out
}

func normalizeRange(timeRange string) string {
	switch timeRange {
	case "24h", "7d", "30d", "90d", "all":
		return timeRange
	}
	return "7d"
}

// Window computes the concrete [start, end] range for a report, anchored at
// now and clamped to the link's creation day. 24h is a rolling window
// bucketed by hour; the day ranges start at midnight N-1 days back so today
// is included; "all" starts at the creation day's midnight.
func Window(timeRange string, createdAt, now time.Time) (start, end time.Time, bucket string) {
	end = now
	bucket = "day"
	creationDay := midnight(createdAt)

	switch timeRange {
	case "24h":
		start = now.Add(-24 * time.Hour)
		bucket = "hour"
	case "7d":
		start = midnight(now.AddDate(0, 0, -6))
	case "30d":
		start = midnight(now.AddDate(0, 0, -29))
	case "90d":
		start = midnight(now.AddDate(0, 0, -89))
	case "all":
		start = creationDay
	default:
		start = midnight(now.AddDate(0, 0, -6))
	}

	if start.Before(creationDay) {
		start = creationDay
	}
	if start.After(end) {
		start = end
	}
	return start, end, bucket
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
