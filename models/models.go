package models

import "time"

// Link represents a shortened URL with its access rules and usage counters.
// Slug and OriginalURL are immutable after creation; CurrentClicks only
// ever increases.
type Link struct {
	ID            int64      `json:"id"`
	Slug          string     `json:"slug"`
	OriginalURL   string     `json:"original_url"`
	UserID        string     `json:"user_id,omitempty"` // empty for anonymous links
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	MaxClicks     *int64     `json:"max_clicks,omitempty"`
	CurrentClicks int64      `json:"current_clicks"`
	PasswordHash  string     `json:"-"` // empty means not password protected
}

// IsExpired reports whether the link has expired at the given instant.
func (l *Link) IsExpired(now time.Time) bool {
	return l.ExpiresAt != nil && now.After(*l.ExpiresAt)
}

// LimitReached reports whether the click limit has been consumed. The visit
// that crosses the threshold is still honored; only subsequent visits see
// the limit.
func (l *Link) LimitReached() bool {
	return l.MaxClicks != nil && l.CurrentClicks >= *l.MaxClicks
}

// PasswordProtected reports whether a password is required to follow the link.
func (l *Link) PasswordProtected() bool {
	return l.PasswordHash != ""
}

// Facets holds the device/browser/OS information parsed from a user agent.
type Facets struct {
	BrowserName    string `json:"browser_name"`
	BrowserVersion string `json:"browser_version"`
	BrowserMajor   string `json:"browser_major"`
	BrowserType    string `json:"browser_type"`
	OSName         string `json:"os_name"`
	OSVersion      string `json:"os_version"`
	DeviceVendor   string `json:"device_vendor"`
	DeviceModel    string `json:"device_model"`
	DeviceType     string `json:"device_type"`
	EngineName     string `json:"engine_name"`
	EngineVersion  string `json:"engine_version"`
	CPUArch        string `json:"cpu_arch"`
}

// Location is a coarse geographic resolution of a visitor IP.
type Location struct {
	Country string `json:"country"`
	Region  string `json:"region"`
	City    string `json:"city"`
	ISP     string `json:"isp"`
}

// UnknownLocation is the fallback used whenever geolocation cannot resolve.
func UnknownLocation() Location {
	return Location{Country: "Unknown", Region: "Unknown", City: "Unknown", ISP: "Unknown"}
}

// Visit is one analytics event recorded for a granted redirect.
// Visits are write-once; they are never mutated after insertion.
type Visit struct {
	ID          string    `json:"id"`
	LinkID      int64     `json:"link_id"`
	Slug        string    `json:"slug"`
	Timestamp   time.Time `json:"timestamp"`
	VisitorHash string    `json:"visitor_hash"`
	IPAddress   string    `json:"ip_address"`
	Referrer    string    `json:"referrer"`
	Facets      Facets    `json:"facets"`
	Location    Location  `json:"location"`
}

// RequestMeta carries the request-scoped inputs of visit recording:
// client address, raw user agent and referrer information.
// OriginalReferrer is the synthetic override that preserves the true
// referrer across the password-challenge hop.
type RequestMeta struct {
	IPAddress        string
	UserAgent        string
	Referrer         string
	OriginalReferrer string
}

// TimePoint is one bucket in a time-series of visit counts.
type TimePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Count     int64     `json:"count"`
}

// BreakdownRow is a raw (unlabeled) category count coming out of the store.
type BreakdownRow struct {
	Name  string
	Count int64
}

// MetricEntry is one ranked entry of a breakdown, with its share of the total.
type MetricEntry struct {
	Name       string `json:"name"`
	Count      int64  `json:"count"`
	Percentage int    `json:"percentage"`
}

// RecentVisit is the reduced projection of a visit shown in the
// "recent activity" view.
type RecentVisit struct {
	Timestamp time.Time `json:"timestamp"`
	Country   string    `json:"country"`
	Browser   string    `json:"browser"`
	OS        string    `json:"os"`
	Device    string    `json:"device"`
	Referrer  string    `json:"referrer"`
}

// Report is the aggregated analytics for one link over one time window.
// It is derived on demand and cached briefly; it is never persisted.
type Report struct {
	Slug             string        `json:"slug"`
	TimeRange        string        `json:"time_range"`
	TotalVisits      int64         `json:"total_visits"`
	UniqueVisitors   int64         `json:"unique_visitors"`
	TotalViews       int64         `json:"total_views"`
	TimeSeries       []TimePoint   `json:"time_series"`
	Countries        []MetricEntry `json:"countries"`
	Regions          []MetricEntry `json:"regions"`
	Referrers        []MetricEntry `json:"referrers"`
	Browsers         []MetricEntry `json:"browsers"`
	OperatingSystems []MetricEntry `json:"operating_systems"`
	Devices          []MetricEntry `json:"devices"`
	RecentVisits     []RecentVisit `json:"recent_visits"`
}
