package models

import "time"

// ActivityType classifies a live activity notice
type ActivityType string

const (
	ActivityVisit       ActivityType = "visit"
	ActivityPageView    ActivityType = "page_view"
	ActivityInteraction ActivityType = "interaction"
	ActivityDownload    ActivityType = "download"
)

// LiveActivity is the ephemeral projection of a freshly ingested event.
// It is never persisted.
type LiveActivity struct {
	Type      ActivityType `json:"type"`
	Page      string       `json:"page,omitempty"`
	Action    string       `json:"action,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
	UserAgent string       `json:"userAgent,omitempty"`
	Location  string       `json:"location,omitempty"`
}

// LiveSnapshot is the current state of the real-time channel
type LiveSnapshot struct {
	Count  int            `json:"count"`
	Recent []LiveActivity `json:"recent"`
}

// Period is one of the enumerated aggregate windows
type Period string

const (
	PeriodToday      Period = "today"
	PeriodYesterday  Period = "yesterday"
	PeriodLast7Days  Period = "last_7_days"
	PeriodLast30Days Period = "last_30_days"
	PeriodLast90Days Period = "last_90_days"
	PeriodThisMonth  Period = "this_month"
	PeriodLastMonth  Period = "last_month"
	PeriodThisYear   Period = "this_year"
	PeriodCustom     Period = "custom"
)

// AnalyticsQuery selects the window of an aggregate. Dates are RFC 3339
// timestamps or plain YYYY-MM-DD dates and only apply to custom periods.
type AnalyticsQuery struct {
	Period    string `json:"period,omitempty" form:"period"`
	StartDate string `json:"startDate,omitempty" form:"startDate"`
	EndDate   string `json:"endDate,omitempty" form:"endDate"`
}

// AnalyticsAggregate is recomputed from the event log for every request
type AnalyticsAggregate struct {
	Period             Period              `json:"period"`
	StartDate          time.Time           `json:"startDate"`
	EndDate            time.Time           `json:"endDate"`
	Overview           Overview            `json:"overview"`
	TrafficGrowth      []DailyTraffic      `json:"trafficGrowth"`
	Devices            []BreakdownItem     `json:"devices"`
	Browsers           []BreakdownItem     `json:"browsers"`
	OperatingSystems   []BreakdownItem     `json:"operatingSystems"`
	TrafficSources     []TrafficSource     `json:"trafficSources"`
	TopPages           []PageStats         `json:"topPages"`
	ContactSubmissions ContactSubmissions  `json:"contactSubmissions"`
	CVDownloads        int64               `json:"cvDownloads"`
	ProjectEngagement  []ProjectEngagement `json:"projectEngagement"`
}

// Overview holds the headline counters
type Overview struct {
	TotalVisitors      int64   `json:"totalVisitors"`
	TotalPageViews     int64   `json:"totalPageViews"`
	TotalInteractions  int64   `json:"totalInteractions"`
	AvgSessionDuration float64 `json:"avgSessionDuration"` // seconds
	BounceRate         float64 `json:"bounceRate"`         // percent
	VisitorGrowth      float64 `json:"visitorGrowth"`      // percent vs previous window
}

// DailyTraffic is one point of the traffic-growth series
type DailyTraffic struct {
	Date      string `json:"date"`
	Visitors  int64  `json:"visitors"`
	PageViews int64  `json:"pageViews"`
}

// BreakdownItem is one bucket of a device/browser/OS breakdown
type BreakdownItem struct {
	Name       string  `json:"name"`
	Visitors   int64   `json:"visitors"`
	Percentage float64 `json:"percentage"`
}

// TrafficSource is one bucket of the referer classification
type TrafficSource struct {
	Source     string  `json:"source"`
	Category   string  `json:"category"`
	Visitors   int64   `json:"visitors"`
	Percentage float64 `json:"percentage"`
}

// PageStats describes one page of the top pages list
type PageStats struct {
	Path           string  `json:"path"`
	Views          int64   `json:"views"`
	UniqueVisitors int64   `json:"uniqueVisitors"`
	AvgTimeOnPage  float64 `json:"avgTimeOnPage"` // seconds
	BounceRate     float64 `json:"bounceRate"`    // percent
}

// DailyCount is a dated counter
type DailyCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// ContactSubmissions counts submissions of the contact form in the window
type ContactSubmissions struct {
	Total int64        `json:"total"`
	Daily []DailyCount `json:"daily"`
}

// ProjectEngagement summarises visits to one project page
type ProjectEngagement struct {
	Project        string  `json:"project"`
	Path           string  `json:"path"`
	Views          int64   `json:"views"`
	UniqueVisitors int64   `json:"uniqueVisitors"`
	AvgDuration    float64 `json:"avgDuration"` // seconds
	Interactions   int64   `json:"interactions"`
}

// NewEmptyAggregate returns an aggregate whose every field holds its zero
// value, with non-nil lists so callers never see a missing field
func NewEmptyAggregate(period Period, start, end time.Time) *AnalyticsAggregate {
	return &AnalyticsAggregate{
		Period:             period,
		StartDate:          start,
		EndDate:            end,
		TrafficGrowth:      []DailyTraffic{},
		Devices:            []BreakdownItem{},
		Browsers:           []BreakdownItem{},
		OperatingSystems:   []BreakdownItem{},
		TrafficSources:     []TrafficSource{},
		TopPages:           []PageStats{},
		ContactSubmissions: ContactSubmissions{Daily: []DailyCount{}},
		ProjectEngagement:  []ProjectEngagement{},
	}
}
