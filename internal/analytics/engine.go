package analytics

import (
	"math"
	"sort"
	"strings"
	"time"

	"Mansoor88-6/site-analytics/internal/models"
)

// Options are the aggregation policy knobs
type Options struct {
	SessionTimeout     time.Duration
	TopPagesLimit      int
	ProjectPathPrefix  string
	CVDownloadElements []string
	Location           *time.Location
}

// Engine computes aggregates from a snapshot of the event log. It holds no
// state between calls, so the same input always yields the same aggregate.
type Engine struct {
	opts       Options
	cvElements map[string]bool
	agents     *AgentParser
	sources    *SourceClassifier
}

func NewEngine(opts Options, agents *AgentParser, sources *SourceClassifier) *Engine {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.SessionTimeout <= 0 {
		opts.SessionTimeout = 30 * time.Minute
	}
	return &Engine{
		opts:       opts,
		cvElements: toSet(opts.CVDownloadElements),
		agents:     agents,
		sources:    sources,
	}
}

// ScanEnd is how far past the window end the log must be read so that
// duration records arriving after the window still join their view
func (e *Engine) ScanEnd(w Window) time.Time {
	return w.End.Add(e.opts.SessionTimeout)
}

// view is a page view with its joined durations
type view struct {
	rec      *models.LogRecord
	duration int64
	timed    bool
}

func (v *view) end() time.Time {
	return v.rec.Timestamp.Add(time.Duration(v.duration) * time.Second)
}

type sessionStats struct {
	id        string
	first     *models.LogRecord
	firstView *view
	paths     map[string]bool
	spans     []span
}

type span struct {
	start, end time.Time
}

// CountSessions returns the distinct sessions with a page view or an
// interaction inside w. Records without a session id are not counted.
func CountSessions(w Window, records []models.LogRecord) int64 {
	seen := make(map[string]struct{})
	for i := range records {
		rec := &records[i]
		if rec.Kind == models.KindDuration || rec.SessionID == "" || !w.Contains(rec.Timestamp) {
			continue
		}
		seen[rec.SessionID] = struct{}{}
	}
	return int64(len(seen))
}

// Compute builds the aggregate for w. records must cover [w.Start,
// ScanEnd(w)) in timestamp order; contacts are submission times.
func (e *Engine) Compute(w Window, records []models.LogRecord, previousSessions int64, contacts []time.Time) *models.AnalyticsAggregate {
	agg := models.NewEmptyAggregate(w.Period, w.Start, w.End)

	views := e.joinDurations(records)

	sessions := make(map[string]*sessionStats)
	var interactions []*models.LogRecord
	var pageViews []*view

	for i := range records {
		rec := &records[i]
		if rec.Kind == models.KindDuration || !w.Contains(rec.Timestamp) {
			continue
		}
		if rec.SessionID == "" {
			// Only interactions can arrive without a session
			if rec.Kind == models.KindInteraction {
				interactions = append(interactions, rec)
			}
			continue
		}

		s, ok := sessions[rec.SessionID]
		if !ok {
			s = &sessionStats{id: rec.SessionID, first: rec, paths: make(map[string]bool)}
			sessions[rec.SessionID] = s
		}

		switch rec.Kind {
		case models.KindPageView:
			v := views[rec]
			pageViews = append(pageViews, v)
			s.paths[rec.Path] = true
			if s.firstView == nil {
				s.firstView = v
			}
			s.spans = append(s.spans, span{start: rec.Timestamp, end: v.end()})
		case models.KindInteraction:
			interactions = append(interactions, rec)
			s.spans = append(s.spans, span{start: rec.Timestamp, end: rec.Timestamp})
		}
	}

	total := int64(len(sessions))

	agg.Overview = e.overview(sessions, int64(len(pageViews)), int64(len(interactions)), previousSessions)
	agg.TrafficGrowth = e.trafficGrowth(w, pageViews, interactions)
	agg.Devices, agg.Browsers, agg.OperatingSystems = e.breakdowns(sessions, total)
	agg.TrafficSources = e.trafficSources(sessions, total)
	agg.TopPages = e.topPages(sessions, pageViews)
	agg.ContactSubmissions = e.contactSubmissions(w, contacts)
	agg.CVDownloads = e.cvDownloads(interactions)
	agg.ProjectEngagement = e.projectEngagement(pageViews, interactions)

	return agg
}

// durationSlack is how far a view's joined duration may run past the time
// between the view and its latest duration record
const durationSlack = 5 * time.Second

// joinDurations attaches every duration record to the latest page view of
// the same session and path that precedes it within session timeout plus
// the reported duration. A view's total is capped at the time elapsed
// since it was recorded plus durationSlack. Unmatched duration records are
// ignored.
func (e *Engine) joinDurations(records []models.LogRecord) map[*models.LogRecord]*view {
	type key struct{ session, path string }

	views := make(map[*models.LogRecord]*view)
	byKey := make(map[key][]*view)

	for i := range records {
		rec := &records[i]
		switch rec.Kind {
		case models.KindPageView:
			v := &view{rec: rec}
			views[rec] = v
			k := key{rec.SessionID, rec.Path}
			byKey[k] = append(byKey[k], v)
		case models.KindDuration:
			if rec.DurationSeconds == nil || *rec.DurationSeconds < models.MinDurationSeconds {
				continue
			}
			secs := *rec.DurationSeconds
			candidates := byKey[key{rec.SessionID, rec.Path}]
			limit := e.opts.SessionTimeout + time.Duration(secs)*time.Second
			for j := len(candidates) - 1; j >= 0; j-- {
				v := candidates[j]
				if v.rec.Timestamp.After(rec.Timestamp) {
					continue
				}
				elapsed := rec.Timestamp.Sub(v.rec.Timestamp)
				if elapsed <= limit {
					v.duration = min(v.duration+secs, int64((elapsed+durationSlack)/time.Second))
					v.timed = true
				}
				break
			}
		}
	}
	return views
}

func (e *Engine) overview(sessions map[string]*sessionStats, pageViews, interactions, previousSessions int64) models.Overview {
	total := int64(len(sessions))
	ov := models.Overview{
		TotalVisitors:     total,
		TotalPageViews:    pageViews,
		TotalInteractions: interactions,
		VisitorGrowth:     round2(growth(total, previousSessions)),
	}
	if total == 0 {
		return ov
	}

	var durationSum time.Duration
	var viewed, bounced int64
	for _, s := range sessions {
		durationSum += e.sessionDuration(s)
		if len(s.paths) > 0 {
			viewed++
			if len(s.paths) == 1 {
				bounced++
			}
		}
	}

	ov.AvgSessionDuration = round2(durationSum.Seconds() / float64(total))
	ov.BounceRate = percent(bounced, viewed)
	return ov
}

// sessionDuration sums activity segments, splitting wherever the gap to the
// next event exceeds the session timeout
func (e *Engine) sessionDuration(s *sessionStats) time.Duration {
	if len(s.spans) == 0 {
		return 0
	}

	spans := make([]span, len(s.spans))
	copy(spans, s.spans)
	sort.SliceStable(spans, func(i, j int) bool { return spans[i].start.Before(spans[j].start) })

	var total time.Duration
	segStart, segEnd := spans[0].start, spans[0].end
	for _, sp := range spans[1:] {
		if sp.start.Sub(segEnd) > e.opts.SessionTimeout {
			total += segEnd.Sub(segStart)
			segStart, segEnd = sp.start, sp.end
			continue
		}
		if sp.end.After(segEnd) {
			segEnd = sp.end
		}
	}
	total += segEnd.Sub(segStart)
	return total
}

func (e *Engine) trafficGrowth(w Window, pageViews []*view, interactions []*models.LogRecord) []models.DailyTraffic {
	type day struct {
		sessions  map[string]struct{}
		pageViews int64
	}
	days := make(map[string]*day)
	get := func(t time.Time) *day {
		k := t.In(e.opts.Location).Format(dateLayout)
		d, ok := days[k]
		if !ok {
			d = &day{sessions: make(map[string]struct{})}
			days[k] = d
		}
		return d
	}

	for _, v := range pageViews {
		d := get(v.rec.Timestamp)
		d.pageViews++
		d.sessions[v.rec.SessionID] = struct{}{}
	}
	for _, rec := range interactions {
		d := get(rec.Timestamp)
		if rec.SessionID != "" {
			d.sessions[rec.SessionID] = struct{}{}
		}
	}

	series := make([]models.DailyTraffic, 0)
	for _, k := range e.dayKeys(w) {
		point := models.DailyTraffic{Date: k}
		if d, ok := days[k]; ok {
			point.Visitors = int64(len(d.sessions))
			point.PageViews = d.pageViews
		}
		series = append(series, point)
	}
	return series
}

func (e *Engine) breakdowns(sessions map[string]*sessionStats, total int64) (devices, browsers, systems []models.BreakdownItem) {
	deviceCounts := make(map[string]int64)
	browserCounts := make(map[string]int64)
	osCounts := make(map[string]int64)

	for _, s := range sessions {
		agent := e.agents.Parse(s.first.UserAgent)
		deviceCounts[agent.Device]++
		browserCounts[agent.Browser]++
		osCounts[agent.OS]++
	}

	return toBreakdown(deviceCounts, total), toBreakdown(browserCounts, total), toBreakdown(osCounts, total)
}

func (e *Engine) trafficSources(sessions map[string]*sessionStats, total int64) []models.TrafficSource {
	counts := make(map[Source]int64)
	for _, s := range sessions {
		referer := ""
		if s.firstView != nil && s.firstView.rec.Referer != nil {
			referer = *s.firstView.rec.Referer
		}
		counts[e.sources.Classify(referer)]++
	}

	result := make([]models.TrafficSource, 0, len(counts))
	for src, n := range counts {
		result = append(result, models.TrafficSource{
			Source:     src.Name,
			Category:   src.Category,
			Visitors:   n,
			Percentage: percent(n, total),
		})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Visitors != result[j].Visitors {
			return result[i].Visitors > result[j].Visitors
		}
		if result[i].Category != result[j].Category {
			return result[i].Category < result[j].Category
		}
		return result[i].Source < result[j].Source
	})
	return result
}

type pageAccumulator struct {
	views    int64
	sessions map[string]struct{}
	timed    int64
	seconds  int64
}

func (p *pageAccumulator) add(v *view) {
	p.views++
	p.sessions[v.rec.SessionID] = struct{}{}
	if v.timed {
		p.timed++
		p.seconds += v.duration
	}
}

// avgSeconds averages over views that have a recorded duration
func (p *pageAccumulator) avgSeconds() float64 {
	if p.timed == 0 {
		return 0
	}
	return round2(float64(p.seconds) / float64(p.timed))
}

func (e *Engine) topPages(sessions map[string]*sessionStats, pageViews []*view) []models.PageStats {
	pages := make(map[string]*pageAccumulator)
	for _, v := range pageViews {
		p, ok := pages[v.rec.Path]
		if !ok {
			p = &pageAccumulator{sessions: make(map[string]struct{})}
			pages[v.rec.Path] = p
		}
		p.add(v)
	}

	result := make([]models.PageStats, 0, len(pages))
	for path, p := range pages {
		var bounced int64
		for id := range p.sessions {
			if paths := sessions[id].paths; len(paths) == 1 && paths[path] {
				bounced++
			}
		}
		result = append(result, models.PageStats{
			Path:           path,
			Views:          p.views,
			UniqueVisitors: int64(len(p.sessions)),
			AvgTimeOnPage:  p.avgSeconds(),
			BounceRate:     percent(bounced, int64(len(p.sessions))),
		})
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Views != result[j].Views {
			return result[i].Views > result[j].Views
		}
		return result[i].Path < result[j].Path
	})
	if e.opts.TopPagesLimit > 0 && len(result) > e.opts.TopPagesLimit {
		result = result[:e.opts.TopPagesLimit]
	}
	return result
}

func (e *Engine) contactSubmissions(w Window, contacts []time.Time) models.ContactSubmissions {
	perDay := make(map[string]int64)
	var total int64
	for _, t := range contacts {
		if !w.Contains(t) {
			continue
		}
		total++
		perDay[t.In(e.opts.Location).Format(dateLayout)]++
	}

	daily := make([]models.DailyCount, 0)
	for _, k := range e.dayKeys(w) {
		daily = append(daily, models.DailyCount{Date: k, Count: perDay[k]})
	}
	return models.ContactSubmissions{Total: total, Daily: daily}
}

func (e *Engine) cvDownloads(interactions []*models.LogRecord) int64 {
	var n int64
	for _, rec := range interactions {
		if rec.InteractionType != models.InteractionDownload || rec.Element == nil {
			continue
		}
		if e.cvElements[strings.ToLower(strings.TrimSpace(*rec.Element))] {
			n++
		}
	}
	return n
}

func (e *Engine) projectEngagement(pageViews []*view, interactions []*models.LogRecord) []models.ProjectEngagement {
	if e.opts.ProjectPathPrefix == "" {
		return []models.ProjectEngagement{}
	}

	type project struct {
		pageAccumulator
		interactions int64
	}
	projects := make(map[string]*project)
	get := func(name string) *project {
		p, ok := projects[name]
		if !ok {
			p = &project{pageAccumulator: pageAccumulator{sessions: make(map[string]struct{})}}
			projects[name] = p
		}
		return p
	}

	for _, v := range pageViews {
		if name := e.projectName(v.rec.Path); name != "" {
			get(name).add(v)
		}
	}
	for _, rec := range interactions {
		if name := e.projectName(rec.Path); name != "" {
			get(name).interactions++
		}
	}

	result := make([]models.ProjectEngagement, 0, len(projects))
	for name, p := range projects {
		result = append(result, models.ProjectEngagement{
			Project:        name,
			Path:           e.opts.ProjectPathPrefix + name,
			Views:          p.views,
			UniqueVisitors: int64(len(p.sessions)),
			AvgDuration:    p.avgSeconds(),
			Interactions:   p.interactions,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Views != result[j].Views {
			return result[i].Views > result[j].Views
		}
		return result[i].Project < result[j].Project
	})
	return result
}

// projectName returns the first path segment after the project prefix
func (e *Engine) projectName(path string) string {
	rest, ok := strings.CutPrefix(path, e.opts.ProjectPathPrefix)
	if !ok {
		return ""
	}
	name, _, _ := strings.Cut(rest, "/")
	return name
}

// dayKeys lists every calendar day overlapping w in the reporting location
func (e *Engine) dayKeys(w Window) []string {
	var keys []string
	for d := startOfDay(w.Start.In(e.opts.Location)); d.Before(w.End); d = d.AddDate(0, 0, 1) {
		keys = append(keys, d.Format(dateLayout))
	}
	return keys
}

func toBreakdown(counts map[string]int64, total int64) []models.BreakdownItem {
	items := make([]models.BreakdownItem, 0, len(counts))
	for name, n := range counts {
		items = append(items, models.BreakdownItem{
			Name:       name,
			Visitors:   n,
			Percentage: percent(n, total),
		})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Visitors != items[j].Visitors {
			return items[i].Visitors > items[j].Visitors
		}
		return items[i].Name < items[j].Name
	})
	return items
}

// growth is the percent change from previous to current
func growth(current, previous int64) float64 {
	switch {
	case previous == 0 && current == 0:
		return 0
	case previous == 0:
		return 100
	default:
		return float64(current-previous) / float64(previous) * 100
	}
}

func percent(part, whole int64) float64 {
	if whole == 0 {
		return 0
	}
	return round2(float64(part) / float64(whole) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
