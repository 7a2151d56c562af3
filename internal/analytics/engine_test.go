package analytics

import (
	"fmt"
	"math"
	"sort"
	"testing"
	"time"

	"Mansoor88-6/site-analytics/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	chromeWindows = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	safariIPhone  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
)

var testDay = time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)

func newTestEngine() *Engine {
	return NewEngine(
		Options{
			SessionTimeout:     30 * time.Minute,
			TopPagesLimit:      10,
			ProjectPathPrefix:  "/projects/",
			CVDownloadElements: []string{"cv", "resume"},
			Location:           time.UTC,
		},
		NewAgentParser(16),
		NewSourceClassifier(
			[]string{"example.com"},
			[]string{"google", "bing"},
			[]string{"twitter", "t", "linkedin"},
		),
	)
}

func dayWindow(day time.Time) Window {
	return Window{Period: models.PeriodToday, Start: day, End: day.AddDate(0, 0, 1)}
}

type fixture struct {
	records []models.LogRecord
	seq     int
}

func (f *fixture) add(rec models.LogRecord) *fixture {
	f.seq++
	rec.ID = fmt.Sprintf("rec-%03d", f.seq)
	f.records = append(f.records, rec)
	return f
}

func (f *fixture) view(session, path string, at time.Time) *fixture {
	return f.add(models.LogRecord{
		Kind: models.KindPageView, SessionID: session, Path: path,
		UserAgent: chromeWindows, Timestamp: at,
	})
}

func (f *fixture) viewFrom(session, path, referer, userAgent string, at time.Time) *fixture {
	return f.add(models.LogRecord{
		Kind: models.KindPageView, SessionID: session, Path: path,
		Referer: &referer, UserAgent: userAgent, Timestamp: at,
	})
}

func (f *fixture) duration(session, path string, at time.Time, secs int64) *fixture {
	return f.add(models.LogRecord{
		Kind: models.KindDuration, SessionID: session, Path: path,
		DurationSeconds: &secs, Timestamp: at,
	})
}

func (f *fixture) interaction(session, path string, typ models.InteractionType, element string, at time.Time) *fixture {
	return f.add(models.LogRecord{
		Kind: models.KindInteraction, SessionID: session, Path: path,
		InteractionType: typ, Element: &element, Timestamp: at,
	})
}

// log returns the records in timestamp order, as the event log scans them
func (f *fixture) log() []models.LogRecord {
	out := append([]models.LogRecord(nil), f.records...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

func TestCompute_EmptyLogYieldsZeroAggregate(t *testing.T) {
	e := newTestEngine()
	w := Window{Period: models.PeriodLast7Days, Start: testDay.AddDate(0, 0, -6), End: testDay.AddDate(0, 0, 1)}

	agg := e.Compute(w, nil, 0, nil)

	require.NotNil(t, agg)
	assert.Equal(t, models.Overview{}, agg.Overview)
	assert.Empty(t, agg.Devices)
	assert.NotNil(t, agg.Devices)
	assert.NotNil(t, agg.Browsers)
	assert.NotNil(t, agg.OperatingSystems)
	assert.NotNil(t, agg.TrafficSources)
	assert.NotNil(t, agg.TopPages)
	assert.NotNil(t, agg.ProjectEngagement)
	assert.Zero(t, agg.CVDownloads)
	assert.Zero(t, agg.ContactSubmissions.Total)

	require.Len(t, agg.TrafficGrowth, 7)
	for _, point := range agg.TrafficGrowth {
		assert.Zero(t, point.Visitors)
		assert.Zero(t, point.PageViews)
	}
	assert.Equal(t, "2025-06-04", agg.TrafficGrowth[0].Date)
	assert.Equal(t, "2025-06-10", agg.TrafficGrowth[6].Date)
	assert.Len(t, agg.ContactSubmissions.Daily, 7)
}

func TestCompute_DurationUpdateCountsTowardSession(t *testing.T) {
	e := newTestEngine()
	w := dayWindow(testDay)
	at := testDay.Add(9 * time.Hour)

	f := &fixture{}
	f.view("s1", "/", at).duration("s1", "/", at.Add(46*time.Second), 45)

	agg := e.Compute(w, f.log(), 0, nil)

	assert.Equal(t, int64(1), agg.Overview.TotalVisitors)
	assert.Equal(t, int64(1), agg.Overview.TotalPageViews)
	assert.Equal(t, 45.0, agg.Overview.AvgSessionDuration)
	require.Len(t, agg.TopPages, 1)
	assert.Equal(t, 45.0, agg.TopPages[0].AvgTimeOnPage)
}

func TestCompute_DurationsBelowOneSecondAreIgnored(t *testing.T) {
	e := newTestEngine()
	w := dayWindow(testDay)
	at := testDay.Add(9 * time.Hour)

	f := &fixture{}
	f.view("s1", "/", at).duration("s1", "/", at.Add(time.Second), 0)

	agg := e.Compute(w, f.log(), 0, nil)

	assert.Zero(t, agg.Overview.AvgSessionDuration)
	require.Len(t, agg.TopPages, 1)
	assert.Zero(t, agg.TopPages[0].AvgTimeOnPage)
}

func TestCompute_RepeatedDurationsForOneViewAreSummed(t *testing.T) {
	e := newTestEngine()
	w := dayWindow(testDay)
	at := testDay.Add(9 * time.Hour)

	// Visitor reads for 20s, switches tabs, comes back for 10s
	f := &fixture{}
	f.view("s1", "/blog", at).
		duration("s1", "/blog", at.Add(20*time.Second), 20).
		duration("s1", "/blog", at.Add(5*time.Minute), 10)

	agg := e.Compute(w, f.log(), 0, nil)

	require.Len(t, agg.TopPages, 1)
	assert.Equal(t, 30.0, agg.TopPages[0].AvgTimeOnPage)
}

func TestCompute_LateDurationJoinsViewInsideWindow(t *testing.T) {
	e := newTestEngine()
	w := dayWindow(testDay)
	at := w.End.Add(-30 * time.Second)

	f := &fixture{}
	f.view("s1", "/", at).duration("s1", "/", w.End.Add(20*time.Second), 50)

	records := f.log()
	require.True(t, records[1].Timestamp.Before(e.ScanEnd(w)))

	agg := e.Compute(w, records, 0, nil)

	assert.Equal(t, int64(1), agg.Overview.TotalVisitors)
	require.Len(t, agg.TopPages, 1)
	assert.Equal(t, 50.0, agg.TopPages[0].AvgTimeOnPage)
}

func TestCompute_DurationJoinsLatestMatchingView(t *testing.T) {
	e := newTestEngine()
	w := dayWindow(testDay)
	at := testDay.Add(10 * time.Hour)

	f := &fixture{}
	f.view("s1", "/", at).
		view("s1", "/about", at.Add(time.Minute)).
		view("s1", "/", at.Add(2*time.Minute)).
		duration("s1", "/", at.Add(3*time.Minute), 40).
		duration("s1", "/other-session", at.Add(3*time.Minute), 99).
		duration("s2", "/", at.Add(3*time.Minute), 99)

	agg := e.Compute(w, f.log(), 0, nil)

	var home models.PageStats
	for _, p := range agg.TopPages {
		if p.Path == "/" {
			home = p
		}
	}
	assert.Equal(t, int64(2), home.Views)
	// Only the second view of / is timed
	assert.Equal(t, 40.0, home.AvgTimeOnPage)
	assert.Equal(t, int64(1), agg.Overview.TotalVisitors, "duration records never create sessions")
}

func TestCompute_StaleDurationIsNotJoined(t *testing.T) {
	e := newTestEngine()
	w := dayWindow(testDay)
	at := testDay.Add(8 * time.Hour)

	f := &fixture{}
	f.view("s1", "/", at).duration("s1", "/", at.Add(2*time.Hour), 10)

	agg := e.Compute(w, f.log(), 0, nil)

	require.Len(t, agg.TopPages, 1)
	assert.Zero(t, agg.TopPages[0].AvgTimeOnPage)
}

func TestCompute_DurationIsCappedByElapsedTime(t *testing.T) {
	e := newTestEngine()
	w := dayWindow(testDay)
	at := testDay.Add(9 * time.Hour)

	f := &fixture{}
	f.view("honest", "/", at).duration("honest", "/", at.Add(46*time.Second), 45)
	f.view("liar", "/", at).duration("liar", "/", at.Add(10*time.Second), math.MaxInt32)
	// Two reports that together claim more than the view has been open
	f.view("twice", "/about", at).
		duration("twice", "/about", at.Add(20*time.Second), 20).
		duration("twice", "/about", at.Add(30*time.Second), 30)

	agg := e.Compute(w, f.log(), 0, nil)

	pages := make(map[string]models.PageStats)
	for _, p := range agg.TopPages {
		pages[p.Path] = p
	}
	// honest 45s, liar capped at 10s + 5s slack
	assert.Equal(t, 30.0, pages["/"].AvgTimeOnPage)
	// 20 + 30 capped at 30s + 5s slack
	assert.Equal(t, 35.0, pages["/about"].AvgTimeOnPage)
	assert.Equal(t, round2((45.0+15.0+35.0)/3), agg.Overview.AvgSessionDuration)
}

func TestCompute_InteractionsWithoutSession(t *testing.T) {
	e := newTestEngine()
	w := dayWindow(testDay)
	at := testDay.Add(9 * time.Hour)

	f := &fixture{}
	f.view("s1", "/", at).
		interaction("", "/about", models.InteractionDownload, "cv", at.Add(time.Minute))

	records := f.log()
	agg := e.Compute(w, records, 0, nil)

	assert.Equal(t, int64(1), CountSessions(w, records))
	assert.Equal(t, int64(1), agg.Overview.TotalVisitors)
	assert.Equal(t, int64(1), agg.Overview.TotalInteractions)
	assert.Equal(t, int64(1), agg.CVDownloads)
	assert.Equal(t, 100.0, agg.Overview.BounceRate)
	require.Len(t, agg.TrafficSources, 1)
	assert.Equal(t, 100.0, agg.TrafficSources[0].Percentage)

	var visitors int64
	for _, point := range agg.TrafficGrowth {
		visitors += point.Visitors
	}
	assert.Equal(t, int64(1), visitors)
}

func TestCompute_BounceRateBoundaries(t *testing.T) {
	e := newTestEngine()
	w := dayWindow(testDay)
	at := testDay.Add(12 * time.Hour)

	f := &fixture{}
	f.view("lonely", "/landing", at)
	f.view("a", "/pricing", at).view("a", "/docs", at.Add(time.Minute))
	f.view("b", "/pricing", at).view("b", "/docs", at.Add(2*time.Minute)).view("b", "/pricing", at.Add(3*time.Minute))

	agg := e.Compute(w, f.log(), 0, nil)

	bounce := make(map[string]float64)
	for _, p := range agg.TopPages {
		bounce[p.Path] = p.BounceRate
	}
	assert.Equal(t, 100.0, bounce["/landing"])
	assert.Equal(t, 0.0, bounce["/pricing"])
	assert.Equal(t, 0.0, bounce["/docs"])
	assert.Equal(t, 33.33, agg.Overview.BounceRate)
}

func TestCompute_SingleEventSessionContributesZeroDuration(t *testing.T) {
	e := newTestEngine()
	w := dayWindow(testDay)
	at := testDay.Add(12 * time.Hour)

	f := &fixture{}
	f.view("one", "/", at)
	f.view("two", "/", at).view("two", "/about", at.Add(90*time.Second))

	agg := e.Compute(w, f.log(), 0, nil)

	assert.Equal(t, int64(2), agg.Overview.TotalVisitors)
	assert.Equal(t, 45.0, agg.Overview.AvgSessionDuration)
}

func TestCompute_SessionDurationSplitsOnLongGaps(t *testing.T) {
	e := newTestEngine()
	w := dayWindow(testDay)
	at := testDay.Add(8 * time.Hour)

	f := &fixture{}
	f.view("s1", "/", at).
		view("s1", "/about", at.Add(10*time.Minute)).
		view("s1", "/", at.Add(3*time.Hour)).
		duration("s1", "/", at.Add(3*time.Hour+2*time.Minute), 60)

	agg := e.Compute(w, f.log(), 0, nil)

	assert.Equal(t, (10 * time.Minute).Seconds()+60, agg.Overview.AvgSessionDuration)
}

func TestCompute_Idempotent(t *testing.T) {
	e := newTestEngine()
	w := Window{Period: models.PeriodLast7Days, Start: testDay.AddDate(0, 0, -6), End: testDay.AddDate(0, 0, 1)}

	f := &fixture{}
	for i := 0; i < 40; i++ {
		session := fmt.Sprintf("s%02d", i%13)
		at := w.Start.Add(time.Duration(i) * 3 * time.Hour)
		paths := []string{"/", "/about", "/projects/alpha", "/projects/beta", "/contact"}
		f.viewFrom(session, paths[i%len(paths)], []string{"", "https://www.google.com/", "https://t.co/x", "https://blog.other.org/post"}[i%4],
			[]string{chromeWindows, safariIPhone, ""}[i%3], at)
		if i%3 == 0 {
			f.duration(session, paths[i%len(paths)], at.Add(time.Minute), int64(i+5))
		}
		if i%7 == 0 {
			f.interaction(session, "/projects/alpha", models.InteractionDownload, "cv", at.Add(2*time.Minute))
		}
	}
	contacts := []time.Time{w.Start.Add(time.Hour), w.Start.Add(50 * time.Hour)}
	records := f.log()

	first := e.Compute(w, records, 7, contacts)
	// Sessions live in a map; repeat enough times to see several
	// iteration orders
	for i := 0; i < 20; i++ {
		require.Equal(t, first, e.Compute(w, records, 7, contacts))
	}
}

func TestCompute_Last7DaysMatchesDistinctSessions(t *testing.T) {
	now := time.Date(2025, 6, 10, 15, 30, 0, 0, time.UTC)
	resolver := NewPeriodResolver(models.PeriodLast30Days, time.UTC, func() time.Time { return now })
	w, err := resolver.Resolve(string(models.PeriodLast7Days), "", "")
	require.NoError(t, err)

	e := newTestEngine()
	f := &fixture{}
	expected := make(map[string]struct{})

	// Twelve days of traffic around the window, some sessions spanning its edges
	start := w.Start.AddDate(0, 0, -3)
	for i := 0; i < 12*24; i += 5 {
		at := start.Add(time.Duration(i) * time.Hour)
		session := fmt.Sprintf("sess-%d", i%37)
		f.view(session, "/", at)
		if i%2 == 0 {
			f.interaction(session, "/", models.InteractionButtonClick, "cta", at.Add(time.Minute))
		}
		if w.Contains(at) {
			expected[session] = struct{}{}
		}
	}

	var inScan []models.LogRecord
	for _, rec := range f.log() {
		if !rec.Timestamp.Before(w.Start) && rec.Timestamp.Before(e.ScanEnd(w)) {
			inScan = append(inScan, rec)
		}
	}

	agg := e.Compute(w, inScan, 0, nil)

	assert.Equal(t, int64(len(expected)), agg.Overview.TotalVisitors)
	assert.Equal(t, int64(len(expected)), CountSessions(w, f.log()))
}

func TestCompute_BreakdownsUseSessionsAndSumTo100(t *testing.T) {
	e := newTestEngine()
	w := dayWindow(testDay)
	at := testDay.Add(9 * time.Hour)

	f := &fixture{}
	// Desktop session with many views must not outweigh the others
	f.viewFrom("d", "/", "", chromeWindows, at)
	for i := 1; i <= 5; i++ {
		f.viewFrom("d", fmt.Sprintf("/p%d", i), "", chromeWindows, at.Add(time.Duration(i)*time.Minute))
	}
	f.viewFrom("m", "/", "", safariIPhone, at)
	f.viewFrom("u", "/", "", "", at)

	agg := e.Compute(w, f.log(), 0, nil)

	for name, items := range map[string][]models.BreakdownItem{
		"devices": agg.Devices, "browsers": agg.Browsers, "os": agg.OperatingSystems,
	} {
		var sum, visitors float64
		for _, item := range items {
			sum += item.Percentage
			visitors += float64(item.Visitors)
		}
		assert.InDelta(t, 100.0, sum, 0.05, name)
		assert.Equal(t, 3.0, visitors, name)
	}

	devices := make(map[string]int64)
	for _, d := range agg.Devices {
		devices[d.Name] = d.Visitors
	}
	assert.Equal(t, int64(1), devices[DeviceDesktop])
	assert.Equal(t, int64(1), devices[DeviceMobile])
	assert.Equal(t, int64(1), devices[Unknown])
}

func TestCompute_TrafficSourcesUseFirstView(t *testing.T) {
	e := newTestEngine()
	w := dayWindow(testDay)
	at := testDay.Add(9 * time.Hour)

	f := &fixture{}
	f.viewFrom("search", "/", "https://www.google.com/search?q=x", chromeWindows, at)
	f.viewFrom("search", "/about", "https://example.com/", chromeWindows, at.Add(time.Minute))
	f.viewFrom("social", "/", "https://t.co/abc", chromeWindows, at)
	f.viewFrom("ref", "/", "https://news.ycombinator.com/item?id=1", chromeWindows, at)
	f.view("direct", "/", at)
	f.interaction("clicker", "/", models.InteractionButtonClick, "cta", at)

	agg := e.Compute(w, f.log(), 0, nil)

	got := make(map[string]models.TrafficSource)
	var sum float64
	for _, s := range agg.TrafficSources {
		got[s.Category+"/"+s.Source] = s
		sum += s.Percentage
	}
	assert.Equal(t, int64(1), got["search/google"].Visitors)
	assert.Equal(t, int64(1), got["social/t"].Visitors)
	assert.Equal(t, int64(1), got["referral/ycombinator.com"].Visitors)
	assert.Equal(t, int64(2), got["direct/direct"].Visitors, "no page view counts as direct")
	assert.InDelta(t, 100.0, sum, 0.05)
}

func TestCompute_VisitorGrowth(t *testing.T) {
	e := newTestEngine()
	w := dayWindow(testDay)
	at := testDay.Add(9 * time.Hour)

	f := &fixture{}
	f.view("a", "/", at).view("b", "/", at).view("c", "/", at)

	assert.Equal(t, 50.0, e.Compute(w, f.log(), 2, nil).Overview.VisitorGrowth)
	assert.Equal(t, 100.0, e.Compute(w, f.log(), 0, nil).Overview.VisitorGrowth)
	assert.Equal(t, -50.0, e.Compute(w, f.log()[:1], 2, nil).Overview.VisitorGrowth)
	assert.Equal(t, 0.0, e.Compute(w, nil, 0, nil).Overview.VisitorGrowth)
}

func TestCompute_DownloadsProjectsAndContacts(t *testing.T) {
	e := newTestEngine()
	w := dayWindow(testDay)
	at := testDay.Add(9 * time.Hour)

	f := &fixture{}
	f.view("s1", "/projects/alpha", at).
		duration("s1", "/projects/alpha", at.Add(31*time.Second), 30).
		view("s1", "/projects/alpha/gallery", at.Add(time.Minute)).
		interaction("s1", "/projects/alpha", models.InteractionButtonClick, "demo", at.Add(2*time.Minute)).
		interaction("s1", "/about", models.InteractionDownload, "CV", at.Add(3*time.Minute)).
		interaction("s1", "/about", models.InteractionDownload, "brochure", at.Add(4*time.Minute))
	f.view("s2", "/projects/beta", at)

	contacts := []time.Time{at, at.Add(time.Hour), w.End.Add(time.Hour)}

	agg := e.Compute(w, f.log(), 0, contacts)

	assert.Equal(t, int64(1), agg.CVDownloads)
	assert.Equal(t, int64(2), agg.ContactSubmissions.Total)
	require.Len(t, agg.ContactSubmissions.Daily, 1)
	assert.Equal(t, int64(2), agg.ContactSubmissions.Daily[0].Count)

	require.Len(t, agg.ProjectEngagement, 2)
	alpha := agg.ProjectEngagement[0]
	assert.Equal(t, "alpha", alpha.Project)
	assert.Equal(t, "/projects/alpha", alpha.Path)
	assert.Equal(t, int64(2), alpha.Views)
	assert.Equal(t, int64(1), alpha.UniqueVisitors)
	assert.Equal(t, 30.0, alpha.AvgDuration)
	assert.Equal(t, int64(1), alpha.Interactions)
	assert.Equal(t, "beta", agg.ProjectEngagement[1].Project)
}

func TestCompute_TopPagesLimitAndOrder(t *testing.T) {
	e := NewEngine(Options{TopPagesLimit: 2}, NewAgentParser(4), NewSourceClassifier(nil, nil, nil))
	w := dayWindow(testDay)
	at := testDay.Add(9 * time.Hour)

	f := &fixture{}
	f.view("a", "/b", at).view("b", "/b", at).view("a", "/a", at).view("b", "/a", at).view("c", "/c", at)

	agg := e.Compute(w, f.log(), 0, nil)

	require.Len(t, agg.TopPages, 2)
	assert.Equal(t, "/a", agg.TopPages[0].Path)
	assert.Equal(t, "/b", agg.TopPages[1].Path)
}

func TestGrowth(t *testing.T) {
	tests := []struct {
		current, previous int64
		want              float64
	}{
		{0, 0, 0},
		{5, 0, 100},
		{15, 10, 50},
		{5, 10, -50},
		{10, 10, 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d_vs_%d", tt.current, tt.previous), func(t *testing.T) {
			assert.Equal(t, tt.want, growth(tt.current, tt.previous))
		})
	}
}
