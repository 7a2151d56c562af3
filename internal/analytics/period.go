package analytics

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"Mansoor88-6/site-analytics/internal/models"
)

var (
	ErrUnknownPeriod = errors.New("unknown period")
	ErrInvalidRange  = errors.New("invalid date range")
)

const dateLayout = "2006-01-02"

// Window is a resolved [Start, End) reporting window
type Window struct {
	Period models.Period
	Start  time.Time
	End    time.Time
}

// Length returns the window duration
func (w Window) Length() time.Duration {
	return w.End.Sub(w.Start)
}

// Previous returns the window of equal length ending where w starts
func (w Window) Previous() Window {
	return Window{
		Period: w.Period,
		Start:  w.Start.Add(-w.Length()),
		End:    w.Start,
	}
}

// Contains reports whether t falls in [Start, End)
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// PeriodResolver turns a period name or custom dates into a window.
// Windows are calendar-aligned in the configured location.
type PeriodResolver struct {
	defaultPeriod models.Period
	loc           *time.Location
	now           func() time.Time
}

func NewPeriodResolver(defaultPeriod models.Period, loc *time.Location, now func() time.Time) *PeriodResolver {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	if defaultPeriod == "" {
		defaultPeriod = models.PeriodLast30Days
	}
	return &PeriodResolver{defaultPeriod: defaultPeriod, loc: loc, now: now}
}

// Location returns the reporting time zone
func (r *PeriodResolver) Location() *time.Location {
	return r.loc
}

// Resolve maps a request onto a window. An empty period with both dates
// set is treated as custom; an empty period otherwise uses the default.
func (r *PeriodResolver) Resolve(period, startDate, endDate string) (Window, error) {
	p := models.Period(strings.TrimSpace(period))
	if p == "" {
		if startDate != "" && endDate != "" {
			p = models.PeriodCustom
		} else {
			p = r.defaultPeriod
		}
	}

	now := r.now().In(r.loc)
	today := startOfDay(now)

	var start, end time.Time
	switch p {
	case models.PeriodToday:
		start, end = today, today.AddDate(0, 0, 1)
	case models.PeriodYesterday:
		start, end = today.AddDate(0, 0, -1), today
	case models.PeriodLast7Days:
		start, end = today.AddDate(0, 0, -6), today.AddDate(0, 0, 1)
	case models.PeriodLast30Days:
		start, end = today.AddDate(0, 0, -29), today.AddDate(0, 0, 1)
	case models.PeriodLast90Days:
		start, end = today.AddDate(0, 0, -89), today.AddDate(0, 0, 1)
	case models.PeriodThisMonth:
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, r.loc)
		end = start.AddDate(0, 1, 0)
	case models.PeriodLastMonth:
		end = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, r.loc)
		start = end.AddDate(0, -1, 0)
	case models.PeriodThisYear:
		start = time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, r.loc)
		end = start.AddDate(1, 0, 0)
	case models.PeriodCustom:
		return r.resolveCustom(startDate, endDate)
	default:
		return Window{}, fmt.Errorf("%w: %q", ErrUnknownPeriod, period)
	}

	return Window{Period: p, Start: start, End: end}, nil
}

func (r *PeriodResolver) resolveCustom(startDate, endDate string) (Window, error) {
	if startDate == "" || endDate == "" {
		return Window{}, fmt.Errorf("%w: custom period needs startDate and endDate", ErrInvalidRange)
	}

	start, _, err := r.parseDate(startDate)
	if err != nil {
		return Window{}, fmt.Errorf("%w: startDate: %v", ErrInvalidRange, err)
	}
	end, dateOnly, err := r.parseDate(endDate)
	if err != nil {
		return Window{}, fmt.Errorf("%w: endDate: %v", ErrInvalidRange, err)
	}
	if dateOnly {
		end = end.AddDate(0, 0, 1)
	}

	if !start.Before(end) {
		return Window{}, fmt.Errorf("%w: startDate must be before endDate", ErrInvalidRange)
	}
	return Window{Period: models.PeriodCustom, Start: start, End: end}, nil
}

// parseDate accepts RFC 3339 timestamps and plain dates, the latter
// interpreted as midnight in the reporting location
func (r *PeriodResolver) parseDate(s string) (time.Time, bool, error) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(dateLayout, s, r.loc); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("unrecognised date %q", s)
	}
	return t.In(r.loc), false, nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
