package domain

import "time"

// Granularity identifies one of the rolling windows tracked on a summary.
type Granularity string

const (
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
	GranularityYear  Granularity = "year"
)

// Granularities lists every window in the order they appear on a summary.
var Granularities = []Granularity{GranularityDay, GranularityWeek, GranularityMonth, GranularityYear}

// Boundaries holds the start instants of the periods containing a reference time.
type Boundaries struct {
	DayStart   time.Time
	WeekStart  time.Time
	MonthStart time.Time
	YearStart  time.Time
}

// Calculator computes period boundaries and membership in a pinned location.
// Weeks start on Monday.
type Calculator struct {
	loc *time.Location
}

// NewCalculator returns a Calculator evaluating calendar dates in loc. A nil
// location means UTC.
func NewCalculator(loc *time.Location) Calculator {
	if loc == nil {
		loc = time.UTC
	}
	return Calculator{loc: loc}
}

// Location reports the zone used for calendar arithmetic.
func (c Calculator) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// Boundaries returns the day, week, month and year starts for t.
func (c Calculator) Boundaries(t time.Time) Boundaries {
	return Boundaries{
		DayStart:   c.dayStart(t),
		WeekStart:  c.weekStart(t),
		MonthStart: c.monthStart(t),
		YearStart:  c.yearStart(t),
	}
}

// PeriodStart returns the first instant of the g-period containing t.
func (c Calculator) PeriodStart(t time.Time, g Granularity) time.Time {
	switch g {
	case GranularityDay:
		return c.dayStart(t)
	case GranularityWeek:
		return c.weekStart(t)
	case GranularityMonth:
		return c.monthStart(t)
	case GranularityYear:
		return c.yearStart(t)
	default:
		return time.Time{}
	}
}

// PeriodEnd returns the exclusive end of the g-period containing t, which is
// also the start of the following period.
func (c Calculator) PeriodEnd(t time.Time, g Granularity) time.Time {
	start := c.PeriodStart(t, g)
	switch g {
	case GranularityDay:
		return start.AddDate(0, 0, 1)
	case GranularityWeek:
		return start.AddDate(0, 0, 7)
	case GranularityMonth:
		return start.AddDate(0, 1, 0)
	case GranularityYear:
		return start.AddDate(1, 0, 0)
	default:
		return start
	}
}

// InPeriod reports whether session falls inside the g-period that contains
// reference.
func (c Calculator) InPeriod(session, reference time.Time, g Granularity) bool {
	s := session.In(c.Location())
	r := reference.In(c.Location())

	switch g {
	case GranularityDay:
		sy, sm, sd := s.Date()
		ry, rm, rd := r.Date()
		return sy == ry && sm == rm && sd == rd
	case GranularityWeek:
		start := c.weekStart(r)
		end := start.AddDate(0, 0, 7)
		return !s.Before(start) && s.Before(end)
	case GranularityMonth:
		return s.Year() == r.Year() && s.Month() == r.Month()
	case GranularityYear:
		return s.Year() == r.Year()
	default:
		return false
	}
}

func (c Calculator) dayStart(t time.Time) time.Time {
	t = t.In(c.Location())
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, c.Location())
}

func (c Calculator) weekStart(t time.Time) time.Time {
	t = t.In(c.Location())
	// Sunday is 0; shift so Monday is 0 and Sunday is 6.
	offset := (int(t.Weekday()) + 6) % 7
	y, m, d := t.Date()
	return time.Date(y, m, d-offset, 0, 0, 0, 0, c.Location())
}

func (c Calculator) monthStart(t time.Time) time.Time {
	t = t.In(c.Location())
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, c.Location())
}

func (c Calculator) yearStart(t time.Time) time.Time {
	t = t.In(c.Location())
	return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, c.Location())
}
