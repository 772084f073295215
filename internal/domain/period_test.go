package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBoundariesMidWeek(t *testing.T) {
	calc := NewCalculator(time.UTC)
	// Wednesday.
	now := time.Date(2025, time.October, 15, 13, 45, 0, 0, time.UTC)

	b := calc.Boundaries(now)
	require.Equal(t, time.Date(2025, time.October, 15, 0, 0, 0, 0, time.UTC), b.DayStart)
	require.Equal(t, time.Date(2025, time.October, 13, 0, 0, 0, 0, time.UTC), b.WeekStart)
	require.Equal(t, time.Date(2025, time.October, 1, 0, 0, 0, 0, time.UTC), b.MonthStart)
	require.Equal(t, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), b.YearStart)
}

func TestWeekStartSundayMapsToPreviousMonday(t *testing.T) {
	calc := NewCalculator(time.UTC)
	sunday := time.Date(2025, time.October, 19, 23, 59, 0, 0, time.UTC)
	monday := time.Date(2025, time.October, 20, 0, 0, 0, 0, time.UTC)

	require.Equal(t, time.Date(2025, time.October, 13, 0, 0, 0, 0, time.UTC), calc.Boundaries(sunday).WeekStart)
	require.Equal(t, monday, calc.Boundaries(monday).WeekStart)
}

func TestWeekStartCrossesMonthBoundary(t *testing.T) {
	calc := NewCalculator(time.UTC)
	// Sunday 2 November 2025 belongs to the week starting Monday 27 October.
	sunday := time.Date(2025, time.November, 2, 8, 0, 0, 0, time.UTC)

	require.Equal(t, time.Date(2025, time.October, 27, 0, 0, 0, 0, time.UTC), calc.PeriodStart(sunday, GranularityWeek))
	require.Equal(t, time.Date(2025, time.November, 3, 0, 0, 0, 0, time.UTC), calc.PeriodEnd(sunday, GranularityWeek))
}

func TestPeriodEnd(t *testing.T) {
	calc := NewCalculator(time.UTC)
	now := time.Date(2024, time.February, 29, 10, 0, 0, 0, time.UTC)

	require.Equal(t, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), calc.PeriodEnd(now, GranularityDay))
	require.Equal(t, time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC), calc.PeriodEnd(now, GranularityWeek))
	require.Equal(t, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), calc.PeriodEnd(now, GranularityMonth))
	require.Equal(t, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), calc.PeriodEnd(now, GranularityYear))
}

func TestInPeriod(t *testing.T) {
	calc := NewCalculator(time.UTC)
	now := time.Date(2025, time.October, 15, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name    string
		session time.Time
		want    map[Granularity]bool
	}{
		{
			name:    "same instant",
			session: now,
			want:    map[Granularity]bool{GranularityDay: true, GranularityWeek: true, GranularityMonth: true, GranularityYear: true},
		},
		{
			name:    "start of week",
			session: time.Date(2025, time.October, 13, 0, 0, 0, 0, time.UTC),
			want:    map[Granularity]bool{GranularityDay: false, GranularityWeek: true, GranularityMonth: true, GranularityYear: true},
		},
		{
			name:    "sunday before week",
			session: time.Date(2025, time.October, 12, 23, 59, 59, 0, time.UTC),
			want:    map[Granularity]bool{GranularityDay: false, GranularityWeek: false, GranularityMonth: true, GranularityYear: true},
		},
		{
			name:    "next monday excluded",
			session: time.Date(2025, time.October, 20, 0, 0, 0, 0, time.UTC),
			want:    map[Granularity]bool{GranularityDay: false, GranularityWeek: false, GranularityMonth: true, GranularityYear: true},
		},
		{
			name:    "previous month",
			session: time.Date(2025, time.September, 30, 18, 0, 0, 0, time.UTC),
			want:    map[Granularity]bool{GranularityDay: false, GranularityWeek: false, GranularityMonth: false, GranularityYear: true},
		},
		{
			name:    "previous year same month",
			session: time.Date(2024, time.October, 15, 12, 0, 0, 0, time.UTC),
			want:    map[Granularity]bool{GranularityDay: false, GranularityWeek: false, GranularityMonth: false, GranularityYear: false},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for _, g := range Granularities {
				require.Equalf(t, tc.want[g], calc.InPeriod(tc.session, now, g), "granularity %s", g)
			}
		})
	}
}

func TestCalculatorUsesPinnedLocation(t *testing.T) {
	tokyo := time.FixedZone("UTC+9", 9*60*60)
	calc := NewCalculator(tokyo)

	// Sunday 20:00 UTC is already Monday 05:00 at +09:00.
	instant := time.Date(2025, time.October, 19, 20, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2025, time.October, 20, 0, 0, 0, 0, tokyo), calc.PeriodStart(instant, GranularityWeek))
	require.Equal(t, time.Date(2025, time.October, 20, 0, 0, 0, 0, tokyo), calc.PeriodStart(instant, GranularityDay))

	utc := NewCalculator(nil)
	require.Equal(t, time.UTC, utc.Location())
	require.Equal(t, time.Date(2025, time.October, 13, 0, 0, 0, 0, time.UTC), utc.PeriodStart(instant, GranularityWeek))

	earlier := time.Date(2025, time.October, 19, 14, 0, 0, 0, time.UTC)
	require.False(t, calc.InPeriod(earlier, instant, GranularityDay))
	require.True(t, utc.InPeriod(earlier, instant, GranularityDay))
}
