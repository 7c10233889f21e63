// Package stats derives completion streaks and activity calendars from
// completed-workout timestamps.
package stats

import "time"

// CalendarDay is one day of the activity calendar. Days with zero workouts
// are present with a zero count, not missing.
type CalendarDay struct {
	Date  string `json:"date"` // YYYY-MM-DD in local time
	Count int    `json:"count"`
}

// Streaks is the dashboard summary.
type Streaks struct {
	Current  int           `json:"current"`
	Longest  int           `json:"longest"`
	Calendar []CalendarDay `json:"calendar"`
}

// Compute derives current and longest streaks plus a calendar covering
// windowDays ending today. completions are completed-workout timestamps;
// they are collapsed to local calendar dates, so multiple workouts on one
// day count as a single streak day.
func Compute(completions []time.Time, today time.Time, windowDays int) Streaks {
	counts := dayCounts(completions, today.Location())
	return Streaks{
		Current:  CurrentStreak(counts, today),
		Longest:  LongestStreak(counts, today, windowDays),
		Calendar: Calendar(counts, today, windowDays),
	}
}

// CurrentStreak counts consecutive workout days ending today or yesterday.
// A missing workout today does not break the streak — the day is not over —
// but a gap at yesterday does. Zero is a valid result.
func CurrentStreak(counts map[string]int, today time.Time) int {
	day := civil(today)
	if counts[dayKey(day)] == 0 {
		day = day.AddDate(0, 0, -1)
		if counts[dayKey(day)] == 0 {
			return 0
		}
	}

	streak := 0
	for counts[dayKey(day)] > 0 {
		streak++
		day = day.AddDate(0, 0, -1)
	}
	return streak
}

// LongestStreak returns the longest run of consecutive workout days within
// the lookback window of windowDays ending today.
func LongestStreak(counts map[string]int, today time.Time, windowDays int) int {
	longest, run := 0, 0
	day := civil(today).AddDate(0, 0, -(windowDays - 1))
	for i := 0; i < windowDays; i++ {
		if counts[dayKey(day)] > 0 {
			run++
			if run > longest {
				longest = run
			}
		} else {
			run = 0
		}
		day = day.AddDate(0, 0, 1)
	}
	return longest
}

// Calendar returns one entry per day for the window ending today, oldest
// first.
func Calendar(counts map[string]int, today time.Time, windowDays int) []CalendarDay {
	out := make([]CalendarDay, 0, windowDays)
	day := civil(today).AddDate(0, 0, -(windowDays - 1))
	for i := 0; i < windowDays; i++ {
		key := dayKey(day)
		out = append(out, CalendarDay{Date: key, Count: counts[key]})
		day = day.AddDate(0, 0, 1)
	}
	return out
}

// dayCounts collapses timestamps to per-local-date workout counts.
func dayCounts(completions []time.Time, loc *time.Location) map[string]int {
	counts := make(map[string]int, len(completions))
	for _, t := range completions {
		counts[dayKey(civil(t.In(loc)))]++
	}
	return counts
}

func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func dayKey(day time.Time) string {
	return day.Format("2006-01-02")
}
