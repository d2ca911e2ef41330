package core

import "time"

// DayLabelLayout matches the chart axis labels, e.g. "Jul 4".
const DayLabelLayout = "Jan 2"

// WindowDays is the length of the report window.
const WindowDays = 7

// Window is a half-open time range [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// StartOfDay truncates t to local midnight in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DayRange returns the calendar day containing t.
func DayRange(t time.Time) Window {
	start := StartOfDay(t)
	return Window{Start: start, End: start.AddDate(0, 0, 1)}
}

// WeekWindow returns the trailing seven calendar days ending with the day
// containing now, today included.
func WeekWindow(now time.Time) Window {
	today := StartOfDay(now)
	return Window{
		Start: today.AddDate(0, 0, -(WindowDays - 1)),
		End:   today.AddDate(0, 0, 1),
	}
}

// Contains reports whether t falls inside the half-open window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Days returns the start of every calendar day in the window, oldest first.
func (w Window) Days() []time.Time {
	var days []time.Time
	for d := StartOfDay(w.Start); d.Before(w.End); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// DayLabel formats t for the per-day chart axis.
func DayLabel(t time.Time) string {
	return t.Format(DayLabelLayout)
}
