package services

import "time"

// Due-date buckets accepted by ListTasks.
const (
	DueOverdue   = "overdue"
	DueToday     = "today"
	DueThisWeek  = "this-week"
	DueNextWeek  = "next-week"
	DueThisMonth = "this-month"
)

type dueWindow struct {
	from             *time.Time
	before           *time.Time
	excludeCompleted bool
}

// dueRange resolves a bucket against now in now's location. Weeks start on
// Sunday. Windows are half-open: [from, before).
func dueRange(bucket string, now time.Time) (dueWindow, bool) {
	today := startOfDay(now)
	switch bucket {
	case DueOverdue:
		return dueWindow{before: &today, excludeCompleted: true}, true
	case DueToday:
		return window(today, today.AddDate(0, 0, 1)), true
	case DueThisWeek:
		start := startOfWeek(now)
		return window(start, start.AddDate(0, 0, 7)), true
	case DueNextWeek:
		start := startOfWeek(now.AddDate(0, 0, 7))
		return window(start, start.AddDate(0, 0, 7)), true
	case DueThisMonth:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return window(start, start.AddDate(0, 1, 0)), true
	}
	return dueWindow{}, false
}

func window(from, before time.Time) dueWindow {
	return dueWindow{from: &from, before: &before}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func startOfWeek(t time.Time) time.Time {
	day := startOfDay(t)
	return day.AddDate(0, 0, -int(day.Weekday()))
}
