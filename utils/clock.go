package utils

import "time"

// DueIn returns a due date n days from now, at end of day.
func DueIn(days int) time.Time {
	due := time.Now().AddDate(0, 0, days)
	return time.Date(due.Year(), due.Month(), due.Day(), 23, 59, 59, 0, due.Location())
}

// AddDays returns t shifted by n civil days.
func AddDays(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}

// MonthsAfter returns t shifted by n civil months.
func MonthsAfter(t time.Time, n int) time.Time {
	return t.AddDate(0, n, 0)
}
