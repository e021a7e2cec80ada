// Package window вычисляет окна квот в UTC: текущие сутки и текущий календарный месяц.
package window

import "time"

// Window — полуоткрытый интервал [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains сообщает, попадает ли момент t в окно.
func (w Window) Contains(t time.Time) bool {
	t = t.UTC()
	return !t.Before(w.Start) && t.Before(w.End)
}

// Day возвращает UTC-сутки, содержащие now.
func Day(now time.Time) Window {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return Window{Start: start, End: start.AddDate(0, 0, 1)}
}

// Month возвращает UTC календарный месяц, содержащий now.
func Month(now time.Time) Window {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Window{Start: start, End: start.AddDate(0, 1, 0)}
}
