package service

import "time"

// Окна лимитов считаются в UTC по дате самого запроса.
// Недельное окно начинается в понедельник и заканчивается концом дня запроса.
type windows struct {
	dayStart  time.Time
	dayEnd    time.Time
	weekStart time.Time
}

func newWindows(t time.Time) windows {
	t = t.UTC()
	dayStart := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)

	// воскресенье = 0, поэтому сдвигаем неделю к понедельнику
	sinceMonday := (int(dayStart.Weekday()) + 6) % 7

	return windows{
		dayStart:  dayStart,
		dayEnd:    dayStart.AddDate(0, 0, 1),
		weekStart: dayStart.AddDate(0, 0, -sinceMonday),
	}
}
