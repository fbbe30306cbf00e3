package rbac

import "time"

// ActionTracker — счетчики одного класса актора. Окна актор-локальные:
// граница часа/дня отсчитывается от собственных HourStart/DayStart, а не от
// календарных часов, поэтому окна разных акторов дрейфуют независимо.
type ActionTracker struct {
	ActionCount     int64     `json:"action_count"` // lifetime
	SpentToday      int64     `json:"spent_today"`
	LastHourActions int       `json:"last_hour_actions"`
	HourStart       time.Time `json:"hour_start"`
	DayStart        time.Time `json:"day_start"`
}

func newTracker(now time.Time) *ActionTracker {
	return &ActionTracker{HourStart: now, DayStart: now}
}

// roll сдвигает границы окон, если они истекли. Вызывается строго под
// мьютексом реестра: reset-then-check обязан быть атомарным на актора.
func (t *ActionTracker) roll(now time.Time) {
	if now.Sub(t.HourStart) >= time.Hour {
		t.LastHourActions = 0
		t.HourStart = now
	}
	if now.Sub(t.DayStart) >= 24*time.Hour {
		t.SpentToday = 0
		t.DayStart = now
	}
}
