package scheduler

import (
	"fmt"
	"time"
)

// Schedule determines when a periodic task should run next.
type Schedule interface {
	Next(from time.Time) time.Time
	String() string
}

type intervalSchedule struct {
	every time.Duration
}

func (s intervalSchedule) Next(from time.Time) time.Time {
	return from.Add(s.every)
}

func (s intervalSchedule) String() string {
	return fmt.Sprintf("every %v", s.every)
}

// dailySchedule fires once per day at hour:minute in loc.
type dailySchedule struct {
	hour   int
	minute int
	loc    *time.Location
}

func (s dailySchedule) Next(from time.Time) time.Time {
	local := from.In(s.loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), s.hour, s.minute, 0, 0, s.loc)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s dailySchedule) String() string {
	return fmt.Sprintf("daily at %02d:%02d %s", s.hour, s.minute, s.loc)
}

type hourlySchedule struct {
	minute int
}

func (s hourlySchedule) Next(from time.Time) time.Time {
	next := from.Truncate(time.Hour).Add(time.Duration(s.minute) * time.Minute)
	if !next.After(from) {
		next = next.Add(time.Hour)
	}
	return next
}

func (s hourlySchedule) String() string {
	return fmt.Sprintf("hourly at :%02d", s.minute)
}

// EveryInterval runs at fixed intervals. Non-positive durations panic.
func EveryInterval(d time.Duration) Schedule {
	if d <= 0 {
		panic("scheduler: interval must be positive")
	}
	return intervalSchedule{every: d}
}

// DailyAt runs once a day at hour:minute UTC.
func DailyAt(hour, minute int) Schedule {
	return DailyAtIn(hour, minute, time.UTC)
}

// DailyAtIn runs once a day at hour:minute in loc. Out-of-range values are
// clamped to a valid wall clock time.
func DailyAtIn(hour, minute int, loc *time.Location) Schedule {
	if loc == nil {
		loc = time.UTC
	}
	return dailySchedule{hour: clamp(hour, 0, 23), minute: clamp(minute, 0, 59), loc: loc}
}

// HourlyAt runs every hour at the given minute.
func HourlyAt(minute int) Schedule {
	return hourlySchedule{minute: clamp(minute, 0, 59)}
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
