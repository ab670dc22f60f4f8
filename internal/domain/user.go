package domain

import (
	"errors"
	"time"
)

// ScheduleMode selects how the next reminder time is derived.
type ScheduleMode string

const (
	// ModeInterval fires every IntervalMin minutes after the previous fire.
	ModeInterval ScheduleMode = "interval"
	// ModeHourly fires at MinuteOfHour past each wall-clock hour.
	ModeHourly ScheduleMode = "hourly"
)

// Validation errors for user schedules. These are rejected at write time
// and never reach the scheduler.
var (
	ErrIntervalTooSmall = errors.New("interval must be at least 1 minute")
	ErrMinuteRange      = errors.New("minute of hour must be in 0..59")
	ErrWindowRange      = errors.New("waking window bounds must be in 0..1439")
	ErrWindowOrder      = errors.New("waking window must start before it ends")
	ErrBadMode          = errors.New("unknown schedule mode")
)

// User represents per-chat reminder settings and schedule state.
type User struct {
	ChatID       int64
	Active       bool
	TZ           string
	Mode         ScheduleMode
	IntervalMin  int        // ModeInterval: minutes between reminders
	MinuteOfHour int        // ModeHourly: minute within each hour (0..59)
	WakeFromM    int        // waking window start, minutes from local midnight
	WakeToM      int        // waking window end, exclusive
	NextFireAt   *time.Time // UTC, nullable
	LastFireAt   *time.Time // UTC, nullable
	CreatedAt    time.Time  // UTC
}

// Validate checks the schedule invariants. Cross-midnight windows
// (from >= to) are not supported and count as a configuration error.
func (u *User) Validate() error {
	if u.WakeFromM < 0 || u.WakeFromM > 1439 || u.WakeToM < 0 || u.WakeToM > 1439 {
		return ErrWindowRange
	}
	if u.WakeFromM >= u.WakeToM {
		return ErrWindowOrder
	}
	switch u.Mode {
	case ModeInterval:
		if u.IntervalMin < 1 {
			return ErrIntervalTooSmall
		}
	case ModeHourly:
		if u.MinuteOfHour < 0 || u.MinuteOfHour > 59 {
			return ErrMinuteRange
		}
	default:
		return ErrBadMode
	}
	return nil
}
