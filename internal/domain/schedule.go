package domain

import "time"

// InWindow returns true if local time (minutes since midnight) is inside
// the waking window. Windows are same-day only: [fromM, toM).
func InWindow(localM, fromM, toM int) bool {
	return localM >= fromM && localM < toM
}

// InWindowAt reports whether the instant falls inside the user's waking
// window, evaluated in the user's timezone.
func InWindowAt(nowUTC time.Time, u *User) bool {
	local := nowUTC.In(userLocation(u))
	return InWindow(minuteOfDay(local), u.WakeFromM, u.WakeToM)
}

// NextFire computes the next fire time in UTC for a user given the current
// time in UTC. The result is deterministic in (schedule, now, last fire):
// no clocks are read and no state is touched, so the scheduler loop can be
// tested against fixed instants.
func NextFire(nowUTC time.Time, u *User) time.Time {
	local := nowUTC.In(userLocation(u))
	switch u.Mode {
	case ModeHourly:
		return nextHourly(local, u).UTC()
	default:
		return nextInterval(local, u).UTC()
	}
}

// nextInterval advances the last-fire grid by whole intervals until it
// passes now, then clamps the result into the waking window. A process
// that slept through several slots emits one fire, not a burst.
func nextInterval(now time.Time, u *User) time.Time {
	interval := time.Duration(u.IntervalMin) * time.Minute
	if interval < time.Minute {
		interval = time.Minute
	}

	if u.LastFireAt == nil {
		// Never fired: immediately if inside the window, else at the
		// next window start.
		if InWindow(minuteOfDay(now), u.WakeFromM, u.WakeToM) {
			return now
		}
		return nextWindowStart(now, u.WakeFromM)
	}

	last := u.LastFireAt.In(now.Location())
	next := last.Add(interval)
	if !next.After(now) {
		steps := now.Sub(last)/interval + 1
		next = last.Add(steps * interval)
	}
	return clampToWindow(next, u.WakeFromM, u.WakeToM)
}

// nextHourly returns the first hour-boundary-plus-MinuteOfHour candidate
// that is after now and inside today's window. When today's window has no
// candidate left, it rolls over to the next day's window start.
func nextHourly(now time.Time, u *User) time.Time {
	for h := now.Hour(); h < 24; h++ {
		c := time.Date(now.Year(), now.Month(), now.Day(), h, u.MinuteOfHour, 0, 0, now.Location())
		if !c.After(now) {
			continue
		}
		m := minuteOfDay(c)
		if InWindow(m, u.WakeFromM, u.WakeToM) {
			return c
		}
		if m >= u.WakeToM {
			break // past today's window
		}
	}
	return nextWindowStart(now, u.WakeFromM)
}

// clampToWindow pushes t forward into the waking window: before today's
// start -> today's start; at or past the end -> next day's start.
func clampToWindow(t time.Time, fromM, toM int) time.Time {
	m := minuteOfDay(t)
	switch {
	case m < fromM:
		return localAtMinutes(t, fromM)
	case m >= toM:
		// AddDate, not Add(24h): DST days are 23 or 25 hours long and a
		// fixed-hours step can land on the wrong calendar date.
		return localAtMinutes(t.AddDate(0, 0, 1), fromM)
	default:
		return t
	}
}

// nextWindowStart returns the earliest window start at or after now.
func nextWindowStart(now time.Time, fromM int) time.Time {
	start := localAtMinutes(now, fromM)
	if !start.After(now) {
		start = localAtMinutes(now.AddDate(0, 0, 1), fromM)
	}
	return start
}

// localAtMinutes builds the instant at the given minutes-from-midnight on
// base's local date.
func localAtMinutes(base time.Time, mins int) time.Time {
	return time.Date(base.Year(), base.Month(), base.Day(), mins/60, mins%60, 0, 0, base.Location())
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

func userLocation(u *User) *time.Location {
	loc, err := time.LoadLocation(u.TZ)
	if err != nil {
		return time.UTC
	}
	return loc
}
