package domain

import "time"

// LevelWindow is the number of most recent outcomes the hydration level
// is derived from.
const LevelWindow = 6

// MaxLevel is the top hydration level.
const MaxLevel = 5

// Level maps the most recent outcomes (newest first) to a hydration level
// in 0..5: the number of confirmed outcomes among the last LevelWindow
// events, capped at MaxLevel. Short histories are used as-is, with no
// synthetic padding; a user with no history is level 0. Total function:
// any input slice yields a valid level.
func Level(recent []EventKind) int {
	if len(recent) > LevelWindow {
		recent = recent[:LevelWindow]
	}
	c := 0
	for _, k := range recent {
		if k == EventConfirmed {
			c++
		}
	}
	if c > MaxLevel {
		c = MaxLevel
	}
	return c
}

var levelDescriptions = [MaxLevel + 1]string{
	"😵 Dehydrated",
	"😟 Low hydration",
	"😐 Moderate hydration",
	"😊 Good hydration",
	"😄 Great hydration",
	"🤩 Perfect hydration",
}

// LevelDescription returns a short human label for a level. Out-of-range
// levels clamp to the nearest band.
func LevelDescription(level int) string {
	if level < 0 {
		level = 0
	}
	if level > MaxLevel {
		level = MaxLevel
	}
	return levelDescriptions[level]
}

// DailyStats aggregates one local calendar day of outcomes.
type DailyStats struct {
	Confirmed int
	Missed    int
}

func (s DailyStats) Total() int {
	return s.Confirmed + s.Missed
}

// SuccessRate returns the confirmed ratio in 0..1, or 0 for an empty day.
func (s DailyStats) SuccessRate() float64 {
	t := s.Total()
	if t == 0 {
		return 0
	}
	return float64(s.Confirmed) / float64(t)
}

// DayBounds returns the UTC instants bounding the local calendar day that
// contains nowUTC in the given timezone: [start of day, start of next day).
func DayBounds(nowUTC time.Time, tz string) (from, to time.Time) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	local := nowUTC.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start.UTC(), start.AddDate(0, 0, 1).UTC()
}
