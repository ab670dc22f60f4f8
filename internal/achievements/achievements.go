// Package achievements derives badges from the hydration event log. Every
// rule is a pure function of what the log and the user row already record,
// so no extra counters need to be maintained: a confirmation triggers one
// evaluation pass and newly earned codes are persisted once per chat.
package achievements

import "time"

// Category groups achievements for display.
type Category string

const (
	CategoryEasy        Category = "easy"
	CategoryConsistency Category = "consistency"
	CategoryPerformance Category = "performance"
	CategorySpecial     Category = "special"
	CategoryMilestone   Category = "milestone"
)

// Achievement is one entry of the fixed catalog.
type Achievement struct {
	Code        string
	Name        string
	Description string
	Icon        string
	Category    Category
}

// Earned is a persisted grant.
type Earned struct {
	Code string
	At   time.Time
}

// Rule thresholds.
const (
	quickResponseWindow = time.Minute
	earlyBirdHour       = 6 // confirmed before 06:00 local
	nightOwlHour        = 4 // confirmed between midnight and 04:00 local
	dailyDoseCount      = 3
	performanceDays     = 7
	heroMinOutcomes     = 20
	heroRate            = 0.9
	dedicationDays      = 30
	streakLookbackDays  = 32
)

// Catalog lists every achievement in display order.
var Catalog = []Achievement{
	{Code: "first_sip", Name: "First Sip", Description: "Confirm your first water reminder", Icon: "💧", Category: CategoryEasy},
	{Code: "getting_started", Name: "Getting Started", Description: "Complete 5 water confirmations", Icon: "🚰", Category: CategoryEasy},
	{Code: "hydration_habit", Name: "Hydration Habit", Description: "Confirm 10 water reminders", Icon: "💦", Category: CategoryEasy},
	{Code: "daily_dose", Name: "Daily Dose", Description: "Confirm 3 reminders in a single day", Icon: "📅", Category: CategoryEasy},
	{Code: "quick_response", Name: "Quick Response", Description: "Confirm a reminder within 1 minute", Icon: "⚡", Category: CategoryEasy},
	{Code: "three_day_streak", Name: "Three Day Streak", Description: "Maintain a 3-day hydration streak", Icon: "🔥", Category: CategoryConsistency},
	{Code: "week_warrior", Name: "Week Warrior", Description: "Achieve a 7-day hydration streak", Icon: "🗓️", Category: CategoryConsistency},
	{Code: "fortnight_champion", Name: "Fortnight Champion", Description: "Maintain a 14-day streak", Icon: "🏆", Category: CategoryConsistency},
	{Code: "monthly_master", Name: "Monthly Master", Description: "Incredible 30-day streak!", Icon: "👑", Category: CategoryConsistency},
	{Code: "hydration_hero", Name: "Hydration Hero", Description: "Maintain 90%+ success rate (min 20 reminders)", Icon: "🦸", Category: CategoryPerformance},
	{Code: "perfect_week", Name: "Perfect Week", Description: "100% confirmation rate for 7 days", Icon: "🌟", Category: CategoryPerformance},
	{Code: "level_five", Name: "Maximum Hydration", Description: "Reach hydration level 5", Icon: "🌊", Category: CategoryPerformance},
	{Code: "early_bird", Name: "Early Bird", Description: "Confirm a reminder before 6 AM", Icon: "🌅", Category: CategorySpecial},
	{Code: "night_owl", Name: "Night Owl", Description: "Confirm a reminder after midnight", Icon: "🦉", Category: CategorySpecial},
	{Code: "centurion", Name: "Centurion", Description: "Reach 100 total confirmations", Icon: "💪", Category: CategoryMilestone},
	{Code: "hydration_veteran", Name: "Hydration Veteran", Description: "1000 confirmations! You're a legend!", Icon: "🎖️", Category: CategoryMilestone},
	{Code: "dedication", Name: "Dedication", Description: "Keep the bot around for 30 days", Icon: "📆", Category: CategoryMilestone},
}

// ByCode looks an achievement up in the catalog.
func ByCode(code string) (Achievement, bool) {
	for _, a := range Catalog {
		if a.Code == code {
			return a, true
		}
	}
	return Achievement{}, false
}

// countMilestones maps a lifetime confirmation total to the milestone codes
// it clears.
func countMilestones(total int) []string {
	var codes []string
	for _, m := range []struct {
		at   int
		code string
	}{
		{1, "first_sip"},
		{5, "getting_started"},
		{10, "hydration_habit"},
		{100, "centurion"},
		{1000, "hydration_veteran"},
	} {
		if total >= m.at {
			codes = append(codes, m.code)
		}
	}
	return codes
}

// streakMilestones maps a streak length in days to the streak codes it clears.
func streakMilestones(days int) []string {
	var codes []string
	for _, m := range []struct {
		at   int
		code string
	}{
		{3, "three_day_streak"},
		{7, "week_warrior"},
		{14, "fortnight_champion"},
		{30, "monthly_master"},
	} {
		if days >= m.at {
			codes = append(codes, m.code)
		}
	}
	return codes
}

// Streak counts consecutive local calendar days with at least one
// confirmation, walking back from (and including) now's day.
func Streak(confirmed []time.Time, now time.Time, loc *time.Location) int {
	const dayKey = "2006-01-02"
	days := make(map[string]bool, len(confirmed))
	for _, t := range confirmed {
		days[t.In(loc).Format(dayKey)] = true
	}
	streak := 0
	day := now.In(loc)
	for days[day.Format(dayKey)] {
		streak++
		day = day.AddDate(0, 0, -1)
	}
	return streak
}
