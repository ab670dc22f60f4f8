package achievements

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/nnamon/hippo/internal/domain"
)

// Store is the persistence surface the rules read and grant through.
type Store interface {
	GetUser(ctx context.Context, chatID int64) (*domain.User, error)
	GrantAchievement(ctx context.Context, chatID int64, code string, at time.Time) (bool, error)
	TotalConfirmed(ctx context.Context, chatID int64) (int, error)
	ConfirmedTimesSince(ctx context.Context, chatID int64, since time.Time) ([]time.Time, error)
	CountEventsBetween(ctx context.Context, chatID int64, from, to time.Time) (domain.DailyStats, error)
	RecentEventKinds(ctx context.Context, chatID int64, limit int) ([]domain.EventKind, error)
}

// Checker evaluates the catalog against the event log.
type Checker struct {
	store Store
	log   *zap.Logger
}

func NewChecker(store Store, log *zap.Logger) *Checker {
	return &Checker{store: store, log: log}
}

// OnConfirm runs after a confirmation has been appended to the event log
// and returns the achievements this confirmation newly earned. reminderAge
// is the time between the reminder firing and the tap. Time-of-day and
// calendar rules are evaluated in the user's timezone.
func (c *Checker) OnConfirm(ctx context.Context, chatID int64, confirmedAt time.Time, reminderAge time.Duration) ([]Achievement, error) {
	u, err := c.store.GetUser(ctx, chatID)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(u.TZ)
	if err != nil {
		loc = time.UTC
	}
	local := confirmedAt.In(loc)

	var codes []string

	total, err := c.store.TotalConfirmed(ctx, chatID)
	if err != nil {
		return nil, err
	}
	codes = append(codes, countMilestones(total)...)

	if reminderAge >= 0 && reminderAge <= quickResponseWindow {
		codes = append(codes, "quick_response")
	}
	if local.Hour() < nightOwlHour {
		codes = append(codes, "night_owl")
	}
	if local.Hour() < earlyBirdHour {
		codes = append(codes, "early_bird")
	}

	dayFrom, dayTo := domain.DayBounds(confirmedAt, u.TZ)
	today, err := c.store.CountEventsBetween(ctx, chatID, dayFrom, dayTo)
	if err != nil {
		return nil, err
	}
	if today.Confirmed >= dailyDoseCount {
		codes = append(codes, "daily_dose")
	}

	since := confirmedAt.AddDate(0, 0, -streakLookbackDays)
	confirmed, err := c.store.ConfirmedTimesSince(ctx, chatID, since)
	if err != nil {
		return nil, err
	}
	codes = append(codes, streakMilestones(Streak(confirmed, confirmedAt, loc))...)

	// Success rate over the last 7 local calendar days, this one included.
	weekFrom := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, -(performanceDays - 1))
	week, err := c.store.CountEventsBetween(ctx, chatID, weekFrom.UTC(), confirmedAt.Add(time.Second))
	if err != nil {
		return nil, err
	}
	if week.Total() >= heroMinOutcomes {
		if week.SuccessRate() >= heroRate {
			codes = append(codes, "hydration_hero")
		}
		if week.Missed == 0 {
			codes = append(codes, "perfect_week")
		}
	}

	recent, err := c.store.RecentEventKinds(ctx, chatID, domain.LevelWindow)
	if err != nil {
		return nil, err
	}
	if domain.Level(recent) >= domain.MaxLevel {
		codes = append(codes, "level_five")
	}

	if !u.CreatedAt.IsZero() && confirmedAt.Sub(u.CreatedAt) >= dedicationDays*24*time.Hour {
		codes = append(codes, "dedication")
	}

	var earned []Achievement
	for _, code := range codes {
		fresh, err := c.store.GrantAchievement(ctx, chatID, code, confirmedAt)
		if err != nil {
			c.log.Warn("grant achievement failed",
				zap.Int64("chatID", chatID), zap.String("code", code), zap.Error(err))
			continue
		}
		if !fresh {
			continue
		}
		if a, ok := ByCode(code); ok {
			earned = append(earned, a)
		}
	}
	return earned, nil
}
