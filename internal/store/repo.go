package store

import (
	"context"
	"errors"
	"time"

	"github.com/nnamon/hippo/internal/achievements"
	"github.com/nnamon/hippo/internal/domain"
)

// ErrNotFound is returned by lookups when the row does not exist. Callers
// that provision defaults on first contact must check for it explicitly so
// a transient storage error is never mistaken for a fresh user.
var ErrNotFound = errors.New("not found")

// Repo defines storage operations over the durable collections: users
// (schedules), active reminders (at most one pending row per chat), the
// append-only hydration event log and earned achievements.
type Repo interface {
	UpsertUser(ctx context.Context, u *domain.User) error
	// GetUser returns ErrNotFound when the chat has no user row.
	GetUser(ctx context.Context, chatID int64) (*domain.User, error)
	// DeleteUser removes the user together with their pending reminder,
	// entire event log and achievements (full account reset).
	DeleteUser(ctx context.Context, chatID int64) error
	SetActive(ctx context.Context, chatID int64, active bool) error
	SetSchedule(ctx context.Context, chatID int64, next time.Time, last *time.Time) error
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.User, error)

	PutActiveReminder(ctx context.Context, r *domain.ActiveReminder) error
	// GetActiveReminder returns (nil, nil) when the chat has no pending
	// reminder.
	GetActiveReminder(ctx context.Context, chatID int64) (*domain.ActiveReminder, error)
	// DeleteActiveReminder removes the pending reminder only if its id
	// matches; reports whether a row was removed.
	DeleteActiveReminder(ctx context.Context, chatID int64, reminderID string) (bool, error)
	ListActiveReminders(ctx context.Context) ([]domain.ActiveReminder, error)

	AppendEvent(ctx context.Context, ev *domain.HydrationEvent) error
	// RecentEventKinds returns up to limit outcome kinds, newest first.
	RecentEventKinds(ctx context.Context, chatID int64, limit int) ([]domain.EventKind, error)
	// CountEventsBetween aggregates outcomes with from <= timestamp < to.
	CountEventsBetween(ctx context.Context, chatID int64, from, to time.Time) (domain.DailyStats, error)
	// TotalConfirmed counts confirmed outcomes over the chat's whole log.
	TotalConfirmed(ctx context.Context, chatID int64) (int, error)
	// ConfirmedTimesSince returns timestamps of confirmed outcomes with
	// timestamp >= since, oldest first.
	ConfirmedTimesSince(ctx context.Context, chatID int64, since time.Time) ([]time.Time, error)

	// GrantAchievement records the achievement once per chat and reports
	// whether this call was the first grant.
	GrantAchievement(ctx context.Context, chatID int64, code string, at time.Time) (bool, error)
	ListAchievements(ctx context.Context, chatID int64) ([]achievements.Earned, error)

	Close() error
}
