package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/nnamon/hippo/internal/domain"
	"github.com/nnamon/hippo/internal/lifecycle"
	"github.com/nnamon/hippo/internal/store"
)

// Firer is the slice of the lifecycle manager the scheduler needs.
type Firer interface {
	Fire(ctx context.Context, chatID int64) error
}

// Scheduler periodically polls the DB for due users and fires their
// reminders through the lifecycle manager. It owns only cadence; the next
// fire time itself is the pure domain.NextFire function.
type Scheduler struct {
	repo     store.Repo
	log      *zap.Logger
	firer    Firer
	interval time.Duration
	now      func() time.Time
}

const dueBatchSize = 100

// New creates a Scheduler polling at the given interval.
func New(repo store.Repo, log *zap.Logger, firer Firer, interval time.Duration) *Scheduler {
	return &Scheduler{
		repo:     repo,
		log:      log,
		firer:    firer,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run starts the loop until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopping")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick performs one scheduling cycle: find due users, fire, reschedule.
// A failure for one user never blocks the rest of the batch.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()

	users, err := s.repo.ListDue(ctx, now, dueBatchSize)
	if err != nil {
		s.log.Error("ListDue failed", zap.Error(err))
		return
	}
	for i := range users {
		u := users[i]

		// A due row can drift outside the waking window while the
		// process slept; reschedule it without firing.
		if !domain.InWindowAt(now, &u) {
			next := domain.NextFire(now, &u)
			if err := s.repo.SetSchedule(ctx, u.ChatID, next, u.LastFireAt); err != nil {
				s.log.Error("SetSchedule failed", zap.Error(err), zap.Int64("chatID", u.ChatID))
			}
			continue
		}

		if err := s.firer.Fire(ctx, u.ChatID); err != nil {
			if errors.Is(err, lifecycle.ErrUserInactive) {
				continue // paused between ListDue and Fire
			}
			// Leave next_fire_at untouched; the next tick retries.
			s.log.Error("fire failed", zap.Error(err), zap.Int64("chatID", u.ChatID))
			continue
		}

		u.LastFireAt = &now
		next := domain.NextFire(now, &u)
		if err := s.repo.SetSchedule(ctx, u.ChatID, next, &now); err != nil {
			s.log.Error("SetSchedule failed", zap.Error(err), zap.Int64("chatID", u.ChatID))
		}
	}
}
