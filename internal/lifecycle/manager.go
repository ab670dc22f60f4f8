// Package lifecycle owns the life of a reminder: firing, the acknowledgment
// race against expiry, supersession of still-pending reminders, and
// recovery of pending state after a restart. All transitions for one chat
// are serialized through a per-chat lock, so the expiry timer, a user's
// acknowledgment and a superseding fire can never observe the same pending
// reminder concurrently.
package lifecycle

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nnamon/hippo/internal/achievements"
	"github.com/nnamon/hippo/internal/domain"
	"github.com/nnamon/hippo/internal/store"
)

// ErrUserInactive is returned by Fire when the user is paused or unknown.
var ErrUserInactive = errors.New("user is not active")

// Dispatcher delivers a fired reminder to the user. Delivery is
// fire-and-forget: a failed dispatch does not roll back the reminder,
// which can still expire as missed.
type Dispatcher interface {
	Dispatch(ctx context.Context, chatID int64, reminderID string, level int) error
}

// Manager is the reminder state machine. One pending reminder per chat,
// resolved by acknowledgment, expiry or supersession.
type Manager struct {
	repo       store.Repo
	log        *zap.Logger
	dispatcher Dispatcher
	achv       *achievements.Checker // optional
	ttl        time.Duration
	now        func() time.Time

	mu     sync.Mutex
	locks  map[int64]*sync.Mutex
	timers map[int64]*expiryTimer
}

// expiryTimer pairs a running timer with the reminder it was armed for,
// so a timer surviving its reminder is recognized and ignored.
type expiryTimer struct {
	reminderID string
	timer      *time.Timer
}

// New creates a Manager. ttl is the acknowledgment deadline measured from
// reminder creation. achv may be nil, in which case confirmations never
// unlock achievements.
func New(repo store.Repo, log *zap.Logger, dispatcher Dispatcher, ttl time.Duration, achv *achievements.Checker) *Manager {
	return &Manager{
		repo:       repo,
		log:        log,
		dispatcher: dispatcher,
		achv:       achv,
		ttl:        ttl,
		now:        func() time.Time { return time.Now().UTC() },
		locks:      make(map[int64]*sync.Mutex),
		timers:     make(map[int64]*expiryTimer),
	}
}

// chatLock returns the serialization lock for one chat, creating it on
// first use. Locks are never removed; the map is bounded by the number of
// chats seen since startup.
func (m *Manager) chatLock(chatID int64) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lk, ok := m.locks[chatID]
	if !ok {
		lk = &sync.Mutex{}
		m.locks[chatID] = lk
	}
	return lk
}

// Fire creates and dispatches a new reminder for an active user. A
// reminder still pending from the previous cycle is superseded first: it
// resolves as missed so an unacknowledged reminder never disappears
// without a recorded outcome.
func (m *Manager) Fire(ctx context.Context, chatID int64) error {
	lk := m.chatLock(chatID)
	lk.Lock()
	defer lk.Unlock()

	u, err := m.repo.GetUser(ctx, chatID)
	if err != nil {
		return err
	}
	if !u.Active {
		return ErrUserInactive
	}

	if err := m.supersedeLocked(ctx, chatID); err != nil {
		return err
	}

	now := m.now()
	rem := &domain.ActiveReminder{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.repo.PutActiveReminder(ctx, rem); err != nil {
		return err
	}

	level, err := m.levelLocked(ctx, chatID)
	if err != nil {
		m.log.Warn("level lookup failed, dispatching level 0",
			zap.Int64("chatID", chatID), zap.Error(err))
		level = 0
	}
	if err := m.dispatcher.Dispatch(ctx, chatID, rem.ID, level); err != nil {
		// Fire-and-forget: the reminder stays pending and can still
		// expire as missed.
		m.log.Error("dispatch failed",
			zap.Int64("chatID", chatID), zap.String("reminderID", rem.ID), zap.Error(err))
	}

	m.armTimerLocked(chatID, rem.ID, m.ttl)
	m.log.Info("reminder fired",
		zap.Int64("chatID", chatID), zap.String("reminderID", rem.ID),
		zap.Time("expiresAt", rem.ExpiresAt))
	return nil
}

// Acknowledge resolves the pending reminder as confirmed and returns any
// achievements that confirmation newly earned. It reports false when the
// id no longer names the pending reminder (already expired or superseded).
// That is an expected race, not an error.
func (m *Manager) Acknowledge(ctx context.Context, chatID int64, reminderID string) (bool, []achievements.Achievement, error) {
	lk := m.chatLock(chatID)
	lk.Lock()
	defer lk.Unlock()

	cur, err := m.repo.GetActiveReminder(ctx, chatID)
	if err != nil {
		return false, nil, err
	}
	if cur == nil || cur.ID != reminderID {
		return false, nil, nil // stale
	}

	deleted, err := m.repo.DeleteActiveReminder(ctx, chatID, reminderID)
	if err != nil {
		return false, nil, err
	}
	if !deleted {
		return false, nil, nil
	}
	if err := m.appendEventLocked(ctx, chatID, domain.EventConfirmed, reminderID); err != nil {
		return false, nil, err
	}
	m.stopTimerLocked(chatID)

	var earned []achievements.Achievement
	if m.achv != nil {
		now := m.now()
		earned, err = m.achv.OnConfirm(ctx, chatID, now, now.Sub(cur.CreatedAt))
		if err != nil {
			// The confirmation itself succeeded; a failed badge pass is
			// retried implicitly on the next confirmation.
			m.log.Warn("achievement check failed",
				zap.Int64("chatID", chatID), zap.Error(err))
			earned = nil
		}
	}

	m.log.Info("reminder confirmed",
		zap.Int64("chatID", chatID), zap.String("reminderID", reminderID),
		zap.Int("newAchievements", len(earned)))
	return true, earned, nil
}

// Cancel clears the pending reminder and its timer without recording an
// outcome. Used on pause and account reset so a dead chat cannot accrue
// misses from a zombie timer.
func (m *Manager) Cancel(ctx context.Context, chatID int64) error {
	lk := m.chatLock(chatID)
	lk.Lock()
	defer lk.Unlock()

	m.stopTimerLocked(chatID)
	cur, err := m.repo.GetActiveReminder(ctx, chatID)
	if err != nil {
		return err
	}
	if cur == nil {
		return nil
	}
	_, err = m.repo.DeleteActiveReminder(ctx, chatID, cur.ID)
	return err
}

// Recover resolves pending reminders persisted across a restart: those
// already past expiry resolve as missed, the rest get their timers
// re-armed from the persisted expiry instants. Must run before the
// scheduler starts producing new fires.
func (m *Manager) Recover(ctx context.Context) error {
	rems, err := m.repo.ListActiveReminders(ctx)
	if err != nil {
		return err
	}
	now := m.now()
	var recovered, expired int
	for i := range rems {
		rem := rems[i]
		lk := m.chatLock(rem.ChatID)
		lk.Lock()
		if rem.Expired(now) {
			if err := m.resolveMissedLocked(ctx, rem.ChatID, rem.ID); err != nil {
				m.log.Error("recovery resolve failed",
					zap.Int64("chatID", rem.ChatID), zap.Error(err))
			} else {
				expired++
			}
		} else {
			m.armTimerLocked(rem.ChatID, rem.ID, rem.ExpiresAt.Sub(now))
			recovered++
		}
		lk.Unlock()
	}
	if recovered > 0 || expired > 0 {
		m.log.Info("reminder recovery complete",
			zap.Int("rearmed", recovered), zap.Int("forceExpired", expired))
	}
	return nil
}

// Level returns the chat's current hydration level.
func (m *Manager) Level(ctx context.Context, chatID int64) (int, error) {
	lk := m.chatLock(chatID)
	lk.Lock()
	defer lk.Unlock()
	return m.levelLocked(ctx, chatID)
}

// DailyStats returns today's outcome counts in the user's local calendar day.
func (m *Manager) DailyStats(ctx context.Context, chatID int64, tz string) (domain.DailyStats, error) {
	from, to := domain.DayBounds(m.now(), tz)
	return m.repo.CountEventsBetween(ctx, chatID, from, to)
}

// --- internal, caller holds the chat lock ---

// supersedeLocked expires the current pending reminder, if any, recording
// a missed outcome.
func (m *Manager) supersedeLocked(ctx context.Context, chatID int64) error {
	cur, err := m.repo.GetActiveReminder(ctx, chatID)
	if err != nil {
		return err
	}
	if cur == nil {
		return nil
	}
	m.stopTimerLocked(chatID)
	if err := m.resolveMissedLocked(ctx, chatID, cur.ID); err != nil {
		return err
	}
	m.log.Info("reminder superseded",
		zap.Int64("chatID", chatID), zap.String("reminderID", cur.ID))
	return nil
}

// expire is the timer callback: resolve as missed only if the reminder is
// still the pending one. A timer outliving its reminder is a no-op.
func (m *Manager) expire(chatID int64, reminderID string) {
	lk := m.chatLock(chatID)
	lk.Lock()
	defer lk.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cur, err := m.repo.GetActiveReminder(ctx, chatID)
	if err != nil {
		m.log.Error("expiry lookup failed", zap.Int64("chatID", chatID), zap.Error(err))
		return
	}
	if cur == nil || cur.ID != reminderID {
		return // already resolved or superseded
	}
	if err := m.resolveMissedLocked(ctx, chatID, reminderID); err != nil {
		m.log.Error("expiry resolve failed",
			zap.Int64("chatID", chatID), zap.String("reminderID", reminderID), zap.Error(err))
		return
	}
	m.mu.Lock()
	if et, ok := m.timers[chatID]; ok && et.reminderID == reminderID {
		delete(m.timers, chatID)
	}
	m.mu.Unlock()
	m.log.Info("reminder expired",
		zap.Int64("chatID", chatID), zap.String("reminderID", reminderID))
}

func (m *Manager) resolveMissedLocked(ctx context.Context, chatID int64, reminderID string) error {
	deleted, err := m.repo.DeleteActiveReminder(ctx, chatID, reminderID)
	if err != nil {
		return err
	}
	if !deleted {
		return nil
	}
	return m.appendEventLocked(ctx, chatID, domain.EventMissed, reminderID)
}

func (m *Manager) appendEventLocked(ctx context.Context, chatID int64, kind domain.EventKind, reminderID string) error {
	return m.repo.AppendEvent(ctx, &domain.HydrationEvent{
		ChatID:     chatID,
		Kind:       kind,
		ReminderID: reminderID,
		CreatedAt:  m.now(),
	})
}

func (m *Manager) levelLocked(ctx context.Context, chatID int64) (int, error) {
	recent, err := m.repo.RecentEventKinds(ctx, chatID, domain.LevelWindow)
	if err != nil {
		return 0, err
	}
	return domain.Level(recent), nil
}

func (m *Manager) armTimerLocked(chatID int64, reminderID string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if et, ok := m.timers[chatID]; ok {
		et.timer.Stop()
	}
	m.timers[chatID] = &expiryTimer{
		reminderID: reminderID,
		timer:      time.AfterFunc(d, func() { m.expire(chatID, reminderID) }),
	}
}

func (m *Manager) stopTimerLocked(chatID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if et, ok := m.timers[chatID]; ok {
		et.timer.Stop()
		delete(m.timers, chatID)
	}
}

// Shutdown stops all expiry timers. Pending reminders stay persisted and
// are picked up by Recover on the next start.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for chatID, et := range m.timers {
		et.timer.Stop()
		delete(m.timers, chatID)
	}
}
