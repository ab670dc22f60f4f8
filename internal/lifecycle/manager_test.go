package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nnamon/hippo/internal/achievements"
	"github.com/nnamon/hippo/internal/domain"
	"github.com/nnamon/hippo/internal/store"
)

// fakeRepo is an in-memory store.Repo covering the subset the lifecycle
// manager touches.
type fakeRepo struct {
	store.Repo // unused methods panic

	mu      sync.Mutex
	users   map[int64]*domain.User
	active  map[int64]*domain.ActiveReminder
	events  []domain.HydrationEvent
	granted map[int64]map[string]bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:   make(map[int64]*domain.User),
		active:  make(map[int64]*domain.ActiveReminder),
		granted: make(map[int64]map[string]bool),
	}
}

func (f *fakeRepo) GetUser(_ context.Context, chatID int64) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[chatID]
	if !ok {
		return nil, errors.New("user not found")
	}
	cp := *u
	return &cp, nil
}

func (f *fakeRepo) PutActiveReminder(_ context.Context, r *domain.ActiveReminder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *r
	f.active[r.ChatID] = &cp
	return nil
}

func (f *fakeRepo) GetActiveReminder(_ context.Context, chatID int64) (*domain.ActiveReminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.active[chatID]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRepo) DeleteActiveReminder(_ context.Context, chatID int64, reminderID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.active[chatID]
	if !ok || r.ID != reminderID {
		return false, nil
	}
	delete(f.active, chatID)
	return true, nil
}

func (f *fakeRepo) ListActiveReminders(_ context.Context) ([]domain.ActiveReminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ActiveReminder
	for _, r := range f.active {
		out = append(out, *r)
	}
	return out, nil
}

func (f *fakeRepo) AppendEvent(_ context.Context, ev *domain.HydrationEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, *ev)
	return nil
}

func (f *fakeRepo) RecentEventKinds(_ context.Context, chatID int64, limit int) ([]domain.EventKind, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.EventKind
	for i := len(f.events) - 1; i >= 0 && len(out) < limit; i-- {
		if f.events[i].ChatID == chatID {
			out = append(out, f.events[i].Kind)
		}
	}
	return out, nil
}

func (f *fakeRepo) CountEventsBetween(_ context.Context, chatID int64, from, to time.Time) (domain.DailyStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var s domain.DailyStats
	for _, ev := range f.events {
		if ev.ChatID != chatID || ev.CreatedAt.Before(from) || !ev.CreatedAt.Before(to) {
			continue
		}
		if ev.Kind == domain.EventConfirmed {
			s.Confirmed++
		} else {
			s.Missed++
		}
	}
	return s, nil
}

func (f *fakeRepo) TotalConfirmed(_ context.Context, chatID int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, ev := range f.events {
		if ev.ChatID == chatID && ev.Kind == domain.EventConfirmed {
			n++
		}
	}
	return n, nil
}

func (f *fakeRepo) ConfirmedTimesSince(_ context.Context, chatID int64, since time.Time) ([]time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []time.Time
	for _, ev := range f.events {
		if ev.ChatID == chatID && ev.Kind == domain.EventConfirmed && !ev.CreatedAt.Before(since) {
			out = append(out, ev.CreatedAt)
		}
	}
	return out, nil
}

func (f *fakeRepo) GrantAchievement(_ context.Context, chatID int64, code string, _ time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.granted[chatID] == nil {
		f.granted[chatID] = make(map[string]bool)
	}
	if f.granted[chatID][code] {
		return false, nil
	}
	f.granted[chatID][code] = true
	return true, nil
}

func (f *fakeRepo) eventKinds(chatID int64) []domain.EventKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.EventKind
	for _, ev := range f.events {
		if ev.ChatID == chatID {
			out = append(out, ev.Kind)
		}
	}
	return out
}

type dispatch struct {
	chatID     int64
	reminderID string
	level      int
}

type fakeDispatcher struct {
	mu   sync.Mutex
	sent []dispatch
	fail bool
}

func (f *fakeDispatcher) Dispatch(_ context.Context, chatID int64, reminderID string, level int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, dispatch{chatID, reminderID, level})
	if f.fail {
		return errors.New("delivery failed")
	}
	return nil
}

func (f *fakeDispatcher) last(t *testing.T) dispatch {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("nothing dispatched")
	}
	return f.sent[len(f.sent)-1]
}

const testTTL = 30 * time.Minute

func newTestManager(repo *fakeRepo, d Dispatcher) (*Manager, *time.Time) {
	m := New(repo, zap.NewNop(), d, testTTL, nil)
	now := time.Date(2025, time.June, 2, 10, 0, 0, 0, time.UTC)
	cur := &now
	m.now = func() time.Time { return *cur }
	return m, cur
}

func activeUser(repo *fakeRepo, chatID int64) {
	repo.users[chatID] = &domain.User{
		ChatID: chatID, Active: true, TZ: "UTC",
		Mode: domain.ModeInterval, IntervalMin: 60,
		WakeFromM: 0, WakeToM: 1439,
	}
}

func TestFire_CreatesPendingAndDispatches(t *testing.T) {
	repo := newFakeRepo()
	disp := &fakeDispatcher{}
	m, now := newTestManager(repo, disp)
	activeUser(repo, 1)

	if err := m.Fire(context.Background(), 1); err != nil {
		t.Fatalf("fire: %v", err)
	}

	rem, _ := repo.GetActiveReminder(context.Background(), 1)
	if rem == nil {
		t.Fatal("no pending reminder created")
	}
	if want := now.Add(testTTL); !rem.ExpiresAt.Equal(want) {
		t.Fatalf("expiry: want %v, got %v", want, rem.ExpiresAt)
	}
	got := disp.last(t)
	if got.chatID != 1 || got.reminderID != rem.ID || got.level != 0 {
		t.Fatalf("unexpected dispatch: %+v", got)
	}
	if n := len(repo.eventKinds(1)); n != 0 {
		t.Fatalf("no events expected yet, got %d", n)
	}
}

func TestFire_InactiveUser(t *testing.T) {
	repo := newFakeRepo()
	m, _ := newTestManager(repo, &fakeDispatcher{})
	repo.users[1] = &domain.User{ChatID: 1, Active: false, TZ: "UTC", Mode: domain.ModeInterval, IntervalMin: 60, WakeFromM: 0, WakeToM: 1439}

	if err := m.Fire(context.Background(), 1); !errors.Is(err, ErrUserInactive) {
		t.Fatalf("want ErrUserInactive, got %v", err)
	}
}

func TestFire_SupersedesPendingWithOneMissed(t *testing.T) {
	repo := newFakeRepo()
	disp := &fakeDispatcher{}
	m, _ := newTestManager(repo, disp)
	activeUser(repo, 1)

	ctx := context.Background()
	if err := m.Fire(ctx, 1); err != nil {
		t.Fatalf("fire 1: %v", err)
	}
	first, _ := repo.GetActiveReminder(ctx, 1)
	if err := m.Fire(ctx, 1); err != nil {
		t.Fatalf("fire 2: %v", err)
	}

	evs := repo.eventKinds(1)
	if len(evs) != 1 || evs[0] != domain.EventMissed {
		t.Fatalf("want exactly one missed event, got %v", evs)
	}
	second, _ := repo.GetActiveReminder(ctx, 1)
	if second == nil || second.ID == first.ID {
		t.Fatal("superseding fire must create a fresh pending reminder")
	}
}

func TestAcknowledge_Confirms(t *testing.T) {
	repo := newFakeRepo()
	disp := &fakeDispatcher{}
	m, _ := newTestManager(repo, disp)
	activeUser(repo, 1)

	ctx := context.Background()
	_ = m.Fire(ctx, 1)
	rem, _ := repo.GetActiveReminder(ctx, 1)

	ok, _, err := m.Acknowledge(ctx, 1, rem.ID)
	if err != nil || !ok {
		t.Fatalf("acknowledge: ok=%v err=%v", ok, err)
	}
	evs := repo.eventKinds(1)
	if len(evs) != 1 || evs[0] != domain.EventConfirmed {
		t.Fatalf("want one confirmed event, got %v", evs)
	}
	if cur, _ := repo.GetActiveReminder(ctx, 1); cur != nil {
		t.Fatal("reminder should have been resolved")
	}
}

func TestAcknowledge_StaleIDDoesNotMutate(t *testing.T) {
	repo := newFakeRepo()
	m, _ := newTestManager(repo, &fakeDispatcher{})
	activeUser(repo, 1)

	ctx := context.Background()
	_ = m.Fire(ctx, 1)
	before, _ := repo.GetActiveReminder(ctx, 1)

	ok, _, err := m.Acknowledge(ctx, 1, "not-the-current-id")
	if err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if ok {
		t.Fatal("stale acknowledgment must report false")
	}
	if n := len(repo.eventKinds(1)); n != 0 {
		t.Fatalf("stale ack appended %d events", n)
	}
	after, _ := repo.GetActiveReminder(ctx, 1)
	if after == nil || after.ID != before.ID {
		t.Fatal("stale ack must leave the pending reminder untouched")
	}
}

func TestExpire_RecordsMissed(t *testing.T) {
	repo := newFakeRepo()
	m, now := newTestManager(repo, &fakeDispatcher{})
	activeUser(repo, 1)

	ctx := context.Background()
	_ = m.Fire(ctx, 1)
	rem, _ := repo.GetActiveReminder(ctx, 1)

	*now = now.Add(testTTL + time.Second)
	m.expire(1, rem.ID)

	evs := repo.eventKinds(1)
	if len(evs) != 1 || evs[0] != domain.EventMissed {
		t.Fatalf("want one missed event, got %v", evs)
	}
	if cur, _ := repo.GetActiveReminder(ctx, 1); cur != nil {
		t.Fatal("reminder should have expired")
	}
}

func TestExpire_AfterAcknowledgeIsNoop(t *testing.T) {
	repo := newFakeRepo()
	m, _ := newTestManager(repo, &fakeDispatcher{})
	activeUser(repo, 1)

	ctx := context.Background()
	_ = m.Fire(ctx, 1)
	rem, _ := repo.GetActiveReminder(ctx, 1)
	if ok, _, _ := m.Acknowledge(ctx, 1, rem.ID); !ok {
		t.Fatal("acknowledge failed")
	}

	m.expire(1, rem.ID) // late timer

	evs := repo.eventKinds(1)
	if len(evs) != 1 || evs[0] != domain.EventConfirmed {
		t.Fatalf("late expiry must not double-record: %v", evs)
	}
}

func TestConfirmThenNewCycle_NoPhantomMissed(t *testing.T) {
	repo := newFakeRepo()
	m, now := newTestManager(repo, &fakeDispatcher{})
	activeUser(repo, 1)

	ctx := context.Background()
	_ = m.Fire(ctx, 1)
	rem, _ := repo.GetActiveReminder(ctx, 1)

	*now = now.Add(5 * time.Minute)
	if ok, _, _ := m.Acknowledge(ctx, 1, rem.ID); !ok {
		t.Fatal("acknowledge failed")
	}

	*now = now.Add(15 * time.Minute)
	_ = m.Fire(ctx, 1)

	evs := repo.eventKinds(1)
	if len(evs) != 1 || evs[0] != domain.EventConfirmed {
		t.Fatalf("want [confirmed] only, got %v", evs)
	}
}

func TestDispatchFailureKeepsReminderPending(t *testing.T) {
	repo := newFakeRepo()
	disp := &fakeDispatcher{fail: true}
	m, _ := newTestManager(repo, disp)
	activeUser(repo, 1)

	ctx := context.Background()
	if err := m.Fire(ctx, 1); err != nil {
		t.Fatalf("dispatch failure must not fail the fire: %v", err)
	}
	rem, _ := repo.GetActiveReminder(ctx, 1)
	if rem == nil {
		t.Fatal("reminder must survive a failed dispatch")
	}
}

func TestCancel_ClearsPendingSilently(t *testing.T) {
	repo := newFakeRepo()
	m, _ := newTestManager(repo, &fakeDispatcher{})
	activeUser(repo, 1)

	ctx := context.Background()
	_ = m.Fire(ctx, 1)
	if err := m.Cancel(ctx, 1); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cur, _ := repo.GetActiveReminder(ctx, 1); cur != nil {
		t.Fatal("pending reminder should be cleared")
	}
	if n := len(repo.eventKinds(1)); n != 0 {
		t.Fatalf("cancel must not record an outcome, got %d events", n)
	}
}

func TestRecover_ResolvesExpiredAndRearmsLive(t *testing.T) {
	repo := newFakeRepo()
	m, now := newTestManager(repo, &fakeDispatcher{})
	activeUser(repo, 1)
	activeUser(repo, 2)

	ctx := context.Background()
	repo.active[1] = &domain.ActiveReminder{
		ID: "stale", ChatID: 1,
		CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-90 * time.Minute),
	}
	repo.active[2] = &domain.ActiveReminder{
		ID: "live", ChatID: 2,
		CreatedAt: now.Add(-10 * time.Minute), ExpiresAt: now.Add(20 * time.Minute),
	}

	if err := m.Recover(ctx); err != nil {
		t.Fatalf("recover: %v", err)
	}

	if cur, _ := repo.GetActiveReminder(ctx, 1); cur != nil {
		t.Fatal("expired reminder must be resolved during recovery")
	}
	evs := repo.eventKinds(1)
	if len(evs) != 1 || evs[0] != domain.EventMissed {
		t.Fatalf("want one missed for the stale reminder, got %v", evs)
	}

	if cur, _ := repo.GetActiveReminder(ctx, 2); cur == nil || cur.ID != "live" {
		t.Fatal("live reminder must survive recovery")
	}
	m.mu.Lock()
	et, ok := m.timers[2]
	m.mu.Unlock()
	if !ok || et.reminderID != "live" {
		t.Fatal("live reminder must get its timer re-armed")
	}
}

func TestLevel_RoundTripCannotDecrease(t *testing.T) {
	repo := newFakeRepo()
	m, _ := newTestManager(repo, &fakeDispatcher{})
	activeUser(repo, 1)

	ctx := context.Background()
	// Seed a mixed history via full cycles.
	for i := 0; i < 3; i++ {
		_ = m.Fire(ctx, 1)
		rem, _ := repo.GetActiveReminder(ctx, 1)
		m.expire(1, rem.ID)
	}

	before, err := m.Level(ctx, 1)
	if err != nil {
		t.Fatalf("level: %v", err)
	}
	_ = m.Fire(ctx, 1)
	rem, _ := repo.GetActiveReminder(ctx, 1)
	if ok, _, _ := m.Acknowledge(ctx, 1, rem.ID); !ok {
		t.Fatal("acknowledge failed")
	}
	after, err := m.Level(ctx, 1)
	if err != nil {
		t.Fatalf("level: %v", err)
	}
	if after < before {
		t.Fatalf("level decreased after confirmation: %d -> %d", before, after)
	}
}

func TestDailyStats_CountsLocalDayOnly(t *testing.T) {
	repo := newFakeRepo()
	m, now := newTestManager(repo, &fakeDispatcher{})
	activeUser(repo, 1)

	ctx := context.Background()
	_ = repo.AppendEvent(ctx, &domain.HydrationEvent{ChatID: 1, Kind: domain.EventConfirmed, ReminderID: "a", CreatedAt: *now})
	_ = repo.AppendEvent(ctx, &domain.HydrationEvent{ChatID: 1, Kind: domain.EventMissed, ReminderID: "b", CreatedAt: *now})
	// Yesterday: must not count.
	_ = repo.AppendEvent(ctx, &domain.HydrationEvent{ChatID: 1, Kind: domain.EventConfirmed, ReminderID: "c", CreatedAt: now.Add(-24 * time.Hour)})

	stats, err := m.DailyStats(ctx, 1, "UTC")
	if err != nil {
		t.Fatalf("daily stats: %v", err)
	}
	if stats.Confirmed != 1 || stats.Missed != 1 {
		t.Fatalf("want 1/1, got %+v", stats)
	}
}

func TestExpireSupersededReminderIsNoop(t *testing.T) {
	repo := newFakeRepo()
	m, _ := newTestManager(repo, &fakeDispatcher{})
	activeUser(repo, 1)

	ctx := context.Background()
	_ = m.Fire(ctx, 1)
	old, _ := repo.GetActiveReminder(ctx, 1)
	_ = m.Fire(ctx, 1) // supersedes: one missed recorded

	m.expire(1, old.ID) // late timer for the superseded reminder

	evs := repo.eventKinds(1)
	if len(evs) != 1 || evs[0] != domain.EventMissed {
		t.Fatalf("superseded reminder must not be double-recorded: %v", evs)
	}
	if cur, _ := repo.GetActiveReminder(ctx, 1); cur == nil {
		t.Fatal("current pending reminder must survive the late timer")
	}
}

func TestAcknowledge_SurfacesNewAchievementsOnce(t *testing.T) {
	repo := newFakeRepo()
	m, now := newTestManager(repo, &fakeDispatcher{})
	m.achv = achievements.NewChecker(repo, zap.NewNop())
	activeUser(repo, 1)

	ctx := context.Background()
	_ = m.Fire(ctx, 1)
	rem, _ := repo.GetActiveReminder(ctx, 1)
	*now = now.Add(30 * time.Second)

	ok, earned, err := m.Acknowledge(ctx, 1, rem.ID)
	if err != nil || !ok {
		t.Fatalf("acknowledge: ok=%v err=%v", ok, err)
	}
	got := make(map[string]bool, len(earned))
	for _, a := range earned {
		got[a.Code] = true
	}
	if !got["first_sip"] {
		t.Fatalf("first confirmation must earn first_sip, got %v", got)
	}
	if !got["quick_response"] {
		t.Fatalf("30s tap must earn quick_response, got %v", got)
	}

	// The next cycle must not re-announce what is already earned.
	*now = now.Add(time.Hour)
	_ = m.Fire(ctx, 1)
	rem, _ = repo.GetActiveReminder(ctx, 1)
	*now = now.Add(10 * time.Second)
	ok, earned, err = m.Acknowledge(ctx, 1, rem.ID)
	if err != nil || !ok {
		t.Fatalf("second acknowledge: ok=%v err=%v", ok, err)
	}
	for _, a := range earned {
		if a.Code == "first_sip" || a.Code == "quick_response" {
			t.Fatalf("achievement %s announced twice", a.Code)
		}
	}
}
