package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/nnamon/hippo/internal/achievements"
	"github.com/nnamon/hippo/internal/domain"
	"github.com/nnamon/hippo/internal/store"
)

const (
	defaultIntervalMin = 60
	defaultWakeFromM   = 7 * 60  // 07:00
	defaultWakeToM     = 22 * 60 // 22:00
)

// ensureUser makes sure a user row exists; on first contact it is created
// with defaults. Only ErrNotFound triggers provisioning: a transient
// storage error must surface instead of upserting defaults over an
// existing user's settings.
func (r *Router) ensureUser(ctx context.Context, chatID int64) (*domain.User, error) {
	u, err := r.repo.GetUser(ctx, chatID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	now := time.Now().UTC()
	u = &domain.User{
		ChatID:      chatID,
		Active:      true,
		TZ:          r.defaultTZ,
		Mode:        domain.ModeInterval,
		IntervalMin: defaultIntervalMin,
		WakeFromM:   defaultWakeFromM,
		WakeToM:     defaultWakeToM,
		CreatedAt:   now,
	}
	next := domain.NextFire(now, u)
	u.NextFireAt = &next
	if err := r.repo.UpsertUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// --- Generic helpers ---

func (r *Router) sendText(chatID int64, text string) {
	_, _ = r.bot.Send(tgbotapi.NewMessage(chatID, text))
}

func (r *Router) answerCallback(id, text string) error {
	_, err := r.bot.Request(tgbotapi.NewCallback(id, text))
	return err
}

func (r *Router) answerCallbackAlert(id, text string) error {
	_, err := r.bot.Request(tgbotapi.NewCallbackWithAlert(id, text))
	return err
}

// scheduleSummary renders the schedule mode for /status.
func scheduleSummary(u *domain.User) string {
	if u.Mode == domain.ModeHourly {
		return fmt.Sprintf("at :%02d past each hour", u.MinuteOfHour)
	}
	return "every " + (time.Duration(u.IntervalMin) * time.Minute).String()
}

// --- Core commands ---

func (r *Router) handleStart(ctx context.Context, chatID int64) {
	u, err := r.ensureUser(ctx, chatID)
	if err != nil {
		r.log.Error("ensureUser failed", zap.Error(err))
		r.sendText(chatID, "Profile initialization error. Please try again later.")
		return
	}
	msg := tgbotapi.NewMessage(chatID, startText)
	msg.ReplyMarkup = mainMenuKeyboard(u.Active)
	_, _ = r.bot.Send(msg)
}

func (r *Router) handleStatus(ctx context.Context, chatID int64) {
	u, err := r.ensureUser(ctx, chatID)
	if err != nil {
		r.log.Error("ensureUser failed", zap.Error(err))
		r.sendText(chatID, "Error reading your settings.")
		return
	}

	wakeFrom := domain.FormatMinutes(u.WakeFromM)
	wakeTo := domain.FormatMinutes(u.WakeToM)
	enabledText := "✅ Enabled"
	if !u.Active {
		enabledText = "⏸ Paused"
	}
	next := "—"
	if u.Active && u.NextFireAt != nil {
		if s, err := domain.LocalizeTime(*u.NextFireAt, u.TZ); err == nil {
			next = s
		}
	}

	body := fmt.Sprintf("%s\n\n"+statusFmt,
		statusTitle,
		scheduleSummary(u),
		wakeFrom, wakeTo,
		u.TZ,
		enabledText,
		next,
	)

	msg := tgbotapi.NewMessage(chatID, body)
	msg.ReplyMarkup = mainMenuKeyboard(u.Active)
	_, _ = r.bot.Send(msg)
}

func (r *Router) handleStats(ctx context.Context, chatID int64) {
	u, err := r.ensureUser(ctx, chatID)
	if err != nil {
		r.log.Error("ensureUser failed", zap.Error(err))
		r.sendText(chatID, "Error reading your stats.")
		return
	}

	stats, err := r.life.DailyStats(ctx, chatID, u.TZ)
	if err != nil {
		r.log.Error("DailyStats failed", zap.Error(err), zap.Int64("chatID", chatID))
		r.sendText(chatID, "Error reading your stats.")
		return
	}
	level, err := r.life.Level(ctx, chatID)
	if err != nil {
		r.log.Error("Level failed", zap.Error(err), zap.Int64("chatID", chatID))
		r.sendText(chatID, "Error reading your stats.")
		return
	}

	rate := "—"
	if stats.Total() > 0 {
		rate = fmt.Sprintf("%.0f%%", stats.SuccessRate()*100)
	}
	r.sendText(chatID, fmt.Sprintf(statsFmt,
		stats.Confirmed, stats.Missed, rate, domain.LevelDescription(level)))
}

func (r *Router) handleSettings(ctx context.Context, chatID int64) {
	if _, err := r.ensureUser(ctx, chatID); err != nil {
		r.log.Error("ensureUser failed", zap.Error(err))
		r.sendText(chatID, "Error opening settings.")
		return
	}
	msg := tgbotapi.NewMessage(chatID, "What do you want to configure?")
	msg.ReplyMarkup = settingsInlineKeyboard()
	_, _ = r.bot.Send(msg)
}

// updateSchedule applies mutate to the user, recomputes the next fire time
// and persists the result. Validation errors from the store are returned
// so flows can show them.
func (r *Router) updateSchedule(ctx context.Context, chatID int64, mutate func(*domain.User)) error {
	u, err := r.ensureUser(ctx, chatID)
	if err != nil {
		return err
	}
	mutate(u)
	if err := u.Validate(); err != nil {
		return err
	}
	next := domain.NextFire(time.Now().UTC(), u)
	u.NextFireAt = &next
	return r.repo.UpsertUser(ctx, u)
}

// --- Interval flow ---

func (r *Router) askIntervalPresets(ctx context.Context, chatID int64, cbID string) {
	_ = r.answerCallback(cbID, "")
	msg := tgbotapi.NewMessage(chatID, "Choose an interval (or Custom to enter your own):")
	msg.ReplyMarkup = intervalPresetsKeyboard()
	_, _ = r.bot.Send(msg)
}

func (r *Router) handleIntervalCallback(ctx context.Context, chatID int64, data string, cbID string) {
	_ = r.answerCallback(cbID, "")
	if data == "interval:custom" {
		r.sendText(chatID, "Enter interval, e.g.: 30m, 1h, 1h30m, 90m")
		r.setPending(chatID, pendingInterval)
		return
	}
	r.applyInterval(ctx, chatID, strings.TrimPrefix(data, "interval:"))
}

func (r *Router) applyInterval(ctx context.Context, chatID int64, raw string) {
	dur, err := domain.ParseIntervalHuman(raw)
	if err != nil {
		r.sendText(chatID, "Invalid interval. Examples: 30m, 1h, 1h30m.")
		return
	}
	err = r.updateSchedule(ctx, chatID, func(u *domain.User) {
		u.Mode = domain.ModeInterval
		u.IntervalMin = int(dur.Minutes())
	})
	if err != nil {
		r.log.Error("update interval failed", zap.Error(err))
		r.sendText(chatID, "Could not save interval.")
		return
	}
	r.sendText(chatID, "Interval updated: "+dur.String())
}

// --- Waking hours flow ---

func (r *Router) askHoursPresets(ctx context.Context, chatID int64, cbID string) {
	_ = r.answerCallback(cbID, "")
	msg := tgbotapi.NewMessage(chatID, "Choose waking hours (or Custom):")
	msg.ReplyMarkup = hoursPresetsKeyboard()
	_, _ = r.bot.Send(msg)
}

func (r *Router) handleHoursCallback(ctx context.Context, chatID int64, data string, cbID string) {
	_ = r.answerCallback(cbID, "")
	if data == "hours:custom" {
		r.sendText(chatID, "Enter waking hours as HH:MM–HH:MM (e.g., 07:00–22:00). The window must not cross midnight.")
		r.setPending(chatID, pendingHours)
		return
	}
	r.applyHours(ctx, chatID, strings.TrimPrefix(data, "hours:"))
}

func (r *Router) applyHours(ctx context.Context, chatID int64, raw string) {
	fromM, toM, err := domain.ParseWakingWindow(raw)
	if err != nil {
		r.sendText(chatID, "Invalid window. Example: 07:00–22:00 (start must be before end).")
		return
	}
	err = r.updateSchedule(ctx, chatID, func(u *domain.User) {
		u.WakeFromM, u.WakeToM = fromM, toM
	})
	if err != nil {
		r.log.Error("update hours failed", zap.Error(err))
		r.sendText(chatID, "Could not save waking hours.")
		return
	}
	r.sendText(chatID, "Waking hours updated: "+domain.FormatMinutes(fromM)+"–"+domain.FormatMinutes(toM))
}

// --- Timezone flow ---

func (r *Router) askTZPresets(ctx context.Context, chatID int64, cbID string) {
	_ = r.answerCallback(cbID, "")
	msg := tgbotapi.NewMessage(chatID, "Choose a timezone or enter your own (Region/City):")
	msg.ReplyMarkup = tzPresetsKeyboard()
	_, _ = r.bot.Send(msg)
}

func (r *Router) handleTZCallback(ctx context.Context, chatID int64, data string, cbID string) {
	_ = r.answerCallback(cbID, "")
	if data == "tz:custom" {
		r.sendText(chatID, "Enter timezone (e.g., Asia/Singapore):")
		r.setPending(chatID, pendingTZ)
		return
	}
	r.applyTZ(ctx, chatID, strings.TrimPrefix(data, "tz:"))
}

func (r *Router) applyTZ(ctx context.Context, chatID int64, raw string) {
	tz, err := domain.ValidateTZ(raw)
	if err != nil {
		r.sendText(chatID, "Invalid timezone. Example: Asia/Singapore")
		return
	}
	err = r.updateSchedule(ctx, chatID, func(u *domain.User) {
		u.TZ = tz
	})
	if err != nil {
		r.log.Error("update tz failed", zap.Error(err))
		r.sendText(chatID, "Could not save timezone.")
		return
	}
	r.sendText(chatID, "Timezone updated: "+tz)
}

// --- Mode flow ---

func (r *Router) askModePresets(ctx context.Context, chatID int64, cbID string) {
	_ = r.answerCallback(cbID, "")
	msg := tgbotapi.NewMessage(chatID, "Remind on an interval, or at a fixed minute past each hour?")
	msg.ReplyMarkup = modePresetsKeyboard()
	_, _ = r.bot.Send(msg)
}

func (r *Router) handleModeCallback(ctx context.Context, chatID int64, data string, cbID string) {
	_ = r.answerCallback(cbID, "")
	switch {
	case data == "mode:interval":
		r.askIntervalPresets(ctx, chatID, cbID)
	case data == "mode:hourly:custom":
		r.sendText(chatID, "Enter the minute past each hour (0–59):")
		r.setPending(chatID, pendingMinute)
	case strings.HasPrefix(data, "mode:hourly:"):
		r.applyMinuteOfHour(ctx, chatID, strings.TrimPrefix(data, "mode:hourly:"))
	}
}

func (r *Router) applyMinuteOfHour(ctx context.Context, chatID int64, raw string) {
	k, err := domain.ParseMinuteOfHour(raw)
	if err != nil {
		r.sendText(chatID, "Invalid minute. Enter a number from 0 to 59.")
		return
	}
	err = r.updateSchedule(ctx, chatID, func(u *domain.User) {
		u.Mode = domain.ModeHourly
		u.MinuteOfHour = k
	})
	if err != nil {
		r.log.Error("update mode failed", zap.Error(err))
		r.sendText(chatID, "Could not save schedule mode.")
		return
	}
	r.sendText(chatID, fmt.Sprintf("Schedule updated: at :%02d past each hour.", k))
}

// --- Free-form dispatcher (for all "Custom" inputs) ---

func (r *Router) handleFreeForm(ctx context.Context, chatID int64, text string) {
	switch r.getPending(chatID) {
	case pendingInterval:
		r.clearPending(chatID)
		r.applyInterval(ctx, chatID, text)

	case pendingHours:
		r.clearPending(chatID)
		r.applyHours(ctx, chatID, text)

	case pendingTZ:
		r.clearPending(chatID)
		r.applyTZ(ctx, chatID, text)

	case pendingMinute:
		r.clearPending(chatID)
		r.applyMinuteOfHour(ctx, chatID, text)

	default:
		// No pending flow: ignore free-form message
	}
}

// --- Pause / Resume / Reset ---

func (r *Router) handlePause(ctx context.Context, chatID int64) {
	// Cancel first so the pending reminder's timer cannot resurrect a
	// missed event for a paused user.
	if err := r.life.Cancel(ctx, chatID); err != nil {
		r.log.Error("cancel pending reminder failed", zap.Error(err), zap.Int64("chatID", chatID))
	}
	if err := r.repo.SetActive(ctx, chatID, false); err != nil {
		r.log.Error("pause failed", zap.Error(err))
		r.sendText(chatID, "Failed to pause.")
		return
	}
	msg := tgbotapi.NewMessage(chatID, "Paused ⏸")
	msg.ReplyMarkup = mainMenuKeyboard(false)
	_, _ = r.bot.Send(msg)
}

func (r *Router) handleResume(ctx context.Context, chatID int64) {
	if err := r.repo.SetActive(ctx, chatID, true); err != nil {
		r.log.Error("resume failed", zap.Error(err))
		r.sendText(chatID, "Failed to resume.")
		return
	}
	// Re-derive the next fire from "now", not from pre-pause history.
	if u, err := r.ensureUser(ctx, chatID); err == nil {
		u.Active = true
		u.LastFireAt = nil
		next := domain.NextFire(time.Now().UTC(), u)
		_ = r.repo.SetSchedule(ctx, chatID, next, nil)
	}
	msg := tgbotapi.NewMessage(chatID, "Resumed ✅")
	msg.ReplyMarkup = mainMenuKeyboard(true)
	_, _ = r.bot.Send(msg)
}

func (r *Router) handleReset(ctx context.Context, chatID int64) {
	if err := r.life.Cancel(ctx, chatID); err != nil {
		r.log.Error("cancel pending reminder failed", zap.Error(err), zap.Int64("chatID", chatID))
	}
	if err := r.repo.DeleteUser(ctx, chatID); err != nil {
		r.log.Error("reset failed", zap.Error(err), zap.Int64("chatID", chatID))
		r.sendText(chatID, "Failed to reset your data.")
		return
	}
	msg := tgbotapi.NewMessage(chatID, resetDoneText)
	msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	_, _ = r.bot.Send(msg)
}

// --- Achievements ---

func (r *Router) handleAchievements(ctx context.Context, chatID int64) {
	u, err := r.ensureUser(ctx, chatID)
	if err != nil {
		r.log.Error("ensureUser failed", zap.Error(err))
		r.sendText(chatID, "Error reading your achievements.")
		return
	}
	earned, err := r.repo.ListAchievements(ctx, chatID)
	if err != nil {
		r.log.Error("ListAchievements failed", zap.Error(err), zap.Int64("chatID", chatID))
		r.sendText(chatID, "Error reading your achievements.")
		return
	}

	loc, err := time.LoadLocation(u.TZ)
	if err != nil {
		loc = time.UTC
	}
	earnedAt := make(map[string]time.Time, len(earned))
	for _, e := range earned {
		earnedAt[e.Code] = e.At
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf(achievementsTitleFmt, len(earned), len(achievements.Catalog)))
	for _, a := range achievements.Catalog {
		at, ok := earnedAt[a.Code]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "\n%s %s — %s", a.Icon, a.Name, at.In(loc).Format("2 Jan 2006"))
	}
	if len(earned) < len(achievements.Catalog) {
		b.WriteString(achievementsLockedTitle)
		for _, a := range achievements.Catalog {
			if _, ok := earnedAt[a.Code]; ok {
				continue
			}
			fmt.Fprintf(&b, "\n🔒 %s — %s", a.Name, a.Description)
		}
	}
	r.sendText(chatID, b.String())
}

// announceAchievements sends one message listing badges a confirmation
// just unlocked.
func (r *Router) announceAchievements(chatID int64, earned []achievements.Achievement) {
	if len(earned) == 0 {
		return
	}
	var b strings.Builder
	b.WriteString(achievementUnlockedTitle)
	for _, a := range earned {
		fmt.Fprintf(&b, "\n%s %s — %s", a.Icon, a.Name, a.Description)
	}
	r.sendText(chatID, b.String())
}
