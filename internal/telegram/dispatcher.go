package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/nnamon/hippo/internal/domain"
)

// Dispatch delivers a fired reminder: a message carrying the current
// hydration level, today's tally and a confirmation button whose callback
// is the acknowledgment path. This makes Router satisfy
// lifecycle.Dispatcher.
func (r *Router) Dispatch(ctx context.Context, chatID int64, reminderID string, level int) error {
	body := fmt.Sprintf(reminderFmt, domain.LevelDescription(level))

	if stats, err := r.life.DailyStats(ctx, chatID, r.userTZ(ctx, chatID)); err == nil && stats.Total() > 0 {
		body += fmt.Sprintf(reminderStatsFmt,
			stats.Confirmed, stats.Missed, stats.SuccessRate()*100)
	}

	msg := tgbotapi.NewMessage(chatID, body)
	msg.ReplyMarkup = confirmKeyboard(reminderID)
	_, err := r.bot.Send(msg)
	return err
}

// handleConfirm is the acknowledgment path for the reminder button. A
// stale tap (reminder already expired or superseded) is answered gently,
// not treated as an error.
func (r *Router) handleConfirm(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID
	reminderID := cb.Data[len("confirm:"):]

	ok, earned, err := r.life.Acknowledge(ctx, chatID, reminderID)
	if err != nil {
		r.log.Error("acknowledge failed", zap.Error(err), zap.Int64("chatID", chatID))
		_ = r.answerCallback(cb.ID, "Something went wrong, please try again.")
		return
	}
	if !ok {
		_ = r.answerCallbackAlert(cb.ID, staleTapText)
		r.markExpired(chatID, cb.Message.MessageID)
		return
	}

	level, err := r.life.Level(ctx, chatID)
	if err != nil {
		level = 0
	}
	_ = r.answerCallback(cb.ID, "Logged! 💧")

	edit := tgbotapi.NewEditMessageText(chatID, cb.Message.MessageID,
		fmt.Sprintf(confirmedFmt, domain.LevelDescription(level)))
	if _, err := r.bot.Send(edit); err != nil {
		r.log.Warn("edit confirmed message failed", zap.Error(err), zap.Int64("chatID", chatID))
	}
	r.announceAchievements(chatID, earned)
}

// markExpired swaps the confirmation button for an inert "expired" one on
// a reminder that can no longer be acknowledged.
func (r *Router) markExpired(chatID int64, messageID int) {
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, expiredKeyboard())
	if _, err := r.bot.Send(edit); err != nil {
		r.log.Debug("edit expired markup failed", zap.Error(err), zap.Int64("chatID", chatID))
	}
}

// userTZ returns the chat's configured timezone, falling back to the
// instance default.
func (r *Router) userTZ(ctx context.Context, chatID int64) string {
	u, err := r.repo.GetUser(ctx, chatID)
	if err != nil {
		return r.defaultTZ
	}
	return u.TZ
}
