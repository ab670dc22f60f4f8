package telegram

import (
	"context"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/nnamon/hippo/internal/lifecycle"
	"github.com/nnamon/hippo/internal/store"
)

// Pending state keys used in conversational flows.
const (
	pendingInterval = "await_interval_text"
	pendingHours    = "await_hours_text"
	pendingTZ       = "await_tz_text"
	pendingMinute   = "await_minute_text"
)

// Router wires Telegram updates to handlers and holds minimal in-memory state.
type Router struct {
	bot       *tgbotapi.BotAPI
	log       *zap.Logger
	repo      store.Repo
	life      *lifecycle.Manager
	defaultTZ string
	state     map[int64]string // chatID -> pending state
	mu        sync.RWMutex
}

// NewRouter creates a new Telegram router.
func NewRouter(bot *tgbotapi.BotAPI, log *zap.Logger, repo store.Repo, life *lifecycle.Manager, defaultTZ string) *Router {
	return &Router{
		bot:       bot,
		log:       log,
		repo:      repo,
		life:      life,
		defaultTZ: defaultTZ,
		state:     make(map[int64]string),
	}
}

// SetLifecycle binds the lifecycle manager after construction. The router
// is the manager's dispatcher, so the two are wired in two steps.
func (r *Router) SetLifecycle(life *lifecycle.Manager) {
	r.life = life
}

// setPending sets a pending state for a chat (non-persistent, in-memory).
func (r *Router) setPending(chatID int64, s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state[chatID] = s
}

// getPending returns current pending state for a chat.
func (r *Router) getPending(chatID int64) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state[chatID]
}

// clearPending clears a pending state for a chat.
func (r *Router) clearPending(chatID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.state, chatID)
}

// HandleUpdate routes a single update to the appropriate handler.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	// Text messages
	if upd.Message != nil {
		msg := upd.Message
		chatID := msg.Chat.ID
		text := strings.TrimSpace(msg.Text)

		switch {
		case strings.HasPrefix(text, "/start"):
			r.handleStart(ctx, chatID)
		case strings.HasPrefix(text, "/status"):
			r.handleStatus(ctx, chatID)
		case strings.HasPrefix(text, "/stats"):
			r.handleStats(ctx, chatID)
		case strings.HasPrefix(text, "/achievements"):
			r.handleAchievements(ctx, chatID)
		case strings.HasPrefix(text, "/settings"):
			r.handleSettings(ctx, chatID)
		case strings.HasPrefix(text, "/pause"):
			r.handlePause(ctx, chatID)
		case strings.HasPrefix(text, "/resume"):
			r.handleResume(ctx, chatID)
		case strings.HasPrefix(text, "/reset"):
			r.handleReset(ctx, chatID)
		default:
			// Free-form text used in "Custom" flows (interval/hours/tz/minute)
			r.handleFreeForm(ctx, chatID, text)
		}
		return
	}

	// Callback queries (inline buttons)
	if upd.CallbackQuery != nil {
		cb := upd.CallbackQuery
		// Telegram stops attaching the originating message to callbacks
		// once it is too old. Nothing can be edited or routed then.
		if cb.Message == nil {
			_ = r.answerCallbackAlert(cb.ID, staleMessageText)
			return
		}
		data := cb.Data
		chatID := cb.Message.Chat.ID

		switch {
		// Acknowledgment path for delivered reminders
		case strings.HasPrefix(data, "confirm:"):
			r.handleConfirm(ctx, cb)
		case data == "expired":
			_ = r.answerCallbackAlert(cb.ID, expiredTapText)

		// Settings sections
		case data == "set_interval":
			r.askIntervalPresets(ctx, chatID, cb.ID)
		case strings.HasPrefix(data, "interval:"):
			r.handleIntervalCallback(ctx, chatID, data, cb.ID)

		case data == "set_hours":
			r.askHoursPresets(ctx, chatID, cb.ID)
		case strings.HasPrefix(data, "hours:"):
			r.handleHoursCallback(ctx, chatID, data, cb.ID)

		case data == "set_tz":
			r.askTZPresets(ctx, chatID, cb.ID)
		case strings.HasPrefix(data, "tz:"):
			r.handleTZCallback(ctx, chatID, data, cb.ID)

		case data == "set_mode":
			r.askModePresets(ctx, chatID, cb.ID)
		case strings.HasPrefix(data, "mode:"):
			r.handleModeCallback(ctx, chatID, data, cb.ID)

		default:
			// Unknown callback — ignore silently
		}
		return
	}
}
