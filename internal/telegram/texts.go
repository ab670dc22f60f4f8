package telegram

import tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

// UI texts in English
const (
	startText = "🦛 I am a hydration reminder bot.\n\n" +
		"I will ping you to drink water on your schedule and track how well you keep up. " +
		"Tap the button on each reminder once you have had some water.\n\n" +
		"Use /settings to set your interval, waking hours and timezone, " +
		"/stats for today's tally and /achievements for your badges."
	statusTitle = "🧾 Your current settings:"
	statusFmt   = "• Schedule: %s\n• Waking hours: %s–%s\n• TZ: %s\n• Enabled: %s\n• Next reminder: %s\n"

	reminderFmt      = "💧 Time for a hydration break!\n\nCurrent level: %s\n"
	reminderStatsFmt = "Today: %d✅ %d❌ (%.0f%%)\n"
	confirmedFmt     = "✅ Great! Water logged.\n\nCurrent level: %s"

	staleTapText     = "That reminder has already expired — a fresh one is on its way!"
	expiredTapText   = "This reminder has expired. A new one will be sent soon!"
	staleMessageText = "This message is too old. Send the command again."

	achievementsTitleFmt     = "🏅 Achievements: %d of %d earned"
	achievementsLockedTitle  = "\n\nStill locked:"
	achievementUnlockedTitle = "🎉 Achievement unlocked!"

	statsFmt = "📊 Today so far:\n• Confirmed: %d ✅\n• Missed: %d ❌\n• Success rate: %s\n• Current level: %s"

	resetDoneText = "All of your data has been deleted. Send /start to begin again."
)

// mainMenuKeyboard builds a reply keyboard with a single toggle button:
// if enabled is true -> "/pause", else -> "/resume".
func mainMenuKeyboard(enabled bool) tgbotapi.ReplyKeyboardMarkup {
	toggle := "/pause"
	if !enabled {
		toggle = "/resume"
	}
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("/status"),
			tgbotapi.NewKeyboardButton("/stats"),
			tgbotapi.NewKeyboardButton("/settings"),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(toggle),
		),
	)
}

// confirmKeyboard is attached to each delivered reminder.
func confirmKeyboard(reminderID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("💧 I drank water!", "confirm:"+reminderID),
		),
	)
}

// expiredKeyboard replaces confirmKeyboard once the reminder can no longer
// be acknowledged.
func expiredKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⏰ Expired — missed this one", "expired"),
		),
	)
}

// Inline keyboards
func settingsInlineKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⏲️ Interval", "set_interval"),
			tgbotapi.NewInlineKeyboardButtonData("🕘 Waking hours", "set_hours"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🌍 Timezone", "set_tz"),
			tgbotapi.NewInlineKeyboardButtonData("🔁 Mode", "set_mode"),
		),
	)
}

func intervalPresetsKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("30m", "interval:30m"),
			tgbotapi.NewInlineKeyboardButtonData("45m", "interval:45m"),
			tgbotapi.NewInlineKeyboardButtonData("1h", "interval:1h"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("90m", "interval:90m"),
			tgbotapi.NewInlineKeyboardButtonData("2h", "interval:2h"),
			tgbotapi.NewInlineKeyboardButtonData("3h", "interval:3h"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✍️ Custom…", "interval:custom"),
		),
	)
}

func hoursPresetsKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("07:00–22:00", "hours:07:00-22:00"),
			tgbotapi.NewInlineKeyboardButtonData("08:00–22:00", "hours:08:00-22:00"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("09:00–21:00", "hours:09:00-21:00"),
			tgbotapi.NewInlineKeyboardButtonData("✍️ Custom…", "hours:custom"),
		),
	)
}

func tzPresetsKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Asia/Singapore", "tz:Asia/Singapore"),
			tgbotapi.NewInlineKeyboardButtonData("Europe/London", "tz:Europe/London"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("America/New_York", "tz:America/New_York"),
			tgbotapi.NewInlineKeyboardButtonData("UTC", "tz:UTC"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✍️ Custom…", "tz:custom"),
		),
	)
}

func modePresetsKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⏲️ Every N minutes", "mode:interval"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(":00", "mode:hourly:0"),
			tgbotapi.NewInlineKeyboardButtonData(":15", "mode:hourly:15"),
			tgbotapi.NewInlineKeyboardButtonData(":30", "mode:hourly:30"),
			tgbotapi.NewInlineKeyboardButtonData(":45", "mode:hourly:45"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✍️ Custom minute…", "mode:hourly:custom"),
		),
	)
}
